package ai

// ContentAnalysis is the shape requested from the model for copy analysis.
type ContentAnalysis struct {
	Sentiment        string   `json:"sentiment"`
	Tone             string   `json:"tone"`
	Topics           []string `json:"topics"`
	ReadabilityScore float64  `json:"readabilityScore"`
	EngagementScore  float64  `json:"engagementScore"`
	SEOScore         float64  `json:"seoScore"`
	Suggestions      []string `json:"suggestions"`
	Hashtags         []string `json:"hashtags"`
}

// LeadScoring is the shape requested for pipeline lead scoring.
type LeadScoring struct {
	Score                 int      `json:"score"`
	Priority              string   `json:"priority"`
	NextAction            string   `json:"nextAction"`
	ConversionProbability float64  `json:"conversionProbability"`
	Insights              []string `json:"insights"`
}

// ContentSuggestion is one entry of the smart-content response array.
type ContentSuggestion struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	KeyPoints          []string `json:"keyPoints"`
	Hashtags           []string `json:"hashtags"`
	BestPostingTime    string   `json:"bestPostingTime"`
	ExpectedEngagement string   `json:"expectedEngagement"`
}

// DashboardInsights is the free-form personalized summary shape.
type DashboardInsights struct {
	KeyInsights      []string `json:"keyInsights"`
	Recommendations  []string `json:"recommendations"`
	OpportunityAreas []string `json:"opportunityAreas"`
	NextSteps        []string `json:"nextSteps"`
}

// ImageDescription is the shape requested when describing an uploaded image.
type ImageDescription struct {
	Description string   `json:"description"`
	AltText     string   `json:"altText"`
	Tags        []string `json:"tags"`
}
