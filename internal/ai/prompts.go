package ai

import (
	"fmt"
	"strings"
)

// UserContext is the lightweight profile slice included in prompts.
type UserContext struct {
	Industry    string
	Preferences string
}

func (u UserContext) lines() string {
	var sb strings.Builder
	if u.Industry != "" {
		fmt.Fprintf(&sb, "Industry: %s\n", u.Industry)
	}
	if u.Preferences != "" {
		fmt.Fprintf(&sb, "Preferences: %s\n", u.Preferences)
	}
	return sb.String()
}

const jsonOnlyRule = "Respond with JSON only. No prose, no markdown fences, no explanation."

// ContentAnalysisPrompt asks for the ContentAnalysis shape for a piece of copy.
func ContentAnalysisPrompt(user UserContext, text string) string {
	var sb strings.Builder
	sb.WriteString("You are a social media copy analyst for a freelancer.\n")
	sb.WriteString(user.lines())
	sb.WriteString("Analyze the following content and return exactly this JSON shape:\n")
	sb.WriteString(`{"sentiment":"positive|neutral|negative","tone":"...","topics":["..."],"readabilityScore":0-100,"engagementScore":0-100,"seoScore":0-100,"suggestions":["..."],"hashtags":["..."]}` + "\n")
	sb.WriteString(jsonOnlyRule + "\n\nContent:\n")
	sb.WriteString(text)
	return sb.String()
}

// LeadSummary is the lead slice included in a scoring prompt.
type LeadSummary struct {
	Name           string
	Company        string
	Source         string
	Status         string
	EstimatedValue float64
	Notes          string
	Interactions   []string
}

// LeadScoringPrompt asks for the LeadScoring shape given a lead and its
// interaction history.
func LeadScoringPrompt(user UserContext, lead LeadSummary) string {
	var sb strings.Builder
	sb.WriteString("You are a CRM assistant scoring a sales lead for a freelancer.\n")
	sb.WriteString(user.lines())
	fmt.Fprintf(&sb, "Lead: %s", lead.Name)
	if lead.Company != "" {
		fmt.Fprintf(&sb, " (%s)", lead.Company)
	}
	fmt.Fprintf(&sb, "\nSource: %s\nPipeline status: %s\n", lead.Source, lead.Status)
	if lead.EstimatedValue > 0 {
		fmt.Fprintf(&sb, "Estimated value: %.2f\n", lead.EstimatedValue)
	}
	if lead.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", lead.Notes)
	}
	if len(lead.Interactions) > 0 {
		sb.WriteString("Interaction history (oldest first):\n")
		for _, it := range lead.Interactions {
			fmt.Fprintf(&sb, "- %s\n", it)
		}
	} else {
		sb.WriteString("No interactions recorded yet.\n")
	}
	sb.WriteString("Return exactly this JSON shape:\n")
	sb.WriteString(`{"score":0-100,"priority":"low|medium|high|urgent","nextAction":"...","conversionProbability":0.0-1.0,"insights":["..."]}` + "\n")
	sb.WriteString(jsonOnlyRule)
	return sb.String()
}

// SmartContentPrompt asks for an array of ContentSuggestion entries.
func SmartContentPrompt(user UserContext, topic string, platforms []string) string {
	var sb strings.Builder
	sb.WriteString("You are a content strategist for a freelancer.\n")
	sb.WriteString(user.lines())
	fmt.Fprintf(&sb, "Topic: %s\nTarget platforms: %s\n", topic, strings.Join(platforms, ", "))
	sb.WriteString("Propose 3 content ideas. Return a JSON array where each entry has exactly this shape:\n")
	sb.WriteString(`{"title":"...","body":"...","keyPoints":["..."],"hashtags":["..."],"bestPostingTime":"...","expectedEngagement":"..."}` + "\n")
	sb.WriteString(jsonOnlyRule)
	return sb.String()
}

// AccountSummary aggregates recent activity for the dashboard prompt.
type AccountSummary struct {
	ContentTotal     int
	ContentPublished int
	ContentScheduled int
	LeadTotal        int
	LeadWon          int
	PipelineValue    float64
}

// DashboardInsightsPrompt asks for the DashboardInsights shape from summary stats.
func DashboardInsightsPrompt(user UserContext, s AccountSummary) string {
	var sb strings.Builder
	sb.WriteString("You are a business advisor for a freelancer.\n")
	sb.WriteString(user.lines())
	fmt.Fprintf(&sb, "Content: %d total, %d published, %d scheduled.\n", s.ContentTotal, s.ContentPublished, s.ContentScheduled)
	fmt.Fprintf(&sb, "Leads: %d total, %d won, pipeline value %.2f.\n", s.LeadTotal, s.LeadWon, s.PipelineValue)
	sb.WriteString("Return exactly this JSON shape:\n")
	sb.WriteString(`{"keyInsights":["..."],"recommendations":["..."],"opportunityAreas":["..."],"nextSteps":["..."]}` + "\n")
	sb.WriteString(jsonOnlyRule)
	return sb.String()
}

// ImageDescriptionPrompt asks for a description/alt-text/tags JSON for an image.
func ImageDescriptionPrompt() string {
	return "Describe this image for a content library.\n" +
		`Return exactly this JSON shape: {"description":"...","altText":"...","tags":["..."]}` + "\n" +
		jsonOnlyRule
}
