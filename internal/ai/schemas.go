package ai

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// One strict schema per call site. Responses that don't match are rejected
// outright instead of being patched up with fallback values.

const contentAnalysisJSON = `{
	"type": "object",
	"required": ["sentiment", "tone", "topics", "readabilityScore", "engagementScore", "seoScore", "suggestions", "hashtags"],
	"properties": {
		"sentiment": {"type": "string", "enum": ["positive", "neutral", "negative"]},
		"tone": {"type": "string"},
		"topics": {"type": "array", "items": {"type": "string"}},
		"readabilityScore": {"type": "number", "minimum": 0, "maximum": 100},
		"engagementScore": {"type": "number", "minimum": 0, "maximum": 100},
		"seoScore": {"type": "number", "minimum": 0, "maximum": 100},
		"suggestions": {"type": "array", "items": {"type": "string"}},
		"hashtags": {"type": "array", "items": {"type": "string"}}
	}
}`

const leadScoringJSON = `{
	"type": "object",
	"required": ["score", "priority", "nextAction", "conversionProbability", "insights"],
	"properties": {
		"score": {"type": "integer", "minimum": 0, "maximum": 100},
		"priority": {"type": "string", "enum": ["low", "medium", "high", "urgent"]},
		"nextAction": {"type": "string"},
		"conversionProbability": {"type": "number", "minimum": 0, "maximum": 1},
		"insights": {"type": "array", "items": {"type": "string"}}
	}
}`

const contentSuggestionsJSON = `{
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["title", "body", "keyPoints", "hashtags", "bestPostingTime", "expectedEngagement"],
		"properties": {
			"title": {"type": "string"},
			"body": {"type": "string"},
			"keyPoints": {"type": "array", "items": {"type": "string"}},
			"hashtags": {"type": "array", "items": {"type": "string"}},
			"bestPostingTime": {"type": "string"},
			"expectedEngagement": {"type": "string"}
		}
	}
}`

const dashboardInsightsJSON = `{
	"type": "object",
	"required": ["keyInsights", "recommendations", "opportunityAreas", "nextSteps"],
	"properties": {
		"keyInsights": {"type": "array", "items": {"type": "string"}},
		"recommendations": {"type": "array", "items": {"type": "string"}},
		"opportunityAreas": {"type": "array", "items": {"type": "string"}},
		"nextSteps": {"type": "array", "items": {"type": "string"}}
	}
}`

const imageDescriptionJSON = `{
	"type": "object",
	"required": ["description", "altText", "tags"],
	"properties": {
		"description": {"type": "string"},
		"altText": {"type": "string"},
		"tags": {"type": "array", "items": {"type": "string"}}
	}
}`

type compiledSchema struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

func (c *compiledSchema) get(name, src string) (*jsonschema.Schema, error) {
	c.once.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(src)))
		if err != nil {
			c.err = fmt.Errorf("unmarshal %s schema: %w", name, err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(name, doc); err != nil {
			c.err = fmt.Errorf("add %s schema resource: %w", name, err)
			return
		}
		c.schema, c.err = compiler.Compile(name)
	})
	return c.schema, c.err
}

var (
	contentAnalysisCompiled    compiledSchema
	leadScoringCompiled        compiledSchema
	contentSuggestionsCompiled compiledSchema
	dashboardInsightsCompiled  compiledSchema
	imageDescriptionCompiled   compiledSchema
)

func contentAnalysisSchema() (*jsonschema.Schema, error) {
	return contentAnalysisCompiled.get("content_analysis.json", contentAnalysisJSON)
}

func leadScoringSchema() (*jsonschema.Schema, error) {
	return leadScoringCompiled.get("lead_scoring.json", leadScoringJSON)
}

func contentSuggestionsSchema() (*jsonschema.Schema, error) {
	return contentSuggestionsCompiled.get("content_suggestions.json", contentSuggestionsJSON)
}

func dashboardInsightsSchema() (*jsonschema.Schema, error) {
	return dashboardInsightsCompiled.get("dashboard_insights.json", dashboardInsightsJSON)
}

func imageDescriptionSchema() (*jsonschema.Schema, error) {
	return imageDescriptionCompiled.get("image_description.json", imageDescriptionJSON)
}
