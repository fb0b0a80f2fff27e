package ai

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// StripFences removes a leading/trailing fenced code block (```json ... ```)
// that models often wrap JSON answers in, plus surrounding whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence line.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "" || first == "json" || first == "JSON" {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeValidated parses raw model output as JSON, validates it against the
// given schema, then unmarshals into dst. Any mismatch yields a *ParseError:
// the response is untrusted input and a shape violation means the whole
// operation failed. Missing fields are never silently defaulted.
func decodeValidated(op, raw string, schema *jsonschema.Schema, dst any) error {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return &ParseError{Op: op, Msg: "empty response", Raw: raw}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(cleaned)))
	if err != nil {
		return &ParseError{Op: op, Msg: "not valid JSON: " + err.Error(), Raw: raw}
	}
	if err := schema.Validate(inst); err != nil {
		return &ParseError{Op: op, Msg: "schema mismatch: " + err.Error(), Raw: raw}
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return &ParseError{Op: op, Msg: "decode: " + err.Error(), Raw: raw}
	}
	return nil
}

// ParseContentAnalysis validates and decodes a content-analysis response.
func ParseContentAnalysis(raw string) (*ContentAnalysis, error) {
	sch, err := contentAnalysisSchema()
	if err != nil {
		return nil, err
	}
	var out ContentAnalysis
	if err := decodeValidated("content_analysis", raw, sch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ParseLeadScoring validates and decodes a lead-scoring response.
func ParseLeadScoring(raw string) (*LeadScoring, error) {
	sch, err := leadScoringSchema()
	if err != nil {
		return nil, err
	}
	var out LeadScoring
	if err := decodeValidated("lead_analysis", raw, sch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ParseContentSuggestions validates and decodes a smart-content response array.
func ParseContentSuggestions(raw string) ([]ContentSuggestion, error) {
	sch, err := contentSuggestionsSchema()
	if err != nil {
		return nil, err
	}
	var out []ContentSuggestion
	if err := decodeValidated("content_suggestion", raw, sch, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseDashboardInsights validates and decodes a dashboard-insights response.
func ParseDashboardInsights(raw string) (*DashboardInsights, error) {
	sch, err := dashboardInsightsSchema()
	if err != nil {
		return nil, err
	}
	var out DashboardInsights
	if err := decodeValidated("dashboard_insights", raw, sch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ParseImageDescription validates and decodes an image-description response.
func ParseImageDescription(raw string) (*ImageDescription, error) {
	sch, err := imageDescriptionSchema()
	if err != nil {
		return nil, err
	}
	var out ImageDescription
	if err := decodeValidated("image_description", raw, sch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
