package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chirino/coaching-service/internal/model"
	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
)

// ReportNarrativeFailure means no usable narrative was produced. Reports
// degrade to a placeholder narrative when it occurs.
type ReportNarrativeFailure struct {
	Attempts int
	Cause    error
}

func (e *ReportNarrativeFailure) Error() string {
	return fmt.Sprintf("report narrative failed after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *ReportNarrativeFailure) Unwrap() error { return e.Cause }

// Narrative is the model-authored part of a report.
type Narrative struct {
	Summary             string   `json:"summary"`
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areas_for_improvement"`
	Recommendations     []string `json:"recommendations"`
	// DetailedAnalysis is free-form; the model chooses its keys.
	DetailedAnalysis map[string]any `json:"detailed_analysis"`
}

const (
	placeholderSummary = "An automated narrative could not be generated for this period. The activity figures above are accurate."
	noActivitySummary  = "No coaching activity was recorded in the last %d days. Start a session to begin tracking progress."
)

const narrativeSystem = "You are an expert business and leadership coach analyzing a user's progress. " +
	"Provide constructive, actionable insights grounded only in the data you are given."

const narrativeInstructions = `Analyze the coaching activity below and respond with a JSON object with these keys:
- "summary": two or three sentences on the user's progress
- "strengths": up to three strengths the user demonstrated
- "areas_for_improvement": up to three areas to work on
- "recommendations": up to three specific next steps
- "detailed_analysis": an object describing engagement level, learning pace and focus areas

Activity:
`

const strictInstructions = `Your previous answer could not be parsed. Respond with ONLY a single JSON object,
with no code fences and no text before or after it, exactly in this shape:
{"summary": "...", "strengths": ["..."], "areas_for_improvement": ["..."], "recommendations": ["..."], "detailed_analysis": {}}

Activity:
`

var errNoJSONObject = errors.New("no JSON object in response")

func narrativePrompt(digest string, strict bool) registryprovider.Prompt {
	instructions := narrativeInstructions
	if strict {
		instructions = strictInstructions
	}
	return registryprovider.Prompt{
		System: narrativeSystem,
		Messages: []registryprovider.Message{
			{Role: registryprovider.RoleUser, Content: instructions + digest},
		},
	}
}

// parseNarrative extracts the first-to-last brace span of text, which
// tolerates code fences and prose around the object.
func parseNarrative(text string) (*Narrative, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errNoJSONObject
	}
	var n Narrative
	if err := json.Unmarshal([]byte(text[start:end+1]), &n); err != nil {
		return nil, fmt.Errorf("decode narrative: %w", err)
	}
	n.Summary = strings.TrimSpace(n.Summary)
	if n.Summary == "" {
		return nil, errors.New("narrative has an empty summary")
	}
	n.Strengths = cleanList(n.Strengths)
	n.AreasForImprovement = cleanList(n.AreasForImprovement)
	n.Recommendations = cleanList(n.Recommendations)
	return &n, nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func applyNarrative(r *model.ProgressReport, n *Narrative) {
	r.Summary = n.Summary
	r.Strengths = n.Strengths
	r.AreasForImprovement = n.AreasForImprovement
	r.Recommendations = n.Recommendations
	if len(n.DetailedAnalysis) > 0 {
		r.DetailedAnalysis = n.DetailedAnalysis
	}
}
