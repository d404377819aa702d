package analytics

import (
	"strings"
	"unicode/utf8"

	"github.com/chirino/coaching-service/internal/model"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
)

var (
	businessKeywords   = []string{"client", "customer", "sale", "business", "meeting", "negotiation"}
	leadershipKeywords = []string{"team", "leader", "manage", "decision", "strategy"}
)

// AnalyzePatterns summarizes the user-authored turns of a window: average
// length and the share of messages mentioning business or leadership themes.
func AnalyzePatterns(a *registrystore.Activity) model.PatternSummary {
	var (
		p                    model.PatternSummary
		runes                int
		business, leadership int
	)
	for _, t := range a.Turns {
		if t.Role != model.RoleUser {
			continue
		}
		p.UserMessages++
		runes += utf8.RuneCountInString(t.Content)
		lower := strings.ToLower(t.Content)
		if mentionsAny(lower, businessKeywords) {
			business++
		}
		if mentionsAny(lower, leadershipKeywords) {
			leadership++
		}
	}
	if p.UserMessages == 0 {
		return p
	}
	n := float64(p.UserMessages)
	p.AvgMessageRunes = round(float64(runes)/n, 1)
	p.BusinessFocus = round(float64(business)/n, 4)
	p.LeadershipFocus = round(float64(leadership)/n, 4)
	return p
}

func mentionsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
