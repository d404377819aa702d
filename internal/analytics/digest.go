package analytics

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chirino/coaching-service/internal/memory"
	"github.com/chirino/coaching-service/internal/model"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
)

const (
	digestMaxExcerpts    = 20
	digestExcerptRunes   = 200
	digestMaxRunes       = 4000
	digestTruncateMarker = "\n[digest truncated]"
	excerptEllipsis      = "..."
)

// buildDigest renders the activity as bounded plain text for the narrative
// prompt: statistics, one line per session, then the latest user excerpts.
func buildDigest(a *registrystore.Activity, st Stats, patterns model.PatternSummary, windowDays int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Window: last %d days\n", windowDays)
	fmt.Fprintf(&b, "Total sessions: %d\n", st.Sessions)
	fmt.Fprintf(&b, "User messages: %d\n", st.UserMessages)
	fmt.Fprintf(&b, "Lesson sessions: %d (completed: %d)\n", st.LessonSessions, st.LessonsCompleted)
	if st.Sessions > 0 {
		fmt.Fprintf(&b, "Average user messages per session: %.1f\n", float64(st.UserMessages)/float64(st.Sessions))
	}
	if patterns.UserMessages > 0 {
		b.WriteString("\nPatterns:\n")
		fmt.Fprintf(&b, "- Average message length: %.1f characters\n", patterns.AvgMessageRunes)
		fmt.Fprintf(&b, "- Business focus: %.1f%%\n", patterns.BusinessFocus*100)
		fmt.Fprintf(&b, "- Leadership focus: %.1f%%\n", patterns.LeadershipFocus*100)
	}

	perSession := map[string]int{}
	for _, t := range a.Turns {
		if t.Role == model.RoleUser {
			perSession[t.SessionID.String()]++
		}
	}
	b.WriteString("\nSessions:\n")
	for _, s := range a.Sessions {
		lesson := "none"
		if s.LessonRef != nil && *s.LessonRef != "" {
			lesson = *s.LessonRef
		}
		status := "active"
		if s.CompletedAt != nil {
			status = "completed"
		}
		title := s.Title
		if title == "" {
			title = "untitled"
		}
		fmt.Fprintf(&b, "- %s %q lesson=%s status=%s user_messages=%d\n",
			s.CreatedAt.UTC().Format("2006-01-02"), title, lesson, status, perSession[s.ID.String()])
	}

	var excerpts []string
	for i := len(a.Turns) - 1; i >= 0 && len(excerpts) < digestMaxExcerpts; i-- {
		t := a.Turns[i]
		if t.Role != model.RoleUser {
			continue
		}
		text := strings.Join(strings.Fields(t.Content), " ")
		if utf8.RuneCountInString(text) > digestExcerptRunes {
			text = memory.Excerpt(text, digestExcerptRunes-utf8.RuneCountInString(excerptEllipsis)) + excerptEllipsis
		}
		excerpts = append(excerpts, text)
	}
	if len(excerpts) > 0 {
		b.WriteString("\nRecent user messages (newest first):\n")
		for _, e := range excerpts {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}

	out := b.String()
	if utf8.RuneCountInString(out) > digestMaxRunes {
		out = memory.Excerpt(out, digestMaxRunes-utf8.RuneCountInString(digestTruncateMarker)) + digestTruncateMarker
	}
	return out
}
