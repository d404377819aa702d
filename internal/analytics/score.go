package analytics

import (
	"math"
	"time"

	"github.com/chirino/coaching-service/internal/model"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
)

// Component weights of the engagement score. They sum to 1.
const (
	WeightFrequency  = 0.35
	WeightDepth      = 0.25
	WeightCompletion = 0.20
	WeightRecency    = 0.20
)

const (
	sessionsPerWeekTarget    = 3.0
	messagesPerSessionTarget = 8.0
)

// Stats are the counts a report is built from.
type Stats struct {
	Sessions         int
	UserMessages     int
	LessonSessions   int
	LessonsCompleted int
}

// Summarize counts sessions, user-authored turns and lesson outcomes.
func Summarize(a *registrystore.Activity) Stats {
	var st Stats
	st.Sessions = len(a.Sessions)
	for _, s := range a.Sessions {
		if s.LessonRef == nil || *s.LessonRef == "" {
			continue
		}
		st.LessonSessions++
		if s.CompletedAt != nil {
			st.LessonsCompleted++
		}
	}
	for _, t := range a.Turns {
		if t.Role == model.RoleUser {
			st.UserMessages++
		}
	}
	return st
}

// Score computes the engagement score in [0,100] and its components. It is a
// pure function of the activity, the window length and the window end.
func Score(a *registrystore.Activity, windowDays int, end time.Time) (float64, model.ScoreBreakdown) {
	st := Summarize(a)
	if st.Sessions == 0 || windowDays <= 0 {
		return 0, model.ScoreBreakdown{}
	}
	w := float64(windowDays)

	b := model.ScoreBreakdown{
		Frequency: math.Min(1, float64(st.Sessions)/math.Max(1, sessionsPerWeekTarget*w/7)),
		Depth:     math.Min(1, float64(st.UserMessages)/float64(st.Sessions)/messagesPerSessionTarget),
		Recency:   recency(a, w, end),
	}
	if st.LessonSessions > 0 {
		b.Completion = float64(st.LessonsCompleted) / float64(st.LessonSessions)
	}

	total := 100 * (WeightFrequency*b.Frequency +
		WeightDepth*b.Depth +
		WeightCompletion*b.Completion +
		WeightRecency*b.Recency)

	b.Frequency = round(b.Frequency, 4)
	b.Depth = round(b.Depth, 4)
	b.Completion = round(b.Completion, 4)
	b.Recency = round(b.Recency, 4)
	return math.Max(0, math.Min(100, round(total, 1))), b
}

// recency averages an exponential decay with a half-life of half the window
// over user turns, or over session starts when the user wrote nothing.
func recency(a *registrystore.Activity, windowDays float64, end time.Time) float64 {
	var times []time.Time
	for _, t := range a.Turns {
		if t.Role == model.RoleUser {
			times = append(times, t.CreatedAt)
		}
	}
	if len(times) == 0 {
		for _, s := range a.Sessions {
			times = append(times, s.CreatedAt)
		}
	}
	if len(times) == 0 {
		return 0
	}
	halfLife := windowDays / 2
	var sum float64
	for _, t := range times {
		age := math.Max(0, end.Sub(t).Hours()/24)
		sum += math.Exp2(-age / halfLife)
	}
	return sum / float64(len(times))
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
