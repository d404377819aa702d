// Package analytics turns a user's coaching history into scored progress
// reports with a model-authored narrative.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/gateway"
	"github.com/chirino/coaching-service/internal/metrics"
	"github.com/chirino/coaching-service/internal/model"
	registryarchive "github.com/chirino/coaching-service/internal/registry/archive"
	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	"github.com/google/uuid"
)

// Completer is the part of the gateway the pipeline needs.
type Completer interface {
	Complete(ctx context.Context, prompt registryprovider.Prompt, modelID string, opts gateway.Options) (*gateway.Result, error)
}

// Settings tune a Pipeline.
type Settings struct {
	Model         string
	Temperature   float64
	MaxTokens     int64
	MaxWindowDays int
}

// Pipeline generates and lists progress reports.
type Pipeline struct {
	store    registrystore.RecordStore
	gateway  Completer
	archiver registryarchive.Archiver
	settings Settings
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces time.Now as the source of the window end.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(store registrystore.RecordStore, gw Completer, archiver registryarchive.Archiver, settings Settings, opts ...Option) *Pipeline {
	if settings.MaxWindowDays <= 0 {
		settings.MaxWindowDays = 90
	}
	p := &Pipeline{
		store:    store,
		gateway:  gw,
		archiver: archiver,
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GenerateReport scores the last windowDays of userID's activity and stores
// the result as a new report. Narrative failures never fail the report.
func (p *Pipeline) GenerateReport(ctx context.Context, userID string, windowDays int) (*model.ProgressReport, error) {
	if userID == "" {
		return nil, &registrystore.ValidationError{Field: "userId", Message: "must not be empty"}
	}
	if windowDays < 1 || windowDays > p.settings.MaxWindowDays {
		return nil, &registrystore.ValidationError{
			Field:   "windowDays",
			Message: fmt.Sprintf("must be between 1 and %d", p.settings.MaxWindowDays),
		}
	}
	end := p.now().UTC().Truncate(time.Microsecond)
	start := end.Add(-time.Duration(windowDays) * 24 * time.Hour)

	activity, err := p.store.LoadActivity(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	st := Summarize(activity)
	patterns := AnalyzePatterns(activity)
	score, breakdown := Score(activity, windowDays, end)

	report := &model.ProgressReport{
		ID:               uuid.New(),
		UserID:           userID,
		PeriodStart:      start,
		PeriodEnd:        end,
		WindowDays:       windowDays,
		TotalSessions:    st.Sessions,
		TotalMessages:    st.UserMessages,
		LessonsCompleted: st.LessonsCompleted,
		EngagementScore:  score,
		ScoreBreakdown:   breakdown,
		Patterns:         patterns,
	}

	if st.Sessions == 0 {
		report.Summary = fmt.Sprintf(noActivitySummary, windowDays)
		report.NarrativeStatus = model.NarrativeSkipped
	} else {
		digest := buildDigest(activity, st, patterns, windowDays)
		n, err := p.narrate(ctx, digest)
		if err != nil {
			log.Warn("Report narrative failed, using placeholder", "user", userID, "err", err)
			report.Summary = placeholderSummary
			report.NarrativeStatus = model.NarrativeFallback
		} else {
			applyNarrative(report, n)
			report.NarrativeStatus = model.NarrativeGenerated
			report.NarrativeModel = p.settings.Model
		}
	}

	stored, err := p.store.CreateReport(ctx, report)
	if err != nil {
		return nil, err
	}
	metrics.IncReport(string(stored.NarrativeStatus))
	log.Info("Generated progress report", "report", stored.ID, "user", userID,
		"windowDays", windowDays, "score", stored.EngagementScore, "narrative", stored.NarrativeStatus)

	if p.archiver != nil {
		if loc, err := p.archiver.Archive(ctx, stored); err != nil {
			log.Warn("Report archive failed", "report", stored.ID, "archive", p.archiver.Name(), "err", err)
		} else if loc != "" {
			log.Debug("Archived report", "report", stored.ID, "location", loc)
		}
	}
	return stored, nil
}

// narrate asks the analytics model for a narrative, retrying once with a
// stricter instruction when the call or the parse fails.
func (p *Pipeline) narrate(ctx context.Context, digest string) (*Narrative, error) {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= 2; attempt++ {
		attempts = attempt
		res, err := p.gateway.Complete(ctx, narrativePrompt(digest, attempt > 1), p.settings.Model, gateway.Options{
			Temperature: p.settings.Temperature,
			MaxTokens:   p.settings.MaxTokens,
		})
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		n, err := parseNarrative(res.Text)
		if err == nil {
			return n, nil
		}
		log.Debug("Unparseable report narrative", "attempt", attempt, "err", err)
		lastErr = err
	}
	return nil, &ReportNarrativeFailure{Attempts: attempts, Cause: lastErr}
}

// ListReports returns userID's reports, newest first.
func (p *Pipeline) ListReports(ctx context.Context, userID string, limit int) ([]model.ProgressReport, error) {
	return p.store.ListReports(ctx, userID, limit)
}

// GetReport returns one of userID's reports.
func (p *Pipeline) GetReport(ctx context.Context, userID string, reportID uuid.UUID) (*model.ProgressReport, error) {
	return p.store.GetReport(ctx, userID, reportID)
}
