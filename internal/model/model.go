package model

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NarrativeStatus records how a report's narrative fields were produced.
type NarrativeStatus string

const (
	// NarrativeGenerated means the narrative came from a parsed model response.
	NarrativeGenerated NarrativeStatus = "generated"
	// NarrativeFallback means generation failed and placeholder text was stored.
	NarrativeFallback NarrativeStatus = "fallback"
	// NarrativeSkipped means there was no activity to narrate.
	NarrativeSkipped NarrativeStatus = "skipped"
)

// Session is one coaching conversation. It moves from active to completed exactly once.
type Session struct {
	ID          uuid.UUID  `json:"id"                    gorm:"primaryKey;type:uuid"`
	UserID      string     `json:"userId"                gorm:"not null;index"`
	AIModel     string     `json:"aiModel"               gorm:"not null"`
	LessonRef   *string    `json:"lessonRef,omitempty"`
	Title       string     `json:"title"`
	IsActive    bool       `json:"isActive"              gorm:"not null"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"             gorm:"not null;index"`
}

func (Session) TableName() string { return "sessions" }

// Turn is one immutable message within a session. Seq is dense per session.
type Turn struct {
	ID         uuid.UUID `json:"id"                   gorm:"primaryKey;type:uuid"`
	SessionID  uuid.UUID `json:"sessionId"            gorm:"type:uuid;not null;uniqueIndex:idx_turns_session_seq,priority:1"`
	Seq        int64     `json:"seq"                  gorm:"not null;uniqueIndex:idx_turns_session_seq,priority:2"`
	Role       Role      `json:"role"                 gorm:"not null"`
	Content    string    `json:"content"              gorm:"not null"`
	AIModel    *string   `json:"aiModel,omitempty"`
	TokensUsed *int      `json:"tokensUsed,omitempty"`
	CreatedAt  time.Time `json:"createdAt"            gorm:"not null;index"`
}

func (Turn) TableName() string { return "turns" }

// Lesson is the scenario context a session may be bound to.
type Lesson struct {
	ID         string    `json:"id"          gorm:"primaryKey"`
	Title      string    `json:"title"       gorm:"not null"`
	LessonType string    `json:"lessonType"`
	Scenario   string    `json:"scenario"`
	Objectives []string  `json:"objectives"  gorm:"serializer:json"`
	CreatedAt  time.Time `json:"createdAt"   gorm:"not null"`
}

func (Lesson) TableName() string { return "lessons" }

// MemoryRecord is an embedded excerpt of a past turn. SourceTurnID is a lookup
// reference only; deleting a record never touches the turn.
type MemoryRecord struct {
	ID           uuid.UUID `json:"id"            gorm:"primaryKey;type:uuid"`
	UserID       string    `json:"userId"        gorm:"not null;index"`
	SessionID    uuid.UUID `json:"sessionId"     gorm:"type:uuid;not null"`
	SourceTurnID uuid.UUID `json:"sourceTurnId"  gorm:"type:uuid;not null;uniqueIndex"`
	Role         Role      `json:"role"          gorm:"not null"`
	TextExcerpt  string    `json:"textExcerpt"   gorm:"not null"`
	Embedding    []float32 `json:"-"             gorm:"serializer:json;not null"`
	Model        string    `json:"model"         gorm:"not null"`
	Dimension    int       `json:"dimension"     gorm:"not null"`
	CreatedAt    time.Time `json:"createdAt"     gorm:"not null"`
}

func (MemoryRecord) TableName() string { return "memory_records" }

// ScoreBreakdown holds the normalized [0,1] components of an engagement score.
type ScoreBreakdown struct {
	Frequency  float64 `json:"frequency"`
	Depth      float64 `json:"depth"`
	Completion float64 `json:"completion"`
	Recency    float64 `json:"recency"`
}

// PatternSummary describes how and about what a user wrote during a report
// window. Focus values are the share of user messages touching each theme.
type PatternSummary struct {
	UserMessages    int     `json:"userMessages"`
	AvgMessageRunes float64 `json:"avgMessageRunes"`
	BusinessFocus   float64 `json:"businessFocus"`
	LeadershipFocus float64 `json:"leadershipFocus"`
}

// ProgressReport is an immutable analytics snapshot for one user and window.
type ProgressReport struct {
	ID                  uuid.UUID       `json:"id"                   gorm:"primaryKey;type:uuid"`
	UserID              string          `json:"userId"               gorm:"not null;index"`
	PeriodStart         time.Time       `json:"periodStart"          gorm:"not null"`
	PeriodEnd           time.Time       `json:"periodEnd"            gorm:"not null"`
	WindowDays          int             `json:"windowDays"           gorm:"not null"`
	TotalSessions       int             `json:"totalSessions"        gorm:"not null"`
	TotalMessages       int             `json:"totalMessages"        gorm:"not null"`
	LessonsCompleted    int             `json:"lessonsCompleted"     gorm:"not null"`
	EngagementScore     float64         `json:"engagementScore"      gorm:"not null"`
	ScoreBreakdown      ScoreBreakdown  `json:"scoreBreakdown"       gorm:"serializer:json;not null"`
	Summary             string          `json:"summary"              gorm:"not null"`
	Strengths           []string        `json:"strengths"            gorm:"serializer:json;not null"`
	AreasForImprovement []string        `json:"areasForImprovement"  gorm:"serializer:json;not null"`
	Recommendations     []string        `json:"recommendations"      gorm:"serializer:json;not null"`
	Patterns            PatternSummary  `json:"patterns"             gorm:"serializer:json;not null"`
	DetailedAnalysis    map[string]any  `json:"detailedAnalysis,omitempty" gorm:"serializer:json"`
	NarrativeStatus     NarrativeStatus `json:"narrativeStatus"      gorm:"not null"`
	NarrativeModel      string          `json:"narrativeModel,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"            gorm:"not null"`
}

func (ProgressReport) TableName() string { return "progress_reports" }

// Task is a unit of durable background work with its own retry schedule.
type Task struct {
	ID         uuid.UUID              `json:"id"                  gorm:"primaryKey;type:uuid"`
	TaskName   *string                `json:"taskName,omitempty"  gorm:"unique"`
	TaskType   string                 `json:"taskType"            gorm:"not null"`
	TaskBody   map[string]interface{} `json:"taskBody"            gorm:"serializer:json;not null"`
	CreatedAt  time.Time              `json:"createdAt"           gorm:"not null"`
	RetryAt    time.Time              `json:"retryAt"             gorm:"not null;index"`
	LastError  *string                `json:"lastError,omitempty"`
	RetryCount int                    `json:"retryCount"          gorm:"not null;default:0"`
}

func (Task) TableName() string { return "tasks" }
