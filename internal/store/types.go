package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by mutating operations on an unknown survey id.
var ErrNotFound = errors.New("survey not found")

// QuestionType enumerates the answer domains a question can declare.
type QuestionType string

const (
	QuestionBoolean QuestionType = "boolean"
	QuestionScale   QuestionType = "scale"
)

// Question is immutable once issued to a client.
type Question struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Label    string       `json:"label"`
	MinLabel string       `json:"minLabel,omitempty"`
	MaxLabel string       `json:"maxLabel,omitempty"`
}

// Answer pairs an issued question with the free-form value the client recorded.
// The scale range is a client-side constraint; the server stores what it is sent.
type Answer struct {
	Question Question `json:"question"`
	Value    string   `json:"answer"`
}

// Summary is either absent from a record or complete; partial summaries are
// not representable.
type Summary struct {
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn is one side of the follow-up conversation attached to a record.
type ChatTurn struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// SurveyRecord is the unit of persistence. Answers and Chat are append-only;
// insertion order is chronological order across all rounds.
type SurveyRecord struct {
	ID        string     `json:"id"`
	Topic     string     `json:"topic"`
	CreatedAt time.Time  `json:"createdAt"`
	Answers   []Answer   `json:"answers"`
	Summary   *Summary   `json:"summary,omitempty"`
	Chat      []ChatTurn `json:"chat"`
}

// SurveyInfo is the listing projection over a record.
type SurveyInfo struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists survey records. Get reports a miss as (nil, nil); the
// mutating operations fail with ErrNotFound and perform no write.
type Store interface {
	Create(ctx context.Context, topic string) (*SurveyRecord, error)
	AppendAnswers(ctx context.Context, id string, answers []Answer) error
	SaveSummary(ctx context.Context, id string, summary Summary) error
	AppendChatTurns(ctx context.Context, id string, turns []ChatTurn) error
	Get(ctx context.Context, id string) (*SurveyRecord, error)
	List(ctx context.Context) ([]SurveyInfo, error)
	Close() error
}
