package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mvellano/pulsecheck/internal/store"
)

// MockProvider produces deterministic batches, summaries and replies for
// local development and tests.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) GenerateQuestions(ctx context.Context, req GenerateRequest) ([]store.Question, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	round := len(req.Answers)/3 + 1
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = "your day"
	}

	return []store.Question{
		{
			ID:    uuid.NewString(),
			Type:  store.QuestionBoolean,
			Label: fmt.Sprintf("Round %d: has %s been on your mind today?", round, topic),
		},
		{
			ID:       uuid.NewString(),
			Type:     store.QuestionScale,
			Label:    fmt.Sprintf("Round %d: how satisfied are you with %s right now?", round, topic),
			MinLabel: "not at all",
			MaxLabel: "completely",
		},
		{
			ID:       uuid.NewString(),
			Type:     store.QuestionScale,
			Label:    fmt.Sprintf("Round %d: how much energy does %s take from you?", round, topic),
			MinLabel: "none",
			MaxLabel: "all of it",
		},
	}, nil
}

func (p *MockProvider) Summarize(ctx context.Context, req SummarizeRequest) (store.Summary, error) {
	select {
	case <-ctx.Done():
		return store.Summary{}, ctx.Err()
	default:
	}

	return store.Summary{
		Summary:         fmt.Sprintf("You answered %d questions about %s.", len(req.Answers), req.Topic),
		Insights:        []string{fmt.Sprintf("%s matters to you enough to check in on it.", req.Topic)},
		Recommendations: []string{"Run another check-in in a week and compare."},
	}, nil
}

func (p *MockProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return "Ask me anything about your check-in.", nil
	}
	return fmt.Sprintf("About %q: your recorded answers on %s are the best guide here.", msg, req.Topic), nil
}
