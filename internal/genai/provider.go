package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mvellano/pulsecheck/internal/store"
)

// ErrEmptyResult means the model call succeeded but returned zero usable items.
// ErrMalformedResult means the model output failed to decode against the
// declared shape. The two are distinct kinds on purpose: an empty round and a
// broken upstream must not look the same to callers.
var (
	ErrEmptyResult     = errors.New("model returned no usable items")
	ErrMalformedResult = errors.New("model output did not match expected shape")
)

// GenerateRequest carries the topic and the full cumulative answer history so
// the generator can avoid repeating covered ground.
type GenerateRequest struct {
	SurveyID string         `json:"survey_id,omitempty"`
	Topic    string         `json:"topic"`
	Answers  []store.Answer `json:"answers,omitempty"`
}

type SummarizeRequest struct {
	SurveyID string         `json:"survey_id"`
	Topic    string         `json:"topic"`
	Answers  []store.Answer `json:"answers"`
}

type ChatRequest struct {
	SurveyID string           `json:"survey_id"`
	Topic    string           `json:"topic"`
	Summary  *store.Summary   `json:"summary,omitempty"`
	History  []store.ChatTurn `json:"history,omitempty"`
	Message  string           `json:"message"`
}

// Provider is the normalized interface over the question generator, the
// summarizer and the chat responder. All three are unary calls that run
// within the request's lifetime.
type Provider interface {
	Name() string
	GenerateQuestions(ctx context.Context, req GenerateRequest) ([]store.Question, error)
	Summarize(ctx context.Context, req SummarizeRequest) (store.Summary, error)
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Config controls provider construction.
type Config struct {
	Mode          string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	HTTPURL       string
}

func NewProvider(cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return NewOpenAIProvider(cfg), nil
		}
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPProvider(cfg.HTTPURL), nil
		}
		return NewMockProvider(), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("openai api key is required for openai mode")
		}
		return NewOpenAIProvider(cfg), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("gateway url is required for http mode")
		}
		return NewHTTPProvider(cfg.HTTPURL), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported genai mode %q", cfg.Mode)
	}
}
