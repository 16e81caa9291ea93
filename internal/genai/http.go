package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mvellano/pulsecheck/internal/store"
)

// HTTPProvider forwards normalized requests to a gateway endpoint that
// answers with the declared JSON shapes.
type HTTPProvider struct {
	url    string
	client *http.Client
}

func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type gatewayRequest struct {
	Op       string           `json:"op"`
	SurveyID string           `json:"survey_id,omitempty"`
	Topic    string           `json:"topic,omitempty"`
	Answers  []store.Answer   `json:"answers,omitempty"`
	Summary  *store.Summary   `json:"summary,omitempty"`
	History  []store.ChatTurn `json:"history,omitempty"`
	Message  string           `json:"message,omitempty"`
}

func (p *HTTPProvider) Name() string { return "http" }

func (p *HTTPProvider) GenerateQuestions(ctx context.Context, req GenerateRequest) ([]store.Question, error) {
	raw, err := p.post(ctx, gatewayRequest{
		Op:       "generate_questions",
		SurveyID: req.SurveyID,
		Topic:    req.Topic,
		Answers:  req.Answers,
	})
	if err != nil {
		return nil, err
	}
	return decodeQuestions(string(raw))
}

func (p *HTTPProvider) Summarize(ctx context.Context, req SummarizeRequest) (store.Summary, error) {
	raw, err := p.post(ctx, gatewayRequest{
		Op:       "summarize",
		SurveyID: req.SurveyID,
		Topic:    req.Topic,
		Answers:  req.Answers,
	})
	if err != nil {
		return store.Summary{}, err
	}
	return decodeSummary(string(raw))
}

func (p *HTTPProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	raw, err := p.post(ctx, gatewayRequest{
		Op:       "chat",
		SurveyID: req.SurveyID,
		Topic:    req.Topic,
		Summary:  req.Summary,
		History:  req.History,
		Message:  req.Message,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", ErrMalformedResult
	}
	if strings.TrimSpace(out.Reply) == "" {
		return "", ErrEmptyResult
	}
	return out.Reply, nil
}

func (p *HTTPProvider) post(ctx context.Context, req gatewayRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("gateway http status %d: %s", res.StatusCode, string(body))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
