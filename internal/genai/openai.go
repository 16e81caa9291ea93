package genai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/mvellano/pulsecheck/internal/store"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider runs all three collaborators over OpenAI chat completions.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
	if strings.TrimSpace(cfg.OpenAIBaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	model := strings.TrimSpace(cfg.OpenAIModel)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) GenerateQuestions(ctx context.Context, req GenerateRequest) ([]store.Question, error) {
	raw, err := p.complete(ctx, questionSystemPrompt, nil, buildQuestionPrompt(req))
	if err != nil {
		return nil, err
	}
	return decodeQuestions(raw)
}

func (p *OpenAIProvider) Summarize(ctx context.Context, req SummarizeRequest) (store.Summary, error) {
	raw, err := p.complete(ctx, summarySystemPrompt, nil, buildSummaryPrompt(req))
	if err != nil {
		return store.Summary{}, err
	}
	return decodeSummary(raw)
}

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	history := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	history = append(history, openai.SystemMessage(buildChatContext(req)))
	for _, turn := range req.History {
		switch turn.Role {
		case store.RoleAssistant:
			history = append(history, openai.AssistantMessage(turn.Content))
		default:
			history = append(history, openai.UserMessage(turn.Content))
		}
	}

	reply, err := p.complete(ctx, chatSystemPrompt, history, req.Message)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyResult
	}
	return reply, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, system string, history []openai.ChatCompletionMessageParamUnion, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(system))
	messages = append(messages, history...)
	messages = append(messages, openai.UserMessage(user))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResult
	}
	return resp.Choices[0].Message.Content, nil
}
