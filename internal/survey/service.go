package survey

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mvellano/pulsecheck/internal/genai"
	"github.com/mvellano/pulsecheck/internal/observability"
	"github.com/mvellano/pulsecheck/internal/store"
)

// Service implements the stateless create-or-continue operations behind the
// JSON endpoints. Each request rehydrates whatever it needs from the record
// store; the client holds its own cursor.
type Service struct {
	store    store.Store
	provider genai.Provider
	metrics  *observability.Metrics
}

func NewService(st store.Store, provider genai.Provider, metrics *observability.Metrics) *Service {
	return &Service{store: st, provider: provider, metrics: metrics}
}

// BeginRound creates a record for a fresh topic, or appends the supplied
// answers to an existing one, then asks the generator for the next batch
// citing the full cumulative history.
func (s *Service) BeginRound(ctx context.Context, topic, surveyID string, answers []store.Answer) (string, []store.Question, error) {
	cumulative := answers

	if surveyID != "" {
		rec, err := s.store.Get(ctx, surveyID)
		if err != nil {
			return "", nil, fmt.Errorf("load record: %w", err)
		}
		if rec == nil {
			return "", nil, store.ErrNotFound
		}
		if topic == "" {
			topic = rec.Topic
		}
		if len(answers) > 0 {
			if err := s.store.AppendAnswers(ctx, surveyID, answers); err != nil {
				s.countStoreError("append_answers")
				return "", nil, fmt.Errorf("persist answers: %w", err)
			}
		}
		cumulative = append(append([]store.Answer(nil), rec.Answers...), answers...)
	}

	started := time.Now()
	batch, err := s.provider.GenerateQuestions(ctx, genai.GenerateRequest{
		SurveyID: surveyID,
		Topic:    topic,
		Answers:  cumulative,
	})
	s.observeProvider("generate_questions", started, err)
	if err != nil {
		return "", nil, err
	}
	if len(batch) == 0 {
		return "", nil, genai.ErrEmptyResult
	}

	// The record is created only after a batch actually arrived, so a failed
	// first round leaves nothing behind.
	if surveyID == "" {
		rec, err := s.store.Create(ctx, topic)
		if err != nil {
			s.countStoreError("create")
			return "", nil, fmt.Errorf("create record: %w", err)
		}
		surveyID = rec.ID
	}
	return surveyID, batch, nil
}

// Submit persists the final answers and produces the summary. The summary is
// stored wholesale; a store failure after a successful model call is logged
// and swallowed so the caller still sees the result.
func (s *Service) Submit(ctx context.Context, surveyID string, answers []store.Answer) (store.Summary, error) {
	rec, err := s.store.Get(ctx, surveyID)
	if err != nil {
		return store.Summary{}, fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return store.Summary{}, store.ErrNotFound
	}

	if len(answers) > 0 {
		if err := s.store.AppendAnswers(ctx, surveyID, answers); err != nil {
			s.countStoreError("append_answers")
			return store.Summary{}, fmt.Errorf("persist answers: %w", err)
		}
	}
	cumulative := append(append([]store.Answer(nil), rec.Answers...), answers...)

	started := time.Now()
	sum, err := s.provider.Summarize(ctx, genai.SummarizeRequest{
		SurveyID: surveyID,
		Topic:    rec.Topic,
		Answers:  cumulative,
	})
	s.observeProvider("summarize", started, err)
	if err != nil {
		return store.Summary{}, err
	}

	if err := s.store.SaveSummary(ctx, surveyID, sum); err != nil {
		s.countStoreError("save_summary")
		log.Printf("survey %s: summary generated but not saved: %v", surveyID, err)
	}
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("summarized").Inc()
	}
	return sum, nil
}

// Chat answers one follow-up message. The supplied history wins over the
// stored one when present, matching the client-held conversation.
func (s *Service) Chat(ctx context.Context, surveyID, message string, history []store.ChatTurn) (string, error) {
	rec, err := s.store.Get(ctx, surveyID)
	if err != nil {
		return "", fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return "", store.ErrNotFound
	}

	if history == nil {
		history = rec.Chat
	}

	started := time.Now()
	reply, err := s.provider.Chat(ctx, genai.ChatRequest{
		SurveyID: surveyID,
		Topic:    rec.Topic,
		Summary:  rec.Summary,
		History:  history,
		Message:  message,
	})
	s.observeProvider("chat", started, err)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	turns := []store.ChatTurn{
		{Role: store.RoleUser, Content: message, CreatedAt: now},
		{Role: store.RoleAssistant, Content: reply, CreatedAt: now},
	}
	if err := s.store.AppendChatTurns(ctx, surveyID, turns); err != nil {
		s.countStoreError("append_chat_turns")
		log.Printf("survey %s: chat turns not saved: %v", surveyID, err)
	}
	return reply, nil
}

func (s *Service) Record(ctx context.Context, id string) (*store.SurveyRecord, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]store.SurveyInfo, error) {
	return s.store.List(ctx)
}

func (s *Service) observeProvider(op string, started time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveProviderCall(op, time.Since(started), err)
}

func (s *Service) countStoreError(op string) {
	if s.metrics == nil {
		return
	}
	s.metrics.StoreErrors.WithLabelValues(op).Inc()
}
