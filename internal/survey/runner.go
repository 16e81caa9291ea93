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

// Runner drives session transitions against the record store and the model
// provider. Every external call that fails leaves the session in its pre-call
// state; there is no automatic retry.
type Runner struct {
	store    store.Store
	provider genai.Provider
	metrics  *observability.Metrics
}

func NewRunner(st store.Store, provider genai.Provider, metrics *observability.Metrics) *Runner {
	return &Runner{store: st, provider: provider, metrics: metrics}
}

// Begin starts the first round for a topic: idle -> loading -> presenting.
// The backing record is created only after a non-empty batch arrives, so a
// failed load commits nothing.
func (r *Runner) Begin(ctx context.Context, sess *Session, topic string) ([]store.Question, error) {
	if err := sess.beginOp(); err != nil {
		return nil, err
	}
	defer sess.endOp()

	sess.mu.Lock()
	if err := sess.machine.Event(ctx, evBegin); err != nil {
		sess.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	if topic != "" {
		sess.Topic = topic
	}
	topic = sess.Topic
	surveyID := sess.SurveyID
	sess.mu.Unlock()

	batch, err := r.generate(ctx, sess)
	if err != nil {
		sess.mu.Lock()
		sess.machine.SetState(string(StateIdle))
		sess.mu.Unlock()
		return nil, err
	}

	// A session resumed from an empty record already has a backing record;
	// everything else gets one now that a batch actually arrived.
	if surveyID == "" {
		rec, err := r.store.Create(ctx, topic)
		if err != nil {
			r.countStoreError("create")
			sess.mu.Lock()
			sess.machine.SetState(string(StateIdle))
			sess.mu.Unlock()
			return nil, fmt.Errorf("create record: %w", err)
		}
		surveyID = rec.ID
	}

	sess.mu.Lock()
	sess.SurveyID = surveyID
	sess.batch = batch
	sess.cursor = 0
	_ = sess.machine.Event(ctx, evPresent)
	sess.mu.Unlock()

	r.countEvent("round_started")
	return batch, nil
}

// SubmitAnswer records the answer for the question at the cursor and
// advances. Completing the batch moves to round_complete and reconciles the
// round's answers into the store.
func (r *Runner) SubmitAnswer(ctx context.Context, sess *Session, value string) (State, error) {
	if err := sess.beginOp(); err != nil {
		return "", err
	}
	defer sess.endOp()

	sess.mu.Lock()
	if State(sess.machine.Current()) != StatePresenting || sess.cursor >= len(sess.batch) {
		sess.mu.Unlock()
		return "", ErrNoQuestion
	}
	answer := store.Answer{Question: sess.batch[sess.cursor], Value: value}
	sess.answers = append(sess.answers, answer)
	sess.pending = append(sess.pending, answer)
	sess.cursor++
	done := sess.cursor == len(sess.batch)
	if done {
		_ = sess.machine.Event(ctx, evCompleteRound)
	}
	state := State(sess.machine.Current())
	sess.mu.Unlock()

	if done {
		if err := r.reconcile(ctx, sess); err != nil {
			// The round is complete either way; unsaved answers stay pending
			// and ride along with the next checkpoint.
			return state, err
		}
		r.countEvent("round_completed")
	}
	return state, nil
}

// MoreQuestions requests another batch with the enlarged history:
// round_complete -> loading -> presenting.
func (r *Runner) MoreQuestions(ctx context.Context, sess *Session) ([]store.Question, error) {
	if err := sess.beginOp(); err != nil {
		return nil, err
	}
	defer sess.endOp()

	sess.mu.Lock()
	if err := sess.machine.Event(ctx, evMore); err != nil {
		sess.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	sess.mu.Unlock()

	batch, err := r.generate(ctx, sess)
	if err != nil {
		sess.mu.Lock()
		sess.machine.SetState(string(StateRoundComplete))
		sess.mu.Unlock()
		return nil, err
	}

	sess.mu.Lock()
	sess.batch = batch
	sess.cursor = 0
	_ = sess.machine.Event(ctx, evPresent)
	sess.mu.Unlock()

	r.countEvent("round_started")
	return batch, nil
}

// Summarize persists the final answers, invokes the summarizer and stores
// the result wholesale: round_complete -> loading -> summarized. Failures
// revert to round_complete with the answer history intact.
func (r *Runner) Summarize(ctx context.Context, sess *Session) (store.Summary, error) {
	if err := sess.beginOp(); err != nil {
		return store.Summary{}, err
	}
	defer sess.endOp()

	sess.mu.Lock()
	if err := sess.machine.Event(ctx, evSummarize); err != nil {
		sess.mu.Unlock()
		return store.Summary{}, ErrInvalidTransition
	}
	surveyID := sess.SurveyID
	topic := sess.Topic
	answers := append([]store.Answer(nil), sess.answers...)
	sess.mu.Unlock()

	revert := func() {
		sess.mu.Lock()
		sess.machine.SetState(string(StateRoundComplete))
		sess.mu.Unlock()
	}

	if err := r.reconcile(ctx, sess); err != nil {
		revert()
		return store.Summary{}, err
	}

	started := time.Now()
	sum, err := r.provider.Summarize(ctx, genai.SummarizeRequest{
		SurveyID: surveyID,
		Topic:    topic,
		Answers:  answers,
	})
	r.observeProvider("summarize", started, err)
	if err != nil {
		revert()
		return store.Summary{}, err
	}

	// The caller still sees the summary even when saving it fails: showing
	// the result wins over durability for this side recording.
	if err := r.store.SaveSummary(ctx, surveyID, sum); err != nil {
		r.countStoreError("save_summary")
		log.Printf("survey %s: summary generated but not saved: %v", surveyID, err)
	}

	sess.mu.Lock()
	sess.summary = &sum
	_ = sess.machine.Event(ctx, evSummaryReady)
	sess.mu.Unlock()

	r.countEvent("summarized")
	return sum, nil
}

// Chat runs one follow-up turn: summarized -> chatting -> summarized. On
// failure the optimistic user turn is rolled back and the history is
// unchanged.
func (r *Runner) Chat(ctx context.Context, sess *Session, message string) (string, error) {
	if err := sess.beginOp(); err != nil {
		return "", err
	}
	defer sess.endOp()

	sess.mu.Lock()
	if err := sess.machine.Event(ctx, evChat); err != nil {
		sess.mu.Unlock()
		return "", ErrInvalidTransition
	}
	userTurn := store.ChatTurn{Role: store.RoleUser, Content: message, CreatedAt: time.Now().UTC()}
	sess.chat = append(sess.chat, userTurn)
	req := genai.ChatRequest{
		SurveyID: sess.SurveyID,
		Topic:    sess.Topic,
		Summary:  sess.summary,
		History:  append([]store.ChatTurn(nil), sess.chat[:len(sess.chat)-1]...),
		Message:  message,
	}
	sess.mu.Unlock()

	started := time.Now()
	reply, err := r.provider.Chat(ctx, req)
	r.observeProvider("chat", started, err)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err != nil {
		sess.chat = sess.chat[:len(sess.chat)-1]
		_ = sess.machine.Event(ctx, evChatDone)
		return "", err
	}

	assistantTurn := store.ChatTurn{Role: store.RoleAssistant, Content: reply, CreatedAt: time.Now().UTC()}
	sess.chat = append(sess.chat, assistantTurn)
	if saveErr := r.store.AppendChatTurns(ctx, sess.SurveyID, []store.ChatTurn{userTurn, assistantTurn}); saveErr != nil {
		r.countStoreError("append_chat_turns")
		log.Printf("survey %s: chat turns not saved: %v", sess.SurveyID, saveErr)
	}
	_ = sess.machine.Event(ctx, evChatDone)
	r.countEvent("chat_turn")
	return reply, nil
}

func (r *Runner) generate(ctx context.Context, sess *Session) ([]store.Question, error) {
	sess.mu.Lock()
	req := genai.GenerateRequest{
		SurveyID: sess.SurveyID,
		Topic:    sess.Topic,
		Answers:  append([]store.Answer(nil), sess.answers...),
	}
	sess.mu.Unlock()

	started := time.Now()
	batch, err := r.provider.GenerateQuestions(ctx, req)
	r.observeProvider("generate_questions", started, err)
	if err != nil {
		return nil, err
	}
	// An empty batch must never reach presenting, whatever the provider
	// reported.
	if len(batch) == 0 {
		return nil, genai.ErrEmptyResult
	}
	return batch, nil
}

// reconcile flushes the round's pending answers into the store.
func (r *Runner) reconcile(ctx context.Context, sess *Session) error {
	sess.mu.Lock()
	pending := append([]store.Answer(nil), sess.pending...)
	surveyID := sess.SurveyID
	sess.mu.Unlock()

	if len(pending) == 0 || surveyID == "" {
		return nil
	}
	if err := r.store.AppendAnswers(ctx, surveyID, pending); err != nil {
		r.countStoreError("append_answers")
		return fmt.Errorf("persist answers: %w", err)
	}

	sess.mu.Lock()
	sess.pending = sess.pending[len(pending):]
	sess.mu.Unlock()
	return nil
}

func (r *Runner) observeProvider(op string, started time.Time, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveProviderCall(op, time.Since(started), err)
}

func (r *Runner) countEvent(event string) {
	if r.metrics == nil {
		return
	}
	r.metrics.SessionEvents.WithLabelValues(event).Inc()
}

func (r *Runner) countStoreError(op string) {
	if r.metrics == nil {
		return
	}
	r.metrics.StoreErrors.WithLabelValues(op).Inc()
}
