package survey

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mvellano/pulsecheck/internal/genai"
	"github.com/mvellano/pulsecheck/internal/observability"
	"github.com/mvellano/pulsecheck/internal/store"
)

// fakeProvider records every request so tests can assert on the history the
// runner sends upstream.
type fakeProvider struct {
	generateReqs  []genai.GenerateRequest
	summarizeReqs []genai.SummarizeRequest
	chatReqs      []genai.ChatRequest

	generateErr  error
	summarizeErr error
	chatErr      error

	questions []store.Question
	summary   store.Summary
	reply     string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) GenerateQuestions(_ context.Context, req genai.GenerateRequest) ([]store.Question, error) {
	f.generateReqs = append(f.generateReqs, req)
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return f.questions, nil
}

func (f *fakeProvider) Summarize(_ context.Context, req genai.SummarizeRequest) (store.Summary, error) {
	f.summarizeReqs = append(f.summarizeReqs, req)
	if f.summarizeErr != nil {
		return store.Summary{}, f.summarizeErr
	}
	return f.summary, nil
}

func (f *fakeProvider) Chat(_ context.Context, req genai.ChatRequest) (string, error) {
	f.chatReqs = append(f.chatReqs, req)
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.reply, nil
}

func threeQuestions() []store.Question {
	return []store.Question{
		{ID: "q1", Type: store.QuestionBoolean, Label: "Did you sleep well?"},
		{ID: "q2", Type: store.QuestionScale, Label: "Energy level?", MinLabel: "drained", MaxLabel: "fully charged"},
		{ID: "q3", Type: store.QuestionBoolean, Label: "Any blockers today?"},
	}
}

func newTestRunner(t *testing.T, provider genai.Provider) (*Runner, *store.FileStore) {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "surveys.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewRunner(st, provider, nil), st
}

func TestRunnerFullRound(t *testing.T) {
	provider := &fakeProvider{questions: threeQuestions()}
	runner, st := newTestRunner(t, provider)
	ctx := context.Background()

	sess := newSession()
	batch, err := runner.Begin(ctx, sess, "weekly check-in")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(batch))
	}
	if got := sess.State(); got != StatePresenting {
		t.Fatalf("state after Begin = %q, want %q", got, StatePresenting)
	}
	if sess.ShareID() == "" {
		t.Fatal("expected a shareable id after the first batch")
	}

	values := []string{"yes", "7", "no"}
	for i, v := range values {
		q, idx, total, ok := sess.CurrentQuestion()
		if !ok {
			t.Fatalf("no current question at step %d", i)
		}
		if idx != i || total != 3 {
			t.Fatalf("cursor = (%d,%d), want (%d,3)", idx, total, i)
		}
		if q.ID != batch[i].ID {
			t.Fatalf("question %d = %q, want %q", i, q.ID, batch[i].ID)
		}
		state, err := runner.SubmitAnswer(ctx, sess, v)
		if err != nil {
			t.Fatalf("SubmitAnswer %d: %v", i, err)
		}
		if i < len(values)-1 && state != StatePresenting {
			t.Fatalf("state after answer %d = %q, want %q", i, state, StatePresenting)
		}
	}
	if got := sess.State(); got != StateRoundComplete {
		t.Fatalf("state after last answer = %q, want %q", got, StateRoundComplete)
	}

	rec, err := st.Get(ctx, sess.ShareID())
	if err != nil || rec == nil {
		t.Fatalf("Get: rec=%v err=%v", rec, err)
	}
	if len(rec.Answers) != 3 {
		t.Fatalf("persisted answers = %d, want 3", len(rec.Answers))
	}
	for i, want := range values {
		if rec.Answers[i].Value != want {
			t.Fatalf("answer %d = %q, want %q", i, rec.Answers[i].Value, want)
		}
	}
}

func TestRunnerMoreQuestionsCarriesCumulativeHistory(t *testing.T) {
	provider := &fakeProvider{questions: threeQuestions()}
	runner, _ := newTestRunner(t, provider)
	ctx := context.Background()

	sess := newSession()
	if _, err := runner.Begin(ctx, sess, "team morale"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, v := range []string{"yes", "5", "no"} {
		if _, err := runner.SubmitAnswer(ctx, sess, v); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}

	if _, err := runner.MoreQuestions(ctx, sess); err != nil {
		t.Fatalf("MoreQuestions: %v", err)
	}
	if got := sess.State(); got != StatePresenting {
		t.Fatalf("state = %q, want %q", got, StatePresenting)
	}

	if len(provider.generateReqs) != 2 {
		t.Fatalf("generate calls = %d, want 2", len(provider.generateReqs))
	}
	first, second := provider.generateReqs[0], provider.generateReqs[1]
	if len(first.Answers) != 0 {
		t.Fatalf("first round carried %d answers, want 0", len(first.Answers))
	}
	if len(second.Answers) != 3 {
		t.Fatalf("second round carried %d answers, want 3", len(second.Answers))
	}
	if second.Topic != "team morale" {
		t.Fatalf("second round topic = %q", second.Topic)
	}
}

func TestRunnerBeginFailureLeavesNothing(t *testing.T) {
	provider := &fakeProvider{generateErr: genai.ErrEmptyResult}
	runner, st := newTestRunner(t, provider)
	ctx := context.Background()

	sess := newSession()
	_, err := runner.Begin(ctx, sess, "anything")
	if !errors.Is(err, genai.ErrEmptyResult) {
		t.Fatalf("Begin err = %v, want ErrEmptyResult", err)
	}
	if got := sess.State(); got != StateIdle {
		t.Fatalf("state = %q, want %q", got, StateIdle)
	}
	if sess.ShareID() != "" {
		t.Fatalf("share id = %q, want empty", sess.ShareID())
	}
	infos, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("store has %d records, want 0", len(infos))
	}
}

func TestRunnerBeginRejectsEmptyBatch(t *testing.T) {
	provider := &fakeProvider{questions: []store.Question{}}
	runner, st := newTestRunner(t, provider)
	ctx := context.Background()

	sess := newSession()
	_, err := runner.Begin(ctx, sess, "quiet provider")
	if !errors.Is(err, genai.ErrEmptyResult) {
		t.Fatalf("Begin err = %v, want ErrEmptyResult", err)
	}
	if got := sess.State(); got != StateIdle {
		t.Fatalf("state = %q, want %q", got, StateIdle)
	}
	if sess.ShareID() != "" {
		t.Fatalf("share id = %q, want empty", sess.ShareID())
	}
	infos, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("store has %d records, want 0", len(infos))
	}
}

func TestRunnerMoreQuestionsRejectsEmptyBatch(t *testing.T) {
	provider := &fakeProvider{questions: threeQuestions()}
	runner, _ := newTestRunner(t, provider)
	ctx := context.Background()

	sess := newSession()
	if _, err := runner.Begin(ctx, sess, "standup"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, v := range []string{"yes", "4", "no"} {
		if _, err := runner.SubmitAnswer(ctx, sess, v); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}

	provider.questions = nil
	_, err := runner.MoreQuestions(ctx, sess)
	if !errors.Is(err, genai.ErrEmptyResult) {
		t.Fatalf("MoreQuestions err = %v, want ErrEmptyResult", err)
	}
	if got := sess.State(); got != StateRoundComplete {
		t.Fatalf("state = %q, want %q", got, StateRoundComplete)
	}
}

// brokenSummaryStore persists everything except summaries.
type brokenSummaryStore struct {
	store.Store
}

func (b *brokenSummaryStore) SaveSummary(context.Context, string, store.Summary) error {
	return errors.New("disk full")
}

// NewMetrics registers against the default prometheus registry, so this is
// the only test in the package that may construct a Metrics value.
func TestRunnerCountsSwallowedStoreErrors(t *testing.T) {
	provider := &fakeProvider{
		questions: threeQuestions(),
		summary:   store.Summary{Summary: "fine"},
	}
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "surveys.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	metrics := observability.NewMetrics("pulsecheck_runnertest")
	runner := NewRunner(&brokenSummaryStore{Store: st}, provider, metrics)
	ctx := context.Background()

	sess := newSession()
	if _, err := runner.Begin(ctx, sess, "capacity"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, v := range []string{"yes", "2", "no"} {
		if _, err := runner.SubmitAnswer(ctx, sess, v); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}

	sum, err := runner.Summarize(ctx, sess)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Summary != "fine" {
		t.Fatalf("summary = %q, want the provider result despite the store failure", sum.Summary)
	}
	if got := testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("save_summary")); got != 1 {
		t.Fatalf("save_summary store errors = %v, want 1", got)
	}
}

func TestRunnerSummarizeFailureReverts(t *testing.T) {
	provider := &fakeProvider{
		questions:    threeQuestions(),
		summarizeErr: errors.New("upstream down"),
	}
	runner, _ := newTestRunner(t, provider)
	ctx := context.Background()

	sess := newSession()
	if _, err := runner.Begin(ctx, sess, "focus"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, v := range []string{"no", "3", "yes"} {
		if _, err := runner.SubmitAnswer(ctx, sess, v); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}

	if _, err := runner.Summarize(ctx, sess); err == nil {
		t.Fatal("expected Summarize to fail")
	}
	if got := sess.State(); got != StateRoundComplete {
		t.Fatalf("state after failed summarize = %q, want %q", got, StateRoundComplete)
	}
	if got := len(sess.Answers()); got != 3 {
		t.Fatalf("answers after failed summarize = %d, want 3", got)
	}
	if sess.Summary() != nil {
		t.Fatal("summary should be absent after a failed summarize")
	}
}

func TestRunnerSummarizeAndChat(t *testing.T) {
	provider := &fakeProvider{
		questions: threeQuestions(),
		summary: store.Summary{
			Summary:         "Mostly positive week.",
			Insights:        []string{"sleep is fine"},
			Recommendations: []string{"guard deep-work time"},
		},
		reply: "Start with the calendar.",
	}
	runner, st := newTestRunner(t, provider)
	ctx := context.Background()

	sess := newSession()
	if _, err := runner.Begin(ctx, sess, "focus"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, v := range []string{"yes", "8", "no"} {
		if _, err := runner.SubmitAnswer(ctx, sess, v); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}

	sum, err := runner.Summarize(ctx, sess)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Summary == "" {
		t.Fatal("empty summary text")
	}
	if got := sess.State(); got != StateSummarized {
		t.Fatalf("state = %q, want %q", got, StateSummarized)
	}

	reply, err := runner.Chat(ctx, sess, "Where should I start?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "Start with the calendar." {
		t.Fatalf("reply = %q", reply)
	}
	if got := sess.State(); got != StateSummarized {
		t.Fatalf("state after chat = %q, want %q", got, StateSummarized)
	}
	if got := len(sess.Chat()); got != 2 {
		t.Fatalf("chat turns = %d, want 2", got)
	}
	// Chat history sent upstream excludes the in-flight message.
	if got := len(provider.chatReqs[0].History); got != 0 {
		t.Fatalf("first chat history = %d turns, want 0", got)
	}

	rec, err := st.Get(ctx, sess.ShareID())
	if err != nil || rec == nil {
		t.Fatalf("Get: rec=%v err=%v", rec, err)
	}
	if rec.Summary == nil || rec.Summary.Summary != sum.Summary {
		t.Fatalf("persisted summary = %+v", rec.Summary)
	}
	if len(rec.Chat) != 2 {
		t.Fatalf("persisted chat turns = %d, want 2", len(rec.Chat))
	}
}

func TestRunnerChatFailureRollsBackUserTurn(t *testing.T) {
	provider := &fakeProvider{
		questions: threeQuestions(),
		summary:   store.Summary{Summary: "ok", Insights: []string{}, Recommendations: []string{}},
		chatErr:   errors.New("model unavailable"),
	}
	runner, _ := newTestRunner(t, provider)
	ctx := context.Background()

	sess := newSession()
	if _, err := runner.Begin(ctx, sess, "t"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, v := range []string{"yes", "1", "no"} {
		if _, err := runner.SubmitAnswer(ctx, sess, v); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}
	if _, err := runner.Summarize(ctx, sess); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if _, err := runner.Chat(ctx, sess, "hello"); err == nil {
		t.Fatal("expected Chat to fail")
	}
	if got := len(sess.Chat()); got != 0 {
		t.Fatalf("chat turns after failed chat = %d, want 0", got)
	}
	if got := sess.State(); got != StateSummarized {
		t.Fatalf("state after failed chat = %q, want %q", got, StateSummarized)
	}
}

func TestRunnerRejectsOutOfOrderOperations(t *testing.T) {
	provider := &fakeProvider{questions: threeQuestions()}
	runner, _ := newTestRunner(t, provider)
	ctx := context.Background()

	sess := newSession()
	if _, err := runner.SubmitAnswer(ctx, sess, "yes"); !errors.Is(err, ErrNoQuestion) {
		t.Fatalf("SubmitAnswer in idle: err = %v, want ErrNoQuestion", err)
	}
	if _, err := runner.Summarize(ctx, sess); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Summarize in idle: err = %v, want ErrInvalidTransition", err)
	}
	if _, err := runner.MoreQuestions(ctx, sess); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("MoreQuestions in idle: err = %v, want ErrInvalidTransition", err)
	}
	if _, err := runner.Chat(ctx, sess, "hi"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Chat in idle: err = %v, want ErrInvalidTransition", err)
	}
}

func TestSessionSideStatesAndBack(t *testing.T) {
	provider := &fakeProvider{questions: threeQuestions()}
	runner, _ := newTestRunner(t, provider)
	ctx := context.Background()

	sess := newSession()
	if err := sess.Review(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Review from idle: err = %v", err)
	}

	if _, err := runner.Begin(ctx, sess, "t"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, v := range []string{"yes", "2", "no"} {
		if _, err := runner.SubmitAnswer(ctx, sess, v); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}

	if err := sess.Review(); err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got := sess.State(); got != StateReviewing {
		t.Fatalf("state = %q, want %q", got, StateReviewing)
	}
	if err := sess.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if got := sess.State(); got != StateRoundComplete {
		t.Fatalf("state after back = %q, want %q", got, StateRoundComplete)
	}

	if err := sess.BrowseHistory(); err != nil {
		t.Fatalf("BrowseHistory: %v", err)
	}
	if got := sess.State(); got != StateBrowsing {
		t.Fatalf("state = %q, want %q", got, StateBrowsing)
	}
	if err := sess.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if got := sess.State(); got != StateRoundComplete {
		t.Fatalf("state after back = %q, want %q", got, StateRoundComplete)
	}

	if err := sess.Back(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Back outside a side-state: err = %v", err)
	}
}

func TestSessionReset(t *testing.T) {
	provider := &fakeProvider{questions: threeQuestions()}
	runner, _ := newTestRunner(t, provider)
	ctx := context.Background()

	sess := newSession()
	if _, err := runner.Begin(ctx, sess, "t"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := runner.SubmitAnswer(ctx, sess, "yes"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	sess.Reset()
	if got := sess.State(); got != StateIdle {
		t.Fatalf("state after reset = %q, want %q", got, StateIdle)
	}
	if sess.ShareID() != "" {
		t.Fatal("share id should be cleared on reset")
	}
	if len(sess.Answers()) != 0 {
		t.Fatal("answers should be cleared on reset")
	}
}
