package survey

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mvellano/pulsecheck/internal/store"
)

func newResolverStore(t *testing.T) *store.FileStore {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "surveys.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestResolveSummarizedRecord(t *testing.T) {
	st := newResolverStore(t)
	ctx := context.Background()

	rec, err := st.Create(ctx, "sprint retro")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	answers := []store.Answer{{Question: store.Question{ID: "q1", Type: store.QuestionBoolean, Label: "done?"}, Value: "yes"}}
	if err := st.AppendAnswers(ctx, rec.ID, answers); err != nil {
		t.Fatalf("AppendAnswers: %v", err)
	}
	sum := store.Summary{Summary: "fine", Insights: []string{"a"}, Recommendations: []string{"b"}}
	if err := st.SaveSummary(ctx, rec.ID, sum); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}

	sess, err := NewResolver(st).Resolve(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := sess.State(); got != StateSummarized {
		t.Fatalf("state = %q, want %q", got, StateSummarized)
	}
	if sess.ShareID() != rec.ID {
		t.Fatalf("share id = %q, want %q", sess.ShareID(), rec.ID)
	}
	if sess.Topic != "sprint retro" {
		t.Fatalf("topic = %q", sess.Topic)
	}
	if got := sess.Summary(); got == nil || got.Summary != "fine" {
		t.Fatalf("summary = %+v", got)
	}
	if got := len(sess.Answers()); got != 1 {
		t.Fatalf("answers = %d, want 1", got)
	}
}

func TestResolveAnsweredRecordLandsInRoundComplete(t *testing.T) {
	st := newResolverStore(t)
	ctx := context.Background()

	rec, err := st.Create(ctx, "onboarding")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	answers := []store.Answer{
		{Question: store.Question{ID: "q1", Type: store.QuestionScale, Label: "clarity?"}, Value: "6"},
		{Question: store.Question{ID: "q2", Type: store.QuestionBoolean, Label: "stuck?"}, Value: "no"},
	}
	if err := st.AppendAnswers(ctx, rec.ID, answers); err != nil {
		t.Fatalf("AppendAnswers: %v", err)
	}

	sess, err := NewResolver(st).Resolve(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := sess.State(); got != StateRoundComplete {
		t.Fatalf("state = %q, want %q", got, StateRoundComplete)
	}
	if got := len(sess.Answers()); got != 2 {
		t.Fatalf("answers = %d, want 2", got)
	}
}

func TestResolveEmptyRecordStaysIdle(t *testing.T) {
	st := newResolverStore(t)
	ctx := context.Background()

	rec, err := st.Create(ctx, "fresh")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sess, err := NewResolver(st).Resolve(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := sess.State(); got != StateIdle {
		t.Fatalf("state = %q, want %q", got, StateIdle)
	}
	if sess.ShareID() != rec.ID {
		t.Fatalf("share id = %q, want %q", sess.ShareID(), rec.ID)
	}
}

func TestResolveRejectsImplausibleIDs(t *testing.T) {
	st := newResolverStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	for _, id := range []string{"", "  ", "short", "1234567"} {
		if _, err := r.Resolve(ctx, id); !errors.Is(err, ErrBadShareID) {
			t.Fatalf("Resolve(%q) err = %v, want ErrBadShareID", id, err)
		}
	}
}

func TestResolveUnknownID(t *testing.T) {
	st := newResolverStore(t)
	ctx := context.Background()

	_, err := NewResolver(st).Resolve(ctx, "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
