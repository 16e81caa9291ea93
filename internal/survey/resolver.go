package survey

import (
	"context"
	"errors"
	"strings"

	"github.com/mvellano/pulsecheck/internal/store"
)

// Shareable ids are uuids; anything shorter than this is rejected before the
// store is consulted.
const minShareIDLength = 8

var ErrBadShareID = errors.New("identifier is not a plausible survey link")

// Resolver rebuilds a session from a shared identifier. Resume rule: a
// record with a summary lands in summarized, one with answers but no summary
// in round_complete, and an empty record back in idle so round generation
// restarts.
type Resolver struct {
	store store.Store
}

func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

func (r *Resolver) Resolve(ctx context.Context, externalID string) (*Session, error) {
	externalID = strings.TrimSpace(externalID)
	if len(externalID) < minShareIDLength {
		return nil, ErrBadShareID
	}

	rec, err := r.store.Get(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, store.ErrNotFound
	}

	sess := newSession()
	sess.SurveyID = rec.ID
	sess.Topic = rec.Topic
	sess.answers = append([]store.Answer(nil), rec.Answers...)
	sess.chat = append([]store.ChatTurn(nil), rec.Chat...)
	if rec.Summary != nil {
		sum := *rec.Summary
		sess.summary = &sum
	}

	switch {
	case rec.Summary != nil:
		sess.machine.SetState(string(StateSummarized))
	case len(rec.Answers) > 0:
		sess.machine.SetState(string(StateRoundComplete))
	default:
		// Nothing to resume; the caller restarts round generation from idle.
	}
	return sess, nil
}
