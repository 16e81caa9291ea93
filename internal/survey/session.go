package survey

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/mvellano/pulsecheck/internal/store"
)

// State names the screens of the survey flow.
type State string

const (
	StateIdle          State = "idle"
	StateLoading       State = "loading"
	StatePresenting    State = "presenting"
	StateRoundComplete State = "round_complete"
	StateSummarized    State = "summarized"
	StateChatting      State = "chatting"
	StateReviewing     State = "reviewing"
	StateBrowsing      State = "browsing_history"
)

const (
	evBegin         = "begin"
	evPresent       = "present"
	evCompleteRound = "complete_round"
	evMore          = "more"
	evSummarize     = "summarize"
	evSummaryReady  = "summary_ready"
	evChat          = "chat"
	evChatDone      = "chat_done"
	evReview        = "review"
	evBrowse        = "browse"
)

var (
	ErrBusy              = errors.New("an operation is already in flight for this session")
	ErrNoQuestion        = errors.New("no question is being presented")
	ErrInvalidTransition = errors.New("operation not allowed in current state")
)

// Session is the server-held reconstruction of a survey in progress: the
// cumulative answer history, the active round's question batch and a cursor,
// plus the transition graph that gates which operation may run next.
// Reconciliation with the record store happens at round completion, summary
// generation and chat turns.
type Session struct {
	mu sync.Mutex

	ID             string
	SurveyID       string // shareable deep-link identifier; empty until persisted
	Topic          string
	StartedAt      time.Time
	LastActivityAt time.Time

	answers []store.Answer
	batch   []store.Question
	cursor  int
	pending []store.Answer // current round's answers, not yet reconciled
	summary *store.Summary
	chat    []store.ChatTurn

	machine *fsm.FSM
	// origin of the active side-state (reviewing/browsing_history), and the
	// state to restore when a loading transition fails.
	returnTo State
	busy     bool
}

func newSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:             uuid.NewString(),
		StartedAt:      now,
		LastActivityAt: now,
		machine:        newMachine(),
	}
}

func newMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: evBegin, Src: []string{string(StateIdle)}, Dst: string(StateLoading)},
			{Name: evPresent, Src: []string{string(StateLoading)}, Dst: string(StatePresenting)},
			{Name: evCompleteRound, Src: []string{string(StatePresenting)}, Dst: string(StateRoundComplete)},
			{Name: evMore, Src: []string{string(StateRoundComplete)}, Dst: string(StateLoading)},
			{Name: evSummarize, Src: []string{string(StateRoundComplete)}, Dst: string(StateLoading)},
			{Name: evSummaryReady, Src: []string{string(StateLoading)}, Dst: string(StateSummarized)},
			{Name: evChat, Src: []string{string(StateSummarized)}, Dst: string(StateChatting)},
			{Name: evChatDone, Src: []string{string(StateChatting)}, Dst: string(StateSummarized)},
			{Name: evReview, Src: []string{string(StateRoundComplete), string(StateSummarized)}, Dst: string(StateReviewing)},
			{Name: evBrowse, Src: []string{string(StateRoundComplete), string(StateSummarized)}, Dst: string(StateBrowsing)},
		},
		fsm.Callbacks{},
	)
}

// State reports the machine's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State(s.machine.Current())
}

// ShareID returns the deep-link identifier once the session has reached a
// persisted state, "" otherwise.
func (s *Session) ShareID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SurveyID
}

// CurrentQuestion returns the question at the cursor along with its position
// within the active batch.
func (s *Session) CurrentQuestion() (store.Question, int, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if State(s.machine.Current()) != StatePresenting || s.cursor >= len(s.batch) {
		return store.Question{}, 0, 0, false
	}
	return s.batch[s.cursor], s.cursor, len(s.batch), true
}

// Answers returns the cumulative answer history in issue order.
func (s *Session) Answers() []store.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Answer(nil), s.answers...)
}

// Summary returns the generated summary, or nil before summarization.
func (s *Session) Summary() *store.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return nil
	}
	sum := *s.summary
	return &sum
}

// Chat returns the follow-up conversation so far.
func (s *Session) Chat() []store.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.ChatTurn(nil), s.chat...)
}

// Review enters the reviewing side-state from round_complete or summarized.
func (s *Session) Review() error {
	return s.enterSideState(evReview)
}

// BrowseHistory enters the browsing_history side-state.
func (s *Session) BrowseHistory() error {
	return s.enterSideState(evBrowse)
}

// Back returns from a side-state to the state it was entered from.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := State(s.machine.Current())
	if cur != StateReviewing && cur != StateBrowsing {
		return ErrInvalidTransition
	}
	s.machine.SetState(string(s.returnTo))
	s.touch()
	return nil
}

func (s *Session) enterSideState(event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	origin := State(s.machine.Current())
	if err := s.machine.Event(context.Background(), event); err != nil {
		return ErrInvalidTransition
	}
	s.returnTo = origin
	s.touch()
	return nil
}

// Reset returns the session to idle and clears the shareable identifier
// along with all reconstructed state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SurveyID = ""
	s.Topic = ""
	s.answers = nil
	s.batch = nil
	s.cursor = 0
	s.pending = nil
	s.summary = nil
	s.chat = nil
	s.machine = newMachine()
	s.touch()
}

// beginOp marks the session busy. One logical operation is in flight at a
// time per session.
func (s *Session) beginOp() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	return nil
}

func (s *Session) endOp() {
	s.mu.Lock()
	s.busy = false
	s.touch()
	s.mu.Unlock()
}

func (s *Session) touch() {
	s.LastActivityAt = time.Now().UTC()
}
