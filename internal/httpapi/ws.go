package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mvellano/pulsecheck/internal/protocol"
	"github.com/mvellano/pulsecheck/internal/reliability"
	"github.com/mvellano/pulsecheck/internal/survey"
)

type createSessionRequest struct {
	Resume string `json:"resume"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	SurveyID  string `json:"survey_id,omitempty"`
	Topic     string `json:"topic,omitempty"`
}

// handleCreateSession opens a live session, optionally rehydrated from a
// shared survey identifier.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var sess *survey.Session
	if resume := strings.TrimSpace(req.Resume); resume != "" {
		restored, err := s.resolver.Resolve(r.Context(), resume)
		if err != nil {
			respondClassified(w, err)
			return
		}
		s.sessions.Put(restored)
		sess = restored
	} else {
		sess = s.sessions.Create()
	}

	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		s.metrics.SessionEvents.WithLabelValues("created").Inc()
	}
	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: sess.ID,
		State:     string(sess.State()),
		SurveyID:  sess.ShareID(),
		Topic:     sess.Topic,
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	}
	respondJSON(w, http.StatusOK, createSessionResponse{
		SessionID: sess.ID,
		State:     string(sess.State()),
		SurveyID:  sess.ShareID(),
	})
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 64)
	outbound := make(chan any, 64)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		s.runSession(ctx, sess, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			select {
			case outbound <- protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "invalid_client_message", Detail: err.Error()}:
			default:
				// Keep websocket writes single-threaded; drop when saturated.
			}
			continue
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
}

// runSession drives the state machine from parsed client messages until the
// connection goes away.
func (s *Server) runSession(ctx context.Context, sess *survey.Session, inbound <-chan any, outbound chan<- any) {
	defer close(outbound)

	emit := func(msg any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- msg:
			return true
		}
	}
	emitState := func() bool {
		return emit(protocol.StateChanged{
			Type:     protocol.TypeStateChanged,
			State:    string(sess.State()),
			SurveyID: sess.ShareID(),
		})
	}
	emitError := func(err error) bool {
		return emit(protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			Code:   string(reliability.Classify(err)),
			Detail: err.Error(),
		})
	}
	emitQuestion := func() bool {
		q, idx, total, ok := sess.CurrentQuestion()
		if !ok {
			return true
		}
		return emit(protocol.QuestionPresented{Type: protocol.TypeQuestion, Question: q, Index: idx, Total: total})
	}

	// Announce where a resumed session picks up.
	if !emitState() {
		return
	}

	for {
		var (
			msg any
			ok  bool
		)
		select {
		case <-ctx.Done():
			return
		case msg, ok = <-inbound:
			if !ok {
				return
			}
		}

		switch m := msg.(type) {
		case protocol.ClientTopic:
			if _, err := s.runner.Begin(ctx, sess, strings.TrimSpace(m.Topic)); err != nil {
				if !emitError(err) || !emitState() {
					return
				}
				continue
			}
			if !emitState() || !emitQuestion() {
				return
			}

		case protocol.ClientAnswer:
			state, err := s.runner.SubmitAnswer(ctx, sess, m.Value)
			if err != nil {
				if !emitError(err) {
					return
				}
				continue
			}
			if state == survey.StateRoundComplete {
				if !emitState() || !emit(protocol.RoundComplete{Type: protocol.TypeRoundDone, Answered: len(sess.Answers())}) {
					return
				}
				continue
			}
			if !emitQuestion() {
				return
			}

		case protocol.ClientControl:
			if !s.applyControl(ctx, sess, m.Action, emit, emitState, emitError, emitQuestion) {
				return
			}

		case protocol.ClientChat:
			reply, err := s.runner.Chat(ctx, sess, m.Message)
			if err != nil {
				if !emitError(err) {
					return
				}
				continue
			}
			if !emit(protocol.ChatReply{Type: protocol.TypeChatReply, Reply: reply}) {
				return
			}
		}
	}
}

func (s *Server) applyControl(ctx context.Context, sess *survey.Session, action string, emit func(any) bool, emitState func() bool, emitError func(error) bool, emitQuestion func() bool) bool {
	switch action {
	case protocol.ActionMore:
		if _, err := s.runner.MoreQuestions(ctx, sess); err != nil {
			return emitError(err) && emitState()
		}
		return emitState() && emitQuestion()
	case protocol.ActionSummarize:
		sum, err := s.runner.Summarize(ctx, sess)
		if err != nil {
			return emitError(err) && emitState()
		}
		return emitState() && emit(protocol.SummaryReady{Type: protocol.TypeSummary, Summary: sum})
	case protocol.ActionReview:
		if err := sess.Review(); err != nil {
			return emitError(err)
		}
		return emitState()
	case protocol.ActionHistory:
		if err := sess.BrowseHistory(); err != nil {
			return emitError(err)
		}
		return emitState()
	case protocol.ActionBack:
		if err := sess.Back(); err != nil {
			return emitError(err)
		}
		return emitState()
	default:
		return true
	}
}
