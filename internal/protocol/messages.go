package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mvellano/pulsecheck/internal/store"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientTopic   MessageType = "client_topic"
	TypeClientAnswer  MessageType = "client_answer"
	TypeClientControl MessageType = "client_control"
	TypeClientChat    MessageType = "client_chat"

	TypeStateChanged MessageType = "state_changed"
	TypeQuestion     MessageType = "question"
	TypeRoundDone    MessageType = "round_complete"
	TypeSummary      MessageType = "summary"
	TypeChatReply    MessageType = "chat_reply"
	TypeErrorEvent   MessageType = "error_event"
)

// Control actions accepted from the client at a decision point.
const (
	ActionMore      = "more"
	ActionSummarize = "summarize"
	ActionReview    = "review"
	ActionHistory   = "history"
	ActionBack      = "back"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientTopic struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Topic     string      `json:"topic"`
}

type ClientAnswer struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Value     string      `json:"value"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

type ClientChat struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Message   string      `json:"message"`
}

// StateChanged tells the client which screen to show and, once the session
// is persisted, the shareable survey id for deep linking.
type StateChanged struct {
	Type     MessageType `json:"type"`
	State    string      `json:"state"`
	SurveyID string      `json:"survey_id,omitempty"`
}

type QuestionPresented struct {
	Type     MessageType    `json:"type"`
	Question store.Question `json:"question"`
	Index    int            `json:"index"`
	Total    int            `json:"total"`
}

type RoundComplete struct {
	Type     MessageType `json:"type"`
	Answered int         `json:"answered"`
}

type SummaryReady struct {
	Type    MessageType   `json:"type"`
	Summary store.Summary `json:"summary"`
}

type ChatReply struct {
	Type  MessageType `json:"type"`
	Reply string      `json:"reply"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientTopic:
		var msg ClientTopic
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Topic == "" {
			return nil, errors.New("invalid client_topic")
		}
		return msg, nil
	case TypeClientAnswer:
		var msg ClientAnswer
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Value == "" {
			return nil, errors.New("invalid client_answer")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionMore, ActionSummarize, ActionReview, ActionHistory, ActionBack:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	case TypeClientChat:
		var msg ClientChat
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Message == "" {
			return nil, errors.New("invalid client_chat")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
