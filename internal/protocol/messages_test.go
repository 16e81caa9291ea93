package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessage(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_topic","topic":"sleep quality"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	topic, ok := msg.(ClientTopic)
	if !ok {
		t.Fatalf("message type = %T, want ClientTopic", msg)
	}
	if topic.Topic != "sleep quality" {
		t.Fatalf("topic = %q", topic.Topic)
	}

	msg, err = ParseClientMessage([]byte(`{"type":"client_control","action":"summarize"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if _, ok := msg.(ClientControl); !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
}

func TestParseClientMessageRejectsInvalid(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_topic","topic":""}`)); err == nil {
		t.Fatalf("empty topic should fail")
	}
	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"launch"}`)); err == nil {
		t.Fatalf("unknown action should fail")
	}
	if _, err := ParseClientMessage([]byte(`{"type":"question"}`)); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("server-side type should be unsupported, got %v", err)
	}
	if _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Fatalf("invalid json should fail")
	}
}
