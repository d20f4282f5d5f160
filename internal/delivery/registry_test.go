// internal/delivery/registry_test.go
package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/user/labkeeper/internal/types"
)

// stubChannel records sends and answers prompts with a canned reply.
type stubChannel struct {
	sentKey    types.SessionKey
	sentMsg    string
	sendCalls  int
	sendErr    error
	answer     string
	promptText string
}

func (s *stubChannel) Send(sessionKey types.SessionKey, message string) error {
	s.sendCalls++
	s.sentKey = sessionKey
	s.sentMsg = message
	return s.sendErr
}

func (s *stubChannel) Prompt(ctx context.Context, sessionKey types.SessionKey, question string) (string, error) {
	s.promptText = question
	return s.answer, nil
}

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()
	ch := &stubChannel{}
	reg.Register("test:", ch)

	err := reg.Deliver("test:123", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.sentKey != "test:123" {
		t.Errorf("expected session key %q, got %q", "test:123", ch.sentKey)
	}
	if ch.sentMsg != "hello" {
		t.Errorf("expected message %q, got %q", "hello", ch.sentMsg)
	}
}

func TestRegistryNoChannel(t *testing.T) {
	reg := NewRegistry()

	err := reg.Deliver("unknown:123", "hello")
	if err == nil {
		t.Fatal("expected error for unregistered prefix, got nil")
	}
	if _, err := reg.For("unknown:123"); err == nil {
		t.Fatal("expected error from For, got nil")
	}
}

func TestRegistryMultiplePrefixes(t *testing.T) {
	reg := NewRegistry()

	telegram := &stubChannel{}
	repl := &stubChannel{}
	reg.Register("telegram:", telegram)
	reg.Register("repl:", repl)

	if err := reg.Deliver("telegram:42:100", "msg1"); err != nil {
		t.Fatalf("telegram deliver error: %v", err)
	}
	if err := reg.Deliver("repl:local:default", "msg2"); err != nil {
		t.Fatalf("repl deliver error: %v", err)
	}

	if telegram.sendCalls != 1 {
		t.Errorf("expected 1 telegram send, got %d", telegram.sendCalls)
	}
	if repl.sendCalls != 1 {
		t.Errorf("expected 1 repl send, got %d", repl.sendCalls)
	}
}

func TestOperatorPrintAndAsk(t *testing.T) {
	reg := NewRegistry()
	ch := &stubChannel{answer: "yes"}
	reg.Register("telegram:", ch)

	op := NewOperator(context.Background(), reg, "telegram:42:100")

	op.Print("agent > done")
	if ch.sentMsg != "agent > done" {
		t.Errorf("expected printed message to be sent, got %q", ch.sentMsg)
	}

	answer, err := op.Ask("Delete 7 records from Experiment?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "yes" {
		t.Errorf("expected answer %q, got %q", "yes", answer)
	}
	if ch.promptText != "Delete 7 records from Experiment?" {
		t.Errorf("prompt not forwarded, got %q", ch.promptText)
	}
}

func TestOperatorPrintSendFailureIgnored(t *testing.T) {
	reg := NewRegistry()
	ch := &stubChannel{sendErr: errors.New("network down")}
	reg.Register("telegram:", ch)

	op := NewOperator(context.Background(), reg, "telegram:42:100")
	// Must not panic or surface the error.
	op.Print("best effort")
	if ch.sendCalls != 1 {
		t.Errorf("expected send attempt, got %d", ch.sendCalls)
	}
}

func TestOperatorAskNoChannel(t *testing.T) {
	reg := NewRegistry()
	op := NewOperator(context.Background(), reg, "repl:local:default")

	if _, err := op.Ask("confirm?"); err == nil {
		t.Fatal("expected error asking with no channel registered, got nil")
	}
}
