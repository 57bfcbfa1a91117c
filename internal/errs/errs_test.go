package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSentinelsMatchByKind(t *testing.T) {
	cause := errors.New("exit status 1")
	cases := []struct {
		err      error
		sentinel error
		kind     Kind
	}{
		{NotFound("lead_qa"), ErrNotFound, KindNotFound},
		{Transport("kill-session", "producer", cause), ErrTransport, KindTransport},
		{Delivery("tester_1", nil), ErrDelivery, KindDelivery},
		{Recovery("director", 3, cause), ErrRecovery, KindRecovery},
		{Config("agents.json", cause), ErrConfig, KindConfig},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		if !errors.Is(wrapped, tc.sentinel) {
			t.Fatalf("%v: expected match with %v sentinel", tc.err, tc.kind)
		}
		if KindOf(wrapped) != tc.kind {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, KindOf(wrapped), tc.kind)
		}
		for _, other := range []error{ErrNotFound, ErrTransport, ErrDelivery, ErrRecovery, ErrConfig} {
			if other == tc.sentinel {
				continue
			}
			if errors.Is(tc.err, other) {
				t.Fatalf("%v unexpectedly matched %v", tc.err, other)
			}
		}
	}
}

func TestRecoveryCarriesContext(t *testing.T) {
	cause := errors.New("session vanished")
	err := Recovery("programmer_2", 3, cause)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error")
	}
	if e.Name != "programmer_2" || e.Attempts != 3 {
		t.Fatalf("unexpected context: %+v", e)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("message missing attempt count: %s", err)
	}
}

func TestNotFoundMessageNamesWorker(t *testing.T) {
	if got := NotFound("ghost").Error(); got != "agent not found: ghost" {
		t.Fatalf("unexpected message %q", got)
	}
}
