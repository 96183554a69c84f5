package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

var errSample = New(KindState, "sample: wrong state")

func TestSentinelMatchesItsKind(t *testing.T) {
	wrapped := fmt.Errorf("ledger: %w", errSample)
	if !stderrors.Is(wrapped, errSample) {
		t.Fatalf("expected wrapped error to match sentinel")
	}
	if !stderrors.Is(wrapped, ErrState) {
		t.Fatalf("expected wrapped error to match state kind")
	}
	if stderrors.Is(wrapped, ErrValue) {
		t.Fatalf("state error must not match value kind")
	}
	if KindOf(wrapped) != KindState {
		t.Fatalf("unexpected kind %s", KindOf(wrapped))
	}
}

func TestDistinctSentinelsDoNotMatch(t *testing.T) {
	other := New(KindState, "other: wrong state")
	if stderrors.Is(errSample, other) {
		t.Fatalf("sentinels of the same kind must stay distinct")
	}
}

func TestExternalWrapsUnclassifiedCause(t *testing.T) {
	cause := stderrors.New("provider offline")
	err := External(cause)
	if !stderrors.Is(err, ErrExternal) {
		t.Fatalf("expected external kind, got %v", err)
	}
	if !stderrors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved")
	}
	if KindOf(err) != KindExternal {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
	if External(errSample) != errSample {
		t.Fatalf("classified errors must pass through unchanged")
	}
	if External(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(stderrors.New("plain")) != 0 {
		t.Fatalf("plain errors have no kind")
	}
	if Kind(0).String() != "unknown" || KindConcurrency.String() != "concurrency" {
		t.Fatalf("unexpected kind names")
	}
}
