package passphrase

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func fakeSource(env map[string]string, tty bool, typed string) (*Source, *int) {
	reads := 0
	s := NewSource("PAWN_TEST_PASS")
	s.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	s.isTerminal = func() bool { return tty }
	s.readPassword = func() ([]byte, error) {
		reads++
		return []byte(typed), nil
	}
	s.prompt = io.Discard
	return s, &reads
}

func TestEnvironmentWins(t *testing.T) {
	s, reads := fakeSource(map[string]string{"PAWN_TEST_PASS": "hunter2"}, true, "typed")
	got, err := s.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("unexpected %q %v", got, err)
	}
	if *reads != 0 {
		t.Fatalf("terminal should not be read when the variable is set")
	}
}

func TestBlankEnvironmentRejected(t *testing.T) {
	s, _ := fakeSource(map[string]string{"PAWN_TEST_PASS": "  "}, true, "typed")
	if _, err := s.Get(); err == nil || !strings.Contains(err.Error(), "PAWN_TEST_PASS") {
		t.Fatalf("expected empty variable error, got %v", err)
	}
}

func TestUnsetWithoutTerminalFails(t *testing.T) {
	s, _ := fakeSource(nil, false, "")
	if _, err := s.Get(); err == nil || !strings.Contains(err.Error(), "set PAWN_TEST_PASS") {
		t.Fatalf("expected guidance to set the variable, got %v", err)
	}
}

func TestPromptIsCached(t *testing.T) {
	s, reads := fakeSource(nil, true, "from-tty")
	for i := 0; i < 2; i++ {
		got, err := s.Get()
		if err != nil || got != "from-tty" {
			t.Fatalf("unexpected %q %v", got, err)
		}
	}
	if *reads != 1 {
		t.Fatalf("expected a single prompt, got %d", *reads)
	}
}

func TestPromptRejectsBlankAndReadErrors(t *testing.T) {
	s, _ := fakeSource(nil, true, "   ")
	if _, err := s.Get(); err == nil {
		t.Fatalf("blank typed passphrase must be rejected")
	}

	boom := errors.New("tty closed")
	s, _ = fakeSource(nil, true, "")
	s.readPassword = func() ([]byte, error) { return nil, boom }
	if _, err := s.Get(); !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}
