package scanport

import (
	"context"
	"testing"

	"github.com/agentwatch/agentwatch/internal/livestore"
)

func TestProtocolOfIPv4(t *testing.T) {
	if got := protocolOf("127.0.0.1"); got != livestore.ProtoTCP4 {
		t.Errorf("got %v, want tcp4", got)
	}
}

func TestProtocolOfIPv6(t *testing.T) {
	if got := protocolOf("::1"); got != livestore.ProtoTCP6 {
		t.Errorf("got %v, want tcp6", got)
	}
}

func TestParentPIDsEmptyAgentsShortCircuits(t *testing.T) {
	got := parentPIDs(map[int]*livestore.Agent{})
	if len(got) != 0 {
		t.Errorf("expected no parent lookups for empty agent set, got %v", got)
	}
}

func TestScannerLifecycleIdempotentStart(t *testing.T) {
	s := New(DefaultConfig(), livestore.New(nil, nil, nil))
	s.Start(context.Background())
	s.Start(context.Background()) // second call is a no-op, must not panic or deadlock
	s.Stop()
}

func TestScannerSetPausedDoesNotPanic(t *testing.T) {
	s := New(DefaultConfig(), livestore.New(nil, nil, nil))
	s.SetPaused(true)
	s.SetPaused(false)
}
