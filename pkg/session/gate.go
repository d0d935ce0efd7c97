package session

import (
	"context"
	"time"

	"github.com/halvardtech/itv2link/pkg/perr"
)

// armGate starts the reconnection quiet-gate timer (SPEC_FULL.md §4.3
// "reconnection quiet-gate"): it fires once after s.settings.QuietGate
// of inbound silence and opens gateCh for the rest of the session's
// life.
func (s *Session) armGate() {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()
	s.gateTimer = time.AfterFunc(s.settings.QuietGate, s.openGate)
}

// resetGate is called by the receive pump on every inbound message.
// Once the gate has opened it never closes again, so resets after that
// point are no-ops.
func (s *Session) resetGate() {
	select {
	case <-s.gateCh:
		return
	default:
	}

	s.gateMu.Lock()
	defer s.gateMu.Unlock()
	if s.gateTimer != nil {
		s.gateTimer.Reset(s.settings.QuietGate)
	}
}

func (s *Session) openGate() {
	s.gateOnce.Do(func() { close(s.gateCh) })
}

// awaitGate blocks until the quiet-gate is open, ctx is done, or the
// session is shut down.
func (s *Session) awaitGate(ctx context.Context) error {
	select {
	case <-s.gateCh:
		return nil
	case <-ctx.Done():
		return perr.Wrap(perr.Cancelled, "send cancelled awaiting quiet-gate", ctx.Err())
	case <-s.ctx.Done():
		return perr.New(perr.Cancelled, "session closed")
	}
}
