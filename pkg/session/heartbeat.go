package session

import (
	"context"
	"time"

	"github.com/halvardtech/itv2link/pkg/panelmsg"
)

// runHeartbeat is the single heartbeat task from SPEC_FULL.md §4.3/§5:
// once the quiet-gate opens, send ConnectionPoll every Heartbeat
// interval like any other notification.
func (s *Session) runHeartbeat() {
	defer s.wg.Done()

	if err := s.awaitGate(s.ctx); err != nil {
		return
	}

	ticker := time.NewTicker(s.settings.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, s.settings.CommandResponseTimeout)
			_, err := s.Send(ctx, &panelmsg.ConnectionPoll{})
			cancel()
			if err != nil && s.log != nil {
				s.log.Warnf("session %s: heartbeat send failed: %v", s.sessionID, err)
			}
		}
	}
}
