package session

import (
	"context"
	"errors"

	"github.com/halvardtech/itv2link/pkg/binpack"
	"github.com/halvardtech/itv2link/pkg/perr"
)

// Send implements the send path from SPEC_FULL.md §4.3: wait for the
// quiet-gate, then under the send mutex increment sequence counters,
// register the matching receiver, and write the packet; the response
// (or empty result, for a notification) is awaited outside the mutex
// so heartbeats and other sends are not blocked.
func (s *Session) Send(ctx context.Context, msg interface{}) (interface{}, error) {
	if err := s.awaitGate(ctx); err != nil {
		return nil, err
	}

	pr, err := s.emit(msg)
	if err != nil {
		return nil, err
	}
	if pr == nil {
		return nil, nil
	}

	if pr.isCommand {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.CommandResponseTimeout)
		defer cancel()
	}

	return s.awaitReceiver(ctx, pr)
}

// emit performs the locked portion of the send path: sequence
// increments, receiver registration, and the wire write. On success it
// always returns the registered receiver; SimpleAck replies do not go
// through emit but through sendAck.
func (s *Session) emit(msg interface{}) (*pendingReceiver, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	senderSeq := s.seq.NextLocal()

	var pr *pendingReceiver
	if setter, ok := msg.(binpack.CommandSequenceSetter); ok {
		cmdSeq := s.seq.NextCommand()
		setter.SetCommandSequence(cmdSeq)
		pr = newCommandReceiver(senderSeq, cmdSeq)
	} else {
		pr = newNotificationReceiver(senderSeq)
	}
	s.receivers.add(pr)

	packet, err := s.encodePacket(msg, senderSeq, s.seq.Remote())
	if err != nil {
		s.receivers.remove(pr)
		return nil, err
	}
	if err := s.writePacket(packet); err != nil {
		s.receivers.remove(pr)
		return nil, err
	}
	return pr, nil
}

// awaitReceiver blocks for pr's completion, the session's shutdown, or
// ctx's cancellation/deadline, whichever comes first.
func (s *Session) awaitReceiver(ctx context.Context, pr *pendingReceiver) (interface{}, error) {
	select {
	case res := <-pr.resultCh:
		return res.message, res.err
	case <-ctx.Done():
		s.receivers.remove(pr)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, perr.Wrap(perr.Timeout, "command response wait exceeded budget", ctx.Err())
		}
		return nil, perr.Wrap(perr.Cancelled, "send cancelled", ctx.Err())
	case <-s.ctx.Done():
		s.receivers.remove(pr)
		return nil, perr.New(perr.Cancelled, "session closed")
	}
}

// sendAck writes a protocol-level SimpleAck acknowledging an inbound
// packet. local_sequence is NOT incremented for replies, per
// SPEC_FULL.md §4.3 ("receive pump" step 4).
func (s *Session) sendAck(receiverSeq byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	packet := ackPacket(s.seq.Local(), receiverSeq)
	return s.writePacket(packet)
}
