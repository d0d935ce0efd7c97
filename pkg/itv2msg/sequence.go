package itv2msg

import "sync"

// SequenceState tracks the three 8-bit wrapping counters a connection
// needs: local_sequence (init 1), remote_sequence (init 0), and
// command_sequence (init 0). Each method takes an internal mutex, so a
// single read or update is safe from any goroutine; sequences of calls
// are not atomic together, so callers keep them under the session's
// send mutex / single-pump ownership, matching the single-writer
// discipline in SPEC_FULL.md §5.
type SequenceState struct {
	mu sync.Mutex

	local   byte
	remote  byte
	command byte
}

// NewSequenceState returns a SequenceState with the spec-mandated
// initial values (local=1, remote=0, command=0).
func NewSequenceState() *SequenceState {
	return &SequenceState{local: 1}
}

// NextLocal increments local_sequence by one (wrapping modulo 256) and
// returns the new value. Called exactly once per locally initiated
// transaction, never for SimpleAck replies.
func (s *SequenceState) NextLocal() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local++
	return s.local
}

// Local returns the current local_sequence without mutating it.
func (s *SequenceState) Local() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// NextCommand increments command_sequence by one (wrapping modulo 256)
// and returns the new value. Called exactly once per command
// transaction regardless of which side initiated it.
func (s *SequenceState) NextCommand() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.command++
	return s.command
}

// Command returns the current command_sequence without mutating it.
func (s *SequenceState) Command() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.command
}

// SetCommand forces command_sequence to v, used when the handshake
// adopts the remote's initial CommandSequence as the shared counter
// (spec.md §4.3 step 1).
func (s *SequenceState) SetCommand(v byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.command = v
}

// Remote returns the current remote_sequence.
func (s *SequenceState) Remote() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// SetRemote sets remote_sequence to the SenderSequence of the most
// recently observed non-ack inbound packet. Only the receive pump
// calls this, preserving single-writer ownership.
func (s *SequenceState) SetRemote(v byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = v
}
