package session

import (
	"sync"

	"github.com/halvardtech/itv2link/pkg/itv2msg"
)

// pendingReceiver is one entry in the correlation table described in
// SPEC_FULL.md §4.3 ("transaction correlation"): a protocol-level
// notification receiver has only senderSeq; a command-level receiver
// also carries commandSeq and is offered command messages in addition
// to its own SimpleAck.
type pendingReceiver struct {
	senderSeq  byte
	isCommand  bool
	commandSeq byte

	// resultCh delivers exactly one of: a decoded command message (for
	// a command receiver), or nil (for a notification receiver's
	// SimpleAck, or a cancelled wait).
	resultCh chan receiverResult
	once     sync.Once
}

type receiverResult struct {
	message interface{}
	err     error
}

func newNotificationReceiver(senderSeq byte) *pendingReceiver {
	return &pendingReceiver{senderSeq: senderSeq, resultCh: make(chan receiverResult, 1)}
}

func newCommandReceiver(senderSeq, commandSeq byte) *pendingReceiver {
	return &pendingReceiver{senderSeq: senderSeq, isCommand: true, commandSeq: commandSeq, resultCh: make(chan receiverResult, 1)}
}

func (pr *pendingReceiver) complete(msg interface{}, err error) {
	pr.once.Do(func() {
		pr.resultCh <- receiverResult{message: msg, err: err}
	})
}

// offer implements the "offer until one accepts" rule from SPEC_FULL.md
// §4.3. msg is the already-decoded payload (nil for a SimpleAck). It
// returns true if pr accepted the packet; accepting a SimpleAck for a
// command receiver records the ack but does not complete the receiver
// (accepted=true, done=false).
func (pr *pendingReceiver) offer(p *itv2msg.Packet, msg interface{}) (accepted, done bool) {
	if p.ReceiverSequence == pr.senderSeq && p.IsSimpleAck() {
		// Acknowledges the matching outbound; a notification receiver
		// completes here, a command receiver merely records it.
		return true, !pr.isCommand
	}

	if !pr.isCommand || msg == nil {
		return false, false
	}

	getter, ok := msg.(interface{ CommandSequenceValue() byte })
	if !ok || getter.CommandSequenceValue() != pr.commandSeq {
		return false, false
	}
	return true, true
}

// receiverTable is the ordered list of pending receivers; insertion
// order decides offer order, matching SPEC_FULL.md's "first acceptor
// wins."
type receiverTable struct {
	mu   sync.Mutex
	list []*pendingReceiver
}

func (t *receiverTable) add(pr *pendingReceiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.list = append(t.list, pr)
}

func (t *receiverTable) remove(pr *pendingReceiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cur := range t.list {
		if cur == pr {
			t.list = append(t.list[:i], t.list[i+1:]...)
			return
		}
	}
}

// offerPacket walks the table in insertion order, offering (p, msg) to
// each receiver until one accepts. A receiver that completes is
// removed. It returns whether any receiver accepted the packet at all,
// so the caller knows not to treat it as an unmatched notification.
func (t *receiverTable) offerPacket(p *itv2msg.Packet, msg interface{}) bool {
	t.mu.Lock()
	candidates := append([]*pendingReceiver(nil), t.list...)
	t.mu.Unlock()

	for _, pr := range candidates {
		accepted, done := pr.offer(p, msg)
		if !accepted {
			continue
		}
		if done {
			pr.complete(msg, nil)
			t.remove(pr)
		}
		return true
	}
	return false
}

// cancelAll completes every outstanding receiver with err, used on
// session shutdown.
func (t *receiverTable) cancelAll(err error) {
	t.mu.Lock()
	list := t.list
	t.list = nil
	t.mu.Unlock()
	for _, pr := range list {
		pr.complete(nil, err)
	}
}
