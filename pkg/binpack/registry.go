package binpack

import (
	"reflect"
	"sync"
)

// CommandSequenceSetter is implemented by command messages' embedded
// header so the registry can plumb the packet-level CommandSequence
// byte (itv2msg.Packet.CommandSequence) into the decoded struct without
// the serializer itself knowing about it (spec.md §4.4: "the serializer
// has no special knowledge of it").
type CommandSequenceSetter interface {
	SetCommandSequence(v byte)
}

// CommandSequenceGetter is the read-side counterpart, used when
// serializing a command message to recover the CommandSequence that
// belongs at the packet level rather than in the wire payload.
type CommandSequenceGetter interface {
	CommandSequenceValue() byte
}

// Registry maps 2-byte command words to concrete message types,
// implementing the factory described in spec.md §4.4.
type Registry struct {
	mu          sync.RWMutex
	types       map[uint16]reflect.Type
	commands    map[reflect.Type]uint16
	isCommand   map[uint16]bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		types:     make(map[uint16]reflect.Type),
		commands:  make(map[reflect.Type]uint16),
		isCommand: make(map[uint16]bool),
	}
}

// Register associates command with the type of zero (a pointer to a
// struct annotated with wire tags). isCommand marks whether this
// message type carries a CommandSequence byte at the packet level.
func (reg *Registry) Register(command uint16, zero interface{}, isCommand bool) {
	t := reflect.TypeOf(zero)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.types[command] = t
	reg.commands[t] = command
	reg.isCommand[command] = isCommand
}

// IsCommand reports whether command was registered as a command
// message. Unknown command words are not commands.
func (reg *Registry) IsCommand(command uint16) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.isCommand[command]
}

// CommandWord returns the command word registered for msg's concrete
// type.
func (reg *Registry) CommandWord(msg interface{}) (uint16, bool) {
	t := reflect.TypeOf(msg)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	cw, ok := reg.commands[t]
	return cw, ok
}

// New allocates a zero value of the type registered for command, or
// reports ok=false if command is unknown.
func (reg *Registry) New(command uint16) (msg interface{}, ok bool) {
	reg.mu.RLock()
	t, ok := reg.types[command]
	reg.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return reflect.New(t).Interface(), true
}

// EncodePayload serializes msg's wire-tagged fields, without any
// command word or CommandSequence (those live at the itv2msg.Packet
// layer and are threaded in by pkg/panelmsg / pkg/session).
func (reg *Registry) EncodePayload(msg interface{}) ([]byte, error) {
	return Marshal(msg)
}

// DecodePayload looks up command in the registry and, if known,
// allocates an instance and deserializes data into it. If unknown, ok
// is false and the caller (pkg/panelmsg) is responsible for producing
// its DefaultMessage fallback from the raw command word and data.
func (reg *Registry) DecodePayload(command uint16, data []byte) (msg interface{}, ok bool, err error) {
	inst, ok := reg.New(command)
	if !ok {
		return nil, false, nil
	}
	if err := Unmarshal(data, inst); err != nil {
		return nil, true, err
	}
	return inst, true, nil
}
