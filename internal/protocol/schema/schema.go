package schema

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/danmuck/amfgate/internal/protocol/value"
	"github.com/rs/zerolog/log"
)

// Flex messaging class names as they appear in AMF3 traits.
const (
	ClassRemoting    = "flex.messaging.messages.RemotingMessage"
	ClassCommand     = "flex.messaging.messages.CommandMessage"
	ClassAcknowledge = "flex.messaging.messages.AcknowledgeMessage"
	ClassAsync       = "flex.messaging.messages.AsyncMessage"
	ClassError       = "flex.messaging.messages.ErrorMessage"
)

type MessageKind string

const (
	KindRemoting    MessageKind = "remoting"
	KindCommand     MessageKind = "command"
	KindAcknowledge MessageKind = "acknowledge"
	KindAsync       MessageKind = "async"
	KindError       MessageKind = "error"
	KindCustom      MessageKind = "custom"
)

// Field names shared by the Flex message classes.
const (
	FieldMessageID     = "messageId"
	FieldClientID      = "clientId"
	FieldCorrelationID = "correlationId"
	FieldDestination   = "destination"
	FieldOperation     = "operation"
	FieldSource        = "source"
	FieldBody          = "body"
	FieldHeaders       = "headers"
	FieldTimestamp     = "timestamp"
	FieldFaultCode     = "faultCode"
)

// CommandMessage operation codes.
const (
	OpSubscribe         = 0
	OpUnsubscribe       = 1
	OpPoll              = 2
	OpClientSync        = 4
	OpClientPing        = 5
	OpClusterRequest    = 7
	OpLogin             = 8
	OpLogout            = 9
	OpSessionInvalidate = 10
	OpMultiSubscribe    = 11
	OpDisconnect        = 12
	OpTriggerConnect    = 13
)

var commandNames = map[int64]string{
	OpSubscribe:         "subscribe",
	OpUnsubscribe:       "unsubscribe",
	OpPoll:              "poll",
	OpClientSync:        "client_sync",
	OpClientPing:        "client_ping",
	OpClusterRequest:    "cluster_request",
	OpLogin:             "login",
	OpLogout:            "logout",
	OpSessionInvalidate: "session_invalidate",
	OpMultiSubscribe:    "multi_subscribe",
	OpDisconnect:        "disconnect",
	OpTriggerConnect:    "trigger_connect",
}

// CommandName returns the symbolic name of a CommandMessage operation code.
func CommandName(op int64) string {
	if name, ok := commandNames[op]; ok {
		return name
	}
	return "op_" + strconv.FormatInt(op, 10)
}

// Requirement is one required property; an empty Kinds list accepts any
// non-nil value.
type Requirement struct {
	Name  string
	Kinds []value.Kind
}

type ValidationError struct {
	Class  string
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: class=%s: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("schema: class=%s field=%s: %s", e.Class, e.Field, e.Reason)
}

var (
	stringKind = []value.Kind{value.KindString}
	numberKind = []value.Kind{value.KindNumber, value.KindInteger}
)

var requirements = map[MessageKind][]Requirement{
	KindRemoting: {
		{FieldMessageID, stringKind},
		{FieldDestination, stringKind},
		{FieldOperation, stringKind},
	},
	KindCommand: {
		{FieldMessageID, stringKind},
		{FieldOperation, numberKind},
	},
	KindAsync: {
		{FieldMessageID, stringKind},
		{FieldDestination, stringKind},
	},
	KindAcknowledge: {
		{FieldMessageID, stringKind},
		{FieldCorrelationID, stringKind},
	},
	KindError: {
		{FieldMessageID, stringKind},
		{FieldFaultCode, stringKind},
	},
	KindCustom: {},
}

// Registry maps AMF class names to recognized message kinds. A value is a
// message when it is an object whose class is registered.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]MessageKind
}

func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]MessageKind)}
}

// DefaultRegistry knows the five Flex messaging classes.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ClassRemoting, KindRemoting)
	r.Register(ClassCommand, KindCommand)
	r.Register(ClassAcknowledge, KindAcknowledge)
	r.Register(ClassAsync, KindAsync)
	r.Register(ClassError, KindError)
	return r
}

func (r *Registry) Register(class string, kind MessageKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[class] = kind
}

func (r *Registry) Lookup(class string) (MessageKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.classes[class]
	return kind, ok
}

// Classes returns the number of registered classes.
func (r *Registry) Classes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.classes)
}

// IsMessage reports whether v is a recognized message value.
func (r *Registry) IsMessage(v *value.Value) bool {
	if v == nil || v.Kind != value.KindObject || v.Class == "" {
		return false
	}
	_, ok := r.Lookup(v.Class)
	return ok
}

// Validate enforces required properties for a recognized message.
// Unknown properties are ignored.
func (r *Registry) Validate(v *value.Value) error {
	if !r.IsMessage(v) {
		class := ""
		if v != nil {
			class = v.Class
		}
		return ValidationError{Class: class, Reason: "not a recognized message"}
	}
	kind, _ := r.Lookup(v.Class)
	for _, req := range requirements[kind] {
		f, found := v.Get(req.Name)
		if !found || f.IsNil() {
			log.Debug().Str("class", v.Class).Str("field", req.Name).Msg("schema.Validate missing field")
			return ValidationError{Class: v.Class, Field: req.Name, Reason: "missing required field"}
		}
		if len(req.Kinds) > 0 && !kindIn(f.Kind, req.Kinds) {
			log.Debug().
				Str("class", v.Class).
				Str("field", req.Name).
				Stringer("got", f.Kind).
				Msg("schema.Validate kind mismatch")
			return ValidationError{Class: v.Class, Field: req.Name, Reason: "kind mismatch"}
		}
	}
	return nil
}

func kindIn(k value.Kind, kinds []value.Kind) bool {
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// Info summarizes the addressing properties of a message.
type Info struct {
	Class         string      `json:"class" yaml:"class" msgpack:"class"`
	Kind          MessageKind `json:"kind" yaml:"kind" msgpack:"kind"`
	MessageID     string      `json:"message_id,omitempty" yaml:"message_id,omitempty" msgpack:"message_id,omitempty"`
	ClientID      string      `json:"client_id,omitempty" yaml:"client_id,omitempty" msgpack:"client_id,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty" msgpack:"correlation_id,omitempty"`
	Destination   string      `json:"destination,omitempty" yaml:"destination,omitempty" msgpack:"destination,omitempty"`
	Operation     string      `json:"operation,omitempty" yaml:"operation,omitempty" msgpack:"operation,omitempty"`
	Valid         bool        `json:"valid" yaml:"valid" msgpack:"valid"`
	Problem       string      `json:"problem,omitempty" yaml:"problem,omitempty" msgpack:"problem,omitempty"`
}

// Describe extracts Info from a recognized message. ok is false when v is
// not a message at all; validation problems are reported in Info.Problem.
func (r *Registry) Describe(v *value.Value) (Info, bool) {
	if !r.IsMessage(v) {
		return Info{}, false
	}
	kind, _ := r.Lookup(v.Class)
	info := Info{
		Class:         v.Class,
		Kind:          kind,
		MessageID:     optString(v, FieldMessageID),
		ClientID:      optString(v, FieldClientID),
		CorrelationID: optString(v, FieldCorrelationID),
		Destination:   optString(v, FieldDestination),
		Valid:         true,
	}
	if op, ok := v.Get(FieldOperation); ok {
		if kind == KindCommand {
			if n, err := op.AsInt(); err == nil {
				info.Operation = CommandName(n)
			}
		} else if s, err := op.AsString(); err == nil {
			info.Operation = s
		}
	}
	if err := r.Validate(v); err != nil {
		info.Valid = false
		info.Problem = err.Error()
	}
	return info, true
}

func optString(v *value.Value, name string) string {
	f, ok := v.Get(name)
	if !ok {
		return ""
	}
	s, err := f.AsString()
	if err != nil {
		return ""
	}
	return s
}
