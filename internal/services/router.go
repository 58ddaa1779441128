package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/amfgate/internal/protocol"
	"github.com/danmuck/amfgate/internal/protocol/schema"
	"github.com/danmuck/amfgate/internal/protocol/value"
	"github.com/rs/zerolog/log"
)

// Fault codes reported for a body that does not resolve.
const (
	CodeNoDestination = "Server.NoDestination"
	CodeNoOperation   = "Server.NoOperation"
	CodeBadRequest    = "Client.BadRequest"
)

// DestinationCommand is reported for CommandMessage bodies, which address
// the channel rather than a service.
const DestinationCommand = "command"

// Route is how one body would be delivered.
type Route struct {
	ResponseURI string `json:"response_uri" yaml:"response_uri" msgpack:"response_uri"`
	Via         string `json:"via" yaml:"via" msgpack:"via"`
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty" msgpack:"destination,omitempty"`
	Operation   string `json:"operation,omitempty" yaml:"operation,omitempty" msgpack:"operation,omitempty"`
	Arguments   int    `json:"arguments" yaml:"arguments" msgpack:"arguments"`
	FaultCode   string `json:"fault_code,omitempty" yaml:"fault_code,omitempty" msgpack:"fault_code,omitempty"`
	Fault       string `json:"fault,omitempty" yaml:"fault,omitempty" msgpack:"fault,omitempty"`
}

// Resolved reports whether the body reached a known destination.
func (r Route) Resolved() bool { return r.FaultCode == "" }

// Route.Via values.
const (
	ViaTarget  = "target_uri"
	ViaMessage = "message"
)

type Response struct {
	Version  string  `json:"version" yaml:"version" msgpack:"version"`
	Encoding string  `json:"encoding" yaml:"encoding" msgpack:"encoding"`
	Routes   []Route `json:"routes" yaml:"routes" msgpack:"routes"`
}

// Router resolves every body of an envelope against a ServiceRegistry.
type Router struct {
	services *ServiceRegistry
	messages *schema.Registry
}

// NewRouter builds a router. A nil messages registry uses the Flex defaults.
func NewRouter(services *ServiceRegistry, messages *schema.Registry) *Router {
	if services == nil {
		services = NewServiceRegistry()
	}
	if messages == nil {
		messages = schema.DefaultRegistry()
	}
	return &Router{services: services, messages: messages}
}

// Dispatch produces one Route per body, in body order. Unresolved bodies are
// reported in their Route; only context cancellation fails the envelope.
func (r *Router) Dispatch(ctx context.Context, env *protocol.Envelope) (any, error) {
	resp := Response{
		Version:  env.ClientVersion().String(),
		Encoding: env.ObjectEncoding().String(),
		Routes:   make([]Route, 0, len(env.Bodies())),
	}
	for i, b := range env.Bodies() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		route := r.Resolve(b)
		if !route.Resolved() {
			log.Debug().
				Int("body", i).
				Str("target", b.TargetURI).
				Str("fault_code", route.FaultCode).
				Msg("services unresolved body")
		}
		resp.Routes = append(resp.Routes, route)
	}
	return resp, nil
}

// Resolve finds the destination and operation of one body. A recognized
// message names them itself, otherwise the target URI is split as
// destination.operation.
func (r *Router) Resolve(b protocol.Body) Route {
	route := Route{ResponseURI: b.ResponseURI, Via: ViaTarget}
	if info, ok := r.messages.Describe(b.Data); ok {
		route.Via = ViaMessage
		route.Destination = info.Destination
		route.Operation = info.Operation
		switch info.Kind {
		case schema.KindRemoting:
			if !info.Valid {
				return fault(route, CodeBadRequest, info.Problem)
			}
			body, _ := b.Data.Get(schema.FieldBody)
			route.Arguments = arguments(body)
		case schema.KindCommand:
			route.Destination = DestinationCommand
			return route
		default:
			return fault(route, CodeBadRequest, fmt.Sprintf("%s messages are not routable", info.Kind))
		}
	} else {
		i := strings.LastIndex(b.TargetURI, ".")
		if i <= 0 || i == len(b.TargetURI)-1 {
			route.Destination = b.TargetURI
			return fault(route, CodeNoOperation, "target uri is not destination.operation")
		}
		route.Destination = b.TargetURI[:i]
		route.Operation = b.TargetURI[i+1:]
		route.Arguments = arguments(b.Data)
	}

	known, exposed := r.services.Exposes(route.Destination, route.Operation)
	switch {
	case !known:
		return fault(route, CodeNoDestination, "unknown destination "+route.Destination)
	case !exposed:
		return fault(route, CodeNoOperation, "unknown operation "+route.Operation)
	}
	return route
}

func fault(r Route, code, msg string) Route {
	r.FaultCode = code
	r.Fault = msg
	return r
}

// arguments counts positional arguments; a strict array spreads.
func arguments(v *value.Value) int {
	if v.IsNil() {
		return 0
	}
	if v.Kind == value.KindArray && len(v.Fields) == 0 {
		return len(v.Items)
	}
	return 1
}
