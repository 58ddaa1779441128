// Package inspect turns a parsed envelope into a plain document that can be
// rendered as JSON, YAML or msgpack.
package inspect

import (
	"encoding/base64"
	"math"
	"strconv"
	"time"

	"github.com/danmuck/amfgate/internal/auth"
	"github.com/danmuck/amfgate/internal/protocol"
	"github.com/danmuck/amfgate/internal/protocol/schema"
	"github.com/danmuck/amfgate/internal/protocol/value"
)

// Reserved keys in converted objects. A composite reached more than once
// is emitted in full at its first occurrence with KeyID and as
// {KeyRef: id} everywhere after, so output stays linear in the graph.
const (
	KeyClass = "$class"
	KeyItems = "$items"
	KeyID    = "$id"
	KeyRef   = "$ref"
)

// Redacted replaces the password of a Credentials header.
const Redacted = "********"

type Document struct {
	Version  string      `json:"version" yaml:"version" msgpack:"version"`
	Encoding string      `json:"encoding" yaml:"encoding" msgpack:"encoding"`
	Received string      `json:"received,omitempty" yaml:"received,omitempty" msgpack:"received,omitempty"`
	Headers  []HeaderDoc `json:"headers" yaml:"headers" msgpack:"headers"`
	Bodies   []BodyDoc   `json:"bodies" yaml:"bodies" msgpack:"bodies"`
}

type HeaderDoc struct {
	Name           string `json:"name" yaml:"name" msgpack:"name"`
	MustUnderstand bool   `json:"must_understand" yaml:"must_understand" msgpack:"must_understand"`
	DeclaredLength int32  `json:"declared_length" yaml:"declared_length" msgpack:"declared_length"`
	Data           any    `json:"data" yaml:"data" msgpack:"data"`
}

type BodyDoc struct {
	TargetURI      string       `json:"target_uri" yaml:"target_uri" msgpack:"target_uri"`
	ResponseURI    string       `json:"response_uri" yaml:"response_uri" msgpack:"response_uri"`
	DeclaredLength int32        `json:"declared_length" yaml:"declared_length" msgpack:"declared_length"`
	Message        *schema.Info `json:"message,omitempty" yaml:"message,omitempty" msgpack:"message,omitempty"`
	Data           any          `json:"data" yaml:"data" msgpack:"data"`
}

// Build summarizes env. Bodies carrying a message recognized by reg get a
// Message summary. reg may be nil. Reference ids are shared by the whole
// document.
func Build(env *protocol.Envelope, reg *schema.Registry) Document {
	doc := Document{
		Version:  env.ClientVersion().String(),
		Encoding: env.ObjectEncoding().String(),
		Headers:  make([]HeaderDoc, 0, len(env.Headers())),
		Bodies:   make([]BodyDoc, 0, len(env.Bodies())),
	}
	if ts := env.Time(); !ts.IsZero() {
		doc.Received = ts.UTC().Format(time.RFC3339Nano)
	}

	roots := make([]*value.Value, 0, len(env.Headers())+len(env.Bodies()))
	redact := make(map[*value.Value]bool)
	for _, h := range env.Headers() {
		roots = append(roots, h.Data)
		if h.Name == auth.CredentialsHeader && h.Data != nil {
			redact[h.Data] = true
		}
	}
	for _, b := range env.Bodies() {
		roots = append(roots, b.Data)
	}
	c := newConverter(roots...)
	c.redact = redact

	for _, h := range env.Headers() {
		doc.Headers = append(doc.Headers, HeaderDoc{
			Name:           h.Name,
			MustUnderstand: h.MustUnderstand,
			DeclaredLength: h.DeclaredLength,
			Data:           c.tree(h.Data),
		})
	}
	for _, b := range env.Bodies() {
		bd := BodyDoc{
			TargetURI:      b.TargetURI,
			ResponseURI:    b.ResponseURI,
			DeclaredLength: b.DeclaredLength,
			Data:           c.tree(b.Data),
		}
		if reg != nil {
			if info, ok := reg.Describe(b.Data); ok {
				bd.Message = &info
			}
		}
		doc.Bodies = append(doc.Bodies, bd)
	}
	return doc
}

// Tree converts v into nil, bool, float64, int64, string, []any and
// map[string]any values only.
func Tree(v *value.Value) any {
	return newConverter(v).tree(v)
}

type converter struct {
	refs   map[*value.Value]int
	ids    map[*value.Value]int
	redact map[*value.Value]bool
}

func newConverter(roots ...*value.Value) *converter {
	c := &converter{
		refs: make(map[*value.Value]int),
		ids:  make(map[*value.Value]int),
	}
	for _, r := range roots {
		c.count(r)
	}
	return c
}

func composite(v *value.Value) bool {
	return v != nil && (v.Kind == value.KindArray || v.Kind == value.KindMap || v.Kind == value.KindObject)
}

// count records how often each composite is reached, descending into a
// composite only on its first visit.
func (c *converter) count(v *value.Value) {
	if !composite(v) {
		return
	}
	c.refs[v]++
	if c.refs[v] > 1 {
		return
	}
	for _, item := range v.Items {
		c.count(item)
	}
	for _, f := range v.Fields {
		c.count(f.Value)
	}
}

func (c *converter) tree(v *value.Value) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case value.KindUndefined, value.KindNull:
		return nil
	case value.KindBool:
		return v.Bool
	case value.KindNumber:
		return number(v.Number)
	case value.KindInteger:
		return int64(v.Int)
	case value.KindString, value.KindXML:
		return v.Str
	case value.KindDate:
		return v.Time.UTC().Format(time.RFC3339Nano)
	case value.KindByteArray:
		return base64.StdEncoding.EncodeToString(v.Bytes)
	}

	if id, ok := c.ids[v]; ok {
		return map[string]any{KeyRef: id}
	}
	id := 0
	if c.refs[v] > 1 {
		id = len(c.ids) + 1
		c.ids[v] = id
	}

	var out map[string]any
	switch v.Kind {
	case value.KindArray:
		items := make([]any, 0, len(v.Items))
		for _, item := range v.Items {
			items = append(items, c.tree(item))
		}
		if len(v.Fields) == 0 && id == 0 {
			return items
		}
		out = c.fields(v)
		out[KeyItems] = items
	case value.KindObject:
		out = c.fields(v)
		if v.Class != "" {
			out[KeyClass] = v.Class
		}
	default:
		out = c.fields(v)
	}
	if id != 0 {
		out[KeyID] = id
	}
	return out
}

func (c *converter) fields(v *value.Value) map[string]any {
	out := make(map[string]any, len(v.Fields)+1)
	for _, f := range v.Fields {
		if c.redact[v] && f.Name == "password" {
			out[f.Name] = Redacted
			continue
		}
		out[f.Name] = c.tree(f.Value)
	}
	return out
}
// number keeps non-finite doubles representable in JSON.
func number(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}
