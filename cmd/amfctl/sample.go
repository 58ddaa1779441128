package main

import (
	"strings"

	"github.com/danmuck/amfgate/internal/protocol"
	"github.com/danmuck/amfgate/internal/protocol/schema"
	"github.com/danmuck/amfgate/internal/protocol/value"
	"github.com/google/uuid"
)

func messageID() string {
	return strings.ToUpper(uuid.NewString())
}

func flexEnvelope(msg *value.Value) *protocol.Envelope {
	env := protocol.NewEnvelope(protocol.VersionAMF3)
	env.SetObjectEncoding(value.EncodingAMF3)
	env.AddBody(protocol.Body{TargetURI: "null", ResponseURI: "/1", Data: msg})
	return env
}

func pingEnvelope() *protocol.Envelope {
	return flexEnvelope(value.Object(schema.ClassCommand,
		value.F(schema.FieldOperation, value.Integer(schema.OpClientPing)),
		value.F(schema.FieldCorrelationID, value.String("")),
		value.F(schema.FieldMessageID, value.String(messageID())),
		value.F(schema.FieldDestination, value.String("")),
		value.F(schema.FieldClientID, value.Null()),
		value.F(schema.FieldTimestamp, value.Integer(0)),
		value.F("timeToLive", value.Integer(0)),
		value.F(schema.FieldBody, value.Object("")),
		value.F(schema.FieldHeaders, value.Object("",
			value.F("DSMessagingVersion", value.Integer(1)),
			value.F("DSId", value.String("nil")),
		)),
	))
}

func remotingEnvelope(destination, operation string) *protocol.Envelope {
	return flexEnvelope(value.Object(schema.ClassRemoting,
		value.F(schema.FieldMessageID, value.String(messageID())),
		value.F(schema.FieldDestination, value.String(destination)),
		value.F(schema.FieldSource, value.Null()),
		value.F(schema.FieldOperation, value.String(operation)),
		value.F(schema.FieldClientID, value.Null()),
		value.F(schema.FieldTimestamp, value.Integer(0)),
		value.F(schema.FieldBody, value.Array()),
		value.F(schema.FieldHeaders, value.Object("",
			value.F("DSEndpoint", value.String("my-amf")),
			value.F("DSId", value.String("nil")),
		)),
	))
}
