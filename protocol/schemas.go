package protocol

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/nccheck/errors"
	"github.com/c360/nccheck/nc"
)

// Message-type schemas, reduced from the IS-12 API schemas to their envelope
// invariants. Inbound frames failing these are rejected before any
// correlation happens.

var elementIDSchema = map[string]any{
	"type":     "object",
	"required": []any{"level", "index"},
	"properties": map[string]any{
		"level": map[string]any{"type": "integer", "minimum": 1},
		"index": map[string]any{"type": "integer", "minimum": 1},
	},
}

var messageSchemaDocs = map[nc.MessageType]map[string]any{
	nc.MessageCommandResponse: {
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"title":    "command-response-message",
		"type":     "object",
		"required": []any{"messageType", "responses"},
		"properties": map[string]any{
			"messageType": map[string]any{"const": 1},
			"responses": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"handle", "result"},
					"properties": map[string]any{
						"handle": map[string]any{"type": "integer", "minimum": 1, "maximum": 65535},
						"result": map[string]any{
							"type":     "object",
							"required": []any{"status"},
							"properties": map[string]any{
								"status":       map[string]any{"type": "integer"},
								"errorMessage": map[string]any{"type": []any{"string", "null"}},
							},
						},
					},
				},
			},
		},
	},
	nc.MessageNotification: {
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"title":    "notification-message",
		"type":     "object",
		"required": []any{"messageType", "notifications"},
		"properties": map[string]any{
			"messageType": map[string]any{"const": 2},
			"notifications": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"oid", "eventId", "eventData"},
					"properties": map[string]any{
						"oid":     map[string]any{"type": "integer", "minimum": 1},
						"eventId": elementIDSchema,
						"eventData": map[string]any{
							"type":     "object",
							"required": []any{"propertyId", "changeType"},
							"properties": map[string]any{
								"propertyId": elementIDSchema,
								"changeType": map[string]any{"type": "integer", "minimum": 0, "maximum": 3},
								"sequenceItemIndex": map[string]any{
									"type": []any{"integer", "null"},
								},
							},
						},
					},
				},
			},
		},
	},
	nc.MessageSubscriptionResponse: {
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"title":    "subscription-response-message",
		"type":     "object",
		"required": []any{"messageType", "subscriptions"},
		"properties": map[string]any{
			"messageType": map[string]any{"const": 4},
			"subscriptions": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "integer", "minimum": 1},
			},
		},
	},
	nc.MessageError: {
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"title":    "error-message",
		"type":     "object",
		"required": []any{"messageType", "status", "errorMessage"},
		"properties": map[string]any{
			"messageType":  map[string]any{"const": 5},
			"status":       map[string]any{"type": "integer"},
			"errorMessage": map[string]any{"type": []any{"string", "null"}},
		},
	},
}

// compileMessageSchemas compiles the embedded message schemas once per client.
func compileMessageSchemas() (map[nc.MessageType]*gojsonschema.Schema, error) {
	compiled := make(map[nc.MessageType]*gojsonschema.Schema, len(messageSchemaDocs))
	for mt, doc := range messageSchemaDocs {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", mt, err)
		}
		compiled[mt] = schema
	}
	return compiled, nil
}

// validateFrame checks a raw frame against the schema for its message type.
func (c *Client) validateFrame(mt nc.MessageType, frame []byte) error {
	schema, ok := c.schemas[mt]
	if !ok {
		// Command and Subscription are client-to-device only.
		return errors.New(errors.KindProtocolError, "protocol", "validateFrame",
			"unexpected inbound message type %s", mt)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(frame))
	if err != nil {
		return errors.WrapKind(errors.KindSchemaViolation, err, "protocol", "validateFrame",
			"validate "+mt.String())
	}
	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descs = append(descs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return errors.New(errors.KindSchemaViolation, "protocol", "validateFrame",
			"%s message failed schema validation: %s", mt, strings.Join(descs, "; "))
	}
	return nil
}
