package nc

import (
	"encoding/json"
	"fmt"
)

// MethodResult is the outcome of a remote method call. Every remote call
// returns exactly one result: a success (2xx status, Value populated for
// getters) or an error (non-2xx status, ErrorMessage populated). Expected
// protocol errors are values to be matched on, never panics.
type MethodResult struct {
	Status       MethodStatus    `json:"status"`
	Value        json.RawMessage `json:"value,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// OK reports whether the result is a success variant.
func (r MethodResult) OK() bool { return r.Status.OK() }

// DecodeValue unmarshals the result value into out. Fails on the error
// variant.
func (r MethodResult) DecodeValue(out any) error {
	if !r.OK() {
		return fmt.Errorf("method result carries error status %s: %s", r.Status, r.ErrorMessage)
	}
	if len(r.Value) == 0 || string(r.Value) == "null" {
		return nil
	}
	return json.Unmarshal(r.Value, out)
}

// Command is one entry of a command message.
type Command struct {
	Handle    uint16         `json:"handle"`
	OID       int            `json:"oid"`
	MethodID  ElementID      `json:"methodId"`
	Arguments map[string]any `json:"arguments"`
}

// CommandMessage is the messageType 0 envelope.
type CommandMessage struct {
	MessageType MessageType `json:"messageType"`
	Commands    []Command   `json:"commands"`
}

// CommandResponse is one entry of a command response message.
type CommandResponse struct {
	Handle uint16       `json:"handle"`
	Result MethodResult `json:"result"`
}

// CommandResponseMessage is the messageType 1 envelope.
type CommandResponseMessage struct {
	MessageType MessageType       `json:"messageType"`
	Responses   []CommandResponse `json:"responses"`
}

// EventData is the payload of a property-changed notification.
type EventData struct {
	PropertyID        ElementID          `json:"propertyId"`
	ChangeType        PropertyChangeType `json:"changeType"`
	Value             json.RawMessage    `json:"value"`
	SequenceItemIndex *int               `json:"sequenceItemIndex"`
}

// NotificationEntry is one entry of a notification message.
type NotificationEntry struct {
	OID       int       `json:"oid"`
	EventID   ElementID `json:"eventId"`
	EventData EventData `json:"eventData"`
}

// NotificationMessage is the messageType 2 envelope.
type NotificationMessage struct {
	MessageType   MessageType         `json:"messageType"`
	Notifications []NotificationEntry `json:"notifications"`
}

// SubscriptionMessage is the messageType 3 envelope.
type SubscriptionMessage struct {
	MessageType   MessageType `json:"messageType"`
	Subscriptions []int       `json:"subscriptions"`
}

// SubscriptionResponseMessage is the messageType 4 envelope acknowledging the
// oids the device will emit notifications for.
type SubscriptionResponseMessage struct {
	MessageType   MessageType `json:"messageType"`
	Subscriptions []int       `json:"subscriptions"`
}

// ErrorMessage is the messageType 5 envelope, sent when no specific response
// applies.
type ErrorMessage struct {
	MessageType  MessageType  `json:"messageType"`
	Status       MethodStatus `json:"status"`
	ErrorMessage string       `json:"errorMessage"`
}

// envelope is used to peek at the message type before full decoding.
type envelope struct {
	MessageType *MessageType `json:"messageType"`
}

// PeekMessageType extracts the messageType discriminator from a raw frame.
func PeekMessageType(frame []byte) (MessageType, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return 0, fmt.Errorf("malformed message envelope: %w", err)
	}
	if env.MessageType == nil {
		return 0, fmt.Errorf("message envelope missing messageType")
	}
	return *env.MessageType, nil
}
