// Package testutil provides an in-process mock NMOS node for integration
// tests: a WebSocket endpoint speaking the control protocol over a scripted
// object registry, with hooks for pushing notifications and observing writes.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/c360/nccheck/nc"
)

// MethodFunc handles one invocation of a scripted method. The returned value
// is marshalled into the method result.
type MethodFunc func(args map[string]any) (any, nc.MethodStatus, string)

// MockObject is one object in the mock node's registry.
type MockObject struct {
	OID     int
	ClassID nc.ClassID
	Role    string
	// Properties maps property id to current value. GenericGet and
	// GenericSet operate on this map.
	Properties map[nc.ElementID]any
	// ReadOnly lists properties GenericSet must refuse.
	ReadOnly map[nc.ElementID]bool
	// Methods maps method ids to scripted handlers, consulted before the
	// generic handlers.
	Methods map[nc.ElementID]MethodFunc
}

// MockNode is an in-process IS-12 node. Start it, point a transport at URL,
// and drive it from the test.
type MockNode struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	objects    map[int]*MockObject
	subscribed map[int]bool
	conns      map[*websocket.Conn]*sync.Mutex
}

// NewMockNode creates an empty node. Add objects before dialing it.
func NewMockNode() *MockNode {
	n := &MockNode{
		objects:    make(map[int]*MockObject),
		subscribed: make(map[int]bool),
		conns:      make(map[*websocket.Conn]*sync.Mutex),
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.handleWS))
	return n
}

// URL returns the node's ws:// endpoint.
func (n *MockNode) URL() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http")
}

// Close shuts the node down.
func (n *MockNode) Close() {
	n.mu.Lock()
	for conn := range n.conns {
		conn.Close()
	}
	n.conns = make(map[*websocket.Conn]*sync.Mutex)
	n.mu.Unlock()
	n.server.Close()
}

// Add registers an object. Later additions with the same oid replace earlier
// ones.
func (n *MockNode) Add(obj *MockObject) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if obj.Properties == nil {
		obj.Properties = make(map[nc.ElementID]any)
	}
	n.objects[obj.OID] = obj
}

// Object returns the registered object at oid, or nil.
func (n *MockNode) Object(oid int) *MockObject {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.objects[oid]
}

// SetProperty updates a property value directly, without a notification.
func (n *MockNode) SetProperty(oid int, propertyID nc.ElementID, value any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if obj := n.objects[oid]; obj != nil {
		obj.Properties[propertyID] = value
	}
}

// Subscribed reports whether oid is in the node's subscription set.
func (n *MockNode) Subscribed(oid int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.subscribed[oid]
}

// Notify pushes a property-changed notification to every connected client
// and updates the registry value to match.
func (n *MockNode) Notify(oid int, propertyID nc.ElementID, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	n.SetProperty(oid, propertyID, value)

	msg := nc.NotificationMessage{
		MessageType: nc.MessageNotification,
		Notifications: []nc.NotificationEntry{{
			OID:     oid,
			EventID: nc.EventPropertyChanged,
			EventData: nc.EventData{
				PropertyID: propertyID,
				ChangeType: nc.ChangeValueChanged,
				Value:      raw,
			},
		}},
	}
	return n.broadcast(msg)
}

// SendError pushes a protocol error message with no handle correlation.
func (n *MockNode) SendError(status nc.MethodStatus, message string) error {
	return n.broadcast(nc.ErrorMessage{
		MessageType:  nc.MessageError,
		Status:       status,
		ErrorMessage: message,
	})
}

func (n *MockNode) broadcast(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	n.mu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(n.conns))
	for conn, mu := range n.conns {
		conns[conn] = mu
	}
	n.mu.Unlock()

	for conn, mu := range conns {
		mu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, payload)
		mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (n *MockNode) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	writeMu := &sync.Mutex{}

	n.mu.Lock()
	n.conns[conn] = writeMu
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		delete(n.conns, conn)
		n.mu.Unlock()
		conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		reply := n.handleFrame(frame)
		if reply == nil {
			continue
		}
		writeMu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, reply)
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (n *MockNode) handleFrame(frame []byte) []byte {
	mt, err := nc.PeekMessageType(frame)
	if err != nil {
		return nil
	}

	switch mt {
	case nc.MessageCommand:
		var msg nc.CommandMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			return nil
		}
		response := nc.CommandResponseMessage{MessageType: nc.MessageCommandResponse}
		for _, cmd := range msg.Commands {
			response.Responses = append(response.Responses, nc.CommandResponse{
				Handle: cmd.Handle,
				Result: n.execute(cmd),
			})
		}
		payload, _ := json.Marshal(response)
		return payload

	case nc.MessageSubscription:
		var msg nc.SubscriptionMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			return nil
		}
		n.mu.Lock()
		for _, oid := range msg.Subscriptions {
			n.subscribed[oid] = true
		}
		n.mu.Unlock()
		payload, _ := json.Marshal(nc.SubscriptionResponseMessage{
			MessageType:   nc.MessageSubscriptionResponse,
			Subscriptions: msg.Subscriptions,
		})
		return payload

	default:
		return nil
	}
}

func (n *MockNode) execute(cmd nc.Command) nc.MethodResult {
	n.mu.Lock()
	obj := n.objects[cmd.OID]
	n.mu.Unlock()

	if obj == nil {
		return errorResult(nc.StatusBadOid, "no such object")
	}

	if handler, ok := obj.Methods[cmd.MethodID]; ok {
		value, status, errMsg := handler(cmd.Arguments)
		if status.OK() {
			return valueResult(status, value)
		}
		return errorResult(status, errMsg)
	}

	switch cmd.MethodID {
	case nc.MethodGenericGet:
		id, ok := argumentID(cmd.Arguments)
		if !ok {
			return errorResult(nc.StatusParameterError, "missing property id")
		}
		n.mu.Lock()
		value, exists := obj.Properties[id]
		n.mu.Unlock()
		if !exists {
			return errorResult(nc.StatusPropertyNotImplemented, "property "+id.String()+" not implemented")
		}
		return valueResult(nc.StatusOK, value)

	case nc.MethodGenericSet:
		id, ok := argumentID(cmd.Arguments)
		if !ok {
			return errorResult(nc.StatusParameterError, "missing property id")
		}
		if obj.ReadOnly[id] {
			return errorResult(nc.StatusReadonly, "property "+id.String()+" is read only")
		}
		n.mu.Lock()
		obj.Properties[id] = cmd.Arguments["value"]
		n.mu.Unlock()
		return valueResult(nc.StatusOK, nil)

	default:
		return errorResult(nc.StatusMethodNotImplemented,
			"method "+cmd.MethodID.String()+" not implemented")
	}
}

// argumentID decodes the "id" argument of a generic get or set.
func argumentID(arguments map[string]any) (nc.ElementID, bool) {
	raw, ok := arguments["id"].(map[string]any)
	if !ok {
		return nc.ElementID{}, false
	}
	level, lok := raw["level"].(float64)
	index, iok := raw["index"].(float64)
	if !lok || !iok {
		return nc.ElementID{}, false
	}
	return nc.ElementID{Level: int(level), Index: int(index)}, true
}

func valueResult(status nc.MethodStatus, value any) nc.MethodResult {
	if value == nil {
		return nc.MethodResult{Status: status}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return errorResult(nc.StatusDeviceError, "marshal value: "+err.Error())
	}
	return nc.MethodResult{Status: status, Value: raw}
}

func errorResult(status nc.MethodStatus, message string) nc.MethodResult {
	return nc.MethodResult{Status: status, ErrorMessage: message}
}
