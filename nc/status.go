package nc

import "fmt"

// MethodStatus is the NcMethodStatus code carried by every method result.
type MethodStatus int

// NcMethodStatus codes.
const (
	StatusOK                     MethodStatus = 200
	StatusPropertyDeprecated     MethodStatus = 298
	StatusMethodDeprecated       MethodStatus = 299
	StatusBadCommandFormat       MethodStatus = 400
	StatusUnauthorized           MethodStatus = 401
	StatusBadOid                 MethodStatus = 404
	StatusReadonly               MethodStatus = 405
	StatusInvalidRequest         MethodStatus = 406
	StatusConflict               MethodStatus = 409
	StatusBufferOverflow         MethodStatus = 413
	StatusIndexOutOfBounds       MethodStatus = 414
	StatusParameterError         MethodStatus = 417
	StatusLocked                 MethodStatus = 423
	StatusDeviceError            MethodStatus = 500
	StatusMethodNotImplemented   MethodStatus = 501
	StatusPropertyNotImplemented MethodStatus = 502
	StatusNotReady               MethodStatus = 503
	StatusTimeout                MethodStatus = 504
)

// OK reports whether the status is a success. Deprecation statuses still
// carry a usable value and count as success.
func (s MethodStatus) OK() bool {
	return s == StatusOK || s == StatusPropertyDeprecated || s == StatusMethodDeprecated
}

func (s MethodStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusPropertyDeprecated:
		return "PropertyDeprecated"
	case StatusMethodDeprecated:
		return "MethodDeprecated"
	case StatusBadCommandFormat:
		return "BadCommandFormat"
	case StatusUnauthorized:
		return "Unauthorized"
	case StatusBadOid:
		return "BadOid"
	case StatusReadonly:
		return "Readonly"
	case StatusInvalidRequest:
		return "InvalidRequest"
	case StatusConflict:
		return "Conflict"
	case StatusBufferOverflow:
		return "BufferOverflow"
	case StatusIndexOutOfBounds:
		return "IndexOutOfBounds"
	case StatusParameterError:
		return "ParameterError"
	case StatusLocked:
		return "Locked"
	case StatusDeviceError:
		return "DeviceError"
	case StatusMethodNotImplemented:
		return "MethodNotImplemented"
	case StatusPropertyNotImplemented:
		return "PropertyNotImplemented"
	case StatusNotReady:
		return "NotReady"
	case StatusTimeout:
		return "Timeout"
	default:
		return fmt.Sprintf("MethodStatus(%d)", int(s))
	}
}

// MessageType discriminates the IS-12 protocol message envelopes.
type MessageType int

// IS-12 message types.
const (
	MessageCommand              MessageType = 0
	MessageCommandResponse      MessageType = 1
	MessageNotification         MessageType = 2
	MessageSubscription         MessageType = 3
	MessageSubscriptionResponse MessageType = 4
	MessageError                MessageType = 5
)

func (m MessageType) String() string {
	switch m {
	case MessageCommand:
		return "Command"
	case MessageCommandResponse:
		return "CommandResponse"
	case MessageNotification:
		return "Notification"
	case MessageSubscription:
		return "Subscription"
	case MessageSubscriptionResponse:
		return "SubscriptionResponse"
	case MessageError:
		return "Error"
	default:
		return fmt.Sprintf("MessageType(%d)", int(m))
	}
}

// PropertyChangeType describes the change carried by a property-changed event.
type PropertyChangeType int

// NcPropertyChangeType values.
const (
	ChangeValueChanged        PropertyChangeType = 0
	ChangeSequenceItemAdded   PropertyChangeType = 1
	ChangeSequenceItemChanged PropertyChangeType = 2
	ChangeSequenceItemRemoved PropertyChangeType = 3
)

// DatatypeKind discriminates the DatatypeDescriptor union.
type DatatypeKind int

// NcDatatypeType values.
const (
	KindPrimitive DatatypeKind = 0
	KindTypedef   DatatypeKind = 1
	KindStruct    DatatypeKind = 2
	KindEnum      DatatypeKind = 3
)

func (k DatatypeKind) String() string {
	switch k {
	case KindPrimitive:
		return "Primitive"
	case KindTypedef:
		return "Typedef"
	case KindStruct:
		return "Struct"
	case KindEnum:
		return "Enum"
	default:
		return fmt.Sprintf("DatatypeKind(%d)", int(k))
	}
}

// PrimitiveJSONType maps an MS-05 primitive type name to its JSON type, or ""
// when the name is not a primitive.
func PrimitiveJSONType(name string) string {
	switch name {
	case "NcBoolean":
		return "boolean"
	case "NcString":
		return "string"
	case "NcInt16", "NcInt32", "NcInt64", "NcUint16", "NcUint32", "NcUint64",
		"NcFloat32", "NcFloat64":
		return "number"
	default:
		return ""
	}
}

// IsNumericPrimitive reports whether name is one of the numeric primitives.
func IsNumericPrimitive(name string) bool {
	return PrimitiveJSONType(name) == "number"
}
