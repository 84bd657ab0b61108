package nc

import (
	"encoding/json"
	"fmt"
)

// PropertyDescriptor describes one property of a control class.
type PropertyDescriptor struct {
	ID           ElementID   `json:"id"`
	Name         string      `json:"name"`
	TypeName     string      `json:"typeName"`
	IsReadOnly   bool        `json:"isReadOnly"`
	IsNullable   bool        `json:"isNullable"`
	IsSequence   bool        `json:"isSequence"`
	IsDeprecated bool        `json:"isDeprecated"`
	Constraints  *Constraint `json:"constraints"`
	Description  string      `json:"description,omitempty"`
}

// ParameterDescriptor describes one parameter of a method.
type ParameterDescriptor struct {
	Name        string      `json:"name"`
	TypeName    string      `json:"typeName"`
	IsNullable  bool        `json:"isNullable"`
	IsSequence  bool        `json:"isSequence"`
	Constraints *Constraint `json:"constraints"`
	Description string      `json:"description,omitempty"`
}

// MethodDescriptor describes one method of a control class.
type MethodDescriptor struct {
	ID             ElementID             `json:"id"`
	Name           string                `json:"name"`
	ResultDatatype string                `json:"resultDatatype"`
	Parameters     []ParameterDescriptor `json:"parameters"`
	IsDeprecated   bool                  `json:"isDeprecated"`
	Description    string                `json:"description,omitempty"`
}

// EventDescriptor describes one event of a control class.
type EventDescriptor struct {
	ID            ElementID `json:"id"`
	Name          string    `json:"name"`
	EventDatatype string    `json:"eventDatatype"`
	IsDeprecated  bool      `json:"isDeprecated"`
	Description   string    `json:"description,omitempty"`
}

// ClassDescriptor describes a control class as reported by the Class Manager.
type ClassDescriptor struct {
	ClassID     ClassID              `json:"classId"`
	Name        string               `json:"name"`
	FixedRole   *string              `json:"fixedRole"`
	Properties  []PropertyDescriptor `json:"properties"`
	Methods     []MethodDescriptor   `json:"methods"`
	Events      []EventDescriptor    `json:"events"`
	Description string               `json:"description,omitempty"`
}

// FieldDescriptor describes one field of a struct datatype. An empty TypeName
// marks a variant field that accepts any JSON value.
type FieldDescriptor struct {
	Name        string      `json:"name"`
	TypeName    string      `json:"typeName"`
	IsNullable  bool        `json:"isNullable"`
	IsSequence  bool        `json:"isSequence"`
	Constraints *Constraint `json:"constraints"`
	Description string      `json:"description,omitempty"`
}

// EnumItemDescriptor describes one member of an enum datatype.
type EnumItemDescriptor struct {
	Name        string `json:"name"`
	Value       int    `json:"value"`
	Description string `json:"description,omitempty"`
}

// DatatypeDescriptor is the tagged union of the four MS-05 datatype kinds.
// Kind mirrors the wire "type" field and selects which of the variant fields
// are meaningful: Struct uses Fields and ParentType, Typedef uses ParentType
// and IsSequence, Enum uses Items, Primitive uses none.
type DatatypeDescriptor struct {
	Name        string       `json:"name"`
	Kind        DatatypeKind `json:"type"`
	Constraints *Constraint  `json:"constraints"`
	Description string       `json:"description,omitempty"`

	// Struct and Typedef
	ParentType string `json:"parentType,omitempty"`

	// Typedef
	IsSequence bool `json:"isSequence,omitempty"`

	// Struct
	Fields []FieldDescriptor `json:"fields,omitempty"`

	// Enum
	Items []EnumItemDescriptor `json:"items,omitempty"`
}

// Validate checks the variant fields against the descriptor's Kind.
func (d *DatatypeDescriptor) Validate() error {
	switch d.Kind {
	case KindPrimitive:
		if PrimitiveJSONType(d.Name) == "" {
			return fmt.Errorf("unknown primitive datatype %q", d.Name)
		}
	case KindStruct:
		if len(d.Fields) == 0 && d.ParentType == "" {
			return fmt.Errorf("struct datatype %q has no fields and no parent", d.Name)
		}
	case KindEnum:
		if len(d.Items) == 0 {
			return fmt.Errorf("enum datatype %q has no items", d.Name)
		}
	case KindTypedef:
		if d.ParentType == "" {
			return fmt.Errorf("typedef datatype %q has no parent type", d.Name)
		}
	default:
		return fmt.Errorf("datatype %q has unknown kind %d", d.Name, int(d.Kind))
	}
	return nil
}

// BlockMemberDescriptor describes one member of a block, as returned by the
// block's members property and by the member query methods.
type BlockMemberDescriptor struct {
	Role        string  `json:"role"`
	OID         int     `json:"oid"`
	ConstantOID bool    `json:"constantOid"`
	ClassID     ClassID `json:"classId"`
	UserLabel   *string `json:"userLabel"`
	Owner       int     `json:"owner"`
	Description string  `json:"description,omitempty"`
}

// Touchpoint links a control object to a resource in another NMOS API.
type Touchpoint struct {
	ContextNamespace string          `json:"contextNamespace"`
	Resource         json.RawMessage `json:"resource,omitempty"`
}

// TouchpointResource is the NcTouchpointResourceNmos payload of an x-nmos
// touchpoint.
type TouchpointResource struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
}
