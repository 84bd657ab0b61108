package nc

import (
	"encoding/json"
	"fmt"
)

// ConstraintKind discriminates the two legal constraint shapes.
type ConstraintKind int

const (
	// ConstraintDefaultOnly carries only a default value, no range fields.
	ConstraintDefaultOnly ConstraintKind = iota
	// ConstraintNumber carries minimum/maximum/step.
	ConstraintNumber
	// ConstraintString carries maxCharacters/pattern.
	ConstraintString
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintDefaultOnly:
		return "DefaultOnly"
	case ConstraintNumber:
		return "Number"
	case ConstraintString:
		return "String"
	default:
		return fmt.Sprintf("ConstraintKind(%d)", int(k))
	}
}

// Constraint is an effective value constraint at any level of the override
// hierarchy. The Kind is fixed when the constraint is decoded; number and
// string fields are never both populated. PropertyID is set only on runtime
// constraint entries.
type Constraint struct {
	Kind         ConstraintKind
	DefaultValue json.RawMessage

	// Number shape
	Minimum *float64
	Maximum *float64
	Step    *float64

	// String shape
	MaxCharacters *int
	Pattern       *string

	// Runtime constraint target, nil otherwise.
	PropertyID *ElementID
}

// constraintJSON is the wire form shared by parameter, property and runtime
// constraints.
type constraintJSON struct {
	DefaultValue  json.RawMessage `json:"defaultValue,omitempty"`
	Minimum       *float64        `json:"minimum,omitempty"`
	Maximum       *float64        `json:"maximum,omitempty"`
	Step          *float64        `json:"step,omitempty"`
	MaxCharacters *int            `json:"maxCharacters,omitempty"`
	Pattern       *string         `json:"pattern,omitempty"`
	PropertyID    *ElementID      `json:"propertyId,omitempty"`
}

// UnmarshalJSON decodes a constraint and fixes its Kind. A payload mixing
// number and string fields is rejected.
func (c *Constraint) UnmarshalJSON(data []byte) error {
	var raw constraintJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	hasNumber := raw.Minimum != nil || raw.Maximum != nil || raw.Step != nil
	hasString := raw.MaxCharacters != nil || raw.Pattern != nil
	if hasNumber && hasString {
		return fmt.Errorf("constraint mixes number and string fields")
	}

	c.DefaultValue = raw.DefaultValue
	c.Minimum = raw.Minimum
	c.Maximum = raw.Maximum
	c.Step = raw.Step
	c.MaxCharacters = raw.MaxCharacters
	c.Pattern = raw.Pattern
	c.PropertyID = raw.PropertyID

	switch {
	case hasNumber:
		c.Kind = ConstraintNumber
	case hasString:
		c.Kind = ConstraintString
	default:
		c.Kind = ConstraintDefaultOnly
	}
	return nil
}

// MarshalJSON re-encodes the constraint in wire form.
func (c Constraint) MarshalJSON() ([]byte, error) {
	return json.Marshal(constraintJSON{
		DefaultValue:  c.DefaultValue,
		Minimum:       c.Minimum,
		Maximum:       c.Maximum,
		Step:          c.Step,
		MaxCharacters: c.MaxCharacters,
		Pattern:       c.Pattern,
		PropertyID:    c.PropertyID,
	})
}

func (c *Constraint) String() string {
	if c == nil {
		return "<nil>"
	}
	switch c.Kind {
	case ConstraintNumber:
		return fmt.Sprintf("number{min=%s max=%s step=%s}",
			floatOrDash(c.Minimum), floatOrDash(c.Maximum), floatOrDash(c.Step))
	case ConstraintString:
		pattern := "-"
		if c.Pattern != nil {
			pattern = *c.Pattern
		}
		maxChars := "-"
		if c.MaxCharacters != nil {
			maxChars = fmt.Sprintf("%d", *c.MaxCharacters)
		}
		return fmt.Sprintf("string{maxCharacters=%s pattern=%q}", maxChars, pattern)
	default:
		return "default-only"
	}
}

func floatOrDash(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *f)
}
