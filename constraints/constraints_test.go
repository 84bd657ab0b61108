package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nccheck/devmodel"
	"github.com/c360/nccheck/errors"
	"github.com/c360/nccheck/nc"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }
func strp(v string) *string  { return &v }

func numberConstraint(minimum, maximum float64) *nc.Constraint {
	return &nc.Constraint{Kind: nc.ConstraintNumber, Minimum: f64(minimum), Maximum: f64(maximum)}
}

func newResolver(t *testing.T, datatypes map[string]nc.DatatypeDescriptor) *Resolver {
	t.Helper()
	table := map[string]nc.DatatypeDescriptor{
		"NcInt32":   {Name: "NcInt32", Kind: nc.KindPrimitive},
		"NcFloat64": {Name: "NcFloat64", Kind: nc.KindPrimitive},
		"NcString":  {Name: "NcString", Kind: nc.KindPrimitive},
		"GainDb":    {Name: "GainDb", Kind: nc.KindTypedef, ParentType: "NcFloat64"},
	}
	for name, descriptor := range datatypes {
		table[name] = descriptor
	}
	return NewResolver(&devmodel.ClassManager{Datatypes: table})
}

func gainProperty(constraint *nc.Constraint) nc.PropertyDescriptor {
	return nc.PropertyDescriptor{
		ID:          nc.ElementID{Level: 5, Index: 1},
		Name:        "gain",
		TypeName:    "GainDb",
		Constraints: constraint,
	}
}

func TestEffectiveHighestLevelWins(t *testing.T) {
	resolver := newResolver(t, map[string]nc.DatatypeDescriptor{
		"BoundedInt": {
			Name:        "BoundedInt",
			Kind:        nc.KindTypedef,
			ParentType:  "NcInt32",
			Constraints: numberConstraint(0, 10),
		},
	})
	property := nc.PropertyDescriptor{
		ID:          nc.ElementID{Level: 5, Index: 1},
		Name:        "level",
		TypeName:    "BoundedInt",
		Constraints: numberConstraint(2, 8),
	}

	effective, err := resolver.Effective(property, nil)
	require.NoError(t, err)
	require.NotNil(t, effective)
	assert.Equal(t, 2.0, *effective.Minimum)
	assert.Equal(t, 8.0, *effective.Maximum)

	// Resolution is repeatable.
	again, err := resolver.Effective(property, nil)
	require.NoError(t, err)
	assert.Equal(t, effective, again)
}

func TestEffectiveRuntimeOverridesProperty(t *testing.T) {
	resolver := newResolver(t, nil)
	property := gainProperty(numberConstraint(-20, 20))

	runtime := *numberConstraint(-10, 10)
	runtime.PropertyID = &nc.ElementID{Level: 5, Index: 1}
	object := &devmodel.Object{
		OID:                7,
		RuntimeConstraints: []nc.Constraint{runtime},
	}

	effective, err := resolver.Effective(property, object)
	require.NoError(t, err)
	require.NotNil(t, effective)
	assert.Equal(t, -10.0, *effective.Minimum)
	assert.Equal(t, 10.0, *effective.Maximum)
}

func TestEffectiveRejectsWidening(t *testing.T) {
	resolver := newResolver(t, map[string]nc.DatatypeDescriptor{
		"BoundedInt": {
			Name:        "BoundedInt",
			Kind:        nc.KindTypedef,
			ParentType:  "NcInt32",
			Constraints: numberConstraint(0, 10),
		},
	})
	property := nc.PropertyDescriptor{
		ID:       nc.ElementID{Level: 5, Index: 1},
		Name:     "level",
		TypeName: "BoundedInt",
		// Minimum of 0 at the datatype level still binds the override.
		Constraints: numberConstraint(-5, 10),
	}

	_, err := resolver.Effective(property, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConstraintWideningViolation))
	assert.Contains(t, err.Error(), "level (5p1)")
}

func TestEffectiveRejectsPartialOverride(t *testing.T) {
	resolver := newResolver(t, nil)
	property := gainProperty(&nc.Constraint{
		Kind:    nc.ConstraintNumber,
		Minimum: f64(-20),
		Maximum: f64(20),
		Step:    f64(0.5),
	})

	runtime := nc.Constraint{
		Kind:       nc.ConstraintNumber,
		Minimum:    f64(-10),
		Maximum:    f64(10),
		PropertyID: &nc.ElementID{Level: 5, Index: 1},
	}
	object := &devmodel.Object{RuntimeConstraints: []nc.Constraint{runtime}}

	_, err := resolver.Effective(property, object)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConstraintWideningViolation))
	assert.Contains(t, err.Error(), "fully override")
}

func TestEffectiveRejectsKindMismatch(t *testing.T) {
	resolver := newResolver(t, nil)
	property := gainProperty(numberConstraint(-20, 20))

	runtime := nc.Constraint{
		Kind:          nc.ConstraintString,
		MaxCharacters: intp(8),
		PropertyID:    &nc.ElementID{Level: 5, Index: 1},
	}
	object := &devmodel.Object{RuntimeConstraints: []nc.Constraint{runtime}}

	_, err := resolver.Effective(property, object)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConstraintWideningViolation))
}

func TestEffectiveStringConstraints(t *testing.T) {
	resolver := newResolver(t, nil)
	property := nc.PropertyDescriptor{
		ID:       nc.ElementID{Level: 5, Index: 2},
		Name:     "label",
		TypeName: "NcString",
		Constraints: &nc.Constraint{
			Kind:          nc.ConstraintString,
			MaxCharacters: intp(64),
			Pattern:       strp("^[a-z]+$"),
		},
	}

	t.Run("narrowing override wins", func(t *testing.T) {
		runtime := nc.Constraint{
			Kind:          nc.ConstraintString,
			MaxCharacters: intp(16),
			Pattern:       strp("^[a-z][a-z0-9]*$"),
			PropertyID:    &nc.ElementID{Level: 5, Index: 2},
		}
		object := &devmodel.Object{RuntimeConstraints: []nc.Constraint{runtime}}

		effective, err := resolver.Effective(property, object)
		require.NoError(t, err)
		require.NotNil(t, effective)
		assert.Equal(t, 16, *effective.MaxCharacters)
	})

	t.Run("raised maxCharacters is a widening", func(t *testing.T) {
		runtime := nc.Constraint{
			Kind:          nc.ConstraintString,
			MaxCharacters: intp(128),
			Pattern:       strp("^[a-z]+[0-9]$"),
			PropertyID:    &nc.ElementID{Level: 5, Index: 2},
		}
		object := &devmodel.Object{RuntimeConstraints: []nc.Constraint{runtime}}

		_, err := resolver.Effective(property, object)
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindConstraintWideningViolation))
	})
}

func TestEffectiveTypeCompatibility(t *testing.T) {
	resolver := newResolver(t, nil)

	t.Run("number constraint on a string type", func(t *testing.T) {
		property := nc.PropertyDescriptor{
			ID:          nc.ElementID{Level: 5, Index: 3},
			Name:        "label",
			TypeName:    "NcString",
			Constraints: numberConstraint(0, 10),
		}
		_, err := resolver.Effective(property, nil)
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindIncompatibleConstraintType))
	})

	t.Run("string constraint on a numeric typedef", func(t *testing.T) {
		property := gainProperty(&nc.Constraint{
			Kind:          nc.ConstraintString,
			MaxCharacters: intp(8),
		})
		_, err := resolver.Effective(property, nil)
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindIncompatibleConstraintType))
	})

	t.Run("default-only constraint fits any type", func(t *testing.T) {
		property := gainProperty(&nc.Constraint{
			Kind:         nc.ConstraintDefaultOnly,
			DefaultValue: []byte("0"),
		})
		effective, err := resolver.Effective(property, nil)
		require.NoError(t, err)
		require.NotNil(t, effective)
		assert.Equal(t, nc.ConstraintDefaultOnly, effective.Kind)
	})
}

func TestEffectiveNoConstraints(t *testing.T) {
	resolver := newResolver(t, nil)
	property := gainProperty(nil)

	effective, err := resolver.Effective(property, &devmodel.Object{OID: 3})
	require.NoError(t, err)
	assert.Nil(t, effective)
}

func TestEffectiveUnknownDatatype(t *testing.T) {
	resolver := newResolver(t, nil)
	property := nc.PropertyDescriptor{
		ID:       nc.ElementID{Level: 5, Index: 4},
		Name:     "mystery",
		TypeName: "NcMystery",
	}

	_, err := resolver.Effective(property, nil)
	assert.Error(t, err)
}
