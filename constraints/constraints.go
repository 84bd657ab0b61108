// Package constraints computes the effective value constraint for a property
// by resolving the three-level override hierarchy: datatype-level, then
// property-level, then per-instance runtime constraints. Overrides must fully
// replace the fields of the level below and must never widen them.
package constraints

import (
	"github.com/c360/nccheck/devmodel"
	"github.com/c360/nccheck/errors"
	"github.com/c360/nccheck/nc"
)

// Level identifies where in the hierarchy a constraint was defined.
type Level int

const (
	// LevelDatatype is the constraint carried by the property's datatype.
	LevelDatatype Level = iota
	// LevelProperty is the constraint on the property descriptor itself.
	LevelProperty
	// LevelRuntime is the per-instance runtime constraint.
	LevelRuntime
)

func (l Level) String() string {
	switch l {
	case LevelDatatype:
		return "datatype"
	case LevelProperty:
		return "property"
	case LevelRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Resolver resolves effective constraints against one device's descriptor
// tables.
type Resolver struct {
	classManager *devmodel.ClassManager
}

// NewResolver creates a resolver over the device's class manager.
func NewResolver(classManager *devmodel.ClassManager) *Resolver {
	return &Resolver{classManager: classManager}
}

// Effective computes the effective constraint for property on object: the
// highest defined level wins, absent levels fall through, and a property with
// no constraints at any level resolves to nil. Before resolving, every
// present pair of levels is checked for full-override and no-widening rules,
// and every present constraint is checked for compatibility with the
// property's resolved datatype. Resolution is pure: calling it twice without
// intervening writes yields an identical result.
func (r *Resolver) Effective(property nc.PropertyDescriptor, object *devmodel.Object) (*nc.Constraint, error) {
	var datatypeConstraint *nc.Constraint
	if property.TypeName != "" {
		descriptor, err := r.classManager.GetDatatype(property.TypeName, false)
		if err != nil {
			return nil, err
		}
		datatypeConstraint = descriptor.Constraints
	}

	propertyConstraint := property.Constraints

	var runtimeConstraint *nc.Constraint
	if object != nil {
		runtimeConstraint = object.RuntimeConstraintFor(property.ID)
	}

	levels := []struct {
		level      Level
		constraint *nc.Constraint
	}{
		{LevelDatatype, datatypeConstraint},
		{LevelProperty, propertyConstraint},
		{LevelRuntime, runtimeConstraint},
	}

	// Pairwise override checks between every present lower/higher pair.
	for i := 0; i < len(levels); i++ {
		if levels[i].constraint == nil {
			continue
		}
		for j := i + 1; j < len(levels); j++ {
			if levels[j].constraint == nil {
				continue
			}
			if err := checkOverride(levels[i].level, levels[i].constraint,
				levels[j].level, levels[j].constraint, property); err != nil {
				return nil, err
			}
		}
	}

	// Shape compatibility with the resolved datatype, for every present level.
	for _, entry := range levels {
		if entry.constraint == nil {
			continue
		}
		if err := r.checkTypeCompatibility(entry.level, entry.constraint, property); err != nil {
			return nil, err
		}
	}

	// Highest defined level wins.
	for i := len(levels) - 1; i >= 0; i-- {
		if levels[i].constraint != nil {
			effective := *levels[i].constraint
			return &effective, nil
		}
	}
	return nil, nil
}

// checkOverride verifies that higher fully overrides lower without widening.
func checkOverride(lowerLevel Level, lower *nc.Constraint, higherLevel Level, higher *nc.Constraint, property nc.PropertyDescriptor) error {
	if lower.Kind == nc.ConstraintDefaultOnly || higher.Kind == nc.ConstraintDefaultOnly {
		return nil
	}

	if lower.Kind != higher.Kind {
		return wideningError(lowerLevel, higherLevel, property,
			"cannot override a %s constraint with a %s constraint", lower.Kind, higher.Kind)
	}

	switch lower.Kind {
	case nc.ConstraintNumber:
		if (lower.Minimum != nil && higher.Minimum == nil) ||
			(lower.Maximum != nil && higher.Maximum == nil) ||
			(lower.Step != nil && higher.Step == nil) {
			return wideningError(lowerLevel, higherLevel, property,
				"constraints must fully override the previous level: %s overridden by %s",
				lower, higher)
		}
		if (lower.Minimum != nil && *higher.Minimum < *lower.Minimum) ||
			(lower.Maximum != nil && *higher.Maximum > *lower.Maximum) ||
			(lower.Step != nil && *higher.Step < *lower.Step) {
			return wideningError(lowerLevel, higherLevel, property,
				"override must not widen minimum, maximum or step: %s overridden by %s",
				lower, higher)
		}

	case nc.ConstraintString:
		if (lower.MaxCharacters != nil && higher.MaxCharacters == nil) ||
			(lower.Pattern != nil && higher.Pattern == nil) {
			return wideningError(lowerLevel, higherLevel, property,
				"constraints must fully override the previous level: %s overridden by %s",
				lower, higher)
		}
		if lower.MaxCharacters != nil && *higher.MaxCharacters > *lower.MaxCharacters {
			return wideningError(lowerLevel, higherLevel, property,
				"override must not widen maxCharacters: %s overridden by %s", lower, higher)
		}
		// A formally correct regex-containment check is out of reach here;
		// rule of thumb is that a shorter pattern is less constraining than a
		// longer one.
		if lower.Pattern != nil && len(*higher.Pattern) < len(*lower.Pattern) {
			return wideningError(lowerLevel, higherLevel, property,
				"override must not widen pattern: %s overridden by %s", lower, higher)
		}
	}
	return nil
}

func wideningError(lowerLevel Level, higherLevel Level, property nc.PropertyDescriptor, format string, args ...any) error {
	prefix := "property " + property.Name + " (" + property.ID.String() + "): " +
		lowerLevel.String() + " constraints overridden by " + higherLevel.String() + " constraints: "
	return errors.New(errors.KindConstraintWideningViolation, "constraints", "Effective",
		prefix+format, args...)
}

// checkTypeCompatibility rejects a number-shaped constraint on any type that
// does not resolve to a numeric primitive, and a string-shaped constraint on
// anything but NcString.
func (r *Resolver) checkTypeCompatibility(level Level, constraint *nc.Constraint, property nc.PropertyDescriptor) error {
	if constraint.Kind == nc.ConstraintDefaultOnly || property.TypeName == "" {
		return nil
	}

	resolved, err := r.classManager.ResolveDatatype(property.TypeName)
	if err != nil {
		return err
	}

	switch constraint.Kind {
	case nc.ConstraintNumber:
		if !nc.IsNumericPrimitive(resolved) {
			return errors.New(errors.KindIncompatibleConstraintType, "constraints", "Effective",
				"property %s (%s): %s resolves to %s which cannot be constrained by a %s-level number constraint",
				property.Name, property.ID, property.TypeName, resolved, level)
		}
	case nc.ConstraintString:
		if resolved != "NcString" {
			return errors.New(errors.KindIncompatibleConstraintType, "constraints", "Effective",
				"property %s (%s): %s resolves to %s which cannot be constrained by a %s-level string constraint",
				property.Name, property.ID, property.TypeName, resolved, level)
		}
	}
	return nil
}
