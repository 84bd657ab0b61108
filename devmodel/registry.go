package devmodel

import (
	"github.com/c360/nccheck/errors"
	"github.com/c360/nccheck/nc"
)

// ClassManager is the device's class manager together with the class and
// datatype descriptor tables retrieved from it. The tables are immutable
// after construction; inheritance resolution returns merged copies.
type ClassManager struct {
	Manager
	Classes   map[string]nc.ClassDescriptor
	Datatypes map[string]nc.DatatypeDescriptor
}

// GetControlClass returns the descriptor for classID. With includeInherited,
// ancestor properties, methods and events are concatenated onto the leaf
// descriptor, most-derived first; trailing authority-key elements are skipped
// when walking the prefix chain.
func (cm *ClassManager) GetControlClass(classID nc.ClassID, includeInherited bool) (nc.ClassDescriptor, error) {
	descriptor, ok := cm.Classes[classID.String()]
	if !ok {
		return nc.ClassDescriptor{}, errors.Wrap(errors.ErrUnknownClass, "devmodel", "GetControlClass",
			"lookup class "+classID.String())
	}
	if !includeInherited {
		return descriptor, nil
	}

	merged := descriptor
	merged.Properties = append([]nc.PropertyDescriptor{}, descriptor.Properties...)
	merged.Methods = append([]nc.MethodDescriptor{}, descriptor.Methods...)
	merged.Events = append([]nc.EventDescriptor{}, descriptor.Events...)

	for parent := classID.Parent(); len(parent) > 0; parent = parent.Parent() {
		if parent[len(parent)-1] <= 0 {
			// Authority key element, not a class level.
			continue
		}
		ancestor, ok := cm.Classes[parent.String()]
		if !ok {
			return nc.ClassDescriptor{}, errors.Wrap(errors.ErrUnknownClass, "devmodel", "GetControlClass",
				"lookup ancestor class "+parent.String())
		}
		merged.Properties = append(merged.Properties, ancestor.Properties...)
		merged.Methods = append(merged.Methods, ancestor.Methods...)
		merged.Events = append(merged.Events, ancestor.Events...)
	}
	return merged, nil
}

// GetDatatype returns the descriptor for name. With includeInherited, a
// Struct descriptor accumulates ancestor fields along its parentType chain;
// Primitive, Typedef and Enum descriptors are returned as-is regardless of
// the flag.
func (cm *ClassManager) GetDatatype(name string, includeInherited bool) (nc.DatatypeDescriptor, error) {
	descriptor, ok := cm.Datatypes[name]
	if !ok {
		return nc.DatatypeDescriptor{}, errors.Wrap(errors.ErrUnknownDatatype, "devmodel", "GetDatatype",
			"lookup datatype "+name)
	}
	if !includeInherited || descriptor.Kind != nc.KindStruct {
		return descriptor, nil
	}

	merged := descriptor
	merged.Fields = append([]nc.FieldDescriptor{}, descriptor.Fields...)

	current := descriptor
	for current.ParentType != "" {
		parent, ok := cm.Datatypes[current.ParentType]
		if !ok {
			return nc.DatatypeDescriptor{}, errors.Wrap(errors.ErrUnknownDatatype, "devmodel", "GetDatatype",
				"lookup parent datatype "+current.ParentType)
		}
		merged.Fields = append(merged.Fields, parent.Fields...)
		current = parent
	}
	return merged, nil
}

// ResolveDatatype follows the parentType chain until it reaches a terminal
// datatype (one with no parent), returning that datatype's name. Used to
// decide legal constraint shapes for a property's type.
func (cm *ClassManager) ResolveDatatype(name string) (string, error) {
	current, ok := cm.Datatypes[name]
	if !ok {
		return "", errors.Wrap(errors.ErrUnknownDatatype, "devmodel", "ResolveDatatype",
			"lookup datatype "+name)
	}
	for current.ParentType != "" {
		next, ok := cm.Datatypes[current.ParentType]
		if !ok {
			return "", errors.Wrap(errors.ErrUnknownDatatype, "devmodel", "ResolveDatatype",
				"lookup parent datatype "+current.ParentType)
		}
		current = next
	}
	return current.Name, nil
}
