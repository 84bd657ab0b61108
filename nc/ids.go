package nc

import (
	"fmt"
	"strconv"
	"strings"
)

// ElementID identifies a property, method or event within a class hierarchy.
// The level is the depth of the defining class, the index is the element's
// position at that level. Comparable, so usable as a map key.
type ElementID struct {
	Level int `json:"level"`
	Index int `json:"index"`
}

func (e ElementID) String() string {
	return fmt.Sprintf("%dp%d", e.Level, e.Index)
}

// ClassID identifies an object class. A prefix denotes the base class;
// non-positive entries mark a vendor authority key.
type ClassID []int

func (c ClassID) String() string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

// Equal reports whether two class ids are identical.
func (c ClassID) Equal(other ClassID) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a leading sub-sequence of c. Used for
// derived-class matching.
func (c ClassID) HasPrefix(prefix ClassID) bool {
	if len(prefix) > len(c) {
		return false
	}
	for i := range prefix {
		if c[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Base returns the standard base class id: the leading run of positive
// elements, stopping at the first authority key.
func (c ClassID) Base() ClassID {
	base := ClassID{}
	for _, v := range c {
		if v <= 0 {
			break
		}
		base = append(base, v)
	}
	return base
}

// IsNonStandard reports whether the class id contains a vendor authority key
// followed by at least one further element.
func (c ClassID) IsNonStandard() bool {
	trailing := 0
	seenKey := false
	for _, v := range c {
		if seenKey {
			trailing++
			continue
		}
		if v <= 0 {
			seenKey = true
			trailing++
		}
	}
	return trailing > 1
}

// IsBlock reports whether the class derives from NcBlock.
func (c ClassID) IsBlock() bool {
	return len(c) > 1 && c[0] == 1 && c[1] == 1
}

// IsManager reports whether the class derives from NcManager.
func (c ClassID) IsManager() bool {
	return len(c) > 1 && c[0] == 1 && c[1] == 3
}

// IsClassManager reports whether the class derives from NcClassManager.
func (c ClassID) IsClassManager() bool {
	return len(c) > 2 && c[0] == 1 && c[1] == 3 && c[2] == 2
}

// Parent returns the class id with the trailing element removed, or nil for a
// root class. Authority keys are retained; callers skip non-positive tails.
func (c ClassID) Parent() ClassID {
	if len(c) <= 1 {
		return nil
	}
	parent := make(ClassID, len(c)-1)
	copy(parent, c[:len(c)-1])
	return parent
}

// Clone returns an independent copy.
func (c ClassID) Clone() ClassID {
	out := make(ClassID, len(c))
	copy(out, c)
	return out
}

// Standard class ids from MS-05-02.
var (
	ClassObject        = ClassID{1}
	ClassBlock         = ClassID{1, 1}
	ClassWorker        = ClassID{1, 2}
	ClassManagerBase   = ClassID{1, 3}
	ClassDeviceManager = ClassID{1, 3, 1}
	ClassClassManager  = ClassID{1, 3, 2}
)

// RootBlockOID is the fixed oid of the root block.
const RootBlockOID = 1

// RootBlockRole is the fixed role of the root block.
const RootBlockRole = "root"

// NcObject properties.
var (
	PropClassID            = ElementID{1, 1}
	PropOID                = ElementID{1, 2}
	PropConstantOID        = ElementID{1, 3}
	PropOwner              = ElementID{1, 4}
	PropRole               = ElementID{1, 5}
	PropUserLabel          = ElementID{1, 6}
	PropTouchpoints        = ElementID{1, 7}
	PropRuntimeConstraints = ElementID{1, 8}
)

// NcObject methods.
var (
	MethodGenericGet         = ElementID{1, 1}
	MethodGenericSet         = ElementID{1, 2}
	MethodGetSequenceItem    = ElementID{1, 3}
	MethodSetSequenceItem    = ElementID{1, 4}
	MethodAddSequenceItem    = ElementID{1, 5}
	MethodRemoveSequenceItem = ElementID{1, 6}
	MethodGetSequenceLength  = ElementID{1, 7}
)

// EventPropertyChanged is the NcObject property-changed event.
var EventPropertyChanged = ElementID{1, 1}

// NcBlock properties and methods.
var (
	PropBlockEnabled = ElementID{2, 1}
	PropBlockMembers = ElementID{2, 2}

	MethodGetMemberDescriptors = ElementID{2, 1}
	MethodFindMembersByPath    = ElementID{2, 2}
	MethodFindMembersByRole    = ElementID{2, 3}
	MethodFindMembersByClassID = ElementID{2, 4}
)

// NcClassManager properties and methods.
var (
	PropControlClasses = ElementID{3, 1}
	PropDatatypes      = ElementID{3, 2}

	MethodGetControlClass = ElementID{3, 1}
	MethodGetDatatype     = ElementID{3, 2}
)

// PropNcVersion is the NcDeviceManager version property.
var PropNcVersion = ElementID{3, 1}
