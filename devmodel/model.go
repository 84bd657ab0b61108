// Package devmodel materializes the device under test's object tree by
// recursive remote introspection, and answers the MS-05 member queries over
// the built tree. Once built, the tree is read-only and safe to share.
package devmodel

import (
	"strings"

	"github.com/c360/nccheck/nc"
)

// Node is one live object in the device model tree.
type Node interface {
	// Base returns the common object state shared by all node kinds.
	Base() *Object
}

// Object is a plain control object instance.
type Object struct {
	ClassID nc.ClassID
	OID     int
	// Owner is the oid of the containing block, 0 for the root block.
	Owner int
	Role  string
	// RolePath is the ordered role list from the root block, root included.
	RolePath           []string
	RuntimeConstraints []nc.Constraint
}

// Base implements Node.
func (o *Object) Base() *Object { return o }

// RolePathString renders the role path in the "a/b/c" form used in reports.
func (o *Object) RolePathString() string {
	return strings.Join(o.RolePath, "/")
}

// RuntimeConstraintFor returns the runtime constraint entry matching the
// property id, or nil.
func (o *Object) RuntimeConstraintFor(propertyID nc.ElementID) *nc.Constraint {
	for i := range o.RuntimeConstraints {
		rc := &o.RuntimeConstraints[i]
		if rc.PropertyID != nil && *rc.PropertyID == propertyID {
			return rc
		}
	}
	return nil
}

// Manager is a singleton service object owned by the root block.
type Manager struct {
	Object
}

// Block is a container object owning child objects, possibly nested.
type Block struct {
	Object
	Members  []nc.BlockMemberDescriptor
	Children []Node
}

// MemberDescriptors returns the block's member descriptors, recursing into
// nested blocks when asked. Results are in tree order: a block's own members
// first, then each child block's members in membership order.
func (b *Block) MemberDescriptors(recurse bool) []nc.BlockMemberDescriptor {
	out := make([]nc.BlockMemberDescriptor, 0, len(b.Members))
	out = append(out, b.Members...)
	if recurse {
		for _, child := range b.Children {
			if childBlock, ok := child.(*Block); ok {
				out = append(out, childBlock.MemberDescriptors(true)...)
			}
		}
	}
	return out
}

// FindByPath descends the tree role by role. An unmatched segment yields nil.
// The path is relative to this block (it does not include this block's role).
func (b *Block) FindByPath(path []string) Node {
	if len(path) == 0 {
		return nil
	}
	for _, child := range b.Children {
		if child.Base().Role != path[0] {
			continue
		}
		if len(path) == 1 {
			return child
		}
		if childBlock, ok := child.(*Block); ok {
			return childBlock.FindByPath(path[1:])
		}
		return nil
	}
	return nil
}

// FindByRole returns children whose role matches, by substring or whole
// string, case folded or not, recursing when asked. Tree traversal order is
// preserved.
func (b *Block) FindByRole(role string, caseSensitive, matchWholeString, recurse bool) []Node {
	match := func(query, candidate string) bool {
		if !caseSensitive {
			query = strings.ToLower(query)
			candidate = strings.ToLower(candidate)
		}
		if matchWholeString {
			return query == candidate
		}
		return strings.Contains(candidate, query)
	}

	var out []Node
	for _, child := range b.Children {
		if match(role, child.Base().Role) {
			out = append(out, child)
		}
		if recurse {
			if childBlock, ok := child.(*Block); ok {
				out = append(out, childBlock.FindByRole(role, caseSensitive, matchWholeString, true)...)
			}
		}
	}
	return out
}

// FindByClassID returns children whose class id matches exactly, or by prefix
// when includeDerived is set. Tree traversal order is preserved.
func (b *Block) FindByClassID(classID nc.ClassID, includeDerived, recurse bool) []Node {
	match := func(candidate nc.ClassID) bool {
		if includeDerived {
			return candidate.HasPrefix(classID)
		}
		return candidate.Equal(classID)
	}

	var out []Node
	for _, child := range b.Children {
		if match(child.Base().ClassID) {
			out = append(out, child)
		}
		if recurse {
			if childBlock, ok := child.(*Block); ok {
				out = append(out, childBlock.FindByClassID(classID, includeDerived, true)...)
			}
		}
	}
	return out
}

// RolePaths returns the role paths of every descendant, relative to this
// block, in tree order.
func (b *Block) RolePaths() [][]string {
	var out [][]string
	for _, child := range b.Children {
		out = append(out, []string{child.Base().Role})
		if childBlock, ok := child.(*Block); ok {
			for _, childPath := range childBlock.RolePaths() {
				out = append(out, append([]string{child.Base().Role}, childPath...))
			}
		}
	}
	return out
}

// OIDs returns the oids of this block and every descendant, in tree order.
func (b *Block) OIDs() []int {
	out := []int{b.OID}
	for _, child := range b.Children {
		if childBlock, ok := child.(*Block); ok {
			out = append(out, childBlock.OIDs()...)
		} else {
			out = append(out, child.Base().OID)
		}
	}
	return out
}

// Walk visits this block and every descendant in tree order (parent before
// children, children in membership order).
func (b *Block) Walk(visit func(Node)) {
	visit(b)
	for _, child := range b.Children {
		if childBlock, ok := child.(*Block); ok {
			childBlock.Walk(visit)
		} else {
			visit(child)
		}
	}
}
