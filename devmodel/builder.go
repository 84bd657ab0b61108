package devmodel

import (
	"context"
	"log/slog"

	"github.com/c360/nccheck/errors"
	"github.com/c360/nccheck/nc"
	"github.com/c360/nccheck/protocol"
)

// Builder constructs the device model by querying the root block and
// recursively descending into its members. Any failed fetch or malformed
// response aborts the whole build: partial device models are never returned,
// since every other check depends on a complete, consistent tree.
type Builder struct {
	client *protocol.Client
	logger *slog.Logger

	// seenOIDs tracks every oid met during one Build, to reject devices
	// reporting the same oid from more than one member descriptor.
	seenOIDs map[int]bool
}

// NewBuilder creates a builder over an open protocol client.
func NewBuilder(client *protocol.Client, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		client: client,
		logger: logger.With("component", "devmodel"),
	}
}

// Build queries the device model from the root block down. Object ids must
// be unique across the whole model and member roles unique among siblings;
// a device violating either yields an error, not a partial tree.
func (b *Builder) Build(ctx context.Context) (*Block, error) {
	b.seenOIDs = make(map[int]bool)
	node, err := b.buildNode(ctx, nc.ClassBlock.Clone(), nc.RootBlockOID, 0, nc.RootBlockRole, nil)
	if err != nil {
		return nil, err
	}
	root, ok := node.(*Block)
	if !ok {
		return nil, errors.New(errors.KindUnableToQueryDeviceModel, "devmodel", "Build",
			"root object oid %d is not a block", nc.RootBlockOID)
	}
	return root, nil
}

func (b *Builder) buildNode(ctx context.Context, classID nc.ClassID, oid, owner int, role string, parentRolePath []string) (Node, error) {
	if b.seenOIDs[oid] {
		return nil, errors.New(errors.KindUnableToQueryDeviceModel, "devmodel", "buildNode",
			"oid %d appears more than once in the device model", oid)
	}
	b.seenOIDs[oid] = true

	rolePath := append(append([]string{}, parentRolePath...), role)

	var runtimeConstraints []nc.Constraint
	if err := b.client.GetPropertyValue(ctx, oid, nc.PropRuntimeConstraints, &runtimeConstraints); err != nil {
		return nil, b.fatal(err, role, "fetch runtime property constraints")
	}

	base := Object{
		ClassID:            classID,
		OID:                oid,
		Owner:              owner,
		Role:               role,
		RolePath:           rolePath,
		RuntimeConstraints: runtimeConstraints,
	}

	switch {
	case classID.IsBlock():
		var members []nc.BlockMemberDescriptor
		if err := b.client.GetPropertyValue(ctx, oid, nc.PropBlockMembers, &members); err != nil {
			return nil, b.fatal(err, role, "fetch block members")
		}

		block := &Block{Object: base, Members: members}
		siblingRoles := make(map[string]bool, len(members))
		for _, member := range members {
			if siblingRoles[member.Role] {
				return nil, errors.New(errors.KindUnableToQueryDeviceModel, "devmodel", "buildNode",
					"block %q has more than one member with role %q", role, member.Role)
			}
			siblingRoles[member.Role] = true

			child, err := b.buildNode(ctx, member.ClassID, member.OID, oid, member.Role, rolePath)
			if err != nil {
				return nil, err
			}
			block.Children = append(block.Children, child)
		}
		b.logger.Debug("built block", "oid", oid, "role", role, "members", len(members))
		return block, nil

	case classID.IsClassManager():
		var classList []nc.ClassDescriptor
		if err := b.client.GetPropertyValue(ctx, oid, nc.PropControlClasses, &classList); err != nil {
			return nil, b.fatal(err, role, "fetch control classes")
		}
		var datatypeList []nc.DatatypeDescriptor
		if err := b.client.GetPropertyValue(ctx, oid, nc.PropDatatypes, &datatypeList); err != nil {
			return nil, b.fatal(err, role, "fetch datatypes")
		}
		if len(classList) == 0 || len(datatypeList) == 0 {
			return nil, errors.New(errors.KindUnableToQueryDeviceModel, "devmodel", "buildNode",
				"class manager %q reported empty descriptor tables", role)
		}

		classes := make(map[string]nc.ClassDescriptor, len(classList))
		for _, descriptor := range classList {
			classes[descriptor.ClassID.String()] = descriptor
		}
		datatypes := make(map[string]nc.DatatypeDescriptor, len(datatypeList))
		for _, descriptor := range datatypeList {
			if err := descriptor.Validate(); err != nil {
				return nil, b.fatal(err, role, "validate datatype descriptor")
			}
			datatypes[descriptor.Name] = descriptor
		}

		b.logger.Debug("built class manager", "oid", oid,
			"classes", len(classes), "datatypes", len(datatypes))
		return &ClassManager{
			Manager:   Manager{Object: base},
			Classes:   classes,
			Datatypes: datatypes,
		}, nil

	case classID.IsManager():
		return &Manager{Object: base}, nil

	default:
		obj := base
		return &obj, nil
	}
}

func (b *Builder) fatal(err error, role, action string) error {
	return errors.WrapKind(errors.KindUnableToQueryDeviceModel, err, "devmodel", "buildNode",
		action+" for "+role)
}

// FindManager locates the singleton manager deriving from classID in the
// root block. Zero matches, multiple matches, or a manager owned by anything
// but the root block are reported as failures.
func FindManager(root *Block, classID nc.ClassID) (Node, error) {
	members := root.FindByClassID(classID, true, true)
	if len(members) == 0 {
		return nil, errors.WrapKind(errors.KindUnableToQueryDeviceModel, errors.ErrMemberNotFound,
			"devmodel", "FindManager", "locate manager "+classID.String())
	}
	if len(members) > 1 {
		return nil, errors.New(errors.KindUnableToQueryDeviceModel, "devmodel", "FindManager",
			"manager %s must be a singleton, found %d instances", classID, len(members))
	}
	manager := members[0]
	if manager.Base().Owner != root.OID {
		return nil, errors.New(errors.KindUnableToQueryDeviceModel, "devmodel", "FindManager",
			"manager %s must be owned by the root block, owner is oid %d",
			classID, manager.Base().Owner)
	}
	return manager, nil
}
