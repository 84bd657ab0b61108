package protocol

import (
	"context"
	"encoding/json"

	"github.com/c360/nccheck/errors"
	"github.com/c360/nccheck/nc"
)

// Generic object operations, each a thin wrapper over Send pairing a standard
// method id with its argument map. Error method results come back as values;
// use ResultError to convert an unexpected one.

// ResultError converts an error method result into a classified
// RemoteMethodError. Returns nil for success results.
func ResultError(result nc.MethodResult, operation string) error {
	if result.OK() {
		return nil
	}
	return errors.New(errors.KindRemoteMethodError, "protocol", operation,
		"remote status %s: %s", result.Status, result.ErrorMessage)
}

// GetProperty reads a property value.
func (c *Client) GetProperty(ctx context.Context, oid int, propertyID nc.ElementID) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodGenericGet, map[string]any{"id": propertyID})
}

// SetProperty writes a property value.
func (c *Client) SetProperty(ctx context.Context, oid int, propertyID nc.ElementID, value any) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodGenericSet, map[string]any{"id": propertyID, "value": value})
}

// GetSequenceItem reads one item of a sequence property.
func (c *Client) GetSequenceItem(ctx context.Context, oid int, propertyID nc.ElementID, index int) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodGetSequenceItem, map[string]any{"id": propertyID, "index": index})
}

// SetSequenceItem replaces one item of a sequence property.
func (c *Client) SetSequenceItem(ctx context.Context, oid int, propertyID nc.ElementID, index int, value any) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodSetSequenceItem,
		map[string]any{"id": propertyID, "index": index, "value": value})
}

// AddSequenceItem appends an item to a sequence property.
func (c *Client) AddSequenceItem(ctx context.Context, oid int, propertyID nc.ElementID, value any) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodAddSequenceItem, map[string]any{"id": propertyID, "value": value})
}

// RemoveSequenceItem removes one item of a sequence property.
func (c *Client) RemoveSequenceItem(ctx context.Context, oid int, propertyID nc.ElementID, index int) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodRemoveSequenceItem, map[string]any{"id": propertyID, "index": index})
}

// GetSequenceLength reads the length of a sequence property.
func (c *Client) GetSequenceLength(ctx context.Context, oid int, propertyID nc.ElementID) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodGetSequenceLength, map[string]any{"id": propertyID})
}

// InvokeMethod calls an arbitrary method with raw arguments.
func (c *Client) InvokeMethod(ctx context.Context, oid int, methodID nc.ElementID, arguments map[string]any) (nc.MethodResult, error) {
	return c.Send(ctx, oid, methodID, arguments)
}

// GetMemberDescriptors queries a block for its member descriptors.
func (c *Client) GetMemberDescriptors(ctx context.Context, oid int, recurse bool) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodGetMemberDescriptors, map[string]any{"recurse": recurse})
}

// FindMembersByPath queries a block's members by role path.
func (c *Client) FindMembersByPath(ctx context.Context, oid int, path []string) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodFindMembersByPath, map[string]any{"path": path})
}

// FindMembersByRole queries a block's members by role.
func (c *Client) FindMembersByRole(ctx context.Context, oid int, role string, caseSensitive, matchWholeString, recurse bool) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodFindMembersByRole, map[string]any{
		"role":             role,
		"caseSensitive":    caseSensitive,
		"matchWholeString": matchWholeString,
		"recurse":          recurse,
	})
}

// FindMembersByClassID queries a block's members by class id.
func (c *Client) FindMembersByClassID(ctx context.Context, oid int, classID nc.ClassID, includeDerived, recurse bool) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodFindMembersByClassID, map[string]any{
		"classId":        classID,
		"includeDerived": includeDerived,
		"recurse":        recurse,
	})
}

// GetControlClass queries the Class Manager for a class descriptor.
func (c *Client) GetControlClass(ctx context.Context, oid int, classID nc.ClassID, includeInherited bool) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodGetControlClass, map[string]any{
		"classId":          classID,
		"includeInherited": includeInherited,
	})
}

// GetDatatype queries the Class Manager for a datatype descriptor.
func (c *Client) GetDatatype(ctx context.Context, oid int, name string, includeInherited bool) (nc.MethodResult, error) {
	return c.Send(ctx, oid, nc.MethodGetDatatype, map[string]any{
		"name":             name,
		"includeInherited": includeInherited,
	})
}

// GetPropertyValue reads a property and decodes a successful value into out.
// An error method result becomes a RemoteMethodError.
func (c *Client) GetPropertyValue(ctx context.Context, oid int, propertyID nc.ElementID, out any) error {
	result, err := c.GetProperty(ctx, oid, propertyID)
	if err != nil {
		return err
	}
	if err := ResultError(result, "GetProperty"); err != nil {
		return err
	}
	if out == nil || len(result.Value) == 0 || string(result.Value) == "null" {
		return nil
	}
	if err := json.Unmarshal(result.Value, out); err != nil {
		return errors.WrapKind(errors.KindProtocolError, err, "protocol", "GetPropertyValue",
			"decode property value")
	}
	return nil
}
