package devmodel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nccheck/eventlog"
	"github.com/c360/nccheck/nc"
	"github.com/c360/nccheck/protocol"
	"github.com/c360/nccheck/testutil"
	"github.com/c360/nccheck/transport"
)

func dialBuilder(t *testing.T, url string) *Builder {
	t.Helper()

	conn, err := transport.Dial(context.Background(), url, transport.Options{})
	require.NoError(t, err)

	client, err := protocol.NewClient(conn, eventlog.New(), protocol.Options{ResponseTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewBuilder(client, nil)
}

func baseProperties(role string) map[nc.ElementID]any {
	return map[nc.ElementID]any{
		nc.PropRole:               role,
		nc.PropRuntimeConstraints: []nc.Constraint{},
	}
}

func cannedClasses() []nc.ClassDescriptor {
	return []nc.ClassDescriptor{
		{ClassID: nc.ClassID{1}, Name: "NcObject", Properties: []nc.PropertyDescriptor{
			{ID: nc.ElementID{Level: 1, Index: 5}, Name: "role", TypeName: "NcString"},
		}},
		{ClassID: nc.ClassID{1, 1}, Name: "NcBlock"},
		{ClassID: nc.ClassID{1, 2}, Name: "NcWorker"},
	}
}

func cannedDatatypes() []nc.DatatypeDescriptor {
	return []nc.DatatypeDescriptor{
		{Name: "NcString", Kind: nc.KindPrimitive},
		{Name: "NcInt32", Kind: nc.KindPrimitive},
		{Name: "NcBoolean", Kind: nc.KindPrimitive},
	}
}

// newDeviceNode scripts a node with a root block owning a device manager, a
// class manager and a nested block holding one worker.
func newDeviceNode(t *testing.T) *testutil.MockNode {
	t.Helper()
	node := testutil.NewMockNode()
	t.Cleanup(node.Close)

	rootProps := baseProperties(nc.RootBlockRole)
	rootProps[nc.PropBlockMembers] = []nc.BlockMemberDescriptor{
		{Role: "DeviceManager", OID: 2, ClassID: nc.ClassDeviceManager, Owner: 1, ConstantOID: true},
		{Role: "ClassManager", OID: 3, ClassID: nc.ClassClassManager, Owner: 1, ConstantOID: true},
		{Role: "processing", OID: 10, ClassID: nc.ClassBlock, Owner: 1},
	}
	node.Add(&testutil.MockObject{
		OID: nc.RootBlockOID, ClassID: nc.ClassBlock, Role: nc.RootBlockRole,
		Properties: rootProps,
	})

	node.Add(&testutil.MockObject{
		OID: 2, ClassID: nc.ClassDeviceManager, Role: "DeviceManager",
		Properties: baseProperties("DeviceManager"),
	})

	cmProps := baseProperties("ClassManager")
	cmProps[nc.PropControlClasses] = cannedClasses()
	cmProps[nc.PropDatatypes] = cannedDatatypes()
	node.Add(&testutil.MockObject{
		OID: 3, ClassID: nc.ClassClassManager, Role: "ClassManager",
		Properties: cmProps,
	})

	processingProps := baseProperties("processing")
	processingProps[nc.PropBlockMembers] = []nc.BlockMemberDescriptor{
		{Role: "gain", OID: 11, ClassID: nc.ClassWorker, Owner: 10},
	}
	node.Add(&testutil.MockObject{
		OID: 10, ClassID: nc.ClassBlock, Role: "processing",
		Properties: processingProps,
	})

	node.Add(&testutil.MockObject{
		OID: 11, ClassID: nc.ClassWorker, Role: "gain",
		Properties: baseProperties("gain"),
	})

	return node
}

func TestBuildDeviceModel(t *testing.T) {
	node := newDeviceNode(t)
	builder := dialBuilder(t, node.URL())

	root, err := builder.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, nc.RootBlockOID, root.OID)
	assert.Equal(t, nc.RootBlockRole, root.Role)
	assert.Equal(t, []int{1, 2, 3, 10, 11}, root.OIDs())

	worker := root.FindByPath([]string{"processing", "gain"})
	require.NotNil(t, worker)
	assert.Equal(t, 11, worker.Base().OID)
	assert.Equal(t, 10, worker.Base().Owner)
	assert.Equal(t, "root/processing/gain", worker.Base().RolePathString())

	cmNode := root.FindByPath([]string{"ClassManager"})
	require.NotNil(t, cmNode)
	cm, ok := cmNode.(*ClassManager)
	require.True(t, ok)
	assert.Len(t, cm.Classes, 3)
	assert.Len(t, cm.Datatypes, 3)
	assert.Contains(t, cm.Datatypes, "NcString")
}

func TestBuildEmptyDescriptorTables(t *testing.T) {
	node := testutil.NewMockNode()
	t.Cleanup(node.Close)

	rootProps := baseProperties(nc.RootBlockRole)
	rootProps[nc.PropBlockMembers] = []nc.BlockMemberDescriptor{
		{Role: "ClassManager", OID: 3, ClassID: nc.ClassClassManager, Owner: 1},
	}
	node.Add(&testutil.MockObject{
		OID: nc.RootBlockOID, ClassID: nc.ClassBlock, Role: nc.RootBlockRole,
		Properties: rootProps,
	})

	cmProps := baseProperties("ClassManager")
	cmProps[nc.PropControlClasses] = []nc.ClassDescriptor{}
	cmProps[nc.PropDatatypes] = []nc.DatatypeDescriptor{}
	node.Add(&testutil.MockObject{
		OID: 3, ClassID: nc.ClassClassManager, Role: "ClassManager",
		Properties: cmProps,
	})

	builder := dialBuilder(t, node.URL())
	_, err := builder.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty descriptor tables")
}

func TestBuildMissingMember(t *testing.T) {
	node := testutil.NewMockNode()
	t.Cleanup(node.Close)

	rootProps := baseProperties(nc.RootBlockRole)
	rootProps[nc.PropBlockMembers] = []nc.BlockMemberDescriptor{
		{Role: "ghost", OID: 99, ClassID: nc.ClassWorker, Owner: 1},
	}
	node.Add(&testutil.MockObject{
		OID: nc.RootBlockOID, ClassID: nc.ClassBlock, Role: nc.RootBlockRole,
		Properties: rootProps,
	})

	builder := dialBuilder(t, node.URL())
	_, err := builder.Build(context.Background())
	assert.Error(t, err)
}

func TestBuildDuplicateOID(t *testing.T) {
	node := testutil.NewMockNode()
	t.Cleanup(node.Close)

	rootProps := baseProperties(nc.RootBlockRole)
	rootProps[nc.PropBlockMembers] = []nc.BlockMemberDescriptor{
		{Role: "gain", OID: 11, ClassID: nc.ClassWorker, Owner: 1},
		{Role: "trim", OID: 11, ClassID: nc.ClassWorker, Owner: 1},
	}
	node.Add(&testutil.MockObject{
		OID: nc.RootBlockOID, ClassID: nc.ClassBlock, Role: nc.RootBlockRole,
		Properties: rootProps,
	})
	node.Add(&testutil.MockObject{
		OID: 11, ClassID: nc.ClassWorker, Role: "gain",
		Properties: baseProperties("gain"),
	})

	builder := dialBuilder(t, node.URL())
	_, err := builder.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
	assert.Contains(t, err.Error(), "11")
}

func TestBuildDuplicateSiblingRoles(t *testing.T) {
	node := testutil.NewMockNode()
	t.Cleanup(node.Close)

	rootProps := baseProperties(nc.RootBlockRole)
	rootProps[nc.PropBlockMembers] = []nc.BlockMemberDescriptor{
		{Role: "gain", OID: 11, ClassID: nc.ClassWorker, Owner: 1},
		{Role: "gain", OID: 12, ClassID: nc.ClassWorker, Owner: 1},
	}
	node.Add(&testutil.MockObject{
		OID: nc.RootBlockOID, ClassID: nc.ClassBlock, Role: nc.RootBlockRole,
		Properties: rootProps,
	})
	node.Add(&testutil.MockObject{
		OID: 11, ClassID: nc.ClassWorker, Role: "gain",
		Properties: baseProperties("gain"),
	})
	node.Add(&testutil.MockObject{
		OID: 12, ClassID: nc.ClassWorker, Role: "gain",
		Properties: baseProperties("gain"),
	})

	builder := dialBuilder(t, node.URL())
	_, err := builder.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `role "gain"`)
}

func TestFindManager(t *testing.T) {
	node := newDeviceNode(t)
	builder := dialBuilder(t, node.URL())
	root, err := builder.Build(context.Background())
	require.NoError(t, err)

	t.Run("singleton manager found", func(t *testing.T) {
		manager, err := FindManager(root, nc.ClassDeviceManager)
		require.NoError(t, err)
		assert.Equal(t, 2, manager.Base().OID)
	})

	t.Run("absent manager", func(t *testing.T) {
		_, err := FindManager(root, nc.ClassID{1, 3, 9})
		assert.Error(t, err)
	})

	t.Run("manager owned below the root block", func(t *testing.T) {
		nested := &Manager{Object: Object{
			ClassID: nc.ClassClassManager.Clone(), OID: 30, Owner: 10, Role: "DeepManager",
		}}
		deep := testTree()
		deep.Children[1].(*Block).Children = append(deep.Children[1].(*Block).Children, nested)
		_, err := FindManager(deep, nc.ClassClassManager)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "owned by the root block")
	})

	t.Run("duplicate manager", func(t *testing.T) {
		dup := testTree()
		second := &Manager{Object: Object{
			ClassID: nc.ClassDeviceManager.Clone(), OID: 31, Owner: 1, Role: "DeviceManager2",
		}}
		dup.Children = append(dup.Children, second)
		_, err := FindManager(dup, nc.ClassDeviceManager)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "singleton")
	})
}
