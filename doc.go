// Package nccheck is a conformance checker for NMOS device control: it
// connects to a device's IS-12 control endpoint, introspects the MS-05-02
// device model and verifies the behaviours the specifications require,
// including the BCP-008 status monitoring rules.
//
// # Architecture
//
// A run flows top-down through three layers:
//
//	┌─────────────────────────────────────┐
//	│             Session                 │  One run: connection,
//	│   (dial, device model, caches)      │  lazy caches, reports
//	└─────────────────────────────────────┘
//	           ↓ drives
//	┌─────────────────────────────────────┐
//	│              Checks                 │  devmodel, constraints,
//	│  (model walk, schemas, statusmon)   │  schema, statusmon
//	└─────────────────────────────────────┘
//	           ↓ speak via
//	┌─────────────────────────────────────┐
//	│             Protocol                │  IS-12 framing, commands,
//	│    (transport, protocol, eventlog)  │  notification capture
//	└─────────────────────────────────────┘
//
// # Packages
//
//   - nc: wire-level types shared everywhere (class ids, element ids,
//     message frames, descriptors, constraints)
//   - transport: the raw WebSocket connection
//   - protocol: the IS-12 command/response client over a transport
//   - eventlog: bounded capture of property-changed notifications
//   - devmodel: recursive device model introspection and member queries
//   - schema: JSON Schema generation from the device's own datatypes
//   - constraints: the three-level constraint override hierarchy
//   - statusmon: the BCP-008 sender and receiver monitor rule set
//   - connapi: the IS-05 client used to activate monitored resources
//   - session: one connected run tying the layers together
//   - config: YAML configuration for the nccheck command
//
// The nccheck command under cmd/ is the entry point for a full run.
package nccheck
