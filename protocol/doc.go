// Package protocol implements the IS-12 control-protocol client. Commands are
// framed with unique 1..65535 handles and matched against command responses
// by a dedicated receive loop; notifications are pushed to the event log on a
// structurally separate path so they are drained even while a command is in
// flight. Every inbound message is validated against its message-type JSON
// Schema before it is accepted.
package protocol
