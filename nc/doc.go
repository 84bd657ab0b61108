// Package nc defines the MS-05-02 object-model vocabulary shared by the rest
// of the engine: element and class identities, method status codes, message
// envelopes for the IS-12 wire protocol, and the class/datatype descriptor
// types retrieved from a device's Class Manager.
//
// Descriptors are plain values decoded from JSON. DatatypeDescriptor is a
// tagged union discriminated by Kind, computed once when the descriptor is
// decoded, so downstream code never has to sniff for key presence.
package nc
