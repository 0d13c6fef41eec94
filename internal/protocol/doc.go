// Package protocol implements the OPQ packet: a fixed 56-byte big-endian
// header followed by a type-dependent payload, an additive checksum, and a
// base64 transport encoding for text channels.
//
// A Packet is a mutable value owned by a single writer. Build it, call
// SetChecksum, then hand the TransportString to a transport. Decoding never
// validates the header, length, or checksum; callers that care compare
// Checksum against ComputeChecksum themselves.
package protocol
