// Package protocol reads and writes AMF remoting envelopes.
//
// Ownership boundary:
// - envelope framing (version, header and body records)
// - value decoding is delegated to a Deserializer (amf0 by default)
// - the AMF3 message unwrap for Flex clients
package protocol
