// Package l1packets owns Layer 1 (Packets) of the scanner data model.
//
// Responsibilities: serial byte-stream ingestion, frame header
// synchronisation, the sensor startup handshake, and low-level sample
// decoding. This layer produces RawFrame values consumed by L2 (Frames).
//
// Dependency rule: L1 has no inward dependencies on higher layers.
package l1packets
