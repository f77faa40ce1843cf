// Package j1939 implements the SAE J1939 responder: request-PGN and
// acknowledgement handling, tree-form scripted PGN responses, and cyclic
// broadcast senders.
package j1939

// DefaultPriority is the J1939 priority field this simulator stamps on every
// frame it originates; there is no scripted knob for it.
const DefaultPriority byte = 6

// BroadcastAddress is the J1939 global destination address.
const BroadcastAddress byte = 0xFF

// Reserved PGNs, J1939-21 §5.4.
const (
	RequestPGN         uint32 = 0xEA00
	AcknowledgementPGN uint32 = 0xE800
)

// pduFormatBoundary is the PF value (240) at and above which the frame is
// PDU2 (broadcast, PS is a group extension that's part of the PGN); below
// it, PDU1 (destination-specific, PS in the CAN ID carries the destination
// address and is not part of the PGN value itself).
const pduFormatBoundary = 0xF0

// canIDForPGN packs a PGN, source address, and destination address (ignored
// for PDU2/broadcast PGNs) into a 29-bit J1939 CAN identifier, per SAE
// J1939-21's frame layout: priority(3) | reserved(1) | DP(1) | PF(8) |
// PS(8) | SA(8), with the reserved bit left zero. The packing lives here because internal/candriver only deals in
// raw CAN_RAW frames; there is no native CAN_J1939 socket underneath to do
// it for us.
func canIDForPGN(pgn uint32, sourceAddress, destAddress byte) uint32 {
	dp := byte((pgn >> 16) & 0x01)
	pf := byte(pgn >> 8)
	ps := byte(pgn)
	if pf < pduFormatBoundary {
		ps = destAddress
	}
	return uint32(DefaultPriority&0x07)<<26 |
		uint32(dp)<<24 |
		uint32(pf)<<16 |
		uint32(ps)<<8 |
		uint32(sourceAddress)
}

// pgnFromCANID is the inverse of canIDForPGN: it recovers the PGN, the
// frame's source address, and (for PDU1/destination-specific PGNs) the
// destination address (BroadcastAddress for PDU2/broadcast PGNs).
func pgnFromCANID(canID uint32) (pgn uint32, sourceAddress, destAddress byte) {
	sourceAddress = byte(canID)
	ps := byte(canID >> 8)
	pf := byte(canID >> 16)
	dp := byte((canID >> 24) & 0x01)

	if pf < pduFormatBoundary {
		destAddress = ps
		pgn = uint32(dp)<<16 | uint32(pf)<<8
	} else {
		destAddress = BroadcastAddress
		pgn = uint32(dp)<<16 | uint32(pf)<<8 | uint32(ps)
	}
	return pgn, sourceAddress, destAddress
}
