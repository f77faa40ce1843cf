package j1939

import "testing"

func TestCanIDRoundTripPDU2Broadcast(t *testing.T) {
	// PGN 0xFEF5 (broadcast/PDU2, PF=0xFE >= 0xF0) from source address 0x11.
	pgn := uint32(0x00FEF5)
	id := canIDForPGN(pgn, 0x11, BroadcastAddress)

	gotPGN, gotSA, gotDA := pgnFromCANID(id)
	if gotPGN != pgn {
		t.Fatalf("got PGN %#x, want %#x", gotPGN, pgn)
	}
	if gotSA != 0x11 {
		t.Fatalf("got source address %#x, want 0x11", gotSA)
	}
	if gotDA != BroadcastAddress {
		t.Fatalf("got dest address %#x, want broadcast", gotDA)
	}
}

func TestCanIDRoundTripPDU1DestinationSpecific(t *testing.T) {
	// PGN 0x00EA00 (RequestPGN, PDU1, PF=0xEA < 0xF0) targeted at 0x22.
	id := canIDForPGN(RequestPGN, 0x05, 0x22)

	gotPGN, gotSA, gotDA := pgnFromCANID(id)
	if gotPGN != RequestPGN {
		t.Fatalf("got PGN %#x, want %#x", gotPGN, RequestPGN)
	}
	if gotSA != 0x05 {
		t.Fatalf("got source address %#x, want 0x05", gotSA)
	}
	if gotDA != 0x22 {
		t.Fatalf("got dest address %#x, want 0x22", gotDA)
	}
}

func TestCanIDPriorityBits(t *testing.T) {
	id := canIDForPGN(RequestPGN, 0x00, 0x00)
	priority := byte(id >> 26 & 0x07)
	if priority != DefaultPriority {
		t.Fatalf("got priority %d, want %d", priority, DefaultPriority)
	}
}
