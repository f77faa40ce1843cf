package candriver

import "testing"

func TestDataLenToDLC(t *testing.T) {
	cases := map[int]byte{
		0: 0, 1: 1, 8: 8, 9: 9, 12: 9, 13: 10, 16: 10, 17: 11, 20: 11,
		21: 12, 24: 12, 25: 13, 32: 13, 33: 14, 48: 14, 49: 15, 64: 15,
	}
	for length, want := range cases {
		if got := DataLenToDLC(length); got != want {
			t.Fatalf("DataLenToDLC(%d) = %d, want %d", length, got, want)
		}
	}
}

func TestDLCToDataLen(t *testing.T) {
	cases := map[byte]int{
		0: 0, 8: 8, 9: 12, 10: 16, 11: 20, 12: 24, 13: 32, 14: 48, 15: 64,
	}
	for dlc, want := range cases {
		if got := DLCToDataLen(dlc); got != want {
			t.Fatalf("DLCToDataLen(%d) = %d, want %d", dlc, got, want)
		}
	}
}

func TestDLCRoundTripsThroughDataLen(t *testing.T) {
	for dlc := byte(0); dlc <= 15; dlc++ {
		length := DLCToDataLen(dlc)
		if got := DataLenToDLC(length); got != dlc {
			t.Fatalf("DataLenToDLC(DLCToDataLen(%d)) = %d, want %d", dlc, got, dlc)
		}
	}
}
