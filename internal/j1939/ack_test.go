package j1939

import (
	"bytes"
	"testing"
)

func TestAssembleACKDefaults(t *testing.T) {
	got := assembleACK(nil, 0x22, 0x00FEF5)
	want := []byte{0x00, 0x00, 0xFF, 0xFF, 0x22, 0xF5, 0xFE, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}
}

func TestAssembleACKExplicitControlBytes(t *testing.T) {
	got := assembleACK([]byte{0x01, 0x02}, 0x33, 0x00CAFE)
	want := []byte{0x01, 0x02, 0xFF, 0xFF, 0x33, 0xFE, 0xCA, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}
}
