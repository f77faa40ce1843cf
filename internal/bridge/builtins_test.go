package bridge

import (
	"context"
	"testing"
)

func TestAscii(t *testing.T) {
	got := Ascii("Hi")
	want := " 48 69 "
	if got != want {
		t.Fatalf("Ascii(%q) = %q, want %q", "Hi", got, want)
	}
	if Ascii("") != "" {
		t.Fatalf("Ascii(\"\") should be empty")
	}
}

func TestGetCounterByte(t *testing.T) {
	got, err := GetCounterByte("22 01 F1 90")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "01" {
		t.Fatalf("got %q, want %q", got, "01")
	}
}

func TestGetDataBytesAndCreateHash(t *testing.T) {
	acc := &Accumulator{}
	if err := GetDataBytes(acc, "22 F1 90 01 02"); err != nil {
		t.Fatalf("GetDataBytes: %v", err)
	}
	hash, err := CreateHash(acc)
	if err != nil {
		t.Fatalf("CreateHash: %v", err)
	}
	if len(hash)%2 != 0 {
		t.Fatalf("hash %q should have even length", hash)
	}
	if acc.TakeHex() != "" {
		t.Fatalf("accumulator should be reset after CreateHash")
	}
}

func TestToByteResponse(t *testing.T) {
	cases := []struct {
		value  uint32
		length int
		want   string
	}{
		{13248, 2, "33 C0"},
		{13248, 3, "00 33 C0"},
		{13248, 1, "C0"},
		{13248, 8, "00 00 00 00 00 00 33 C0"},
	}
	for _, c := range cases {
		got := ToByteResponse(c.value, c.length)
		if got != c.want {
			t.Errorf("ToByteResponse(%d, %d) = %q, want %q", c.value, c.length, got, c.want)
		}
	}
}

func TestRegistryCallUnknown(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Call(context.Background(), "nope", ""); err == nil {
		t.Fatalf("expected error for unknown callable")
	}
}

func TestRegisterBuiltinsAscii(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltins(reg, &Accumulator{}, nil, nil, nil)
	got, err := reg.Call(context.Background(), "ascii", "Hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != " 48 69 " {
		t.Fatalf("got %q", got)
	}
	if reg.Has("getCurrentSession") {
		t.Fatalf("getCurrentSession should not be registered without SessionHooks")
	}
}

func TestRegisterBuiltinsToByteResponse(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltins(reg, &Accumulator{}, nil, nil, nil)
	got, err := reg.Call(context.Background(), "toByteResponse", "13248,2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "33 C0" {
		t.Fatalf("got %q, want %q", got, "33 C0")
	}
}
