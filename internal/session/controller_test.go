package session

import (
	"testing"
	"time"
)

func TestControllerStartsInDefault(t *testing.T) {
	c := NewController(50 * time.Millisecond)
	if c.Current() != Default {
		t.Fatalf("got %v, want Default", c.Current())
	}
}

func TestControllerSetSession(t *testing.T) {
	c := NewController(50 * time.Millisecond)
	c.SetSession(Extended)
	if c.Current() != Extended {
		t.Fatalf("got %v, want Extended", c.Current())
	}
}

func TestControllerExpiresToDefault(t *testing.T) {
	c := NewController(20 * time.Millisecond)
	c.SetSession(Programming)
	time.Sleep(60 * time.Millisecond)
	if c.Current() != Default {
		t.Fatalf("got %v, want Default after expiry", c.Current())
	}
}

func TestControllerResetExtendsDeadline(t *testing.T) {
	c := NewController(40 * time.Millisecond)
	c.SetSession(Extended)

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		time.Sleep(15 * time.Millisecond)
		c.Reset()
	}
	if c.Current() != Extended {
		t.Fatalf("got %v, want Extended to survive repeated Reset", c.Current())
	}

	time.Sleep(70 * time.Millisecond)
	if c.Current() != Default {
		t.Fatalf("got %v, want Default once Reset stops", c.Current())
	}
}

func TestControllerResetNoopInDefault(t *testing.T) {
	c := NewController(20 * time.Millisecond)
	c.Reset()
	if c.Current() != Default {
		t.Fatalf("Reset in Default must not change session")
	}
}
