package bridge

import "sync"

// Accumulator collects the data bytes of successive requests for
// CreateHash to checksum. Each ECU gets its own Accumulator by default so
// one ECU's traffic can't pollute another's hash; scripts tuned against a
// single shared buffer can opt into globalAccumulator via the
// compatGlobalAccumulator config flag.
type Accumulator struct {
	mu  sync.Mutex
	hex string
}

// Append adds a cleaned hex-byte string (no whitespace) to the buffer.
func (a *Accumulator) Append(hex string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hex += hex
}

// TakeHex returns the accumulated hex string and clears the buffer; each
// hash consumes everything gathered since the last one.
func (a *Accumulator) TakeHex() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	hex := a.hex
	a.hex = ""
	return hex
}

// globalAccumulator backs CompatGlobalAccumulator mode, where every
// scripted ECU shares one buffer.
var globalAccumulator = &Accumulator{}

// GlobalAccumulator returns the shared accumulator used in compatibility mode.
func GlobalAccumulator() *Accumulator {
	return globalAccumulator
}
