package j1939

import (
	"context"
	"sync"
	"time"
)

// Cyclic-sender retry policy: up to 5 back-to-back retries spaced 50ms
// apart when a send fails.
const (
	maxSendRetries = 5
	retrySpacing   = 50 * time.Millisecond
)

// StartCyclicSenders launches one broadcast goroutine per scripted PGN key
// that didn't contain '#', registering each with wg so the caller can wait
// for clean shutdown.
func (r *Responder) StartCyclicSenders(ctx context.Context, wg *sync.WaitGroup) {
	for _, key := range r.ecu.CyclicPGNKeys() {
		wg.Add(1)
		key := key
		go func() {
			defer wg.Done()
			r.runCyclicSender(ctx, key)
		}()
	}
}

// runCyclicSender is the per-PGN broadcast loop: fetch {payload, cycle_ms};
// exit if not cyclic; send (with retry) if the bus looks active; sleep
// cycle_ms; repeat until ctx is cancelled.
func (r *Responder) runCyclicSender(ctx context.Context, pgnKey string) {
	pgn, err := ParsePGN(pgnKey)
	if err != nil {
		r.logger.Printf("cyclic sender: invalid PGN key %q: %v", pgnKey, err)
		return
	}

	for {
		payload, cycleMs, ok := r.ecu.J1939PGNData(ctx, pgnKey)
		if !ok {
			return
		}
		if cycleMs == 0 {
			return
		}

		if r.bus == nil || r.bus.Active() {
			r.sendCyclicWithRetry(pgn, payload)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(cycleMs) * time.Millisecond):
		}
	}
}

// sendCyclicWithRetry attempts the broadcast up to maxSendRetries times,
// spaced retrySpacing apart. Any failed attempt counts as retryable:
// candriver.CANDriver.Write surfaces send failures as plain errors, so a
// would-block condition is not distinguishable from other transient
// faults here.
func (r *Responder) sendCyclicWithRetry(pgn uint32, payload []byte) {
	if !r.ecu.HasJ1939SourceAddress() {
		return
	}
	canID := canIDForPGN(pgn, r.ecu.J1939SourceAddress(), BroadcastAddress)

	for attempt := 0; attempt < maxSendRetries; attempt++ {
		if err := r.writer.Write(int32(canID), payload); err != nil {
			r.logger.Printf("cyclic PGN %#x send attempt %d: %v", pgn, attempt+1, err)
			time.Sleep(retrySpacing)
			continue
		}
		return
	}
}
