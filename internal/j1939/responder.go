package j1939

import (
	"context"
	"log"
	"strings"

	"github.com/LoveWonYoung/ecusim/internal/candriver"
)

// ScriptedEcu is the subset of internal/scriptedecu.Ecu the responder needs.
// Declared locally (rather than imported) for the same reason
// internal/uds.ScriptedEcu is: scriptedecu.Ecu satisfies it structurally,
// and internal/j1939 never has to import internal/scriptedecu.
type ScriptedEcu interface {
	HasJ1939SourceAddress() bool
	J1939SourceAddress() byte
	J1939PGNResponse(ctx context.Context, pgn uint32, payload []byte) (response string, ok bool)
	J1939PGNData(ctx context.Context, pgnKey string) (payload []byte, cycleMs uint32, ok bool)
	CyclicPGNKeys() []string
}

// FrameWriter sends one raw CAN frame onto the bus; satisfied by
// candriver.CANDriver.Write.
type FrameWriter interface {
	Write(id int32, data []byte) error
}

// Responder is the per-ECU J1939 receive/respond state machine (C5). One
// Responder processes every frame from a shared candriver.RxFanout
// subscription and owns its ECU's cyclic broadcast senders.
type Responder struct {
	ecu    ScriptedEcu
	writer FrameWriter
	bus    *BusMonitor

	logger *log.Logger
}

// NewResponder builds a Responder for one scripted ECU's J1939 traffic.
func NewResponder(ecu ScriptedEcu, writer FrameWriter, bus *BusMonitor) *Responder {
	return &Responder{
		ecu:    ecu,
		writer: writer,
		bus:    bus,
		logger: log.New(log.Writer(), "j1939: ", log.LstdFlags),
	}
}

// Run consumes frames from rx until ctx is cancelled or rx is closed,
// dispatching each one to HandleFrame. One receiver goroutine runs per
// ECU with J1939 configured.
func (r *Responder) Run(ctx context.Context, rx <-chan candriver.UnifiedCANMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-rx:
			if !ok {
				return
			}
			r.HandleFrame(ctx, msg)
		}
	}
}

// HandleFrame dispatches one received frame: a scripted PGN match
// (tree-form, ACK, or reused-PGN literal) takes priority; absent a match,
// an incoming request-for-PGN (0xEA00) is answered from the key-based PGN
// table.
func (r *Responder) HandleFrame(ctx context.Context, msg candriver.UnifiedCANMessage) {
	pgn, sourceAddress, _ := pgnFromCANID(msg.ID)
	payload := msg.Data[:payloadLen(msg)]

	if resp, respondingPGN, ok := r.scriptedResponse(ctx, pgn, payload, sourceAddress); ok {
		r.send(respondingPGN, sourceAddress, resp)
		return
	}

	if pgn == RequestPGN {
		r.handleRequestForPGN(ctx, payload, sourceAddress)
	}
}

// scriptedResponse resolves the PGN trie match for one incoming frame and
// decodes it into one of the three response shapes: "pgn#payload" names
// the responding PGN, a leading "ACK" synthesizes an acknowledgement, and
// anything else is a literal payload sent back under the incoming PGN.
func (r *Responder) scriptedResponse(ctx context.Context, pgn uint32, payload []byte, sourceAddress byte) (resp []byte, respondingPGN uint32, ok bool) {
	text, found := r.ecu.J1939PGNResponse(ctx, pgn, payload)
	if !found || text == "" {
		return nil, 0, false
	}

	if idx := strings.IndexByte(text, '#'); idx >= 0 {
		respondingPGN, err := ParsePGN(text[:idx])
		if err != nil {
			r.logger.Printf("scripted PGN response %q: invalid responding PGN: %v", text, err)
			return nil, 0, false
		}
		decoded, err := decodeHexString(text[idx+1:])
		if err != nil {
			r.logger.Printf("scripted PGN response %q: invalid payload: %v", text, err)
			return nil, 0, false
		}
		return decoded, respondingPGN, true
	}

	if strings.HasPrefix(text, ackPrefix) {
		ackInfo, err := decodeHexString(text[len(ackPrefix):])
		if err != nil {
			r.logger.Printf("scripted ACK response %q: invalid control bytes: %v", text, err)
			ackInfo = nil
		}
		return assembleACK(ackInfo, sourceAddress, pgn), AcknowledgementPGN, true
	}

	decoded, err := decodeHexString(text)
	if err != nil {
		r.logger.Printf("scripted PGN response %q: invalid literal payload: %v", text, err)
		return nil, 0, false
	}
	return decoded, pgn, true
}

// handleRequestForPGN answers an incoming request-for-PGN: parse the
// requested PGN out of the request payload and reply with its key-based
// table entry under the requested PGN itself.
func (r *Responder) handleRequestForPGN(ctx context.Context, payload []byte, sourceAddress byte) {
	requested, err := ParsePGN(encodeHexString(payload))
	if err != nil {
		r.logger.Printf("request-for-PGN: invalid requested PGN payload %v: %v", payload, err)
		return
	}
	data, _, ok := r.ecu.J1939PGNData(ctx, pgnKeyText(requested))
	if !ok {
		return
	}
	r.send(requested, sourceAddress, data)
}

func (r *Responder) send(pgn uint32, destAddress byte, payload []byte) {
	if !r.ecu.HasJ1939SourceAddress() {
		return
	}
	canID := canIDForPGN(pgn, r.ecu.J1939SourceAddress(), destAddress)
	if err := r.writer.Write(int32(canID), payload); err != nil {
		r.logger.Printf("send PGN %#x: %v", pgn, err)
	}
}

// pgnKeyText renders a numeric PGN as a key internal/scriptedecu.Ecu's
// J1939PGNData can ParsePGN itself back into the same value, regardless of
// whether the config author originally wrote it as decimal or hex.
func pgnKeyText(pgn uint32) string {
	b := pgnBytesLE(pgn)
	return encodeHexString(b[:])
}

// payloadLen resolves the byte length of msg's payload via
// candriver.DLCToDataLen; J1939 single-frame payloads never exceed 8 bytes
// in practice, but a shared bus may also carry CAN-FD traffic this must not
// truncate.
func payloadLen(msg candriver.UnifiedCANMessage) int {
	return candriver.DLCToDataLen(msg.DLC)
}
