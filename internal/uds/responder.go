package uds

import (
	"context"
	"log"

	"github.com/LoveWonYoung/ecusim/internal/session"
)

// ScriptedEcu is the subset of internal/scriptedecu.Ecu the responder needs:
// Raw-trie lookup, data-by-identifier lookup, and seed lookup. Declared here
// (rather than imported) so internal/scriptedecu never has to import this
// package — scriptedecu.Ecu satisfies it structurally.
type ScriptedEcu interface {
	RawResponse(ctx context.Context, payload []byte) (response []byte, ok bool)
	DataByIdentifier(ctx context.Context, did uint16, sessionVariant string) (data []byte, ok bool)
	Seed(ctx context.Context, level byte) (seed []byte, ok bool)
}

// Sender delivers a complete UDS response payload back through the ISO-TP
// transport (internal/tplayer.Transport.Send, or a fake in tests).
type Sender interface {
	Send(data []byte)
}

// Responder is the per-ECU UDS service-dispatch state machine (C4). Inputs
// are complete ISO-TP payloads; outputs are complete payloads pushed to
// Sender. Not safe for concurrent Handle calls — one responder serves one
// ISO-TP receive loop.
type Responder struct {
	ecu      ScriptedEcu
	sender   Sender
	sessions *session.Controller
	security *SecurityAccess

	logger *log.Logger
}

// NewResponder builds a Responder for one scripted ECU.
func NewResponder(ecu ScriptedEcu, sender Sender, sessions *session.Controller) *Responder {
	return &Responder{
		ecu:      ecu,
		sender:   sender,
		sessions: sessions,
		security: NewSecurityAccess(),
		logger:   log.New(log.Writer(), "uds: ", log.LstdFlags),
	}
}

// Handle dispatches one complete incoming UDS payload: Raw-trie match
// first, then SID branching.
func (r *Responder) Handle(ctx context.Context, req []byte) {
	if len(req) == 0 {
		return
	}

	if resp, ok := r.ecu.RawResponse(ctx, req); ok && len(resp) > 0 {
		r.sender.Send(resp)
		r.sessions.Reset()
		return
	}

	sid := req[0]
	switch sid {
	case SIDReadDataByIdentifier:
		r.handleReadDataByIdentifier(ctx, req)
	case SIDDiagnosticSessionControl:
		r.handleDiagnosticSessionControl(req)
	case SIDSecurityAccess:
		r.handleSecurityAccess(ctx, req)
	case SIDTesterPresent:
		r.sender.Send([]byte{positiveOf(SIDTesterPresent), 0x00})
	default:
		r.sender.Send(NegativeResponse(sid, NRCServiceNotSupported))
	}
}

func (r *Responder) sessionVariant() string {
	switch r.sessions.Current() {
	case session.Programming:
		return "Programming"
	case session.Extended:
		return "Extended"
	default:
		return ""
	}
}

func (r *Responder) handleReadDataByIdentifier(ctx context.Context, req []byte) {
	parsed, err := ParseReadDataByIdentifierRequest(req)
	if err != nil {
		r.sender.Send(NegativeResponse(SIDReadDataByIdentifier, NRCIncorrectMessageLength))
		return
	}

	data, ok := r.ecu.DataByIdentifier(ctx, parsed.DataIdentifier, r.sessionVariant())
	if !ok || len(data) == 0 {
		r.sender.Send(NegativeResponse(SIDReadDataByIdentifier, NRCServiceNotSupported))
		return
	}

	resp := make([]byte, 0, 3+len(data))
	resp = append(resp, positiveOf(SIDReadDataByIdentifier), req[1], req[2])
	resp = append(resp, data...)
	r.sender.Send(resp)
	r.sessions.Reset()
}

func (r *Responder) handleDiagnosticSessionControl(req []byte) {
	if len(req) < 2 {
		r.sender.Send(NegativeResponse(SIDDiagnosticSessionControl, NRCIncorrectMessageLength))
		return
	}
	sessionID := req[1]
	switch sessionID {
	case 0x01:
		r.sessions.SetSession(session.Default)
	case 0x02:
		r.sessions.SetSession(session.Programming)
	case 0x03:
		r.sessions.SetSession(session.Extended)
	default:
		r.logger.Printf("invalid session id 0x%02X", sessionID)
	}
	r.sender.Send([]byte{positiveOf(SIDDiagnosticSessionControl), sessionID})
}

func (r *Responder) handleSecurityAccess(ctx context.Context, req []byte) {
	if len(req) < 2 {
		r.sender.Send(NegativeResponse(SIDSecurityAccess, NRCIncorrectMessageLength))
		return
	}
	sf := req[1]
	resp, err := r.security.Handle(sf, func(level byte) ([]byte, bool) {
		return r.ecu.Seed(ctx, level)
	})
	if err != nil {
		r.logger.Printf("security access seed generation failed: %v", err)
		r.sender.Send(NegativeResponse(SIDSecurityAccess, NRCConditionsNotCorrect))
		return
	}
	// Only the Raw-trie match and 0x22 rearm the session timer;
	// SecurityAccess success doesn't.
	r.sender.Send(resp)
}
