// Package scriptedecu owns one parsed scripted-ECU description and exposes
// the narrow lookup contracts the UDS, J1939, and DoIP responders consult:
// raw-pattern matching, data-by-identifier, seed, and PGN tables.
package scriptedecu

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/LoveWonYoung/ecusim/internal/bridge"
	"github.com/LoveWonYoung/ecusim/internal/pattern"
	"github.com/LoveWonYoung/ecusim/internal/session"
)

// Sender delivers a raw byte payload back out through whichever transport
// owns this ECU (ISO-TP for UDS, a CAN frame for J1939). Satisfied by
// *tplayer.Transport.
type Sender interface {
	Send(data []byte)
}

// Ecu is one scripted ECU: its identifiers, its Raw/PGN tries, its
// DataByIdentifier/Seed tables, and the bridge.Registry backing any
// callable-scripted cell. Literal lookups read tables directly; callable
// invocation always runs under mu, the per-ECU lock. Lock order is
// Ecu -> session.Controller -> Sender; an Ecu never calls back into
// another Ecu's lock from inside a callable.
type Ecu struct {
	cfg Config

	mu          sync.Mutex
	registry    *bridge.Registry
	accumulator *bridge.Accumulator

	rawTrie  *pattern.Trie[ResponseRef]
	pgnTrie  *pattern.Trie[ResponseRef]
	pgnTable map[string]ResponseRef
	pgnCycle map[string]uint32 // normalizedPGNKey -> configured cycleTime, independent of caller's key text
	pgnKeys  []string          // scripted PGN-table keys without '#', in config order

	did            map[string]ResponseRef
	didProgramming map[string]ResponseRef
	didExtended    map[string]ResponseRef
	seeds          map[byte]ResponseRef

	memImage *MemoryImage

	sessions *session.Controller
	sender   Sender
	doip     bridge.DoipHooks

	logger *log.Logger
}

// New builds an Ecu from a parsed Config, indexing the Raw and PGN tables
// into their tries and wiring the bridge.Registry of callables every
// response cell and table may reference via the "@name" ResponseRef form.
func New(cfg Config) (*Ecu, error) {
	e := &Ecu{
		cfg:            cfg,
		rawTrie:        pattern.New[ResponseRef](),
		pgnTrie:        pattern.New[ResponseRef](),
		pgnTable:       make(map[string]ResponseRef),
		pgnCycle:       make(map[string]uint32),
		did:            make(map[string]ResponseRef),
		didProgramming: make(map[string]ResponseRef),
		didExtended:    make(map[string]ResponseRef),
		seeds:          make(map[byte]ResponseRef),
		registry:       bridge.NewRegistry(),
		logger:         log.New(log.Writer(), fmt.Sprintf("scriptedecu[%s]: ", cfg.Name), log.LstdFlags),
	}
	if cfg.CompatGlobalAccumulator {
		e.accumulator = bridge.GlobalAccumulator()
	} else {
		e.accumulator = &bridge.Accumulator{}
	}
	bridge.RegisterBuiltins(e.registry, e.accumulator, e, e, e)

	for k, v := range cfg.Raw {
		if err := e.rawTrie.InsertString(k, ParseResponseRef(v)); err != nil {
			e.logger.Printf("skipping invalid Raw pattern %q: %v", k, err)
		}
	}
	for k, v := range cfg.ReadDataByIdentifier.Default {
		e.did[normalizeHexKey(k)] = ParseResponseRef(v)
	}
	for k, v := range cfg.ReadDataByIdentifier.Programming {
		e.didProgramming[normalizeHexKey(k)] = ParseResponseRef(v)
	}
	for k, v := range cfg.ReadDataByIdentifier.Extended {
		e.didExtended[normalizeHexKey(k)] = ParseResponseRef(v)
	}
	for k, v := range cfg.Seed {
		b, err := decodeHexString(k)
		if err != nil || len(b) != 1 {
			e.logger.Printf("skipping invalid Seed level %q: %v", k, err)
			continue
		}
		e.seeds[b[0]] = ParseResponseRef(v)
	}
	if err := e.loadPGNs(cfg.PGNs); err != nil {
		return nil, err
	}
	if cfg.IntelHexImage != "" {
		img, err := LoadIntelHexFile(cfg.IntelHexImage)
		if err != nil {
			return nil, fmt.Errorf("ecu %s: %w", cfg.Name, err)
		}
		e.memImage = img
		e.registerMemImageCallable()
	}

	return e, nil
}

func (e *Ecu) loadPGNs(pgns map[string]PGNEntry) error {
	for key, entry := range pgns {
		before, payloadPattern, isTree := cutPGNKey(key)
		pgn, err := ParsePGN(before)
		if err != nil {
			e.logger.Printf("skipping invalid PGN key %q: %v", key, err)
			continue
		}

		if isTree {
			pgnBytes := pgnBytesLE(pgn)
			treePattern := encodeHexString(pgnBytes[:]) + " " + payloadPattern
			if err := e.pgnTrie.InsertString(treePattern, ParseResponseRef(entry.Payload)); err != nil {
				e.logger.Printf("skipping invalid PGN tree pattern %q: %v", key, err)
			}
			continue
		}

		e.pgnTable[normalizedPGNKey(pgn)] = ParseResponseRef(entry.Payload)
		e.pgnCycle[normalizedPGNKey(pgn)] = entry.CycleMs
		e.pgnKeys = append(e.pgnKeys, key)
	}
	return nil
}

// cutPGNKey splits a PGNs-table key on its first '#', returning the
// PGN-bytes prefix, the payload pattern (pattern-trie syntax, may itself
// contain XX/*), and whether a '#' was present at all.
func cutPGNKey(key string) (pgnPart, payloadPart string, isTree bool) {
	for i, r := range key {
		if r == '#' {
			return key[:i], key[i+1:], true
		}
	}
	return key, "", false
}

// Name is the configured ECU identifier.
func (e *Ecu) Name() string { return e.cfg.Name }

func (e *Ecu) HasRequestID() bool  { return e.cfg.RequestID != nil }
func (e *Ecu) RequestID() uint32   { return derefOr(e.cfg.RequestID, 0) }
func (e *Ecu) HasResponseID() bool { return e.cfg.ResponseID != nil }
func (e *Ecu) ResponseID() uint32  { return derefOr(e.cfg.ResponseID, 0) }
func (e *Ecu) BroadcastID() uint32 { return derefOr(e.cfg.BroadcastID, DefaultBroadcastID) }

func (e *Ecu) HasJ1939SourceAddress() bool { return e.cfg.J1939SourceAddress != nil }
func (e *Ecu) J1939SourceAddress() byte {
	if e.cfg.J1939SourceAddress == nil {
		return 0
	}
	return byte(*e.cfg.J1939SourceAddress)
}

func (e *Ecu) HasDoIPLogicalAddress() bool { return e.cfg.DoIPLogicalAddress != nil }
func (e *Ecu) DoIPLogicalAddress() uint16 {
	if e.cfg.DoIPLogicalAddress == nil {
		return 0
	}
	return uint16(*e.cfg.DoIPLogicalAddress)
}

func derefOr(v *uint32, def uint32) uint32 {
	if v == nil {
		return def
	}
	return *v
}

// RawResponse resolves payload against the Raw trie, the lookup both the
// UDS responder and the DoIP gateway dispatch through first.
func (e *Ecu) RawResponse(ctx context.Context, payload []byte) ([]byte, bool) {
	ref, ok := e.rawTrie.Lookup(payload)
	if !ok {
		return nil, false
	}
	return e.resolveToBytes(ctx, ref, encodeHexString(payload))
}

// DataByIdentifier implements uds.ScriptedEcu's data_by_identifier.
func (e *Ecu) DataByIdentifier(ctx context.Context, did uint16, sessionVariant string) ([]byte, bool) {
	table := e.did
	switch sessionVariant {
	case "Programming":
		table = e.didProgramming
	case "Extended":
		table = e.didExtended
	}
	key := fmt.Sprintf("%04X", did)
	ref, ok := table[key]
	if !ok {
		return nil, false
	}
	return e.resolveToBytes(ctx, ref, key)
}

// Seed implements uds.ScriptedEcu's seed lookup.
func (e *Ecu) Seed(ctx context.Context, level byte) ([]byte, bool) {
	ref, ok := e.seeds[level]
	if !ok {
		return nil, false
	}
	return e.resolveToBytes(ctx, ref, fmt.Sprintf("%02X", level))
}

// J1939PGNResponse is the tree-form PGN lookup: the key is the 3
// little-endian PGN bytes followed by the payload bytes. Unlike
// RawResponse/DataByIdentifier/Seed, this returns the raw resolved text
// rather than decoded bytes; the J1939 responder still has to inspect the
// text for a '#' responding-PGN prefix or a leading "ACK" marker before
// any hex decoding.
func (e *Ecu) J1939PGNResponse(ctx context.Context, pgn uint32, payload []byte) (string, bool) {
	pgnBytes := pgnBytesLE(pgn)
	key := make([]byte, 0, 3+len(payload))
	key = append(key, pgnBytes[:]...)
	key = append(key, payload...)

	ref, ok := e.pgnTrie.Lookup(key)
	if !ok {
		return "", false
	}
	return ref.Resolve(ctx, e.registry, &e.mu, encodeHexString(key))
}

// J1939PGNData is the key-based cyclic/request-reply PGN lookup. pgnKey
// need not be the exact text a config author wrote: it's parsed and
// renormalized, so a request-PGN lookup built from wire bytes finds the
// same entry a cyclic sender started from config text would. No request
// payload reaches the callable here; only the tree-form J1939PGNResponse
// path threads the payload through.
func (e *Ecu) J1939PGNData(ctx context.Context, pgnKey string) (payload []byte, cycleMs uint32, ok bool) {
	pgn, err := ParsePGN(pgnKey)
	if err != nil {
		return nil, 0, false
	}
	key := normalizedPGNKey(pgn)
	ref, found := e.pgnTable[key]
	if !found {
		return nil, 0, false
	}
	data, ok := e.resolveToBytes(ctx, ref, "")
	if !ok {
		return nil, 0, false
	}
	return data, e.pgnCycle[key], true
}

// CyclicPGNKeys returns the scripted PGN-table keys that didn't contain
// '#'; every one of them gets its own broadcast goroutine.
func (e *Ecu) CyclicPGNKeys() []string {
	return append([]string(nil), e.pgnKeys...)
}

func (e *Ecu) resolveToBytes(ctx context.Context, ref ResponseRef, argHex string) ([]byte, bool) {
	hexResp, ok := ref.Resolve(ctx, e.registry, &e.mu, argHex)
	if !ok {
		return nil, false
	}
	data, err := decodeHexString(hexResp)
	if err != nil {
		e.logger.Printf("scripted response %q decode failed: %v", hexResp, err)
		return nil, false
	}
	return data, true
}

// RegisterSessionController wires the UDS SessionController this ECU's
// getCurrentSession/switchToSession callables act on.
func (e *Ecu) RegisterSessionController(c *session.Controller) { e.sessions = c }

// RegisterSender wires the transport the sendRaw callable pushes frames
// through.
func (e *Ecu) RegisterSender(s Sender) { e.sender = s }

// RegisterDoip wires the gateway the disconnectDoip/
// sendDoipVehicleAnnouncements callables act on.
func (e *Ecu) RegisterDoip(g bridge.DoipHooks) { e.doip = g }

// CurrentSession implements bridge.SessionHooks.
func (e *Ecu) CurrentSession() uint32 {
	if e.sessions == nil {
		return uint32(session.Default)
	}
	return udsSessionIDOf(e.sessions.Current())
}

// SwitchSession implements bridge.SessionHooks.
func (e *Ecu) SwitchSession(_ context.Context, ses uint32) error {
	if e.sessions == nil {
		return errors.New("scriptedecu: no session controller registered")
	}
	level, ok := levelFromUDSSessionID(byte(ses))
	if !ok {
		return fmt.Errorf("scriptedecu: unknown session id 0x%02X", ses)
	}
	e.sessions.SetSession(level)
	return nil
}

// Disconnect implements bridge.DoipHooks.
func (e *Ecu) Disconnect(ctx context.Context) error {
	if e.doip == nil {
		return errors.New("scriptedecu: no DoIP gateway registered")
	}
	return e.doip.Disconnect(ctx)
}

// SendVehicleAnnouncements implements bridge.DoipHooks.
func (e *Ecu) SendVehicleAnnouncements(ctx context.Context) error {
	if e.doip == nil {
		return errors.New("scriptedecu: no DoIP gateway registered")
	}
	return e.doip.SendVehicleAnnouncements(ctx)
}

// SendRaw implements bridge.RawSender.
func (e *Ecu) SendRaw(_ context.Context, hex string) error {
	if e.sender == nil {
		return errors.New("scriptedecu: no sender registered")
	}
	data, err := decodeHexString(hex)
	if err != nil {
		return fmt.Errorf("sendRaw: %w", err)
	}
	e.sender.Send(data)
	return nil
}

// udsSessionIDOf maps a session.Level back to its UDS 0x10 sub-function id.
func udsSessionIDOf(l session.Level) uint32 {
	switch l {
	case session.Programming:
		return 0x02
	case session.Extended:
		return 0x03
	default:
		return 0x01
	}
}

// levelFromUDSSessionID is the inverse of udsSessionIDOf.
func levelFromUDSSessionID(id byte) (session.Level, bool) {
	switch id {
	case 0x01:
		return session.Default, true
	case 0x02:
		return session.Programming, true
	case 0x03:
		return session.Extended, true
	default:
		return session.Default, false
	}
}
