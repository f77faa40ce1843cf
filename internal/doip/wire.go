// Package doip implements the server-side subset of the DoIP (ISO 13400-2)
// wire protocol the gateway needs: generic-header framing,
// routing-activation accept, diagnostic-message pack/unpack, diagnostic
// ACK/NACK, and vehicle announcement.
package doip

import (
	"encoding/binary"
	"errors"
)

const (
	protocolVersion        byte = 0x02 // DoIP ISO 13400-2:2012
	inverseProtocolVersion byte = ^protocolVersion
	headerLength                = 8
)

// PayloadType identifies a DoIP message (ISO 13400-2 Table 12).
type PayloadType uint16

const (
	PayloadGenericNACK          PayloadType = 0x0000
	PayloadVehicleIdentRequest  PayloadType = 0x0001
	PayloadVehicleAnnouncement  PayloadType = 0x0004
	PayloadRoutingActivationReq PayloadType = 0x0005
	PayloadRoutingActivationRes PayloadType = 0x0006
	PayloadAliveCheckRequest    PayloadType = 0x0007
	PayloadAliveCheckResponse   PayloadType = 0x0008
	PayloadDiagnosticMessage    PayloadType = 0x8001
	PayloadDiagnosticMessageAck PayloadType = 0x8002
	PayloadDiagnosticMessageNak PayloadType = 0x8003
)

// Generic DoIP header NACK codes, Table 14.
const (
	HeaderIncorrectPattern  byte = 0x00
	HeaderUnknownPayload    byte = 0x01
	HeaderMessageTooLarge   byte = 0x02
	HeaderOutOfMemory       byte = 0x03
	HeaderInvalidPayloadLen byte = 0x04
)

// Routing activation response codes, Table 25.
const (
	RoutingDenied   byte = 0x06
	RoutingAccepted byte = 0x10
)

// Diagnostic-message ACK/NACK codes.
const (
	DiagAckPositive       byte = 0x00
	DiagNackUnknownTarget byte = 0x03
)

var (
	ErrHeaderTooShort     = errors.New("doip: header shorter than 8 bytes")
	ErrBadProtocolVersion = errors.New("doip: protocol version / inverse mismatch")
	ErrPayloadTruncated   = errors.New("doip: payload shorter than the message requires")
)

// Header is the decoded 8-byte generic DoIP header.
type Header struct {
	PayloadType   PayloadType
	PayloadLength uint32
}

// DecodeHeader parses the fixed 8-byte generic header at the front of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < headerLength {
		return Header{}, ErrHeaderTooShort
	}
	if b[0] != protocolVersion || b[1] != inverseProtocolVersion {
		return Header{}, ErrBadProtocolVersion
	}
	return Header{
		PayloadType:   PayloadType(binary.BigEndian.Uint16(b[2:4])),
		PayloadLength: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

func encodeHeader(pt PayloadType, payloadLen int) []byte {
	buf := make([]byte, headerLength)
	buf[0] = protocolVersion
	buf[1] = inverseProtocolVersion
	binary.BigEndian.PutUint16(buf[2:4], uint16(pt))
	binary.BigEndian.PutUint32(buf[4:8], uint32(payloadLen))
	return buf
}

func encodeMessage(pt PayloadType, payload []byte) []byte {
	return append(encodeHeader(pt, len(payload)), payload...)
}

// RoutingActivationRequest is what a tester sends to open a diagnostic
// session; the 4-byte std-reserved and optional 4-byte OEM-reserved
// trailers are accepted but not inspected, since there is no
// activation-type gating here.
type RoutingActivationRequest struct {
	SourceAddress  uint16
	ActivationType byte
}

// UnpackRoutingActivationRequest parses the 7- or 11-byte payload.
func UnpackRoutingActivationRequest(b []byte) (RoutingActivationRequest, error) {
	if len(b) != 7 && len(b) != 11 {
		return RoutingActivationRequest{}, ErrPayloadTruncated
	}
	return RoutingActivationRequest{
		SourceAddress:  binary.BigEndian.Uint16(b[0:2]),
		ActivationType: b[2],
	}, nil
}

// PackRoutingActivationResponse builds the gateway's reply: tester address,
// the gateway's own logical address, and the Table 25 result code. The
// 4-byte std-reserved trailer is left zero; ecusim never sets the OEM
// trailer since it has no OEM-specific routing rules to report.
func PackRoutingActivationResponse(testerAddress, gatewayLogicalAddress uint16, code byte) []byte {
	payload := make([]byte, 9)
	binary.BigEndian.PutUint16(payload[0:2], testerAddress)
	binary.BigEndian.PutUint16(payload[2:4], gatewayLogicalAddress)
	payload[4] = code
	return encodeMessage(PayloadRoutingActivationRes, payload)
}

// DiagnosticMessage carries a UDS payload between a tester and one scripted
// ECU, addressed by logical address in both directions.
type DiagnosticMessage struct {
	SourceAddress uint16
	TargetAddress uint16
	UserData      []byte
}

// UnpackDiagnosticMessage parses a diagnostic-message payload.
func UnpackDiagnosticMessage(b []byte) (DiagnosticMessage, error) {
	if len(b) < 4 {
		return DiagnosticMessage{}, ErrPayloadTruncated
	}
	return DiagnosticMessage{
		SourceAddress: binary.BigEndian.Uint16(b[0:2]),
		TargetAddress: binary.BigEndian.Uint16(b[2:4]),
		UserData:      append([]byte(nil), b[4:]...),
	}, nil
}

// PackDiagnosticMessage builds a diagnostic-message payload, used to carry
// a scripted ECU's UDS response back to the tester.
func PackDiagnosticMessage(sourceAddress, targetAddress uint16, userData []byte) []byte {
	payload := make([]byte, 4+len(userData))
	binary.BigEndian.PutUint16(payload[0:2], sourceAddress)
	binary.BigEndian.PutUint16(payload[2:4], targetAddress)
	copy(payload[4:], userData)
	return encodeMessage(PayloadDiagnosticMessage, payload)
}

// PackDiagnosticAck builds the positive/negative diagnostic-message
// acknowledgement sent immediately on receipt, before the scripted ECU's
// response follows as a separate diagnostic message. previewByte echoes
// the first byte of the triggering request, zero if the request was empty.
func PackDiagnosticAck(sourceAddress, targetAddress uint16, positive bool, code, previewByte byte) []byte {
	pt := PayloadDiagnosticMessageAck
	if !positive {
		pt = PayloadDiagnosticMessageNak
	}
	payload := make([]byte, 6)
	binary.BigEndian.PutUint16(payload[0:2], sourceAddress)
	binary.BigEndian.PutUint16(payload[2:4], targetAddress)
	payload[4] = code
	payload[5] = previewByte
	return encodeMessage(pt, payload)
}

// PackGenericNACK builds a generic-header NACK (Table 14), sent when the
// header itself is malformed rather than any particular payload.
func PackGenericNACK(code byte) []byte {
	return encodeMessage(PayloadGenericNACK, []byte{code})
}

// VehicleAnnouncement is the UDP broadcast payload: VIN, logical gateway
// address, EID, GID, and further-action byte.
type VehicleAnnouncement struct {
	VIN            [17]byte
	LogicalAddress uint16
	EID            [6]byte
	GID            [6]byte
	FurtherAction  byte
}

// PackVehicleAnnouncement builds the 33-byte announcement/identification
// response payload (VIN[17] + LogicalAddress[2] + EID[6] + GID[6] +
// FurtherAction[1] + VIN/GID sync status[1]). ecusim has no resync state so
// the sync-status byte is always 0x00 ("synchronized").
func PackVehicleAnnouncement(a VehicleAnnouncement) []byte {
	payload := make([]byte, 33)
	copy(payload[0:17], a.VIN[:])
	binary.BigEndian.PutUint16(payload[17:19], a.LogicalAddress)
	copy(payload[19:25], a.EID[:])
	copy(payload[25:31], a.GID[:])
	payload[31] = a.FurtherAction
	payload[32] = 0x00
	return encodeMessage(PayloadVehicleAnnouncement, payload)
}
