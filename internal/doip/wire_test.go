package doip

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	msg := encodeMessage(PayloadDiagnosticMessage, []byte{0x01, 0x02, 0x03})
	hdr, err := DecodeHeader(msg)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if hdr.PayloadType != PayloadDiagnosticMessage {
		t.Fatalf("got payload type %#x, want %#x", hdr.PayloadType, PayloadDiagnosticMessage)
	}
	if hdr.PayloadLength != 3 {
		t.Fatalf("got payload length %d, want 3", hdr.PayloadLength)
	}
}

func TestDecodeHeaderRejectsBadProtocolVersion(t *testing.T) {
	bad := []byte{0x01, 0xFE, 0x00, 0x01, 0, 0, 0, 0}
	if _, err := DecodeHeader(bad); err != ErrBadProtocolVersion {
		t.Fatalf("got %v, want ErrBadProtocolVersion", err)
	}
}

func TestDecodeHeaderRejectsShortInput(t *testing.T) {
	if _, err := DecodeHeader([]byte{0x02, 0xFD}); err != ErrHeaderTooShort {
		t.Fatalf("got %v, want ErrHeaderTooShort", err)
	}
}

func TestRoutingActivationRequestRoundTrip(t *testing.T) {
	payload := []byte{0x0E, 0x00, 0x00, 0, 0, 0, 0}
	req, err := UnpackRoutingActivationRequest(payload)
	if err != nil {
		t.Fatalf("UnpackRoutingActivationRequest: %v", err)
	}
	if req.SourceAddress != 0x0E00 {
		t.Fatalf("got source %#x, want 0x0E00", req.SourceAddress)
	}
	if req.ActivationType != 0x00 {
		t.Fatalf("got activation type %#x, want 0x00", req.ActivationType)
	}
}

func TestRoutingActivationRequestRejectsBadLength(t *testing.T) {
	if _, err := UnpackRoutingActivationRequest([]byte{0x01, 0x02}); err != ErrPayloadTruncated {
		t.Fatalf("got %v, want ErrPayloadTruncated", err)
	}
}

func TestPackRoutingActivationResponse(t *testing.T) {
	msg := PackRoutingActivationResponse(0x0E00, 0x0001, RoutingAccepted)
	hdr, err := DecodeHeader(msg)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if hdr.PayloadType != PayloadRoutingActivationRes {
		t.Fatalf("got payload type %#x", hdr.PayloadType)
	}
	payload := msg[headerLength:]
	if payload[4] != RoutingAccepted {
		t.Fatalf("got code %#x, want RoutingAccepted", payload[4])
	}
}

func TestDiagnosticMessageRoundTrip(t *testing.T) {
	msg := PackDiagnosticMessage(0x0001, 0x0E00, []byte{0x22, 0xF1, 0x90})
	hdr, err := DecodeHeader(msg)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	got, err := UnpackDiagnosticMessage(msg[headerLength : headerLength+int(hdr.PayloadLength)])
	if err != nil {
		t.Fatalf("UnpackDiagnosticMessage: %v", err)
	}
	if got.SourceAddress != 0x0001 || got.TargetAddress != 0x0E00 {
		t.Fatalf("got src %#x dst %#x", got.SourceAddress, got.TargetAddress)
	}
	if !bytes.Equal(got.UserData, []byte{0x22, 0xF1, 0x90}) {
		t.Fatalf("got userdata % X", got.UserData)
	}
}

func TestPackDiagnosticAckPositiveAndNegative(t *testing.T) {
	pos := PackDiagnosticAck(0x0001, 0x0E00, true, DiagAckPositive, 0x22)
	hdr, _ := DecodeHeader(pos)
	if hdr.PayloadType != PayloadDiagnosticMessageAck {
		t.Fatalf("positive ack got payload type %#x", hdr.PayloadType)
	}

	neg := PackDiagnosticAck(0x0001, 0x0E00, false, DiagNackUnknownTarget, 0x22)
	hdr, _ = DecodeHeader(neg)
	if hdr.PayloadType != PayloadDiagnosticMessageNak {
		t.Fatalf("negative ack got payload type %#x", hdr.PayloadType)
	}
	if neg[headerLength+4] != DiagNackUnknownTarget {
		t.Fatalf("got code %#x, want DiagNackUnknownTarget", neg[headerLength+4])
	}
}

func TestPackVehicleAnnouncementLayout(t *testing.T) {
	a := VehicleAnnouncement{LogicalAddress: 0x0001, FurtherAction: 0x00}
	copy(a.VIN[:], "12345678901234567")
	msg := PackVehicleAnnouncement(a)
	hdr, err := DecodeHeader(msg)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if hdr.PayloadType != PayloadVehicleAnnouncement {
		t.Fatalf("got payload type %#x", hdr.PayloadType)
	}
	if hdr.PayloadLength != 33 {
		t.Fatalf("got payload length %d, want 33", hdr.PayloadLength)
	}
	payload := msg[headerLength:]
	if string(payload[0:17]) != "12345678901234567" {
		t.Fatalf("got vin %q", payload[0:17])
	}
}

func TestPackGenericNACK(t *testing.T) {
	msg := PackGenericNACK(HeaderUnknownPayload)
	hdr, err := DecodeHeader(msg)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if hdr.PayloadType != PayloadGenericNACK {
		t.Fatalf("got payload type %#x", hdr.PayloadType)
	}
	if msg[headerLength] != HeaderUnknownPayload {
		t.Fatalf("got code %#x", msg[headerLength])
	}
}
