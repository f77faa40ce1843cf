package doip

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
)

type fakeDiagnosticEcu struct {
	response []byte
	ok       bool
}

func (f *fakeDiagnosticEcu) RawResponse(_ context.Context, _ []byte) ([]byte, bool) {
	return f.response, f.ok
}

func testGateway() *Gateway {
	return NewGateway(Config{
		VIN:                    "WBA12345678901234",
		LogicalAddress:         0x0001,
		AnnounceNum:            1,
		AnnounceIntervalMs:     10,
		TCPGeneralInactivityMs: 1000,
	})
}

func readMessage(t *testing.T, r *bufio.Reader) (Header, []byte) {
	t.Helper()
	header := make([]byte, headerLength)
	if _, err := io.ReadFull(r, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	hdr, err := DecodeHeader(header)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	payload := make([]byte, hdr.PayloadLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	return hdr, payload
}

func TestHandleRoutingActivationAccepts(t *testing.T) {
	g := testGateway()
	client, server := net.Pipe()
	defer client.Close()

	reqPayload := make([]byte, 7)
	reqPayload[0] = 0x0E
	reqPayload[1] = 0x00

	go g.handleRoutingActivation(server, reqPayload)

	hdr, payload := readMessage(t, bufio.NewReader(client))
	if hdr.PayloadType != PayloadRoutingActivationRes {
		t.Fatalf("got payload type %#x", hdr.PayloadType)
	}
	if payload[4] != RoutingAccepted {
		t.Fatalf("got code %#x, want accepted", payload[4])
	}
}

func TestHandleDiagnosticMessageUnknownTargetNACKs(t *testing.T) {
	g := testGateway()
	client, server := net.Pipe()
	defer client.Close()

	msg := []byte{0x0E, 0x00, 0x12, 0x34, 0x22, 0xF1, 0x90}
	go g.handleDiagnosticMessage(context.Background(), server, msg)

	hdr, payload := readMessage(t, bufio.NewReader(client))
	if hdr.PayloadType != PayloadDiagnosticMessageNak {
		t.Fatalf("got payload type %#x, want NACK", hdr.PayloadType)
	}
	if payload[4] != DiagNackUnknownTarget {
		t.Fatalf("got code %#x, want DiagNackUnknownTarget", payload[4])
	}
}

func TestHandleDiagnosticMessageKnownTargetAcksThenResponds(t *testing.T) {
	g := testGateway()
	g.Register(0x1234, &fakeDiagnosticEcu{response: []byte{0x62, 0xF1, 0x90, 0x41}, ok: true})
	client, server := net.Pipe()
	defer client.Close()

	msg := []byte{0x0E, 0x00, 0x12, 0x34, 0x22, 0xF1, 0x90}
	go g.handleDiagnosticMessage(context.Background(), server, msg)

	reader := bufio.NewReader(client)
	ackHdr, ackPayload := readMessage(t, reader)
	if ackHdr.PayloadType != PayloadDiagnosticMessageAck {
		t.Fatalf("got payload type %#x, want ACK", ackHdr.PayloadType)
	}
	if ackPayload[4] != DiagAckPositive {
		t.Fatalf("got code %#x, want positive", ackPayload[4])
	}

	respHdr, respPayload := readMessage(t, reader)
	if respHdr.PayloadType != PayloadDiagnosticMessage {
		t.Fatalf("got payload type %#x, want diagnostic message", respHdr.PayloadType)
	}
	got, err := UnpackDiagnosticMessage(respPayload)
	if err != nil {
		t.Fatalf("UnpackDiagnosticMessage: %v", err)
	}
	if string(got.UserData) != string([]byte{0x62, 0xF1, 0x90, 0x41}) {
		t.Fatalf("got userdata % X", got.UserData)
	}
}

func TestHandleDiagnosticMessageNoScriptedResponseSendsNegativeResponse(t *testing.T) {
	g := testGateway()
	g.Register(0x1234, &fakeDiagnosticEcu{ok: false})
	client, server := net.Pipe()
	defer client.Close()

	msg := []byte{0x0E, 0x00, 0x12, 0x34, 0x3E, 0x00}
	go g.handleDiagnosticMessage(context.Background(), server, msg)

	reader := bufio.NewReader(client)
	ackHdr, _ := readMessage(t, reader)
	if ackHdr.PayloadType != PayloadDiagnosticMessageAck {
		t.Fatalf("got payload type %#x, want ACK", ackHdr.PayloadType)
	}

	respHdr, respPayload := readMessage(t, reader)
	if respHdr.PayloadType != PayloadDiagnosticMessage {
		t.Fatalf("got payload type %#x, want diagnostic message", respHdr.PayloadType)
	}
	got, err := UnpackDiagnosticMessage(respPayload)
	if err != nil {
		t.Fatalf("UnpackDiagnosticMessage: %v", err)
	}
	if string(got.UserData) != string([]byte{0x7F, 0x3E, 0x11}) {
		t.Fatalf("got userdata % X, want the UDS negative response", got.UserData)
	}
}

func TestRegisterAndFind(t *testing.T) {
	g := testGateway()
	ecu := &fakeDiagnosticEcu{ok: true}
	g.Register(0x0010, ecu)

	found, ok := g.find(0x0010)
	if !ok || found != ecu {
		t.Fatalf("expected to find the registered ecu")
	}
	if _, ok := g.find(0x9999); ok {
		t.Fatalf("expected no ecu at an unregistered address")
	}
}

func TestTriggerDisconnectionClosesActiveConn(t *testing.T) {
	g := testGateway()
	client, server := net.Pipe()
	defer client.Close()
	g.setActiveConn(server)

	g.TriggerDisconnection()

	buf := make([]byte, 1)
	if _, err := server.Read(buf); err == nil {
		t.Fatalf("expected the server side to be closed")
	}
}

func TestDisconnectHookClosesActiveConn(t *testing.T) {
	g := testGateway()
	client, server := net.Pipe()
	defer client.Close()
	g.setActiveConn(server)

	if err := g.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	buf := make([]byte, 1)
	if _, err := server.Read(buf); err == nil {
		t.Fatalf("expected the server side to be closed")
	}
}
