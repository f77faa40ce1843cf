package doip

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/LoveWonYoung/ecusim/internal/uds"
)

// DiagnosticEcu is the narrow surface Gateway needs from a scripted ECU:
// the same raw-trie lookup the CAN-side UDS path dispatches through.
type DiagnosticEcu interface {
	RawResponse(ctx context.Context, payload []byte) ([]byte, bool)
}

const defaultDoIPPort = 13400

// Gateway multiplexes a single UDP announcement listener and a single
// active TCP diagnostic connection across every DoIP-registered scripted
// ECU, routing each diagnostic payload by its target logical address.
type Gateway struct {
	cfg    Config
	logger *log.Logger

	mu   sync.Mutex
	ecus map[uint16]DiagnosticEcu

	connMu     sync.Mutex
	activeConn net.Conn

	udpConn net.PacketConn
}

// NewGateway builds a Gateway from its own configuration document.
func NewGateway(cfg Config) *Gateway {
	return &Gateway{
		cfg:    cfg,
		logger: log.New(log.Writer(), "doip: ", log.LstdFlags),
		ecus:   make(map[uint16]DiagnosticEcu),
	}
}

// Register attaches a scripted ECU under its configured DoIP logical
// address. All registration happens before the listeners accept traffic;
// the table is read-only afterwards.
func (g *Gateway) Register(logicalAddress uint16, ecu DiagnosticEcu) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ecus[logicalAddress] = ecu
}

func (g *Gateway) find(logicalAddress uint16) (DiagnosticEcu, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ecu, ok := g.ecus[logicalAddress]
	return ecu, ok
}

// Run starts the UDP and TCP listeners and emits the startup announcement
// burst. The listeners run until ctx is cancelled; Run itself returns as
// soon as they are up.
func (g *Gateway) Run(ctx context.Context, wg *sync.WaitGroup) error {
	udpConn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", defaultDoIPPort))
	if err != nil {
		return fmt.Errorf("doip: open udp listener: %w", err)
	}
	g.udpConn = udpConn

	tcpListener, err := net.Listen("tcp", fmt.Sprintf(":%d", defaultDoIPPort))
	if err != nil {
		udpConn.Close()
		return fmt.Errorf("doip: open tcp listener: %w", err)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		g.listenUDP(ctx, udpConn)
	}()
	go func() {
		defer wg.Done()
		g.listenTCP(ctx, tcpListener)
	}()

	go func() {
		<-ctx.Done()
		udpConn.Close()
		tcpListener.Close()
		g.TriggerDisconnection()
	}()

	if err := g.SendVehicleAnnouncements(ctx); err != nil {
		g.logger.Printf("startup announcement: %v", err)
	}
	return nil
}

// listenUDP answers vehicle-identification requests and otherwise ignores
// inbound UDP traffic.
func (g *Gateway) listenUDP(ctx context.Context, conn net.PacketConn) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.Printf("udp read: %v", err)
			return
		}
		hdr, err := DecodeHeader(buf[:n])
		if err != nil {
			continue
		}
		if hdr.PayloadType != PayloadVehicleIdentRequest {
			continue
		}
		msg := PackVehicleAnnouncement(g.announcement())
		if _, err := conn.WriteTo(msg, addr); err != nil {
			g.logger.Printf("udp announcement reply: %v", err)
		}
	}
}

// listenTCP accepts one diagnostic connection at a time; further clients
// queue in the accept backlog until the current session ends.
func (g *Gateway) listenTCP(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.Printf("tcp accept: %v", err)
			return
		}
		g.setActiveConn(conn)
		g.handleConnection(ctx, conn)
		g.setActiveConn(nil)
	}
}

func (g *Gateway) setActiveConn(conn net.Conn) {
	g.connMu.Lock()
	g.activeConn = conn
	g.connMu.Unlock()
}

// handleConnection services one tester TCP session: routing activation,
// then diagnostic messages until the peer disconnects, the general
// inactivity timeout fires, or the gateway is told to disconnect.
func (g *Gateway) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	inactivity := time.Duration(g.cfg.TCPGeneralInactivityMs) * time.Millisecond
	reader := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(inactivity))
		header := make([]byte, headerLength)
		if _, err := io.ReadFull(reader, header); err != nil {
			return
		}
		hdr, err := DecodeHeader(header)
		if err != nil {
			conn.Write(PackGenericNACK(HeaderIncorrectPattern))
			return
		}
		payload := make([]byte, hdr.PayloadLength)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return
		}

		switch hdr.PayloadType {
		case PayloadRoutingActivationReq:
			g.handleRoutingActivation(conn, payload)
		case PayloadAliveCheckRequest:
			conn.Write(encodeMessage(PayloadAliveCheckResponse, nil))
		case PayloadDiagnosticMessage:
			g.handleDiagnosticMessage(ctx, conn, payload)
		default:
			conn.Write(PackGenericNACK(HeaderUnknownPayload))
		}
	}
}

func (g *Gateway) handleRoutingActivation(conn net.Conn, payload []byte) {
	req, err := UnpackRoutingActivationRequest(payload)
	if err != nil {
		conn.Write(PackGenericNACK(HeaderInvalidPayloadLen))
		return
	}
	// No per-client authentication: every routing activation request is
	// accepted.
	conn.Write(PackRoutingActivationResponse(req.SourceAddress, g.cfg.LogicalAddress, RoutingAccepted))
}

// handleDiagnosticMessage routes one diagnostic payload by target address:
// unknown target gets a negative ACK (0x03) and no scripted invocation;
// known target gets a positive ACK followed by a separate diagnostic
// message carrying the scripted ECU's raw response, or the in-band UDS
// negative response when no scripted pattern matched.
func (g *Gateway) handleDiagnosticMessage(ctx context.Context, conn net.Conn, payload []byte) {
	msg, err := UnpackDiagnosticMessage(payload)
	if err != nil {
		conn.Write(PackGenericNACK(HeaderInvalidPayloadLen))
		return
	}
	previewByte := byte(0x00)
	if len(msg.UserData) > 0 {
		previewByte = msg.UserData[0]
	}

	ecu, ok := g.find(msg.TargetAddress)
	if !ok {
		conn.Write(PackDiagnosticAck(msg.TargetAddress, msg.SourceAddress, false, DiagNackUnknownTarget, previewByte))
		return
	}
	conn.Write(PackDiagnosticAck(msg.TargetAddress, msg.SourceAddress, true, DiagAckPositive, previewByte))

	response, ok := ecu.RawResponse(ctx, msg.UserData)
	if !ok || len(response) == 0 {
		response = uds.NegativeResponse(previewByte, uds.NRCServiceNotSupported)
	}
	conn.Write(PackDiagnosticMessage(msg.TargetAddress, msg.SourceAddress, response))
}

func (g *Gateway) announcement() VehicleAnnouncement {
	return VehicleAnnouncement{
		VIN:            g.cfg.vinBytes(),
		LogicalAddress: g.cfg.LogicalAddress,
		EID:            g.cfg.eidBytes(),
		GID:            g.cfg.gidBytes(),
		FurtherAction:  g.cfg.FurtherAction,
	}
}

// SendVehicleAnnouncements implements bridge.DoipHooks: emits AnnounceNum
// broadcast datagrams AnnounceIntervalMs apart.
func (g *Gateway) SendVehicleAnnouncements(ctx context.Context) error {
	broadcastAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("255.255.255.255:%d", defaultDoIPPort))
	if err != nil {
		return fmt.Errorf("doip: resolve broadcast address: %w", err)
	}
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return fmt.Errorf("doip: open announcement socket: %w", err)
	}
	defer conn.Close()

	msg := PackVehicleAnnouncement(g.announcement())
	for i := 0; i < g.cfg.AnnounceNum; i++ {
		if _, err := conn.WriteTo(msg, broadcastAddr); err != nil {
			g.logger.Printf("vehicle announcement %d/%d: %v", i+1, g.cfg.AnnounceNum, err)
		}
		if i < g.cfg.AnnounceNum-1 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Duration(g.cfg.AnnounceIntervalMs) * time.Millisecond):
			}
		}
	}
	return nil
}

// Disconnect implements bridge.DoipHooks: closes the active TCP session
// from the server side.
func (g *Gateway) Disconnect(_ context.Context) error {
	g.TriggerDisconnection()
	return nil
}

// TriggerDisconnection closes the active TCP connection, if any.
func (g *Gateway) TriggerDisconnection() {
	g.connMu.Lock()
	conn := g.activeConn
	g.activeConn = nil
	g.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
