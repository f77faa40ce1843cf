// Package supervisor loads the scripted-ECU and DoIP-gateway configuration
// documents found in a directory, wires each declared responder to its
// transport, and coordinates startup and shutdown across all of them.
// Cancellation runs through a single context.Context; every spawned
// goroutine is tracked on a sync.WaitGroup and joined before Run returns.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/LoveWonYoung/ecusim/internal/candriver"
	"github.com/LoveWonYoung/ecusim/internal/doip"
	"github.com/LoveWonYoung/ecusim/internal/j1939"
	"github.com/LoveWonYoung/ecusim/internal/scriptedecu"
	"github.com/LoveWonYoung/ecusim/internal/session"
	"github.com/LoveWonYoung/ecusim/internal/tplayer"
	"github.com/LoveWonYoung/ecusim/internal/uds"
)

// spawn launches fn(ctx) as a goroutine tracked by wg, the one shared
// pattern every responder-wiring helper below uses to register its
// receive/transmit loops for clean shutdown.
func spawn(wg *sync.WaitGroup, ctx context.Context, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn(ctx)
	}()
}

// doipConfigFileName is the gateway's own document. It is processed before
// any ECU's DoIP registration attaches to it.
const doipConfigFileName = "doipserver.yaml"

// ecuConfigGlob matches every per-ECU configuration document.
const ecuConfigGlob = "*.ecu.yaml"

// configLoadStagger spaces successive ECU startups so their transports
// don't all bind in the same instant.
const configLoadStagger = 50 * time.Millisecond

// Supervisor owns every scripted ECU's responders and the DoIP gateway for
// one simulator run.
type Supervisor struct {
	dir       string
	canDevice string
	logger    *log.Logger

	driver  candriver.CANDriver
	fanout  *candriver.RxFanout
	gateway *doip.Gateway
}

// New builds a Supervisor that will load configuration documents from dir
// and, if canDevice is non-empty, open that SocketCAN interface. An empty
// canDevice means DoIP-only.
func New(dir, canDevice string) *Supervisor {
	return &Supervisor{
		dir:       dir,
		canDevice: canDevice,
		logger:    log.New(log.Writer(), "supervisor: ", log.LstdFlags),
	}
}

// Run loads every configuration document in s.dir, starts every declared
// responder, and blocks until ctx is cancelled. It returns once every
// spawned task has been joined; the caller decides the process exit code.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.startCANDriver(); err != nil {
		return err
	}
	defer func() {
		if s.driver != nil {
			s.driver.Stop()
		}
	}()

	wg := &sync.WaitGroup{}

	if err := s.startDoipGateway(ctx, wg); err != nil {
		return err
	}

	files, err := ecuConfigFiles(s.dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := s.startECU(ctx, wg, path); err != nil {
			s.logger.Printf("skip %s: %v", path, err)
			continue
		}
		time.Sleep(configLoadStagger)
	}

	<-ctx.Done()
	if s.gateway != nil {
		s.gateway.TriggerDisconnection()
	}
	wg.Wait()
	return nil
}

func (s *Supervisor) startCANDriver() error {
	if s.canDevice == "" {
		s.logger.Printf("CAN disabled - DoIP only")
		return nil
	}
	driver := candriver.NewSocketCANDriver(s.canDevice, false)
	if err := driver.Init(); err != nil {
		return fmt.Errorf("open CAN device %s: %w", s.canDevice, err)
	}
	driver.Start()
	s.driver = driver
	s.fanout = candriver.NewRxFanout(driver.Context(), driver.RxChan())
	return nil
}

func (s *Supervisor) startDoipGateway(ctx context.Context, wg *sync.WaitGroup) error {
	path := filepath.Join(s.dir, doipConfigFileName)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	cfg, err := doip.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", doipConfigFileName, err)
	}
	gateway := doip.NewGateway(cfg)
	if err := gateway.Run(ctx, wg); err != nil {
		return fmt.Errorf("start doip gateway: %w", err)
	}
	s.gateway = gateway
	return nil
}

// ecuConfigFiles lists every *.ecu.yaml document in dir, in a deterministic
// (sorted) order.
func ecuConfigFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, ecuConfigGlob))
	if err != nil {
		return nil, fmt.Errorf("enumerate config files in %s: %w", dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func (s *Supervisor) startECU(ctx context.Context, wg *sync.WaitGroup, path string) error {
	cfg, err := scriptedecu.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ecu, err := scriptedecu.New(cfg)
	if err != nil {
		return fmt.Errorf("build scripted ecu: %w", err)
	}

	if ecu.HasRequestID() {
		if s.driver == nil {
			s.logger.Printf("%s: UDS configured but no CAN device given, skipping", cfg.Name)
		} else if err := s.wireUDS(ctx, wg, ecu); err != nil {
			return fmt.Errorf("wire uds: %w", err)
		}
	}

	if ecu.HasJ1939SourceAddress() {
		if s.driver == nil {
			s.logger.Printf("%s: J1939 configured but no CAN device given, skipping", cfg.Name)
		} else {
			s.wireJ1939(ctx, wg, ecu)
		}
	}

	if ecu.HasDoIPLogicalAddress() {
		if s.gateway == nil {
			s.logger.Printf("%s: DoIP logical address configured but no %s present, skipping", cfg.Name, doipConfigFileName)
		} else {
			s.gateway.Register(ecu.DoIPLogicalAddress(), ecu)
			ecu.RegisterDoip(s.gateway)
		}
	}

	return nil
}

// udsAddressingMode picks 11-bit vs 29-bit framing from the configured CAN
// IDs' magnitude; the usual OBD pairs (0x7E0/0x7E8) are 11-bit, but
// nothing in the config schema forbids a 29-bit pair.
func udsAddressingMode(requestID, responseID uint32) tplayer.AddressingMode {
	if requestID > 0x7FF || responseID > 0x7FF {
		return tplayer.Normal29Bit
	}
	return tplayer.Normal11Bit
}

func (s *Supervisor) wireUDS(ctx context.Context, wg *sync.WaitGroup, ecu *scriptedecu.Ecu) error {
	mode := udsAddressingMode(ecu.RequestID(), ecu.ResponseID())
	addr, err := tplayer.NewAddress(mode, tplayer.WithRxID(ecu.RequestID()), tplayer.WithTxID(ecu.ResponseID()))
	if err != nil {
		return err
	}
	transport := tplayer.NewTransport(addr, tplayer.DefaultConfig())
	ecu.RegisterSender(transport)

	// Functional requests arrive on the broadcast ID (0x7DF unless
	// overridden); responses still go out on the ECU's own response ID, so
	// this second endpoint only ever receives.
	bcastAddr, err := tplayer.NewAddress(udsAddressingMode(ecu.BroadcastID(), ecu.ResponseID()),
		tplayer.WithRxID(ecu.BroadcastID()), tplayer.WithTxID(ecu.ResponseID()))
	if err != nil {
		return err
	}
	broadcast := tplayer.NewTransport(bcastAddr, tplayer.DefaultConfig())

	sessions := session.NewController(0)
	ecu.RegisterSessionController(sessions)
	responder := uds.NewResponder(ecu, transport, sessions)

	// One tx drain shared by both endpoints; they transmit under the same
	// response ID anyway.
	txChan := make(chan tplayer.CanMessage, 16)
	spawn(wg, ctx, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-txChan:
				if !ok {
					return
				}
				if err := s.driver.Write(int32(frame.ArbitrationID), frame.Data); err != nil {
					s.logger.Printf("uds tx: %v", err)
				}
			}
		}
	})

	for _, t := range []*tplayer.Transport{transport, broadcast} {
		rxChan := make(chan tplayer.CanMessage, 16)
		sub := s.fanout.Subscribe(16)
		spawn(wg, ctx, func(ctx context.Context) { forwardFrames(ctx, sub, rxChan) })
		spawn(wg, ctx, func(ctx context.Context) { t.Run(ctx, rxChan, txChan) })
	}

	// A single dispatch loop keeps Responder.Handle single-threaded across
	// the physical and broadcast receive paths.
	spawn(wg, ctx, func(ctx context.Context) {
		physical := transport.RecvChan()
		functional := broadcast.RecvChan()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-physical:
				if !ok {
					return
				}
				responder.Handle(ctx, payload)
			case payload, ok := <-functional:
				if !ok {
					return
				}
				responder.Handle(ctx, payload)
			}
		}
	})

	return nil
}

// forwardFrames adapts one RxFanout subscription into an ISO-TP endpoint's
// receive channel until ctx is cancelled or the subscription closes.
func forwardFrames(ctx context.Context, sub <-chan candriver.UnifiedCANMessage, rxChan chan<- tplayer.CanMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			select {
			case rxChan <- toCanMessage(msg):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Supervisor) wireJ1939(ctx context.Context, wg *sync.WaitGroup, ecu *scriptedecu.Ecu) {
	bus := j1939.NewBusMonitor(s.canDevice)
	responder := j1939.NewResponder(ecu, s.driver, bus)
	sub := s.fanout.Subscribe(16)

	spawn(wg, ctx, func(ctx context.Context) { responder.Run(ctx, sub) })
	responder.StartCyclicSenders(ctx, wg)
}

// toCanMessage adapts a shared-bus frame into the ISO-TP stack's own message
// type; id > 0x7FF mirrors internal/candriver.buildFrame's own 11-bit/29-bit
// split, since UnifiedCANMessage carries no separate flag. ISO-TP itself
// only ever uses classic 0..8 byte frames, but a shared bus may also carry
// FD traffic, so the length comes from candriver.DLCToDataLen rather than
// msg.DLC directly to avoid truncating it.
func toCanMessage(msg candriver.UnifiedCANMessage) tplayer.CanMessage {
	return tplayer.CanMessage{
		ArbitrationID: msg.ID,
		Data:          append([]byte(nil), msg.Data[:candriver.DLCToDataLen(msg.DLC)]...),
		IsExtendedID:  msg.ID > 0x7FF,
		IsFD:          msg.IsFD,
	}
}
