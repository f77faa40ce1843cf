package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LoveWonYoung/ecusim/internal/candriver"
	"github.com/LoveWonYoung/ecusim/internal/scriptedecu"
	"github.com/LoveWonYoung/ecusim/internal/tplayer"
)

func TestEcuConfigFilesSortedGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"brake.ecu.yaml", "abs.ecu.yaml", "doipserver.yaml", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("name: x\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	got, err := ecuConfigFiles(dir)
	if err != nil {
		t.Fatalf("ecuConfigFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "abs.ecu.yaml"),
		filepath.Join(dir, "brake.ecu.yaml"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestUdsAddressingMode(t *testing.T) {
	cases := []struct {
		requestID, responseID uint32
		want                  tplayer.AddressingMode
	}{
		{0x7E0, 0x7E8, tplayer.Normal11Bit},
		{0x18DA00F1, 0x18DAF100, tplayer.Normal29Bit},
		{0x7E0, 0x18DAF100, tplayer.Normal29Bit},
	}
	for _, c := range cases {
		if got := udsAddressingMode(c.requestID, c.responseID); got != c.want {
			t.Fatalf("udsAddressingMode(%#x, %#x) = %v, want %v", c.requestID, c.responseID, got, c.want)
		}
	}
}

func TestToCanMessageTruncatesToDLCAndFlagsExtendedID(t *testing.T) {
	msg := candriver.UnifiedCANMessage{ID: 0x18DAF100, DLC: 8}
	copy(msg.Data[:], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 9})

	out := toCanMessage(msg)
	if out.ArbitrationID != msg.ID {
		t.Fatalf("got arbitration id %#x", out.ArbitrationID)
	}
	if !out.IsExtendedID {
		t.Fatalf("expected IsExtendedID for a 29-bit id")
	}
	if len(out.Data) != 8 {
		t.Fatalf("got data len %d, want 8", len(out.Data))
	}

	low := candriver.UnifiedCANMessage{ID: 0x7E0, DLC: 3}
	copy(low.Data[:], []byte{1, 2, 3})
	if toCanMessage(low).IsExtendedID {
		t.Fatalf("expected IsExtendedID false for an 11-bit id")
	}
}

func TestStartECUSkipsUDSWithoutCANDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brake.ecu.yaml")
	if err := os.WriteFile(path, []byte("name: brake\nrequestId: 0x7E0\nresponseId: 0x7E8\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	s := New(dir, "")
	wg := &sync.WaitGroup{}
	if err := s.startECU(context.Background(), wg, path); err != nil {
		t.Fatalf("startECU: %v", err)
	}
	wg.Wait() // nothing should have been spawned
}

func TestStartECUSkipsDoIPWithoutGateway(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.ecu.yaml")
	if err := os.WriteFile(path, []byte("name: gw\ndoipLogicalAddress: 0x0010\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	s := New(dir, "")
	wg := &sync.WaitGroup{}
	if err := s.startECU(context.Background(), wg, path); err != nil {
		t.Fatalf("startECU: %v", err)
	}
}

type fakeFrameDriver struct {
	mu     sync.Mutex
	writes [][]byte
}

func (f *fakeFrameDriver) Write(_ int32, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func TestWireJ1939RespondsToRawRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.ecu.yaml")
	body := "name: engine\n" +
		"j1939SourceAddress: 0\n" +
		"pgns:\n" +
		"  \"F1 FE\": \"DE AD BE EF\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := scriptedecu.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	ecu, err := scriptedecu.New(cfg)
	if err != nil {
		t.Fatalf("scriptedecu.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := make(chan candriver.UnifiedCANMessage, 4)
	s := New(dir, "vcan0")
	s.driver = &fakeFrameDriverCANAdapter{fakeFrameDriver: &fakeFrameDriver{}}
	s.fanout = candriver.NewRxFanout(ctx, source)

	wg := &sync.WaitGroup{}
	s.wireJ1939(ctx, wg, ecu)

	// Request-for-PGN (0xEA00) asking for PGN 0x00FEF1 ("F1 FE 00"
	// little-endian), which the config above scripts as a request-reply
	// entry.
	frame := candriver.UnifiedCANMessage{ID: 0x18EAFFF9, DLC: 3}
	copy(frame.Data[:], []byte{0xF1, 0xFE, 0x00})
	source <- frame

	deadline := time.Now().Add(2 * time.Second)
	for {
		fake := s.driver.(*fakeFrameDriverCANAdapter).fakeFrameDriver
		fake.mu.Lock()
		n := len(fake.writes)
		var got []byte
		if n > 0 {
			got = fake.writes[0]
		}
		fake.mu.Unlock()
		if n > 0 {
			if string(got) != string([]byte{0xDE, 0xAD, 0xBE, 0xEF}) {
				t.Fatalf("got % X, want DE AD BE EF", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the request-for-PGN reply")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	wg.Wait()
}

// fakeFrameDriverCANAdapter satisfies candriver.CANDriver for wireJ1939,
// which only ever calls Write on the driver it's handed.
type fakeFrameDriverCANAdapter struct {
	*fakeFrameDriver
}

func (f *fakeFrameDriverCANAdapter) Init() error { return nil }
func (f *fakeFrameDriverCANAdapter) Start()      {}
func (f *fakeFrameDriverCANAdapter) Stop()       {}
func (f *fakeFrameDriverCANAdapter) Context() context.Context { return context.Background() }
func (f *fakeFrameDriverCANAdapter) RxChan() <-chan candriver.UnifiedCANMessage {
	return make(chan candriver.UnifiedCANMessage)
}
