package candriver

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// classic CAN_RAW frame layout (struct can_frame, 16 bytes):
//
//	can_id  uint32
//	can_dlc uint8
//	__pad, __res0, __res1 uint8
//	data [8]byte
const classicFrameSize = 16

// canfd_frame layout (struct canfd_frame, 72 bytes):
//
//	can_id uint32
//	len    uint8
//	flags  uint8
//	__res0, __res1 uint8
//	data [64]byte
const fdFrameSize = 72

const canFrameErrFlag = 0x20000000 // CAN_ERR_FLAG
const canEFFFlag = 0x80000000      // CAN_EFF_FLAG, extended 29-bit ID

// SocketCANDriver implements CANDriver over a Linux SocketCAN raw socket
// (AF_CAN / SOCK_RAW / CAN_RAW), against real hardware or a vcan0 virtual
// interface for offline testing.
type SocketCANDriver struct {
	ifaceName string
	enableFD  bool

	fd int

	rxChan chan UnifiedCANMessage

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSocketCANDriver prepares a driver bound to the named interface (e.g. "vcan0", "can0").
func NewSocketCANDriver(ifaceName string, enableFD bool) *SocketCANDriver {
	return &SocketCANDriver{
		ifaceName: ifaceName,
		enableFD:  enableFD,
		fd:        -1,
	}
}

func (d *SocketCANDriver) Init() error {
	iface, err := net.InterfaceByName(d.ifaceName)
	if err != nil {
		return fmt.Errorf("resolve CAN interface %q: %w", d.ifaceName, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("open CAN_RAW socket: %w", err)
	}

	if d.enableFD {
		if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 1); err != nil {
			unix.Close(fd)
			return fmt.Errorf("enable CAN FD frames: %w", err)
		}
	}

	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind CAN socket to %q: %w", d.ifaceName, err)
	}

	d.fd = fd
	d.rxChan = make(chan UnifiedCANMessage, RxChannelBufferSize)
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return nil
}

func (d *SocketCANDriver) Start() {
	go d.readLoop()
}

func (d *SocketCANDriver) Stop() {
	d.cancel()
	if d.fd >= 0 {
		unix.Close(d.fd)
		d.fd = -1
	}
}

func (d *SocketCANDriver) Context() context.Context {
	return d.ctx
}

func (d *SocketCANDriver) RxChan() <-chan UnifiedCANMessage {
	return d.rxChan
}

func (d *SocketCANDriver) Write(id int32, data []byte) error {
	frame, frameLen, canType := buildFrame(uint32(id), data, d.enableFD)
	n, err := unix.Write(d.fd, frame)
	if err != nil {
		return fmt.Errorf("write CAN frame: %w", err)
	}
	if n != frameLen {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, frameLen)
	}
	logCANMessage("TX", uint32(id), DataLenToDLC(len(data)), data, canType)
	return nil
}

func (d *SocketCANDriver) readLoop() {
	bufSize := fdFrameSize
	buf := make([]byte, bufSize)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		n, err := unix.Read(d.fd, buf)
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
				time.Sleep(PollingInterval)
				continue
			}
		}

		msg, ok := parseFrame(buf[:n])
		if !ok {
			continue
		}
		logCANMessage("RX", msg.ID, msg.DLC, msg.Data[:DLCToDataLen(msg.DLC)], canTypeOf(msg.IsFD))

		select {
		case d.rxChan <- msg:
		default:
		}
	}
}

func buildFrame(id uint32, data []byte, isFD bool) ([]byte, int, CanType) {
	canID := id
	if id > 0x7FF {
		canID |= canEFFFlag
	}

	if !isFD {
		frame := make([]byte, classicFrameSize)
		binary.LittleEndian.PutUint32(frame[0:4], canID)
		frame[4] = byte(len(data))
		copy(frame[8:8+len(data)], data)
		return frame, classicFrameSize, CAN
	}

	frame := make([]byte, fdFrameSize)
	binary.LittleEndian.PutUint32(frame[0:4], canID)
	frame[4] = DataLenToDLC(len(data))
	copy(frame[8:8+len(data)], data)
	return frame, fdFrameSize, CANFD
}

func parseFrame(raw []byte) (UnifiedCANMessage, bool) {
	switch len(raw) {
	case classicFrameSize:
		canID := binary.LittleEndian.Uint32(raw[0:4])
		if canID&canFrameErrFlag != 0 {
			return UnifiedCANMessage{}, false
		}
		dlc := raw[4]
		var data [64]byte
		copy(data[:], raw[8:8+DLCToDataLen(dlc)])
		return UnifiedCANMessage{
			Direction: RX,
			ID:        canID &^ canEFFFlag,
			DLC:       dlc,
			Data:      data,
			IsFD:      false,
		}, true
	case fdFrameSize:
		canID := binary.LittleEndian.Uint32(raw[0:4])
		if canID&canFrameErrFlag != 0 {
			return UnifiedCANMessage{}, false
		}
		length := raw[4]
		dlc := DataLenToDLC(int(length))
		var data [64]byte
		copy(data[:], raw[8:8+int(length)])
		return UnifiedCANMessage{
			Direction: RX,
			ID:        canID &^ canEFFFlag,
			DLC:       dlc,
			Data:      data,
			IsFD:      true,
		}, true
	default:
		return UnifiedCANMessage{}, false
	}
}

func canTypeOf(isFD bool) CanType {
	if isFD {
		return CANFD
	}
	return CAN
}
