package tplayer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Transport is the core ISO-TP protocol state machine for one ECU endpoint.
type Transport struct {
	address       *Address
	txAddress     *Address
	IsFD          bool
	MaxDataLength int
	rxState       State
	txState       State
	rxBuffer      []byte
	txBuffer      []byte

	rxDataChan chan []byte
	txDataChan chan []byte

	rxFrameLen           int
	txFrameLen           int
	rxSeqNum             int
	txSeqNum             int
	rxBlockCounter       int
	txBlockCounter       int
	remoteBlocksize      int
	remoteStmin          time.Duration
	lastFlowControlFrame *FlowControlFrame
	pendingFlowControlTx bool

	timerRxCF    *time.Timer
	timerRxFC    *time.Timer
	timerTxSTmin *time.Timer

	config Config

	wftCounter int

	ErrorChan chan error
}

func NewTransport(address *Address, cfg Config) *Transport {
	t := &Transport{
		address:       address,
		rxDataChan:    make(chan []byte, 10),
		txDataChan:    make(chan []byte, 10),
		IsFD:          false,
		MaxDataLength: 8,
		timerRxCF:     time.NewTimer(time.Hour),
		timerRxFC:     time.NewTimer(time.Hour),
		timerTxSTmin:  time.NewTimer(time.Hour),
		config:        cfg,
		ErrorChan:     make(chan error, 10),
	}
	t.timerRxCF.Stop()
	t.timerRxFC.Stop()
	t.timerTxSTmin.Stop()

	t.stopReceiving()
	t.stopSending()
	return t
}

// SetTxAddress switches the transmit address without affecting RX filtering.
// Passing nil reverts to the base address given at construction time.
func (t *Transport) SetTxAddress(addr *Address) {
	t.txAddress = addr
}

func (t *Transport) SetFDMode(isFD bool) {
	t.IsFD = isFD
	if isFD {
		t.MaxDataLength = 64
	} else {
		t.MaxDataLength = 8
	}
}

// Send queues a complete payload for transmission. May block if the send buffer is full.
func (t *Transport) Send(data []byte) {
	t.txDataChan <- data
}

// Recv returns a completed received payload, if one is available.
func (t *Transport) Recv() ([]byte, bool) {
	select {
	case data := <-t.rxDataChan:
		return data, true
	default:
		return nil, false
	}
}

// RecvChan exposes the completed-payload channel for a blocking receive
// loop (internal/uds.Responder's per-ECU goroutine), instead of polling Recv.
func (t *Transport) RecvChan() <-chan []byte {
	return t.rxDataChan
}

// Run drives the protocol state machine until ctx is cancelled.
func (t *Transport) Run(ctx context.Context, rxChan <-chan CanMessage, txChan chan<- CanMessage) {
	defer t.cleanup()

	for {
		var txDataEnable <-chan []byte
		if t.txState == StateIdle {
			txDataEnable = t.txDataChan
		}

		select {
		case <-ctx.Done():
			return

		case msg := <-rxChan:
			t.ProcessRx(msg, txChan)

		case data := <-txDataEnable:
			t.startTransmission(data, txChan)

		case <-t.timerRxCF.C:
			t.fireError(errors.New("timed out waiting for consecutive frame, resetting rx state"))
			t.stopReceiving()

		case <-t.timerRxFC.C:
			t.fireError(errors.New("timed out waiting for flow control, stopping tx"))
			t.stopSending()

		case <-t.timerTxSTmin.C:
			if t.txState == StateTransmit {
				t.handleTxTransmit(txChan)
			}
		}
	}
}

func (t *Transport) cleanup() {
	t.timerRxCF.Stop()
	t.timerRxFC.Stop()
	t.timerTxSTmin.Stop()
}

func (t *Transport) startTransmission(data []byte, txChan chan<- CanMessage) {
	t.initiateTx(data, txChan)
}

func (t *Transport) stopReceiving() {
	t.rxState = StateIdle
	t.rxBuffer = nil
	t.rxFrameLen = 0
	t.rxSeqNum = 0
	t.rxBlockCounter = 0
	if !t.timerRxCF.Stop() {
		select {
		case <-t.timerRxCF.C:
		default:
		}
	}
}

func (t *Transport) stopSending() {
	t.txState = StateIdle
	t.txBuffer = nil
	t.txFrameLen = 0
	t.txSeqNum = 0
	t.txBlockCounter = 0
	if !t.timerRxFC.Stop() {
		select {
		case <-t.timerRxFC.C:
		default:
		}
	}
	if !t.timerTxSTmin.Stop() {
		select {
		case <-t.timerTxSTmin.C:
		default:
		}
	}
}

func (t *Transport) makeTxMsg(data []byte, addrType AddressType) CanMessage {
	addr := t.txAddress
	if addr == nil {
		addr = t.address
	}
	return t.makeTxMsgWithAddr(addr, data, addrType)
}

func (t *Transport) makeTxMsgWithAddr(addr *Address, data []byte, addrType AddressType) CanMessage {
	arbitrationID := addr.GetTxArbitrationID(addrType)
	fullPayload := append(append([]byte{}, addr.TxPayloadPrefix...), data...)

	if t.config.PaddingByte != nil {
		targetLen := 8
		if t.IsFD {
			targetLen = nextFDTargetLength(len(fullPayload))
		}
		if len(fullPayload) < targetLen {
			padding := make([]byte, targetLen-len(fullPayload))
			for i := range padding {
				padding[i] = *t.config.PaddingByte
			}
			fullPayload = append(fullPayload, padding...)
		}
	}

	return CanMessage{
		ArbitrationID: arbitrationID,
		Data:          fullPayload,
		IsExtendedID:  addr.Is29Bit(),
		IsFD:          t.IsFD,
	}
}

// nextFDTargetLength returns the smallest valid CAN FD payload length >= length.
func nextFDTargetLength(length int) int {
	if length <= 8 {
		return 8
	}
	switch {
	case length <= 12:
		return 12
	case length <= 16:
		return 16
	case length <= 20:
		return 20
	case length <= 24:
		return 24
	case length <= 32:
		return 32
	case length <= 48:
		return 48
	default:
		return 64
	}
}

func (t *Transport) fireError(err error) {
	select {
	case t.ErrorChan <- err:
	default:
		fmt.Println("ISOTP error (chan full):", err)
	}
}
