package tplayer

import (
	"errors"
	"fmt"
)

// ProcessRx decodes one incoming CAN frame and advances the receive state machine.
// txChan lets flow-control frames be sent back immediately, inline with reception.
func (t *Transport) ProcessRx(msg CanMessage, txChan chan<- CanMessage) {
	if !t.address.IsForMe(&msg) {
		return
	}
	frame, err := ParseFrame(&msg, t.address.RxPrefixSize)
	if err != nil {
		t.fireError(fmt.Errorf("frame parse failed: %w", err))
		return
	}

	switch f := frame.(type) {
	case *FlowControlFrame:
		t.lastFlowControlFrame = f
		if t.rxState == StateWaitCF {
			if f.FlowStatus == FlowStatusWait || f.FlowStatus == FlowStatusContinueToSend {
				t.resetRxTimer()
			}
		}
		t.handleTxFlowControl(f, txChan)

	case *SingleFrame:
		t.handleRxSingleFrame(f)

	case *FirstFrame:
		t.handleRxFirstFrame(f, txChan)

	case *ConsecutiveFrame:
		t.handleRxConsecutiveFrame(f, txChan)
	}
}

func (t *Transport) handleRxSingleFrame(f *SingleFrame) {
	if t.rxState != StateIdle {
		t.fireError(errors.New("single frame interrupted an in-progress multi-frame reception"))
	}
	t.stopReceiving()
	select {
	case t.rxDataChan <- f.Data:
	default:
		fmt.Println("rx buffer full, dropping frame")
	}
}

func (t *Transport) handleRxFirstFrame(f *FirstFrame, txChan chan<- CanMessage) {
	if t.rxState != StateIdle {
		t.fireError(errors.New("first frame interrupted an in-progress multi-frame reception"))
	}
	t.stopReceiving()

	t.rxFrameLen = f.TotalSize
	t.rxBuffer = make([]byte, 0, f.TotalSize)
	t.rxBuffer = append(t.rxBuffer, f.Data...)

	if len(t.rxBuffer) >= t.rxFrameLen {
		select {
		case t.rxDataChan <- t.rxBuffer:
		default:
			fmt.Println("rx buffer full, dropping frame")
		}
		t.stopReceiving()
	} else {
		t.rxState = StateWaitCF
		t.rxSeqNum = 1
		t.sendFlowControl(FlowStatusContinueToSend, txChan)
		t.resetRxTimer()
	}
}

func (t *Transport) handleRxConsecutiveFrame(f *ConsecutiveFrame, txChan chan<- CanMessage) {
	if t.rxState != StateWaitCF {
		return
	}

	if f.SequenceNumber != t.rxSeqNum {
		t.fireError(fmt.Errorf("sequence number mismatch: expected %d, got %d", t.rxSeqNum, f.SequenceNumber))
		t.stopReceiving()
		return
	}

	t.resetRxTimer()
	t.rxSeqNum = (t.rxSeqNum + 1) % 16

	bytesToReceive := t.rxFrameLen - len(t.rxBuffer)
	if len(f.Data) > bytesToReceive {
		t.rxBuffer = append(t.rxBuffer, f.Data[:bytesToReceive]...)
	} else {
		t.rxBuffer = append(t.rxBuffer, f.Data...)
	}

	if len(t.rxBuffer) >= t.rxFrameLen {
		completedData := make([]byte, len(t.rxBuffer))
		copy(completedData, t.rxBuffer)
		select {
		case t.rxDataChan <- completedData:
		default:
			fmt.Println("rx buffer full, dropping frame")
		}
		t.stopReceiving()
	} else {
		t.rxBlockCounter++
		if t.config.BlockSize > 0 && t.rxBlockCounter >= t.config.BlockSize {
			t.rxBlockCounter = 0
			t.sendFlowControl(FlowStatusContinueToSend, txChan)
			t.resetRxTimer()
		}
	}
}

func (t *Transport) resetRxTimer() {
	if !t.timerRxCF.Stop() {
		select {
		case <-t.timerRxCF.C:
		default:
		}
	}
	t.timerRxCF.Reset(t.config.TimeoutN_Cr)
}

func (t *Transport) sendFlowControl(status FlowStatus, txChan chan<- CanMessage) {
	payload := createFlowControlPayload(status, t.config.BlockSize, t.config.StMin)
	msg := t.makeTxMsgWithAddr(t.address, payload, Physical)
	select {
	case txChan <- msg:
	default:
	}
}
