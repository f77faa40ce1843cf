package tplayer

import "fmt"

// initiateTx starts sending a payload: as a Single Frame if it fits, otherwise
// as a First Frame followed by Consecutive Frames gated by flow control.
func (t *Transport) initiateTx(data []byte, txChan chan<- CanMessage) {
	addr := t.txAddress
	if addr == nil {
		addr = t.address
	}
	prefixLen := len(addr.TxPayloadPrefix)
	sfCapacity := t.MaxDataLength - prefixLen - 1

	if len(data) <= sfCapacity {
		payload := append([]byte{byte(len(data))}, data...)
		msg := t.makeTxMsg(payload, Physical)
		select {
		case txChan <- msg:
		default:
			t.fireError(fmt.Errorf("tx channel full, dropped single frame"))
		}
		return
	}

	ffCapacity := t.MaxDataLength - prefixLen - 2
	if ffCapacity < 1 {
		t.fireError(fmt.Errorf("MaxDataLength too small for addressing mode"))
		return
	}

	t.txFrameLen = len(data)
	t.txBuffer = append([]byte{}, data[ffCapacity:]...)
	t.txSeqNum = 1
	t.txBlockCounter = 0
	t.wftCounter = 0

	ffPayload := make([]byte, 0, 2+ffCapacity)
	ffPayload = append(ffPayload, byte(0x10|((len(data)>>8)&0x0F)), byte(len(data)&0xFF))
	ffPayload = append(ffPayload, data[:ffCapacity]...)

	msg := t.makeTxMsg(ffPayload, Physical)
	select {
	case txChan <- msg:
	default:
		t.fireError(fmt.Errorf("tx channel full, dropped first frame"))
	}

	t.txState = StateWaitFC
	t.timerRxFC.Reset(t.config.TimeoutN_Bs)
}

// handleTxFlowControl reacts to a received FlowControl frame while a send is in progress.
func (t *Transport) handleTxFlowControl(f *FlowControlFrame, txChan chan<- CanMessage) {
	if t.txState != StateWaitFC && t.txState != StateTransmit {
		return
	}

	if !t.timerRxFC.Stop() {
		select {
		case <-t.timerRxFC.C:
		default:
		}
	}

	switch f.FlowStatus {
	case FlowStatusOverflow:
		t.fireError(fmt.Errorf("peer reported overflow, aborting send"))
		t.stopSending()

	case FlowStatusWait:
		t.wftCounter++
		if t.config.MaxWaitFrame > 0 && t.wftCounter > t.config.MaxWaitFrame {
			t.fireError(fmt.Errorf("exceeded maximum number of FC(WAIT) frames"))
			t.stopSending()
			return
		}
		t.timerRxFC.Reset(t.config.TimeoutN_Bs)

	case FlowStatusContinueToSend:
		t.remoteBlocksize = f.BlockSize
		t.remoteStmin = f.STmin
		t.txBlockCounter = 0
		t.txState = StateTransmit
		t.handleTxTransmit(txChan)
	}
}

// handleTxTransmit sends the next Consecutive Frame of a pending multi-frame send.
func (t *Transport) handleTxTransmit(txChan chan<- CanMessage) {
	if t.txState != StateTransmit {
		return
	}
	if len(t.txBuffer) == 0 {
		t.stopSending()
		return
	}

	addr := t.txAddress
	if addr == nil {
		addr = t.address
	}
	prefixLen := len(addr.TxPayloadPrefix)
	cfCapacity := t.MaxDataLength - prefixLen - 1
	if cfCapacity < 1 {
		t.fireError(fmt.Errorf("MaxDataLength too small for addressing mode"))
		t.stopSending()
		return
	}

	chunkLen := cfCapacity
	if chunkLen > len(t.txBuffer) {
		chunkLen = len(t.txBuffer)
	}

	cfPayload := make([]byte, 0, 1+chunkLen)
	cfPayload = append(cfPayload, byte(0x20|(t.txSeqNum&0x0F)))
	cfPayload = append(cfPayload, t.txBuffer[:chunkLen]...)
	t.txBuffer = t.txBuffer[chunkLen:]
	t.txSeqNum = (t.txSeqNum + 1) % 16
	t.txBlockCounter++

	msg := t.makeTxMsg(cfPayload, Physical)
	select {
	case txChan <- msg:
	default:
		t.fireError(fmt.Errorf("tx channel full, dropped consecutive frame"))
	}

	if len(t.txBuffer) == 0 {
		t.stopSending()
		return
	}

	if t.remoteBlocksize > 0 && t.txBlockCounter >= t.remoteBlocksize {
		t.txState = StateWaitFC
		t.timerRxFC.Reset(t.config.TimeoutN_Bs)
		return
	}

	t.timerTxSTmin.Reset(t.remoteStmin)
}
