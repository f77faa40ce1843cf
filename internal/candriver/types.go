package candriver

import "time"

// Buffer and polling configuration constants.
const (
	RxChannelBufferSize = 1024
	MsgBufferSize       = 1024
	PollingInterval     = time.Millisecond
	InitDelay           = 20 * time.Millisecond
)

// CanType distinguishes classic CAN from CAN FD frames.
type CanType byte

const (
	CAN   CanType = 0
	CANFD CanType = 1
)
