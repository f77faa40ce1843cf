package tplayer

import "time"

// Config holds the tunable ISO-TP transport parameters (ISO 15765-2 §9).
type Config struct {
	// PaddingByte, if not nil, pads frames up to the declared length (8 or 64).
	PaddingByte *byte

	TimeoutN_Bs time.Duration // time allowed to wait for a FlowControl frame
	TimeoutN_Cr time.Duration // time allowed to wait for the next ConsecutiveFrame

	BlockSize int           // number of CFs this side accepts before issuing a new FC
	StMin     time.Duration // minimum separation time this side requests between CFs

	MaxWaitFrame int // maximum number of FC(WAIT) frames tolerated before giving up
}

// DefaultConfig returns conservative ISO 15765-2 defaults.
func DefaultConfig() Config {
	return Config{
		PaddingByte:  nil,
		TimeoutN_Bs:  1000 * time.Millisecond,
		TimeoutN_Cr:  1000 * time.Millisecond,
		BlockSize:    0, // unlimited
		StMin:        20 * time.Millisecond,
		MaxWaitFrame: 0,
	}
}
