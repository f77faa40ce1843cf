package tplayer

import "fmt"

// AddressingMode enumerates the ISO-TP addressing schemes defined by ISO 15765-2.
type AddressingMode int

const (
	Normal11Bit      AddressingMode = iota // 11-bit ID, no address extension
	Normal29Bit                            // 29-bit ID, no address extension
	NormalFixed29Bit                       // 29-bit ID, target/source address folded into the ID
	Extended11Bit                          // 11-bit ID, target address in the first payload byte
	Extended29Bit                          // 29-bit ID, target address in the first payload byte
	Mixed11Bit                             // 11-bit ID, address extension in the first payload byte
	Mixed29Bit                             // 29-bit ID, target/source in the ID, extension in the first payload byte
)

// AddressType distinguishes physical (1:1) from functional (1:N) addressing.
type AddressType int

const (
	Physical AddressType = iota
	Functional
)

// Address holds everything needed to frame and recognize traffic for one ECU endpoint.
type Address struct {
	AddressingMode AddressingMode

	// Used by Normal, Extended, Mixed modes.
	TxID uint32
	RxID uint32

	// Used by NormalFixed, Mixed modes.
	TargetAddress byte
	SourceAddress byte

	// Used by Extended, Mixed modes.
	AddressExtension byte

	TxPayloadPrefix []byte
	RxPrefixSize    int
	is29Bit         bool
}

// NewAddress builds an Address for the given mode, applying functional options first.
func NewAddress(mode AddressingMode, opts ...func(*Address)) (*Address, error) {
	addr := &Address{AddressingMode: mode}
	for _, opt := range opts {
		opt(addr)
	}

	switch mode {
	case Normal11Bit:
		addr.is29Bit = false
	case Normal29Bit:
		addr.is29Bit = true
	case NormalFixed29Bit:
		addr.is29Bit = true
	case Extended11Bit:
		addr.is29Bit = false
		addr.TxPayloadPrefix = []byte{addr.TargetAddress}
		addr.RxPrefixSize = 1
	case Extended29Bit:
		addr.is29Bit = true
		addr.TxPayloadPrefix = []byte{addr.TargetAddress}
		addr.RxPrefixSize = 1
	case Mixed11Bit:
		addr.is29Bit = false
		addr.TxPayloadPrefix = []byte{addr.AddressExtension}
		addr.RxPrefixSize = 1
	case Mixed29Bit:
		addr.is29Bit = true
		addr.TxPayloadPrefix = []byte{addr.AddressExtension}
		addr.RxPrefixSize = 1
	default:
		return nil, fmt.Errorf("unsupported addressing mode: %d", mode)
	}

	return addr, nil
}

func WithTxID(id uint32) func(*Address)        { return func(a *Address) { a.TxID = id } }
func WithRxID(id uint32) func(*Address)        { return func(a *Address) { a.RxID = id } }
func WithTargetAddress(ta byte) func(*Address) { return func(a *Address) { a.TargetAddress = ta } }
func WithSourceAddress(sa byte) func(*Address) { return func(a *Address) { a.SourceAddress = sa } }
func WithAddressExtension(ae byte) func(*Address) {
	return func(a *Address) { a.AddressExtension = ae }
}

// GetTxArbitrationID computes the arbitration ID to use when sending, given the addressing mode and type.
func (a *Address) GetTxArbitrationID(addrType AddressType) uint32 {
	switch a.AddressingMode {
	case Normal11Bit, Normal29Bit, Extended11Bit, Extended29Bit, Mixed11Bit:
		return a.TxID
	case NormalFixed29Bit:
		prefix := uint32(0x18DA0000)
		if addrType == Functional {
			prefix = 0x18DB0000
		}
		return prefix | (uint32(a.TargetAddress) << 8) | uint32(a.SourceAddress)
	case Mixed29Bit:
		prefix := uint32(0x18CE0000)
		if addrType == Functional {
			prefix = 0x18CD0000
		}
		return prefix | (uint32(a.TargetAddress) << 8) | uint32(a.SourceAddress)
	}
	return a.TxID
}

// IsForMe reports whether msg was addressed to this endpoint.
func (a *Address) IsForMe(msg *CanMessage) bool {
	if msg.IsExtendedID != a.is29Bit {
		return false
	}

	switch a.AddressingMode {
	case Normal11Bit, Normal29Bit:
		return msg.ArbitrationID == a.RxID
	case NormalFixed29Bit:
		return (msg.ArbitrationID & 0xFFFF0000) == (a.GetTxArbitrationID(Physical) & 0xFFFF0000)
	case Extended11Bit, Extended29Bit:
		if msg.ArbitrationID != a.RxID {
			return false
		}
		if len(msg.Data) < 1 {
			return false
		}
		return msg.Data[0] == a.SourceAddress
	case Mixed29Bit:
		if (msg.ArbitrationID & 0xFFFF0000) != (a.GetTxArbitrationID(Physical) & 0xFFFF0000) {
			return false
		}
		if len(msg.Data) < 1 {
			return false
		}
		return msg.Data[0] == a.AddressExtension
	}
	return false
}

// Is29Bit reports whether the configured mode uses 29-bit CAN IDs.
func (a *Address) Is29Bit() bool {
	return a.is29Bit
}
