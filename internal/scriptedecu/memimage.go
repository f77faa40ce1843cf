package scriptedecu

import (
	"context"
	"fmt"
	"os"

	"github.com/marcinbor85/gohex"
)

// MemoryImage wraps a parsed Intel-HEX flash image, letting a scripted
// RoutineControl/RequestDownload/TransferData response cell serve a segment
// of the image back as a DID or raw-trie response.
type MemoryImage struct {
	mem *gohex.Memory
}

// LoadIntelHexFile parses an Intel-HEX (.hex) file into a MemoryImage.
func LoadIntelHexFile(path string) (*MemoryImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open intel-hex image %s: %w", path, err)
	}
	defer f.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(f); err != nil {
		return nil, fmt.Errorf("parse intel-hex image %s: %w", path, err)
	}
	return &MemoryImage{mem: mem}, nil
}

// segment returns length bytes starting at address, zero-padded where the
// image has no data for part of the requested range.
func (m *MemoryImage) segment(address uint32, length uint16) []byte {
	out := make([]byte, int(length))
	start := uint64(address)
	end := start + uint64(length)

	for _, seg := range m.mem.GetDataSegments() {
		segStart := uint64(seg.Address)
		segEnd := segStart + uint64(len(seg.Data))
		if segEnd <= start || segStart >= end {
			continue
		}
		from := max(start, segStart)
		to := min(end, segEnd)
		copy(out[from-start:to-start], seg.Data[from-segStart:to-segStart])
	}
	return out
}

// parseReadMemoryArgs decodes the argument shape the readMemoryImage
// callable expects: 4 address bytes (big-endian) followed by 2 length bytes
// (big-endian).
func parseReadMemoryArgs(data []byte) (address uint32, length uint16, err error) {
	if len(data) != 6 {
		return 0, 0, fmt.Errorf("readMemoryImage: expected 6 argument bytes (4 address + 2 length), got %d", len(data))
	}
	address = uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	length = uint16(data[4])<<8 | uint16(data[5])
	return address, length, nil
}

// registerMemImageCallable exposes this ECU's flash image to scripted
// response cells under the "@readMemoryImage" ResponseRef name.
func (e *Ecu) registerMemImageCallable() {
	e.registry.RegisterFunc("readMemoryImage", func(_ context.Context, argHex string) (string, error) {
		argBytes, err := decodeHexString(argHex)
		if err != nil {
			return "", fmt.Errorf("readMemoryImage: bad argument %q: %w", argHex, err)
		}
		address, length, err := parseReadMemoryArgs(argBytes)
		if err != nil {
			return "", err
		}
		return encodeHexString(e.memImage.segment(address, length)), nil
	})
}
