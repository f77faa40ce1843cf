package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sigurn/crc16"
)

// SessionHooks exposes the ECU's current diagnostic session to callables.
type SessionHooks interface {
	CurrentSession() uint32
	SwitchSession(ctx context.Context, session uint32) error
}

// DoipHooks exposes the DoIP gateway actions a scripted response can trigger.
type DoipHooks interface {
	Disconnect(ctx context.Context) error
	SendVehicleAnnouncements(ctx context.Context) error
}

// RawSender lets a scripted response push an out-of-band frame onto the bus.
type RawSender interface {
	SendRaw(ctx context.Context, hex string) error
}

// RegisterBuiltins wires every built-in Callable into reg, closing over
// the given per-ECU collaborators.
// session, doip, and raw may be nil for an ECU that doesn't use them; the
// corresponding built-ins are simply left unregistered.
func RegisterBuiltins(reg *Registry, acc *Accumulator, session SessionHooks, doip DoipHooks, raw RawSender) {
	reg.RegisterFunc("ascii", func(_ context.Context, argHex string) (string, error) {
		return Ascii(argHex), nil
	})

	reg.RegisterFunc("getCounterByte", func(_ context.Context, argHex string) (string, error) {
		return GetCounterByte(argHex)
	})

	reg.RegisterFunc("getDataBytes", func(_ context.Context, argHex string) (string, error) {
		return "", GetDataBytes(acc, argHex)
	})

	reg.RegisterFunc("createHash", func(_ context.Context, argHex string) (string, error) {
		return CreateHash(acc)
	})

	reg.RegisterFunc("toByteResponse", func(_ context.Context, argHex string) (string, error) {
		value, length, err := parseToByteResponseArgs(argHex)
		if err != nil {
			return "", fmt.Errorf("toByteResponse: %w", err)
		}
		return ToByteResponse(value, length), nil
	})

	reg.RegisterFunc("sleep", func(ctx context.Context, argHex string) (string, error) {
		ms, err := strconv.Atoi(strings.TrimSpace(argHex))
		if err != nil {
			return "", fmt.Errorf("sleep: invalid duration %q: %w", argHex, err)
		}
		return "", Sleep(ctx, time.Duration(ms)*time.Millisecond)
	})

	if session != nil {
		reg.RegisterFunc("getCurrentSession", func(_ context.Context, _ string) (string, error) {
			return fmt.Sprintf("%02X", session.CurrentSession()), nil
		})

		reg.RegisterFunc("switchToSession", func(ctx context.Context, argHex string) (string, error) {
			ses, err := strconv.ParseUint(strings.TrimSpace(argHex), 0, 32)
			if err != nil {
				return "", fmt.Errorf("switchToSession: invalid session %q: %w", argHex, err)
			}
			return "", session.SwitchSession(ctx, uint32(ses))
		})
	}

	if doip != nil {
		reg.RegisterFunc("disconnectDoip", func(ctx context.Context, _ string) (string, error) {
			return "", doip.Disconnect(ctx)
		})
		reg.RegisterFunc("sendDoipVehicleAnnouncements", func(ctx context.Context, _ string) (string, error) {
			return "", doip.SendVehicleAnnouncements(ctx)
		})
	}

	if raw != nil {
		reg.RegisterFunc("sendRaw", func(ctx context.Context, argHex string) (string, error) {
			return "", raw.SendRaw(ctx, argHex)
		})
	}
}

// parseToByteResponseArgs splits "value" or "value,len" into its fields,
// defaulting len to 4 bytes.
func parseToByteResponseArgs(argHex string) (value uint32, length int, err error) {
	fields := strings.Split(argHex, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) == 0 || fields[0] == "" {
		return 0, 0, fmt.Errorf("missing value argument")
	}
	v, err := strconv.ParseUint(fields[0], 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid value %q: %w", fields[0], err)
	}
	length = 4
	if len(fields) > 1 && fields[1] != "" {
		l, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid length %q: %w", fields[1], err)
		}
		length = l
	}
	return uint32(v), length, nil
}

const hexLUT = "0123456789ABCDEF"

// Ascii converts a string into the space-delimited hex-byte representation
// used to splice literal text into a response, e.g. Ascii("Hi") == " 48 69 ".
func Ascii(s string) string {
	if len(s) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s)*3 + 1)
	for i := 0; i < len(s); i++ {
		c := s[i]
		b.WriteByte(' ')
		b.WriteByte(hexLUT[c>>4])
		b.WriteByte(hexLUT[c&0x0F])
	}
	b.WriteByte(' ')
	return b.String()
}

// GetCounterByte returns the second byte (the counter/sub-function byte) of
// a space-delimited hex request string.
func GetCounterByte(msg string) (string, error) {
	clean := stripSpaces(msg)
	if len(clean) < 4 {
		return "", fmt.Errorf("getCounterByte: message %q too short", msg)
	}
	return clean[2:4], nil
}

// GetDataBytes strips the leading SID+sub-function bytes off msg and appends
// the remainder to acc, for later consumption by CreateHash.
func GetDataBytes(acc *Accumulator, msg string) error {
	clean := stripSpaces(msg)
	if len(clean) < 4 {
		return fmt.Errorf("getDataBytes: message %q too short", msg)
	}
	acc.Append(clean[4:])
	return nil
}

// CreateHash computes the CRC-CCITT (init 0xFFFF) checksum over everything
// GetDataBytes has accumulated, returns it as an even-length hex string, and
// resets the accumulator.
func CreateHash(acc *Accumulator) (string, error) {
	hexStr := acc.TakeHex()
	data, err := literalHexStrToBytes(hexStr)
	if err != nil {
		return "", fmt.Errorf("createHash: %w", err)
	}
	table := crc16.MakeTable(crc16.CRC16_CCITT_FALSE)
	sum := crc16.Checksum(data, table)
	answer := strings.ToUpper(strconv.FormatUint(uint64(sum), 16))
	if len(answer)%2 != 0 {
		answer = "0" + answer
	}
	return answer, nil
}

// ToByteResponse renders value as a length-byte big-endian hex response,
// truncating or zero-padding as needed (length is clamped to [0, 4096]).
func ToByteResponse(value uint32, length int) string {
	const maxUDSSize = 4096
	if length <= 0 {
		return ""
	}
	if length > maxUDSSize {
		length = maxUDSSize
	}

	bytes := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		shift := uint((length - 1 - i) * 8)
		if shift < 32 {
			bytes[i] = byte(value >> shift)
		}
	}

	parts := make([]string, length)
	for i, b := range bytes {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

func literalHexStrToBytes(s string) ([]byte, error) {
	clean := stripSpaces(s)
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string %q", s)
	}
	out := make([]byte, len(clean)/2)
	for i := 0; i < len(out); i++ {
		b, err := strconv.ParseUint(clean[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", clean[i*2:i*2+2], err)
		}
		out[i] = byte(b)
	}
	return out, nil
}
