package j1939

// ackPrefix marks a scripted PGN response string as an acknowledgement to
// synthesize instead of a literal payload.
const ackPrefix = "ACK"

// assembleACK builds the 8-byte J1939-21 §5.4.4 acknowledgement payload.
// ackInfo supplies the optional control/group-function bytes (the text
// after the "ACK" token in the scripted response, hex-decoded by the
// caller); both default to 0x00 when absent.
func assembleACK(ackInfo []byte, targetAddress byte, requestedPGN uint32) []byte {
	control := byte(0x00)
	groupFunction := byte(0x00)
	if len(ackInfo) > 0 {
		control = ackInfo[0]
	}
	if len(ackInfo) > 1 {
		groupFunction = ackInfo[1]
	}

	pgnBytes := pgnBytesLE(requestedPGN)
	return []byte{
		control,
		groupFunction,
		0xFF,
		0xFF,
		targetAddress,
		pgnBytes[0],
		pgnBytes[1],
		pgnBytes[2],
	}
}
