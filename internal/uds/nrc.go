// Package uds implements the UDS (ISO 14229) service-dispatch responder: SID
// routing, the ReadDataByIdentifier/DiagnosticSessionControl/SecurityAccess/
// TesterPresent handlers, and the negative-response encoding shared by all
// of them.
package uds

// Service identifiers this responder recognizes by name, plus their
// positive-response counterparts (request SID + 0x40).
const (
	SIDDiagnosticSessionControl byte = 0x10
	SIDSecurityAccess           byte = 0x27
	SIDReadDataByIdentifier     byte = 0x22
	SIDRoutineControl           byte = 0x31
	SIDRequestDownload          byte = 0x34
	SIDTransferData             byte = 0x36
	SIDRequestTransferExit      byte = 0x37
	SIDTesterPresent            byte = 0x3E

	NegativeResponseSID byte = 0x7F
)

func positiveOf(requestSID byte) byte {
	return requestSID + 0x40
}

// Negative Response Codes, ISO 14229-1 Annex A.
const (
	NRCGeneralReject                          byte = 0x10
	NRCServiceNotSupported                    byte = 0x11
	NRCSubFunctionNotSupported                byte = 0x12
	NRCIncorrectMessageLength                 byte = 0x13
	NRCConditionsNotCorrect                   byte = 0x22
	NRCRequestSequenceError                   byte = 0x24
	NRCRequestOutOfRange                      byte = 0x31
	NRCSecurityAccessDenied                   byte = 0x33
	NRCInvalidKey                             byte = 0x35
	NRCSubFunctionNotSupportedInActiveSession byte = 0x7E
)

// NegativeResponse builds the standard {0x7F, SID, NRC} triple.
func NegativeResponse(requestSID, nrc byte) []byte {
	return []byte{NegativeResponseSID, requestSID, nrc}
}
