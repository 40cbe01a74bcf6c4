package txerrors

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// revertSelector is the 4-byte selector of the solidity Error(string)
// payload, keccak256("Error(string)")[:4].
const revertSelector = "08c379a0"

// decodeRevertReason extracts the human-readable reason from an ABI-encoded
// Error(string) payload. Accepts raw bytes or a hex string with or without
// the 0x prefix. Returns "" when the payload is not a well-formed revert.
func decodeRevertReason(data []byte) string {
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(reason)
}

func decodeRevertReasonHex(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	data, err := hexutil.Decode(s)
	if err != nil {
		return ""
	}
	return decodeRevertReason(data)
}

// findRevertPayload scans a raw message for an embedded Error(string)
// payload. Some providers stuff the hex blob into the message text rather
// than a structured data field.
func findRevertPayload(message string) string {
	idx := strings.Index(strings.ToLower(message), revertSelector)
	if idx < 0 {
		return ""
	}
	blob := message[idx:]
	// Cut at the first non-hex character.
	end := len(blob)
	for i, r := range blob {
		if !isHexDigit(r) {
			end = i
			break
		}
	}
	return decodeRevertReasonHex(blob[:end])
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
