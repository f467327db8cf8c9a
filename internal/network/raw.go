package network

import (
	"encoding/hex"
	"strings"
)

// Heartbeat is the zero-payload frame block sent on RAW output every
// minute to keep idle clients alive.
const (
	heartbeatLine   = "*0000;\n"
	heartbeatRepeat = 5
)

// HeartbeatBlock returns the five-line RAW heartbeat.
func HeartbeatBlock() []byte {
	return []byte(strings.Repeat(heartbeatLine, heartbeatRepeat))
}

// FormatRaw renders a validated frame in AVR format: '*' + hex + ";\n".
func FormatRaw(payload []byte) []byte {
	out := make([]byte, 1+len(payload)*2+2)
	out[0] = '*'
	hex.Encode(out[1:], payload)
	out[len(out)-2] = ';'
	out[len(out)-1] = '\n'
	return out
}

// mlatTimestampDigits is the length of the timestamp prefix on
// '@'-framed lines.
const mlatTimestampDigits = 12

// ParseRawLine parses one inbound AVR line. Tolerated forms are
// "*HEX;", "<HEX;" and "@TSHEX;" where TS is a 12-digit MLAT
// timestamp; the timestamp is dropped and the frame flagged as MLAT.
func ParseRawLine(line string) (payload []byte, fromMLAT bool, ok bool) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || !strings.HasSuffix(line, ";") {
		return nil, false, false
	}
	body := line[1 : len(line)-1]

	switch line[0] {
	case '*', '<':
	case '@':
		if len(body) <= mlatTimestampDigits {
			return nil, false, false
		}
		body = body[mlatTimestampDigits:]
		fromMLAT = true
	default:
		return nil, false, false
	}

	payload, err := hex.DecodeString(body)
	if err != nil {
		return nil, false, false
	}
	if len(payload) != 7 && len(payload) != 14 {
		return nil, false, false
	}
	return payload, fromMLAT, true
}
