package modes

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func parseHex(t *testing.T, s string) *Message {
	t.Helper()
	payload := mustHex(t, s)
	raw := &RawMessage{
		Bytes:     payload,
		ICAO:      addressOf(payload),
		Timestamp: time.Now(),
	}
	return Parse(raw)
}

func TestParseIdentification(t *testing.T) {
	msg := parseHex(t, "8d4840d6202cc371c32ce0576098")

	assert.Equal(t, uint8(17), msg.DF)
	assert.Equal(t, uint32(0x4840d6), msg.ICAO)
	assert.Equal(t, uint8(4), msg.TypeCode)
	assert.True(t, msg.Flags.Has(FlagCallsignValid))
	assert.Equal(t, "KLM1023", msg.Callsign)
	assert.Equal(t, "A0", msg.Category)
}

func TestParseAirbornePosition(t *testing.T) {
	msg := parseHex(t, "8d40621d58c382d690c8ac2863a7")

	assert.Equal(t, uint8(11), msg.TypeCode)
	assert.True(t, msg.Flags.Has(FlagAltitudeValid))
	assert.Equal(t, 38000, msg.Altitude)
	assert.True(t, msg.Flags.Has(FlagLLEvenValid))
	assert.False(t, msg.Odd)
	assert.False(t, msg.Surface)
	assert.Equal(t, 7, msg.NUCp)
}

func TestParseVelocity(t *testing.T) {
	msg := parseHex(t, "8d485020994409940838175b284f")

	assert.Equal(t, uint8(19), msg.TypeCode)
	assert.True(t, msg.Flags.Has(FlagSpeedValid))
	assert.True(t, msg.Flags.Has(FlagHeadingValid))
	assert.Equal(t, 159, msg.Speed)
	assert.InDelta(t, 182.88, msg.Heading, 0.01)
	assert.Equal(t, -832, msg.VertRate)
	assert.False(t, msg.IsAirspeed)
}

func TestParseSurveillanceAltitude(t *testing.T) {
	// DF4 with AC13 in Q-bit form: N*25 - 1000.
	payload := []byte{0x20, 0x00, 0x00, 0x00, 0, 0, 0}
	field := encodeAC13Q((36000 + 1000) / 25)
	payload[2] = byte(field >> 8)
	payload[3] = byte(field)

	raw := &RawMessage{Bytes: payload, ICAO: 0xabcdef}
	msg := Parse(raw)
	assert.True(t, msg.Flags.Has(FlagAltitudeValid))
	assert.Equal(t, 36000, msg.Altitude)
}

func TestDecodeAC13Gillham(t *testing.T) {
	// B2 | C4 encodes 700 ft in the 100 ft Gillham code.
	alt, ok := decodeAC13(0x0108)
	require.True(t, ok)
	assert.Equal(t, 700, alt)
}

// encodeAC13Q is the test-side inverse of the 25 ft AC13 decode.
func encodeAC13Q(n int) uint16 {
	u := uint16(n)
	return (u&0x0fe0)<<2 | (u&0x0010)<<1 | u&0x000f | 0x0010
}

func TestDecodeAC13Metric(t *testing.T) {
	// M bit set: the field value is metres.
	n := uint16(1000)
	field := (n<<1)&0x1f80 | n&0x003f | 0x0040
	alt, ok := decodeAC13(field)
	require.True(t, ok)
	assert.Equal(t, 3281, alt)
}

// TestAltitudeQRoundTrip checks decode(encode(N)) == N for the 25 ft
// form over the whole encodable range.
func TestAltitudeQRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 2047).Draw(t, "n")
		want := n*25 - 1000

		got, ok := decodeAC13(encodeAC13Q(n))
		require.True(t, ok)
		assert.Equal(t, want, got)
	})
}

// encodeID13 is the test-side inverse of decodeID13.
func encodeID13(squawk int) uint16 {
	a := uint16(squawk / 1000 % 10)
	b := uint16(squawk / 100 % 10)
	c := uint16(squawk / 10 % 10)
	d := uint16(squawk % 10)

	var f uint16
	if c&1 != 0 {
		f |= 0x1000 // C1
	}
	if a&1 != 0 {
		f |= 0x0800 // A1
	}
	if c&2 != 0 {
		f |= 0x0400 // C2
	}
	if a&2 != 0 {
		f |= 0x0200 // A2
	}
	if c&4 != 0 {
		f |= 0x0100 // C4
	}
	if a&4 != 0 {
		f |= 0x0080 // A4
	}
	if b&1 != 0 {
		f |= 0x0020 // B1
	}
	if d&1 != 0 {
		f |= 0x0010 // D1
	}
	if b&2 != 0 {
		f |= 0x0008 // B2
	}
	if d&2 != 0 {
		f |= 0x0004 // D2
	}
	if b&4 != 0 {
		f |= 0x0002 // B4
	}
	if d&4 != 0 {
		f |= 0x0001 // D4
	}
	return f
}

func TestSquawkRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.IntRange(0, 7).Draw(t, "a")
		b := rapid.IntRange(0, 7).Draw(t, "b")
		c := rapid.IntRange(0, 7).Draw(t, "c")
		d := rapid.IntRange(0, 7).Draw(t, "d")
		squawk := a*1000 + b*100 + c*10 + d

		assert.Equal(t, squawk, decodeID13(encodeID13(squawk)))
	})
}

func TestSquawkKnownCodes(t *testing.T) {
	for _, sq := range []int{7500, 7600, 7700, 1200, 2000} {
		assert.Equal(t, sq, decodeID13(encodeID13(sq)))
	}
}

// encodeCallsign is the test-side inverse of the identification parse.
func encodeCallsign(cs string) []byte {
	for len(cs) < 8 {
		cs += " "
	}
	codes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		codes[i] = byte(strings.IndexByte(Charset, cs[i]))
	}

	d := make([]byte, 14)
	d[0] = 17 << 3
	d[4] = 4 << 3 // TC4, category 0
	d[5] = codes[0]<<2 | codes[1]>>4
	d[6] = codes[1]<<4 | codes[2]>>2
	d[7] = codes[2]<<6 | codes[3]
	d[8] = codes[4]<<2 | codes[5]>>4
	d[9] = codes[5]<<4 | codes[6]>>2
	d[10] = codes[6]<<6 | codes[7]
	return d
}

func TestCallsignRoundTrip(t *testing.T) {
	alphabet := "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "len")
		var sb strings.Builder
		for i := 0; i < n; i++ {
			sb.WriteByte(alphabet[rapid.IntRange(0, len(alphabet)-1).Draw(t, "ch")])
		}
		cs := sb.String()

		raw := &RawMessage{Bytes: encodeCallsign(cs), ICAO: 0x123456}
		msg := Parse(raw)
		require.True(t, msg.Flags.Has(FlagCallsignValid))
		assert.Equal(t, cs, msg.Callsign)
	})
}

func TestParseStatusEmergency(t *testing.T) {
	d := make([]byte, 14)
	d[0] = 17 << 3
	d[4] = 28<<3 | 1 // TC28 subtype 1

	id13 := encodeID13(7700)
	d[5] = 1<<5 | byte(id13>>8)&0x1f // emergency state 1
	d[6] = byte(id13)

	msg := Parse(&RawMessage{Bytes: d, ICAO: 0x123456})
	assert.True(t, msg.Emergency)
	assert.True(t, msg.Flags.Has(FlagSquawkValid))
	assert.Equal(t, 7700, msg.Squawk)
}

func TestParseSurfacePosition(t *testing.T) {
	d := make([]byte, 14)
	d[0] = 17 << 3
	// TC7, movement 39 (15 kn), heading valid, 90 degrees (32/128).
	mov := byte(39)
	d[4] = 7<<3 | mov>>4
	trk := byte(32)
	d[5] = mov<<4 | 0x08 | trk>>4
	d[6] = trk << 4

	msg := Parse(&RawMessage{Bytes: d, ICAO: 0x123456})
	assert.True(t, msg.Surface)
	assert.True(t, msg.Flags.Has(FlagOnGround))
	assert.True(t, msg.Flags.Has(FlagSpeedValid))
	assert.Equal(t, 15, msg.Speed)
	assert.True(t, msg.Flags.Has(FlagHeadingValid))
	assert.InDelta(t, 90.0, msg.Heading, 0.01)
	assert.True(t, msg.Flags.Has(FlagLLEvenValid))
}

func TestNUCpTable(t *testing.T) {
	assert.Equal(t, 9, airborneNUCp(9))
	assert.Equal(t, 0, airborneNUCp(18))
	assert.Equal(t, 5, airborneNUCp(13))
	assert.Equal(t, 9, airborneNUCp(20))
}
