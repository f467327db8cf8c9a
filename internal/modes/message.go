package modes

import "time"

// Flags marks which optional Message fields carry a value. The same
// bitset is unioned into the aircraft record on merge.
type Flags uint16

const (
	FlagLatLonValid Flags = 1 << iota
	FlagAltitudeValid
	FlagHeadingValid
	FlagSpeedValid
	FlagCallsignValid
	FlagSquawkValid
	FlagOnGround
	FlagFromMLAT
	FlagLLOddValid
	FlagLLEvenValid
	FlagLatLonRelOK
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// RawMessage is a validated frame as it came off the air or the wire:
// payload bytes plus reception metadata. The RAW output formatter works
// on this form; everything else consumes the parsed Message.
type RawMessage struct {
	Bytes     []byte // 7 or 14 bytes, CRC-clean (possibly repaired)
	ICAO      uint32
	Timestamp time.Time
	Signal    uint16
	Repaired  int // bits flipped by the error corrector
	FromMLAT  bool
}

// Message is one parsed frame. Optional fields are only meaningful when
// the corresponding flag is set.
type Message struct {
	DF         uint8
	ICAO       uint32
	Capability uint8
	TypeCode   uint8

	Altitude int     // feet
	Callsign string  // up to 8 characters, trailing space trimmed
	Squawk   int     // 4 octal digits as a decimal number
	Category string  // emitter category, e.g. "A3"
	Speed    int     // knots (ground speed or airspeed)
	Heading  float64 // degrees, 0..360
	VertRate int     // ft/min
	IsAirspeed bool  // Speed is airspeed, not ground speed

	// CPR half, when the frame carries a position.
	RawLat  uint32
	RawLon  uint32
	Odd     bool
	Surface bool

	// Already-decoded position, for messages arriving over SBS-in.
	Lat float64
	Lon float64

	NUCp      int
	Emergency bool
	Flags     Flags
	Timestamp time.Time
}

// HasPosition reports whether the message carries a CPR half.
func (m *Message) HasPosition() bool {
	return m.Flags.Has(FlagLLOddValid) || m.Flags.Has(FlagLLEvenValid)
}
