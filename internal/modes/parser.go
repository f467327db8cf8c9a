package modes

import (
	"math"
	"strings"
)

// Charset is the 6-bit alphabet used by aircraft identification frames.
// Codes 1-26 are letters, 32 is space, 48-57 are digits; everything
// else is invalid and rendered '#'.
const Charset = "#ABCDEFGHIJKLMNOPQRSTUVWXYZ##### ###############0123456789######"

// Parse decomposes a validated frame into a typed Message. It never
// fails: fields it cannot populate are simply left without their flag.
func Parse(raw *RawMessage) *Message {
	d := raw.Bytes
	msg := &Message{
		DF:        DF(d[0]),
		ICAO:      raw.ICAO,
		Timestamp: raw.Timestamp,
	}
	if raw.FromMLAT {
		msg.Flags |= FlagFromMLAT
	}

	switch msg.DF {
	case 0, 16:
		// Air-air surveillance: VS bit, 13-bit altitude.
		if d[0]&0x04 != 0 {
			msg.Flags |= FlagOnGround
		}
		parseAC13(msg, d)

	case 4, 20:
		parseFlightStatus(msg, d[0]&0x07)
		parseAC13(msg, d)

	case 5, 21:
		parseFlightStatus(msg, d[0]&0x07)
		id13 := uint16(d[2]&0x1f)<<8 | uint16(d[3])
		msg.Squawk = decodeID13(id13)
		msg.Flags |= FlagSquawkValid

	case 11:
		msg.Capability = d[0] & 0x07

	case 17, 18:
		msg.Capability = d[0] & 0x07
		parseExtendedSquitter(msg, d)
	}

	return msg
}

// parseFlightStatus interprets the 3-bit FS field of surveillance
// replies. States 1 and 3 report the aircraft on the ground.
func parseFlightStatus(msg *Message, fs uint8) {
	if fs == 1 || fs == 3 {
		msg.Flags |= FlagOnGround
	}
}

func parseAC13(msg *Message, d []byte) {
	field := uint16(d[2]&0x1f)<<8 | uint16(d[3])
	if field == 0 {
		return
	}
	if alt, ok := decodeAC13(field); ok {
		msg.Altitude = alt
		msg.Flags |= FlagAltitudeValid
	}
}

func parseExtendedSquitter(msg *Message, d []byte) {
	tc := d[4] >> 3
	msg.TypeCode = tc

	switch {
	case tc >= 1 && tc <= 4:
		parseIdentification(msg, d)

	case tc >= 5 && tc <= 8:
		parseSurfacePosition(msg, d)

	case (tc >= 9 && tc <= 18) || (tc >= 20 && tc <= 22):
		parseAirbornePosition(msg, d)

	case tc == 19:
		parseVelocity(msg, d)

	case tc == 28:
		parseStatus(msg, d)
	}
}

func parseIdentification(msg *Message, d []byte) {
	cs := []byte{
		Charset[d[5]>>2],
		Charset[(d[5]&0x03)<<4|d[6]>>4],
		Charset[(d[6]&0x0f)<<2|d[7]>>6],
		Charset[d[7]&0x3f],
		Charset[d[8]>>2],
		Charset[(d[8]&0x03)<<4|d[9]>>4],
		Charset[(d[9]&0x0f)<<2|d[10]>>6],
		Charset[d[10]&0x3f],
	}
	callsign := strings.TrimRight(string(cs), " ")
	if callsign != "" && !strings.Contains(callsign, "#") {
		msg.Callsign = callsign
		msg.Flags |= FlagCallsignValid
	}

	// Type code 4 is category set A, 3 is B, 2 is C, 1 is D.
	msg.Category = string([]byte{'A' + 4 - msg.TypeCode, '0' + (d[4] & 0x07)})
}

func parseSurfacePosition(msg *Message, d []byte) {
	msg.Surface = true
	msg.Flags |= FlagOnGround

	mov := (d[4]&0x07)<<4 | d[5]>>4
	if kn, ok := groundMovement(mov); ok {
		msg.Speed = kn
		msg.Flags |= FlagSpeedValid
	}
	if d[5]&0x08 != 0 {
		trk := uint16(d[5]&0x07)<<4 | uint16(d[6])>>4
		msg.Heading = float64(trk) * 360.0 / 128.0
		msg.Flags |= FlagHeadingValid
	}

	parseCPRHalf(msg, d)
	msg.NUCp = surfaceNUCp(msg.TypeCode)
}

func parseAirbornePosition(msg *Message, d []byte) {
	ac12 := uint16(d[5])<<4 | uint16(d[6])>>4
	if ac12 != 0 {
		if alt, ok := decodeAC12(ac12); ok {
			msg.Altitude = alt
			msg.Flags |= FlagAltitudeValid
		}
	}

	parseCPRHalf(msg, d)
	msg.NUCp = airborneNUCp(msg.TypeCode)
}

func parseCPRHalf(msg *Message, d []byte) {
	msg.Odd = d[6]&0x04 != 0
	msg.RawLat = uint32(d[6]&0x03)<<15 | uint32(d[7])<<7 | uint32(d[8])>>1
	msg.RawLon = uint32(d[8]&0x01)<<16 | uint32(d[9])<<8 | uint32(d[10])
	if msg.Odd {
		msg.Flags |= FlagLLOddValid
	} else {
		msg.Flags |= FlagLLEvenValid
	}
}

func parseVelocity(msg *Message, d []byte) {
	st := d[4] & 0x07
	mult := 1
	if st == 2 || st == 4 {
		mult = 4 // supersonic
	}

	switch st {
	case 1, 2:
		ewRaw := uint16(d[5]&0x03)<<8 | uint16(d[6])
		nsRaw := uint16(d[7]&0x7f)<<3 | uint16(d[8])>>5
		if ewRaw != 0 && nsRaw != 0 {
			ew := float64(int(ewRaw)-1) * float64(mult)
			ns := float64(int(nsRaw)-1) * float64(mult)
			if d[5]&0x04 != 0 {
				ew = -ew
			}
			if d[7]&0x80 != 0 {
				ns = -ns
			}
			msg.Speed = int(math.Round(math.Hypot(ew, ns)))
			msg.Heading = math.Atan2(ew, ns) * 180.0 / math.Pi
			if msg.Heading < 0 {
				msg.Heading += 360
			}
			msg.Flags |= FlagSpeedValid | FlagHeadingValid
		}

	case 3, 4:
		if d[5]&0x04 != 0 {
			hdg := uint16(d[5]&0x03)<<8 | uint16(d[6])
			msg.Heading = float64(hdg) * 360.0 / 1024.0
			msg.Flags |= FlagHeadingValid
		}
		asRaw := uint16(d[7]&0x7f)<<3 | uint16(d[8])>>5
		if asRaw != 0 {
			msg.Speed = (int(asRaw) - 1) * mult
			msg.IsAirspeed = true
			msg.Flags |= FlagSpeedValid
		}
	}

	// Vertical rate is common to all subtypes.
	vr := uint16(d[8]&0x07)<<6 | uint16(d[9])>>2
	if vr != 0 {
		msg.VertRate = (int(vr) - 1) * 64
		if d[8]&0x08 != 0 {
			msg.VertRate = -msg.VertRate
		}
	}
}

// parseStatus handles TC 28 subtype 1: emergency state and squawk.
func parseStatus(msg *Message, d []byte) {
	if d[4]&0x07 != 1 {
		return
	}
	state := d[5] >> 5
	msg.Emergency = state != 0

	id13 := uint16(d[5]&0x1f)<<8 | uint16(d[6])
	if id13 != 0 {
		msg.Squawk = decodeID13(id13)
		msg.Flags |= FlagSquawkValid
	}
}

// airborneNUCp maps an airborne position type code to the navigation
// uncertainty category: 9 at TC 9 down to 0 at TC 18; the GNSS-height
// codes 20-22 rank 9, 8, 0.
func airborneNUCp(tc uint8) int {
	switch {
	case tc >= 9 && tc <= 18:
		return int(18 - tc)
	case tc == 20:
		return 9
	case tc == 21:
		return 8
	}
	return 0
}

func surfaceNUCp(tc uint8) int {
	if tc >= 5 && tc <= 8 {
		return int(14 - tc)
	}
	return 0
}

// decodeAC13 decodes the 13-bit altitude field of surveillance replies.
// The M bit selects metres, the Q bit 25 ft granularity; otherwise the
// field is a 100 ft Gillham code.
func decodeAC13(field uint16) (int, bool) {
	if field&0x0040 != 0 { // M: metres
		n := (field&0x1f80)>>1 | field&0x003f
		return int(math.Round(float64(n) * 3.28084)), true
	}
	if field&0x0010 != 0 { // Q: 25 ft
		n := (field&0x1f80)>>2 | (field&0x0020)>>1 | field&0x000f
		return int(n)*25 - 1000, true
	}
	return gillhamAltitude(field)
}

// decodeAC12 decodes the 12-bit altitude field of airborne position
// squitters, which is the AC13 field with the M bit removed.
func decodeAC12(field uint16) (int, bool) {
	if field&0x0010 != 0 { // Q: 25 ft
		n := (field&0x0fe0)>>1 | field&0x000f
		return int(n)*25 - 1000, true
	}
	return gillhamAltitude((field&0x0fc0)<<1 | field&0x003f)
}

// gillhamAltitude decodes a 13-bit Gillham (mode C) altitude code with
// the M and Q positions zero. D1 is never used at decodable altitudes.
func gillhamAltitude(field uint16) (int, bool) {
	if field&0x0010 != 0 { // D1
		return 0, false
	}

	gray500 := uint16(0)
	if field&0x0004 != 0 { // D2
		gray500 |= 0x80
	}
	if field&0x0001 != 0 { // D4
		gray500 |= 0x40
	}
	if field&0x0800 != 0 { // A1
		gray500 |= 0x20
	}
	if field&0x0200 != 0 { // A2
		gray500 |= 0x10
	}
	if field&0x0080 != 0 { // A4
		gray500 |= 0x08
	}
	if field&0x0020 != 0 { // B1
		gray500 |= 0x04
	}
	if field&0x0008 != 0 { // B2
		gray500 |= 0x02
	}
	if field&0x0002 != 0 { // B4
		gray500 |= 0x01
	}

	gray100 := uint16(0)
	if field&0x1000 != 0 { // C1
		gray100 |= 0x04
	}
	if field&0x0400 != 0 { // C2
		gray100 |= 0x02
	}
	if field&0x0100 != 0 { // C4
		gray100 |= 0x01
	}

	fivehundreds := int(grayToBinary(gray500))
	onehundreds := int(grayToBinary(gray100))

	switch onehundreds {
	case 0, 5, 6:
		return 0, false
	case 7:
		onehundreds = 5
	}
	if fivehundreds&1 != 0 {
		onehundreds = 6 - onehundreds
	}

	alt := fivehundreds*500 + onehundreds*100 - 1300
	if alt < -1200 {
		return 0, false
	}
	return alt, true
}

func grayToBinary(g uint16) uint16 {
	for shift := uint(8); shift > 0; shift >>= 1 {
		g ^= g >> shift
	}
	return g
}

// decodeID13 converts the 13-bit identity field into a 4-digit octal
// squawk. The bit order interleaves the A, B, C and D pulse groups.
func decodeID13(field uint16) int {
	var h uint16
	if field&0x1000 != 0 {
		h |= 0x0010 // C1
	}
	if field&0x0800 != 0 {
		h |= 0x1000 // A1
	}
	if field&0x0400 != 0 {
		h |= 0x0020 // C2
	}
	if field&0x0200 != 0 {
		h |= 0x2000 // A2
	}
	if field&0x0100 != 0 {
		h |= 0x0040 // C4
	}
	if field&0x0080 != 0 {
		h |= 0x4000 // A4
	}
	if field&0x0020 != 0 {
		h |= 0x0100 // B1
	}
	if field&0x0010 != 0 {
		h |= 0x0001 // D1
	}
	if field&0x0008 != 0 {
		h |= 0x0200 // B2
	}
	if field&0x0004 != 0 {
		h |= 0x0002 // D2
	}
	if field&0x0002 != 0 {
		h |= 0x0400 // B4
	}
	if field&0x0001 != 0 {
		h |= 0x0004 // D4
	}

	a := int(h>>12) & 7
	b := int(h>>8) & 7
	c := int(h>>4) & 7
	dd := int(h) & 7
	return a*1000 + b*100 + c*10 + dd
}

// groundMovement decodes the 7-bit surface movement field into knots
// per the quantization table; 0 means no information.
func groundMovement(mov byte) (int, bool) {
	m := float64(mov)
	var kn float64
	switch {
	case mov == 0:
		return 0, false
	case mov == 1:
		kn = 0
	case mov <= 8:
		kn = 0.125 + (m-2)*0.125
	case mov <= 12:
		kn = 1 + (m-9)*0.25
	case mov <= 38:
		kn = 2 + (m-13)*0.5
	case mov <= 93:
		kn = 15 + (m-39)*1
	case mov <= 108:
		kn = 70 + (m-94)*2
	case mov <= 123:
		kn = 100 + (m-109)*5
	case mov == 124:
		kn = 175
	default:
		return 0, false
	}
	return int(math.Round(kn)), true
}
