// Package sbs formats and parses BaseStation (SBS-1) CSV lines.
package sbs

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"adsb1090/internal/modes"
)

// BaseStation transmission types.
const (
	TransmissionIdent        = 1 // ES identification and category
	TransmissionSurfacePos   = 2 // ES surface position
	TransmissionAirbornePos  = 3 // ES airborne position
	TransmissionVelocity     = 4 // ES airborne velocity
	TransmissionSurvAlt      = 5 // surveillance altitude
	TransmissionSurvID       = 6 // surveillance identity
	TransmissionAirToAir     = 7 // air-to-air
	TransmissionAllCall      = 8 // all-call reply
)

const fieldCount = 22

// Position carries an already-decoded location for the line, when the
// registry has one for this aircraft.
type Position struct {
	Lat, Lon float64
	Valid    bool
}

// transmissionType maps a parsed message onto the SBS numbering, or 0
// when the message kind has no SBS representation.
func transmissionType(msg *modes.Message) int {
	switch msg.DF {
	case 17, 18:
		switch {
		case msg.TypeCode >= 1 && msg.TypeCode <= 4:
			return TransmissionIdent
		case msg.TypeCode >= 5 && msg.TypeCode <= 8:
			return TransmissionSurfacePos
		case (msg.TypeCode >= 9 && msg.TypeCode <= 18) || (msg.TypeCode >= 20 && msg.TypeCode <= 22):
			return TransmissionAirbornePos
		case msg.TypeCode == 19:
			return TransmissionVelocity
		case msg.TypeCode == 28:
			return TransmissionSurvID
		}
	case 4, 20:
		return TransmissionSurvAlt
	case 5, 21:
		return TransmissionSurvID
	case 0, 16:
		return TransmissionAirToAir
	case 11:
		return TransmissionAllCall
	}
	return 0
}

// Format renders one message as a BaseStation CSV line terminated with
// CRLF, or "" for message kinds SBS does not carry. Timestamps are UTC.
func Format(msg *modes.Message, pos Position, now time.Time) string {
	tt := transmissionType(msg)
	if tt == 0 {
		return ""
	}

	now = now.UTC()
	date := now.Format("2006/01/02")
	clock := now.Format("15:04:05.000")

	f := make([]string, fieldCount)
	f[0] = "MSG"
	f[1] = strconv.Itoa(tt)
	f[2] = "1" // session
	f[3] = "1" // aircraft
	f[4] = fmt.Sprintf("%06X", msg.ICAO)
	f[5] = "1" // flight
	f[6], f[7] = date, clock
	f[8], f[9] = date, clock

	if msg.Flags.Has(modes.FlagCallsignValid) {
		f[10] = msg.Callsign
	}
	if msg.Flags.Has(modes.FlagAltitudeValid) {
		f[11] = strconv.Itoa(msg.Altitude)
	}
	if msg.Flags.Has(modes.FlagSpeedValid) {
		f[12] = strconv.Itoa(msg.Speed)
	}
	if msg.Flags.Has(modes.FlagHeadingValid) {
		f[13] = strconv.FormatFloat(msg.Heading, 'f', 1, 64)
	}
	if pos.Valid {
		f[14] = strconv.FormatFloat(pos.Lat, 'f', 5, 64)
		f[15] = strconv.FormatFloat(pos.Lon, 'f', 5, 64)
	}
	if msg.DF == 17 || msg.DF == 18 {
		if msg.TypeCode == 19 && msg.VertRate != 0 {
			f[16] = strconv.Itoa(msg.VertRate)
		}
	}
	if msg.Flags.Has(modes.FlagSquawkValid) {
		f[17] = fmt.Sprintf("%04d", msg.Squawk)
		if msg.Squawk == 7500 || msg.Squawk == 7600 || msg.Squawk == 7700 {
			f[18] = "1" // alert
			f[19] = "1" // emergency
		}
	}
	if msg.Flags.Has(modes.FlagOnGround) {
		f[21] = "-1"
	} else {
		f[21] = "0"
	}

	return strings.Join(f, ",") + "\r\n"
}

// ParseLine parses one inbound BaseStation line into a Message. Lines
// that are not MSG records, or are too short, are rejected.
func ParseLine(line string, now time.Time) (*modes.Message, bool) {
	line = strings.TrimRight(line, "\r\n")
	f := strings.Split(line, ",")
	if len(f) < fieldCount || f[0] != "MSG" {
		return nil, false
	}

	icao64, err := strconv.ParseUint(strings.TrimSpace(f[4]), 16, 32)
	if err != nil || icao64 == 0 {
		return nil, false
	}

	msg := &modes.Message{
		DF:        17, // SBS carries decoded extended squitter content
		ICAO:      uint32(icao64),
		Timestamp: now,
	}

	if cs := strings.TrimSpace(f[10]); cs != "" {
		msg.Callsign = cs
		msg.Flags |= modes.FlagCallsignValid
	}
	if alt, err := strconv.Atoi(strings.TrimSpace(f[11])); err == nil {
		msg.Altitude = alt
		msg.Flags |= modes.FlagAltitudeValid
	}
	if gs, err := strconv.ParseFloat(strings.TrimSpace(f[12]), 64); err == nil {
		msg.Speed = int(gs)
		msg.Flags |= modes.FlagSpeedValid
	}
	if trk, err := strconv.ParseFloat(strings.TrimSpace(f[13]), 64); err == nil {
		msg.Heading = trk
		msg.Flags |= modes.FlagHeadingValid
	}
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(f[14]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(f[15]), 64)
	if latErr == nil && lonErr == nil {
		msg.Lat, msg.Lon = lat, lon
		msg.Flags |= modes.FlagLatLonValid
	}
	if vr, err := strconv.Atoi(strings.TrimSpace(f[16])); err == nil {
		msg.VertRate = vr
		msg.TypeCode = 19
	}
	if sq, err := strconv.Atoi(strings.TrimSpace(f[17])); err == nil && sq > 0 {
		msg.Squawk = sq
		msg.Flags |= modes.FlagSquawkValid
	}
	if g := strings.TrimSpace(f[21]); g == "-1" || g == "1" {
		msg.Flags |= modes.FlagOnGround
		msg.Surface = true
	}

	return msg, true
}
