package web

import (
	"time"

	"adsb1090/internal/modes"
	"adsb1090/internal/track"
)

// aircraftJSON builds one tar1090-style aircraft entry. Only currently
// valid fields are present.
func aircraftJSON(v track.View, now time.Time) map[string]any {
	entry := map[string]any{
		"hex":      hexICAO(v.ICAO),
		"messages": v.Messages,
		"seen":     round1(now.Sub(v.LastSeen).Seconds()),
	}

	if v.Callsign != "" {
		entry["flight"] = v.Callsign
	}
	if v.Category != "" {
		entry["category"] = v.Category
	}
	if v.Flags.Has(modes.FlagSquawkValid) {
		entry["squawk"] = squawkString(v.Squawk)
	}
	if v.Flags.Has(modes.FlagAltitudeValid) {
		if v.OnGround {
			entry["alt_baro"] = "ground"
		} else {
			entry["alt_baro"] = v.Altitude
		}
	}
	if v.Flags.Has(modes.FlagSpeedValid) {
		entry["gs"] = v.Speed
	}
	if v.Flags.Has(modes.FlagHeadingValid) {
		entry["track"] = round1(v.Heading)
	}
	if v.VertRate != 0 {
		entry["baro_rate"] = v.VertRate
	}
	if v.Flags.Has(modes.FlagLatLonValid) {
		entry["lat"] = v.Lat
		entry["lon"] = v.Lon
		entry["nuc_p"] = v.PosNUC
		entry["seen_pos"] = round1(now.Sub(v.LastSeenPos).Seconds())
		if v.DistanceM > 0 {
			entry["r_dst"] = round1(v.DistanceM / 1852) // NM
		}
	}
	if v.Flags.Has(modes.FlagFromMLAT) {
		entry["mlat"] = []string{"lat", "lon"}
	}
	if v.Emergency {
		entry["emergency"] = squawkString(v.Squawk)
	}
	if v.Helicopter {
		entry["rotorcraft"] = true
	}

	return entry
}

// legacyAircraftJSON builds one entry of the flat data.json array.
func legacyAircraftJSON(v track.View) map[string]any {
	entry := map[string]any{
		"hex":      hexICAO(v.ICAO),
		"flight":   v.Callsign,
		"altitude": v.Altitude,
		"speed":    v.Speed,
		"track":    int(v.Heading),
		"lat":      0.0,
		"lon":      0.0,
		"validposition": 0,
	}
	if v.Flags.Has(modes.FlagLatLonValid) {
		entry["lat"] = v.Lat
		entry["lon"] = v.Lon
		entry["validposition"] = 1
	}
	return entry
}

func hexICAO(icao uint32) string {
	const digits = "0123456789abcdef"
	return string([]byte{
		digits[icao>>20&0xf], digits[icao>>16&0xf],
		digits[icao>>12&0xf], digits[icao>>8&0xf],
		digits[icao>>4&0xf], digits[icao&0xf],
	})
}

func squawkString(sq int) string {
	return string([]byte{
		'0' + byte(sq/1000%10), '0' + byte(sq/100%10),
		'0' + byte(sq/10%10), '0' + byte(sq%10),
	})
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}
