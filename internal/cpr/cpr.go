// Package cpr implements Compact Position Reporting: global decode
// from an even/odd pair of 17-bit halves, and local decode from one
// half plus a nearby reference.
package cpr

import (
	"errors"
	"math"
	"time"
)

// cprMax is the resolution of one coordinate half.
const cprMax = 131072.0 // 2^17

var (
	// ErrLatZoneCrossed marks a pair whose halves straddle an NL
	// transition; not an error, just retry with a fresher pair.
	ErrLatZoneCrossed = errors.New("cpr: halves cross a latitude zone")
	// ErrBadLatitude marks a decode outside [-90, 90].
	ErrBadLatitude = errors.New("cpr: latitude out of range")
	// ErrOutsideCell marks a local decode farther than half a cell
	// from its reference.
	ErrOutsideCell = errors.New("cpr: reference outside half-cell")
)

// Half is one CPR position half as carried by a position squitter.
type Half struct {
	Lat  uint32
	Lon  uint32
	Odd  bool
	Time time.Time
	NUC  int
}

func modInt(a, b int) int {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}

func modFloat(a, b float64) float64 {
	r := math.Mod(a, b)
	if r < 0 {
		r += b
	}
	return r
}

// DecodeGlobal reconstructs a position from an even and an odd half.
// The caller guarantees both are fresh (within the pairing window).
// For surface decodes the 90-degree quadrant ambiguity is resolved
// against the reference point; haveRef must then be true.
func DecodeGlobal(even, odd Half, surface bool, refLat, refLon float64, haveRef bool) (float64, float64, error) {
	span := 360.0
	if surface {
		span = 90.0
	}
	dLat0 := span / 60.0
	dLat1 := span / 59.0

	lat0 := float64(even.Lat)
	lat1 := float64(odd.Lat)

	j := int(math.Floor((59*lat0-60*lat1)/cprMax + 0.5))
	rlat0 := dLat0 * (float64(modInt(j, 60)) + lat0/cprMax)
	rlat1 := dLat1 * (float64(modInt(j, 59)) + lat1/cprMax)

	if surface {
		// The surface encoding covers a quarter of the globe; the
		// other hemisphere candidate is 90 degrees south.
		if haveRef {
			rlat0 = closerLat(rlat0, refLat)
			rlat1 = closerLat(rlat1, refLat)
		}
	} else {
		if rlat0 >= 270 {
			rlat0 -= 360
		}
		if rlat1 >= 270 {
			rlat1 -= 360
		}
	}
	if rlat0 < -90 || rlat0 > 90 || rlat1 < -90 || rlat1 > 90 {
		return 0, 0, ErrBadLatitude
	}

	if NL(rlat0) != NL(rlat1) {
		return 0, 0, ErrLatZoneCrossed
	}

	// Longitude uses whichever half is most recent.
	latestOdd := odd.Time.After(even.Time)
	var rlat, frac float64
	if latestOdd {
		rlat = rlat1
		frac = float64(odd.Lon) / cprMax
	} else {
		rlat = rlat0
		frac = float64(even.Lon) / cprMax
	}

	nl := NL(rlat)
	ni := nl
	if latestOdd {
		ni--
	}
	if ni < 1 {
		ni = 1
	}

	m := int(math.Floor((float64(even.Lon)*float64(nl-1)-float64(odd.Lon)*float64(nl))/cprMax + 0.5))
	rlon := span / float64(ni) * (float64(modInt(m, ni)) + frac)

	if surface {
		rlon = closerLon(rlon, refLon)
	} else {
		rlon -= math.Floor((rlon+180)/360) * 360
	}

	return rlat, rlon, nil
}

// closerLat picks between the northern solution and its 90-degree
// southern counterpart, whichever lies nearest the reference.
func closerLat(rlat, refLat float64) float64 {
	if math.Abs(rlat-90-refLat) < math.Abs(rlat-refLat) {
		return rlat - 90
	}
	return rlat
}

// closerLon picks among the four 90-degree longitude quadrants the one
// nearest the reference.
func closerLon(rlon, refLon float64) float64 {
	best := math.MaxFloat64
	out := rlon
	for k := 0; k < 4; k++ {
		cand := rlon + 90*float64(k)
		cand -= math.Floor((cand+180)/360) * 360
		if d := lonDelta(cand, refLon); d < best {
			best = d
			out = cand
		}
	}
	return out
}

// DecodeLocal reconstructs a position from a single half and a
// reference no farther than half a cell away: the previous aircraft
// position, or the receiver location for airborne targets.
func DecodeLocal(h Half, surface bool, refLat, refLon float64) (float64, float64, error) {
	span := 360.0
	if surface {
		span = 90.0
	}
	dLat := span / 60.0
	if h.Odd {
		dLat = span / 59.0
	}

	fracLat := float64(h.Lat) / cprMax
	// The zone index comes from the same remainder as the in-zone
	// offset, so the two cannot disagree by one at a zone boundary.
	rLat := modFloat(refLat, dLat)
	j := int(math.Round((refLat-rLat)/dLat)) +
		int(math.Floor(0.5+rLat/dLat-fracLat))
	rlat := dLat * (float64(j) + fracLat)

	if rlat < -90 || rlat > 90 {
		return 0, 0, ErrBadLatitude
	}
	if math.Abs(rlat-refLat) > dLat/2 {
		return 0, 0, ErrOutsideCell
	}

	ni := NL(rlat)
	if h.Odd {
		ni--
	}
	if ni < 1 {
		ni = 1
	}
	dLon := span / float64(ni)

	fracLon := float64(h.Lon) / cprMax
	rLon := modFloat(refLon, dLon)
	m := int(math.Round((refLon-rLon)/dLon)) +
		int(math.Floor(0.5+rLon/dLon-fracLon))
	rlon := dLon * (float64(m) + fracLon)

	if lonDelta(rlon, refLon) > dLon/2 {
		return 0, 0, ErrOutsideCell
	}
	rlon -= math.Floor((rlon+180)/360) * 360

	return rlat, rlon, nil
}

// MaxLocalCell returns half the smaller of the longitude and latitude
// cell sizes, in metres, at the given latitude. Local decode against the receiver is unsafe when
// the configured range exceeds this radius.
func MaxLocalCell(lat float64, surface bool) float64 {
	span := 360.0
	if surface {
		span = 90.0
	}
	ni := NL(lat) - 1 // odd encoding has the narrower cells
	if ni < 1 {
		ni = 1
	}
	dLonM := span / float64(ni) * 111320 * math.Cos(lat*math.Pi/180)
	dLatM := span / 59.0 * 111320
	return math.Min(dLonM, dLatM) / 2
}
