package track

import (
	"time"

	"adsb1090/internal/modes"
)

// vertRateWindow is the number of vertical-rate observations kept for
// the rotorcraft heuristic.
const vertRateWindow = 5

type cprHalf struct {
	lat, lon uint32
	nuc      int
	t        time.Time
}

// Aircraft is one live registry entry. All fields are guarded by the
// registry mutex; readers get copies via View.
type Aircraft struct {
	ICAO     uint32
	Callsign string
	Squawk   int
	Category string

	Altitude int
	Speed    int
	Heading  float64
	VertRate int

	Lat       float64
	Lon       float64
	PosNUC    int
	DistanceM float64

	OnGround   bool
	Helicopter bool
	Emergency  bool

	FirstSeen   time.Time
	LastSeen    time.Time
	LastSeenPos time.Time
	Messages    int64
	Flags       modes.Flags

	even cprHalf
	odd  cprHalf

	vertRates [vertRateWindow]int
	vertRateN int
}

// View is a copied-out snapshot of one aircraft, safe to hold across
// I/O without the registry lock.
type View struct {
	ICAO     uint32
	Callsign string
	Squawk   int
	Category string

	Altitude int
	Speed    int
	Heading  float64
	VertRate int

	Lat       float64
	Lon       float64
	PosNUC    int
	DistanceM float64

	OnGround   bool
	Helicopter bool
	Emergency  bool

	FirstSeen   time.Time
	LastSeen    time.Time
	LastSeenPos time.Time
	Messages    int64
	Flags       modes.Flags
}

func (a *Aircraft) view() View {
	return View{
		ICAO:        a.ICAO,
		Callsign:    a.Callsign,
		Squawk:      a.Squawk,
		Category:    a.Category,
		Altitude:    a.Altitude,
		Speed:       a.Speed,
		Heading:     a.Heading,
		VertRate:    a.VertRate,
		Lat:         a.Lat,
		Lon:         a.Lon,
		PosNUC:      a.PosNUC,
		DistanceM:   a.DistanceM,
		OnGround:    a.OnGround,
		Helicopter:  a.Helicopter,
		Emergency:   a.Emergency,
		FirstSeen:   a.FirstSeen,
		LastSeen:    a.LastSeen,
		LastSeenPos: a.LastSeenPos,
		Messages:    a.Messages,
		Flags:       a.Flags,
	}
}

func (a *Aircraft) pushVertRate(rate int) {
	copy(a.vertRates[1:], a.vertRates[:vertRateWindow-1])
	a.vertRates[0] = rate
	if a.vertRateN < vertRateWindow {
		a.vertRateN++
	}
}

// IsHelicopter reports whether the observations look like rotorcraft:
// slow, with the vertical rate repeatedly changing direction over the
// observation window.
func IsHelicopter(speed int, rates []int) bool {
	if speed >= 80 || len(rates) < vertRateWindow {
		return false
	}

	min, max := rates[0], rates[0]
	reversals := 0
	for i := 1; i < len(rates); i++ {
		if rates[i] < min {
			min = rates[i]
		}
		if rates[i] > max {
			max = rates[i]
		}
		if rates[i]*rates[i-1] < 0 {
			reversals++
		}
	}
	return max-min > 1500 && reversals >= 2
}
