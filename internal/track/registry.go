// Package track maintains the live aircraft registry: it fuses parsed
// messages into per-ICAO records, drives CPR position decoding with its
// sanity gates, and ages out stale entries.
package track

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"adsb1090/internal/cpr"
	"adsb1090/internal/modes"
)

// Defaults for the registry timing parameters.
const (
	DefaultTTL        = 60 * time.Second
	DefaultPairWindow = 10 * time.Second

	knotsToMS = 0.514444

	surfaceSlackM  = 100.0
	airborneSlackM = 500.0
	surfaceMinKn   = 20.0
	surfaceMaxKn   = 150.0
	airborneMinKn  = 200.0
)

// Config carries the receiver-side knobs the registry needs.
type Config struct {
	HomeLat  float64
	HomeLon  float64
	HasHome  bool
	MaxDistM float64

	TTL        time.Duration
	PairWindow time.Duration

	CPRTrace bool
}

// Registry is the shared aircraft table. Update, Snapshot and Sweep
// are serialized by one mutex; none of them performs I/O while holding
// it.
type Registry struct {
	mu  sync.Mutex
	cfg Config
	log *logrus.Logger

	aircraft map[uint32]*Aircraft
	messages atomic.Uint64

	// Position decode rejections, by gate.
	zoneCrossed atomic.Uint64
	distGate    atomic.Uint64
	speedGate   atomic.Uint64
	outsideCell atomic.Uint64
}

// New creates an empty registry.
func New(cfg Config, log *logrus.Logger) *Registry {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.PairWindow == 0 {
		cfg.PairWindow = DefaultPairWindow
	}
	return &Registry{
		cfg:      cfg,
		log:      log,
		aircraft: make(map[uint32]*Aircraft),
	}
}

// Update merges one parsed message into the registry and returns a
// snapshot of the updated record.
func (r *Registry) Update(msg *modes.Message) View {
	now := msg.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	r.messages.Add(1)

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.aircraft[msg.ICAO]
	if !ok {
		a = &Aircraft{ICAO: msg.ICAO, FirstSeen: now}
		r.aircraft[msg.ICAO] = a
	}
	a.LastSeen = now
	a.Messages++
	a.Flags |= msg.Flags &^ (modes.FlagLatLonValid | modes.FlagLatLonRelOK)

	if msg.Flags.Has(modes.FlagCallsignValid) {
		a.Callsign = msg.Callsign
	}
	if msg.Flags.Has(modes.FlagSquawkValid) {
		a.Squawk = msg.Squawk
	}
	if msg.Category != "" {
		a.Category = msg.Category
	}
	if msg.Flags.Has(modes.FlagAltitudeValid) {
		a.Altitude = msg.Altitude
	}
	if msg.Flags.Has(modes.FlagSpeedValid) {
		a.Speed = msg.Speed
	}
	if msg.Flags.Has(modes.FlagHeadingValid) {
		a.Heading = msg.Heading
	}
	if msg.DF == 17 || msg.DF == 18 {
		if msg.TypeCode == 19 {
			a.VertRate = msg.VertRate
			a.pushVertRate(msg.VertRate)
			a.Helicopter = IsHelicopter(a.Speed, a.vertRates[:a.vertRateN])
		}
		a.OnGround = msg.Flags.Has(modes.FlagOnGround)
	}
	if msg.Emergency {
		a.Emergency = true
	}

	switch {
	case msg.Flags.Has(modes.FlagLatLonValid):
		// Position already decoded upstream (SBS input). Still gated.
		if r.acceptPosition(a, msg.Lat, msg.Lon, msg.Surface, now) {
			r.commitPosition(a, msg.Lat, msg.Lon, msg.NUCp, now)
		}

	case msg.HasPosition():
		half := cprHalf{lat: msg.RawLat, lon: msg.RawLon, nuc: msg.NUCp, t: now}
		if msg.Odd {
			a.odd = half
		} else {
			a.even = half
		}
		r.decodePosition(a, msg.Odd, msg.Surface, now)
	}

	return a.view()
}

// decodePosition runs the CPR ladder for the half that just arrived:
// global when the opposite half is fresh, otherwise local against the
// best available reference, otherwise nothing.
func (r *Registry) decodePosition(a *Aircraft, odd, surface bool, now time.Time) {
	evenHalf := cpr.Half{Lat: a.even.lat, Lon: a.even.lon, Time: a.even.t}
	oddHalf := cpr.Half{Lat: a.odd.lat, Lon: a.odd.lon, Odd: true, Time: a.odd.t}

	pairT := a.odd.t
	if odd {
		pairT = a.even.t
	}

	if !pairT.IsZero() && now.Sub(pairT) <= r.cfg.PairWindow {
		refLat, refLon, haveRef := r.reference(a)
		lat, lon, err := cpr.DecodeGlobal(evenHalf, oddHalf, surface, refLat, refLon, haveRef)
		switch err {
		case nil:
			nuc := a.even.nuc
			if a.odd.nuc < nuc {
				nuc = a.odd.nuc
			}
			if r.acceptPosition(a, lat, lon, surface, now) {
				r.commitPosition(a, lat, lon, nuc, now)
			}
			return
		case cpr.ErrLatZoneCrossed:
			r.zoneCrossed.Add(1)
			if r.cfg.CPRTrace {
				r.log.WithField("icao", a.ICAO).Debug("CPR pair crossed latitude zone")
			}
			// Fall through to the local attempt.
		default:
			return
		}
	}

	r.decodeLocal(a, odd, surface, now)
}

func (r *Registry) decodeLocal(a *Aircraft, odd, surface bool, now time.Time) {
	half := cpr.Half{Odd: odd}
	if odd {
		half.Lat, half.Lon = a.odd.lat, a.odd.lon
	} else {
		half.Lat, half.Lon = a.even.lat, a.even.lon
	}
	nuc := a.even.nuc
	if odd {
		nuc = a.odd.nuc
	}

	var refLat, refLon float64
	switch {
	case a.Flags.Has(modes.FlagLatLonValid):
		refLat, refLon = a.Lat, a.Lon
	case r.cfg.HasHome && !surface:
		// The receiver is only a trustworthy reference when the
		// configured range fits inside the ambiguity cell.
		if r.cfg.MaxDistM <= 0 || r.cfg.MaxDistM > cpr.MaxLocalCell(r.cfg.HomeLat, surface) {
			return
		}
		refLat, refLon = r.cfg.HomeLat, r.cfg.HomeLon
	default:
		return
	}

	lat, lon, err := cpr.DecodeLocal(half, surface, refLat, refLon)
	if err != nil {
		r.outsideCell.Add(1)
		return
	}
	if r.acceptPosition(a, lat, lon, surface, now) {
		r.commitPosition(a, lat, lon, nuc, now)
	}
}

// reference picks the surface disambiguation point: the aircraft's own
// last position when one is known, else the receiver.
func (r *Registry) reference(a *Aircraft) (float64, float64, bool) {
	if a.Flags.Has(modes.FlagLatLonRelOK) {
		return a.Lat, a.Lon, true
	}
	if r.cfg.HasHome {
		return r.cfg.HomeLat, r.cfg.HomeLon, true
	}
	return 0, 0, false
}

// acceptPosition applies the distance and speed gates.
func (r *Registry) acceptPosition(a *Aircraft, lat, lon float64, surface bool, now time.Time) bool {
	if r.cfg.HasHome && r.cfg.MaxDistM > 0 {
		if cpr.Distance(r.cfg.HomeLat, r.cfg.HomeLon, lat, lon) > r.cfg.MaxDistM {
			r.distGate.Add(1)
			if r.cfg.CPRTrace {
				r.log.WithFields(logrus.Fields{
					"icao": a.ICAO, "lat": lat, "lon": lon,
				}).Debug("position rejected by distance gate")
			}
			return false
		}
	}

	if a.Flags.Has(modes.FlagLatLonValid) && !a.LastSeenPos.IsZero() {
		elapsed := now.Sub(a.LastSeenPos).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}

		speedKn := float64(a.Speed)
		slack := airborneSlackM
		if surface {
			if speedKn < surfaceMinKn {
				speedKn = surfaceMinKn
			}
			if speedKn > surfaceMaxKn {
				speedKn = surfaceMaxKn
			}
			slack = surfaceSlackM
		} else if speedKn < airborneMinKn {
			speedKn = airborneMinKn
		}

		allowed := speedKn*4/3*knotsToMS*elapsed + slack
		if cpr.Distance(a.Lat, a.Lon, lat, lon) > allowed {
			r.speedGate.Add(1)
			if r.cfg.CPRTrace {
				r.log.WithFields(logrus.Fields{
					"icao": a.ICAO, "lat": lat, "lon": lon, "elapsed": elapsed,
				}).Debug("position rejected by speed gate")
			}
			return false
		}
	}
	return true
}

func (r *Registry) commitPosition(a *Aircraft, lat, lon float64, nuc int, now time.Time) {
	a.Lat = lat
	a.Lon = lon
	a.PosNUC = nuc
	a.LastSeenPos = now
	a.Flags |= modes.FlagLatLonValid | modes.FlagLatLonRelOK
	if r.cfg.HasHome {
		a.DistanceM = cpr.Distance(r.cfg.HomeLat, r.cfg.HomeLon, lat, lon)
	}
}

// Snapshot copies out a consistent view of every live aircraft.
func (r *Registry) Snapshot() []View {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]View, 0, len(r.aircraft))
	for _, a := range r.aircraft {
		out = append(out, a.view())
	}
	return out
}

// Sweep removes entries not heard from within the TTL.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for icao, a := range r.aircraft {
		if a.LastSeen.Add(r.cfg.TTL).Before(now) {
			delete(r.aircraft, icao)
			removed++
		}
	}
	return removed
}

// Len returns the number of live aircraft.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.aircraft)
}

// TotalMessages returns the count of messages merged since startup.
func (r *Registry) TotalMessages() uint64 { return r.messages.Load() }

// GateStats returns the position rejection counters: zone crossings,
// distance-gate, speed-gate and half-cell rejections.
func (r *Registry) GateStats() (zone, dist, speed, cell uint64) {
	return r.zoneCrossed.Load(), r.distGate.Load(), r.speedGate.Load(), r.outsideCell.Load()
}
