package modes

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DropReason classifies why a frame failed validation. Dropped frames
// are counted, never logged per-frame at info level.
type DropReason int

const (
	DropNone DropReason = iota
	DropUnknownDF
	DropBadCRC
	DropUnknownICAO
)

func (r DropReason) String() string {
	switch r {
	case DropNone:
		return "none"
	case DropUnknownDF:
		return "unknown_df"
	case DropBadCRC:
		return "bad_crc"
	case DropUnknownICAO:
		return "unknown_icao"
	}
	return "other"
}

// Verifier validates frames against the Mode-S CRC and repairs up to
// MaxFix bit errors, restricted to the least confident bits reported by
// the slicer. Frames from the network carry no confidence vector and
// are never repaired.
type Verifier struct {
	Recent *ICAOCache
	MaxFix int // 0 = verify only, 1 = single-bit, 2 = two-bit pairs

	logger *logrus.Logger

	accepted  atomic.Uint64
	repaired1 atomic.Uint64
	repaired2 atomic.Uint64
	dropped   [4]atomic.Uint64 // indexed by DropReason
}

// NewVerifier creates a verifier. maxFix bounds the Hamming weight of
// the correction mask; recent is consulted for address-XORed syndromes.
func NewVerifier(recent *ICAOCache, maxFix int, logger *logrus.Logger) *Verifier {
	return &Verifier{Recent: recent, MaxFix: maxFix, logger: logger}
}

// DF extracts the downlink format from the first payload byte. Formats
// 24 through 31 share the two-bit Comm-D prefix and collapse to 24.
func DF(b byte) uint8 {
	df := b >> 3
	if df >= 24 {
		df = 24
	}
	return df
}

// Verify checks the first 7 or 14 bytes of buf, as the DF implies, and
// returns the validated RawMessage; a shorter buf is dropped as a bad
// CRC. lowConf lists repair candidate bit
// positions, worst first; nil disables repair.
func (v *Verifier) Verify(buf []byte, lowConf []int, signal uint16, fromMLAT bool, now time.Time) (*RawMessage, DropReason) {
	df := DF(buf[0])
	switch df {
	case 0, 4, 5, 11, 16, 17, 18, 20, 21, 24:
	default:
		v.dropped[DropUnknownDF].Add(1)
		return nil, DropUnknownDF
	}

	length := FrameBytes(df)
	if len(buf) < length {
		v.dropped[DropBadCRC].Add(1)
		return nil, DropBadCRC
	}
	payload := make([]byte, length)
	copy(payload, buf[:length])

	syndrome := Checksum(payload)
	repaired := 0
	icao := uint32(0)

	switch df {
	case 11:
		// The low 7 bits carry the interrogator identifier and may be
		// nonzero on a clean frame.
		if syndrome&0xffff80 != 0 {
			if repaired = v.repair(payload, syndrome, lowConf); repaired == 0 {
				v.dropped[DropBadCRC].Add(1)
				return nil, DropBadCRC
			}
		}
		icao = addressOf(payload)
		v.Recent.Heard(icao)

	case 17, 18:
		if syndrome != 0 {
			if repaired = v.repair(payload, syndrome, lowConf); repaired == 0 {
				v.dropped[DropBadCRC].Add(1)
				return nil, DropBadCRC
			}
		}
		icao = addressOf(payload)
		v.Recent.Heard(icao)

	default:
		// Surveillance formats: the syndrome is the ICAO address.
		// Accept only addresses with a recent heartbeat.
		if !v.Recent.Known(syndrome) {
			v.dropped[DropUnknownICAO].Add(1)
			return nil, DropUnknownICAO
		}
		icao = syndrome
	}

	v.accepted.Add(1)
	switch repaired {
	case 1:
		v.repaired1.Add(1)
	case 2:
		v.repaired2.Add(1)
	}

	return &RawMessage{
		Bytes:     payload,
		ICAO:      icao,
		Timestamp: now,
		Signal:    signal,
		Repaired:  repaired,
		FromMLAT:  fromMLAT,
	}, DropNone
}

// repair flips up to MaxFix bits drawn from lowConf so the syndrome
// cancels. Bits inside the CRC field itself are never touched. Returns
// the number of bits flipped, zero when no repair applies.
func (v *Verifier) repair(payload []byte, syndrome uint32, lowConf []int) int {
	if v.MaxFix < 1 || len(lowConf) == 0 {
		return 0
	}

	nbits := len(payload) * 8
	table := bitSyndromeLong[:]
	if len(payload) == ShortFrameBytes {
		table = bitSyndromeShort[:]
	}
	correctable := func(bit int) bool { return bit >= 0 && bit < nbits-crcBits }

	for _, i := range lowConf {
		if correctable(i) && table[i] == syndrome {
			flipBit(payload, i)
			return 1
		}
	}

	if v.MaxFix < 2 {
		return 0
	}
	for a := 0; a < len(lowConf); a++ {
		i := lowConf[a]
		if !correctable(i) {
			continue
		}
		for b := a + 1; b < len(lowConf); b++ {
			j := lowConf[b]
			if !correctable(j) {
				continue
			}
			if table[i]^table[j] == syndrome {
				flipBit(payload, i)
				flipBit(payload, j)
				return 2
			}
		}
	}
	return 0
}

func flipBit(buf []byte, bit int) {
	buf[bit/8] ^= 1 << (7 - bit%8)
}

func addressOf(payload []byte) uint32 {
	return uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
}

// Stats returns acceptance and repair counters plus per-reason drops.
func (v *Verifier) Stats() (accepted, repaired1, repaired2 uint64, drops map[string]uint64) {
	drops = map[string]uint64{
		DropUnknownDF.String():   v.dropped[DropUnknownDF].Load(),
		DropBadCRC.String():      v.dropped[DropBadCRC].Load(),
		DropUnknownICAO.String(): v.dropped[DropUnknownICAO].Load(),
	}
	return v.accepted.Load(), v.repaired1.Load(), v.repaired2.Load(), drops
}
