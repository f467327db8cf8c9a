package dsp

// A Mode-S preamble is 8 microseconds: at 2 MS/s that is 16 samples,
// with pulses at sample offsets 0, 2, 7 and 9 and silence elsewhere.
const (
	PreambleSamples = 16
	SamplesPerBit   = 2
)

// Preamble holds the signal estimate produced by a successful detection.
type Preamble struct {
	Offset int    // start index into the magnitude buffer
	High   uint16 // average of the four pulse samples
	Noise  uint16 // average of the six quiet samples
}

// detectPreamble checks whether a preamble starts at m[i]. The caller
// guarantees len(m) >= i+PreambleSamples.
func detectPreamble(m []uint16, i int) (Preamble, bool) {
	// Pulse shape: each pulse must stand above its neighbours, and the
	// quiet samples must stay below the first pulse.
	if !(m[i] > m[i+1] &&
		m[i+1] < m[i+2] &&
		m[i+2] > m[i+3] &&
		m[i+3] < m[i] &&
		m[i+4] < m[i] &&
		m[i+5] < m[i] &&
		m[i+6] < m[i] &&
		m[i+7] > m[i+8] &&
		m[i+8] < m[i+9] &&
		m[i+9] > m[i+6]) {
		return Preamble{}, false
	}

	high := (uint32(m[i]) + uint32(m[i+2]) + uint32(m[i+7]) + uint32(m[i+9])) / 4
	noise := (uint32(m[i+1]) + uint32(m[i+3]) + uint32(m[i+4]) +
		uint32(m[i+5]) + uint32(m[i+6]) + uint32(m[i+8])) / 6

	// The pulses must clear the quiet floor by at least 2x.
	if high < 2*noise {
		return Preamble{}, false
	}

	// Every quiet sample must stay below the pulse average.
	for _, k := range [...]int{1, 3, 4, 5, 6, 8} {
		if uint32(m[i+k]) >= high {
			return Preamble{}, false
		}
	}

	return Preamble{Offset: i, High: uint16(high), Noise: uint16(noise)}, true
}
