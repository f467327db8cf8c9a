package dsp

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Demodulator scans magnitude buffers for Mode-S frames. It owns no
// aircraft state; every accepted candidate is handed to the sink, which
// runs CRC validation and returns whether the frame was accepted. On
// rejection the scan advances by a single sample so overlapping
// candidates are still considered.
type Demodulator struct {
	lut    *MagLUT
	logger *logrus.Logger

	mag []uint16 // scratch, reused across buffers

	// Counters, readable from any goroutine.
	samplesProcessed atomic.Uint64
	preamblesFound   atomic.Uint64
	framesAccepted   atomic.Uint64
	framesRejected   atomic.Uint64
}

// Sink consumes one sliced candidate and reports acceptance.
type Sink func(frame *Frame) bool

// NewDemodulator creates a demodulator sharing the given magnitude table.
func NewDemodulator(lut *MagLUT, logger *logrus.Logger) *Demodulator {
	return &Demodulator{lut: lut, logger: logger}
}

// ProcessBuffer converts one raw IQ buffer and scans it. It is called
// from the sample source goroutine and runs to completion per buffer.
func (d *Demodulator) ProcessBuffer(iq []byte, sink Sink) {
	d.mag = d.lut.Convert(iq, d.mag)
	d.scan(d.mag, sink)
	d.samplesProcessed.Add(uint64(len(iq) / 2))
}

func (d *Demodulator) scan(m []uint16, sink Sink) {
	var frame Frame

	// Enough room for a preamble plus a long frame.
	last := len(m) - (PreambleSamples + LongFrameBits*SamplesPerBit)
	for i := 0; i <= last; i++ {
		pre, ok := detectPreamble(m, i)
		if !ok {
			continue
		}
		d.preamblesFound.Add(1)

		if !sliceBits(m, pre, &frame) {
			continue
		}

		if sink(&frame) {
			d.framesAccepted.Add(1)
			// Jump past the consumed frame; the CRC stage already
			// committed to it.
			i += PreambleSamples + LongFrameBits*SamplesPerBit - 1
		} else {
			d.framesRejected.Add(1)
		}
	}
}

// Stats returns the demodulator counters: samples, preambles, accepted
// and rejected frames.
func (d *Demodulator) Stats() (samples, preambles, accepted, rejected uint64) {
	return d.samplesProcessed.Load(), d.preamblesFound.Load(),
		d.framesAccepted.Load(), d.framesRejected.Load()
}
