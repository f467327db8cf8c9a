//go:build cgo

package sdr

import (
	"context"
	"fmt"
	"strings"

	rtlsdr "github.com/jpoirier/gortlsdr"
	"github.com/sirupsen/logrus"
)

// Device is the RTL2832U-backed sample source.
type Device struct {
	dev    *rtlsdr.Context
	cfg    Config
	logger *logrus.Logger
	open   bool
}

// Open finds and configures the device at cfg.DeviceIndex.
func Open(cfg Config, logger *logrus.Logger) (*Device, error) {
	count := rtlsdr.GetDeviceCount()
	if count == 0 {
		return nil, ErrDeviceNotFound
	}
	if cfg.DeviceIndex >= count {
		return nil, fmt.Errorf("%w: index %d out of range (0-%d)", ErrDeviceNotFound, cfg.DeviceIndex, count-1)
	}

	dev, err := rtlsdr.Open(cfg.DeviceIndex)
	if err != nil {
		if strings.Contains(err.Error(), "busy") {
			return nil, fmt.Errorf("%w: %v", ErrDeviceBusy, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUsbIO, err)
	}

	d := &Device{dev: dev, cfg: cfg, logger: logger, open: true}
	if err := d.configure(); err != nil {
		_ = dev.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) configure() error {
	if err := d.dev.SetCenterFreq(Frequency); err != nil {
		return fmt.Errorf("%w: set frequency: %v", ErrUsbIO, err)
	}
	if err := d.dev.SetSampleRate(SampleRate); err != nil {
		return fmt.Errorf("%w: set sample rate: %v", ErrUsbIO, err)
	}
	if d.cfg.PPM != 0 {
		if err := d.dev.SetFreqCorrection(d.cfg.PPM); err != nil {
			return fmt.Errorf("%w: set ppm: %v", ErrUsbIO, err)
		}
	}

	switch d.cfg.GainMode {
	case GainAuto:
		if err := d.dev.SetTunerGainMode(false); err != nil {
			return fmt.Errorf("%w: set auto gain: %v", ErrUsbIO, err)
		}
	case GainSoftAGC:
		if err := d.dev.SetAgcMode(true); err != nil {
			return fmt.Errorf("%w: set agc: %v", ErrUsbIO, err)
		}
	case GainManual:
		if err := d.dev.SetTunerGainMode(true); err != nil {
			return fmt.Errorf("%w: set manual gain mode: %v", ErrUsbIO, err)
		}
		if err := d.dev.SetTunerGain(d.cfg.GainTenthsDB); err != nil {
			return fmt.Errorf("%w: set gain: %v", ErrUsbIO, err)
		}
	}

	if d.cfg.BiasTee {
		if err := d.dev.SetBiasTee(true); err != nil {
			return fmt.Errorf("%w: bias tee: %v", ErrUnsupported, err)
		}
	}

	if err := d.dev.ResetBuffer(); err != nil {
		return fmt.Errorf("%w: reset buffer: %v", ErrUsbIO, err)
	}

	d.logger.WithFields(logrus.Fields{
		"device":      d.cfg.DeviceIndex,
		"frequency":   Frequency,
		"sample_rate": SampleRate,
		"gain_mode":   d.cfg.GainMode,
	}).Info("RTL-SDR configured")
	return nil
}

// Start runs the async reader. The librtlsdr callback thread invokes
// onBuffer serially with BufLen-byte buffers; the method returns when
// the context is cancelled or the device is lost.
func (d *Device) Start(ctx context.Context, onBuffer func([]byte)) error {
	if !d.open {
		return ErrDeviceLost
	}

	readDone := make(chan error, 1)
	go func() {
		err := d.dev.ReadAsync(func(buf []byte) {
			onBuffer(buf)
		}, nil, BufNum, BufLen)
		readDone <- err
	}()

	select {
	case <-ctx.Done():
		if err := d.dev.CancelAsync(); err != nil {
			d.logger.WithError(err).Warn("cancel async read failed")
		}
		<-readDone
		return nil
	case err := <-readDone:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceLost, err)
		}
		return ErrDeviceLost
	}
}

// Close releases the device.
func (d *Device) Close() error {
	if !d.open {
		return nil
	}
	d.open = false
	if err := d.dev.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrUsbIO, err)
	}
	return nil
}
