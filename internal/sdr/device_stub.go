//go:build !cgo

package sdr

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Device is a stub sample source for builds without cgo, where the
// librtlsdr binding is unavailable. Every operation reports
// ErrUnsupported; network-only mode still works.
type Device struct{}

// Open always fails on non-cgo builds.
func Open(cfg Config, logger *logrus.Logger) (*Device, error) {
	return nil, fmt.Errorf("%w: built without cgo, RTL-SDR hardware support unavailable (use --net-only)", ErrUnsupported)
}

// Start always fails on non-cgo builds.
func (d *Device) Start(ctx context.Context, onBuffer func([]byte)) error {
	return fmt.Errorf("%w: built without cgo, RTL-SDR hardware support unavailable", ErrUnsupported)
}

// Close always fails on non-cgo builds.
func (d *Device) Close() error {
	return fmt.Errorf("%w: built without cgo, RTL-SDR hardware support unavailable", ErrUnsupported)
}
