package sdr

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// Device must satisfy the Source contract on every build, stub
// included.
var _ Source = (*Device)(nil)

func TestBufferGeometry(t *testing.T) {
	assert.Equal(t, 0, BufLen%512, "buffer length must be a multiple of 512")
	assert.Equal(t, uint32(2000000), uint32(SampleRate))
	assert.Equal(t, uint32(1090000000), uint32(Frequency))
}

func TestErrorKindsAreDistinct(t *testing.T) {
	kinds := []error{
		ErrDeviceNotFound, ErrDeviceBusy, ErrUsbIO,
		ErrUnsupported, ErrDeviceLost,
	}
	for i, a := range kinds {
		for j, b := range kinds {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v must not match %v", a, b)
		}
	}
}

// TestOpenWithoutHardware: with no dongle attached (or on a non-cgo
// build) Open must fail with one of the typed device errors, never a
// bare string, so the CLI can map it to the device exit code.
func TestOpenWithoutHardware(t *testing.T) {
	dev, err := Open(Config{DeviceIndex: 0}, quietLogger())
	if err == nil {
		// A dongle really is attached; nothing further to assert.
		require.NotNil(t, dev)
		require.NoError(t, dev.Close())
		return
	}

	assert.Nil(t, dev)
	matched := errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, ErrDeviceBusy) ||
		errors.Is(err, ErrUsbIO) ||
		errors.Is(err, ErrUnsupported)
	assert.True(t, matched, "Open error %v must wrap a typed device error", err)
}

func TestOpenOutOfRangeIndex(t *testing.T) {
	_, err := Open(Config{DeviceIndex: 512}, quietLogger())
	require.Error(t, err)
	matched := errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrUnsupported)
	assert.True(t, matched, "error %v must be not-found or unsupported", err)
}
