package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adsb1090/internal/modes"
	"adsb1090/internal/network"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "Defaults pass",
			cfg:  Config{},
		},
		{
			name: "Valid home",
			cfg:  Config{HasHome: true, HomeLat: 51.5, HomeLon: -0.12},
		},
		{
			name:    "Latitude out of range",
			cfg:     Config{HasHome: true, HomeLat: 95, HomeLon: 0},
			wantErr: true,
		},
		{
			name:    "Longitude out of range",
			cfg:     Config{HasHome: true, HomeLat: 0, HomeLon: 200},
			wantErr: true,
		},
		{
			name:    "Max dist without home",
			cfg:     Config{MaxDistM: 100000},
			wantErr: true,
		},
		{
			name:    "Missing web root",
			cfg:     Config{HTTPPort: 8080, WebRoot: "/no/such/web/root"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNetOnlyImpliesNet(t *testing.T) {
	cfg := Config{NetOnly: true}
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Net)
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	a, err := New(Config{Net: true, NetOnly: true})
	require.NoError(t, err)
	t.Cleanup(a.cancel)
	return a
}

// TestHandleRawLine drives the RAW input path end to end: AVR line in,
// registry updated.
func TestHandleRawLine(t *testing.T) {
	a := newTestApp(t)

	assert.True(t, a.handleRawLine("*8d4840d6202cc371c32ce0576098;"))
	assert.Equal(t, 1, a.registry.Len())

	views := a.registry.Snapshot()
	require.Len(t, views, 1)
	assert.Equal(t, uint32(0x4840d6), views[0].ICAO)
	assert.Equal(t, "KLM1023", views[0].Callsign)
}

func TestHandleRawLineMLAT(t *testing.T) {
	a := newTestApp(t)

	assert.True(t, a.handleRawLine("@0123456789ab8d4840d6202cc371c32ce0576098;"))
	views := a.registry.Snapshot()
	require.Len(t, views, 1)
	assert.True(t, views[0].Flags.Has(modes.FlagFromMLAT))
}

func TestHandleRawLineUnrecognized(t *testing.T) {
	a := newTestApp(t)

	assert.False(t, a.handleRawLine("garbage"))
	assert.False(t, a.handleRawLine("*nothex;"))
	assert.Equal(t, 0, a.registry.Len())
}

func TestHandleRawLineBadCRCIsRecognizedSyntax(t *testing.T) {
	a := newTestApp(t)

	// Valid AVR framing, corrupt payload: the line parses but the
	// frame is dropped, and nothing reaches the registry.
	assert.True(t, a.handleRawLine("*8d4840d6202cc371c32ce0576099;"))
	assert.Equal(t, 0, a.registry.Len())
}

func TestHandleSBSLine(t *testing.T) {
	a := newTestApp(t)

	line := "MSG,3,1,1,4840D6,1,2024/03/15,12:30:45.123,2024/03/15,12:30:45.123,,38000,,,51.68676,0.70129,,,,,,0"
	assert.True(t, a.handleSBSLine(line))

	views := a.registry.Snapshot()
	require.Len(t, views, 1)
	assert.Equal(t, 38000, views[0].Altitude)
	assert.True(t, views[0].Flags.Has(modes.FlagLatLonValid))
}

func TestServicesRegistered(t *testing.T) {
	a, err := New(Config{
		Net:        true,
		NetOnly:    true,
		RawInPort:  30001,
		RawOutPort: 30002,
		SBSPort:    30003,
	})
	require.NoError(t, err)
	defer a.cancel()

	assert.NotNil(t, a.mux.Service(network.RawIn))
	assert.NotNil(t, a.mux.Service(network.RawOut))
	assert.NotNil(t, a.mux.Service(network.SBSOut))
	assert.Nil(t, a.mux.Service(network.SBSIn))
}
