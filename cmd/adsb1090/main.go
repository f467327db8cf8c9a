package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"adsb1090/internal/app"
)

// Exit codes: 0 success, 1 bad configuration, 2 device error.
const (
	exitConfig = 1
	exitDevice = 2
)

func main() {
	var (
		cfg         app.Config
		showVersion bool
		homeLat     float64
		homeLon     float64
	)

	rootCmd := &cobra.Command{
		Use:   "adsb1090",
		Short: "Mode-S / ADS-B receiver and decoder",
		Long: `adsb1090 receives 1090 MHz Mode-S transmissions from an RTL-SDR,
decodes them into aircraft state, and serves the live picture over
RAW, SBS (BaseStation) and HTTP/WebSocket network services.

Example usage:
  adsb1090 --net --raw-out-port 30002 --sbs-port 30003 --http-port 8080 \
           --lat 51.5074 --lon -0.1278 --max-dist 400000`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Printf("adsb1090 %s (built %s, commit %s)\n",
					app.Version, app.BuildTime, app.GitCommit)
				return nil
			}

			cfg.HasHome = cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon")
			cfg.HomeLat = homeLat
			cfg.HomeLon = homeLon

			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			return a.Run()
		},
	}

	f := rootCmd.Flags()
	f.BoolVar(&cfg.Net, "net", false, "Enable network services")
	f.BoolVar(&cfg.NetOnly, "net-only", false, "Network services only, no SDR device")
	f.StringVar(&cfg.NetActive, "net-active", "", "Connect out to a RAW source (host:port) instead of listening")
	f.IntVar(&cfg.RawInPort, "raw-in-port", 30001, "RAW input listen port (0 disables)")
	f.IntVar(&cfg.RawOutPort, "raw-out-port", 30002, "RAW output listen port (0 disables)")
	f.IntVar(&cfg.SBSPort, "sbs-port", 30003, "SBS (BaseStation) output listen port (0 disables)")
	f.IntVar(&cfg.SBSInPort, "sbs-in-port", 0, "SBS input listen port (0 disables)")
	f.IntVar(&cfg.HTTPPort, "http-port", 8080, "HTTP listen port (0 disables)")
	f.StringVar(&cfg.WebRoot, "web-root", "", "Directory of static web assets")
	f.StringVar(&cfg.WebPage, "web-page", "/gmap.html", "Page '/' redirects to")
	f.Float64Var(&homeLat, "lat", 0, "Receiver latitude")
	f.Float64Var(&homeLon, "lon", 0, "Receiver longitude")
	f.Float64Var(&cfg.MaxDistM, "max-dist", 0, "Reject positions farther than this from the receiver (metres)")
	f.BoolVar(&cfg.Interactive, "interactive", false, "Interactive list output")
	f.UintVar(&cfg.DebugMask, "debug", 0, "Debug mask")
	f.BoolVar(&cfg.CPRTrace, "cpr-trace", false, "Trace CPR decisions")
	f.BoolVar(&cfg.Metric, "metric", false, "Metric units in interactive output")
	f.IntVar(&cfg.DeviceIndex, "device", 0, "RTL-SDR device index")
	f.IntVar(&cfg.Gain, "gain", 0, "Tuner gain in dB (0 = auto)")
	f.IntVar(&cfg.PPM, "ppm", 0, "Tuner frequency correction in ppm")
	f.StringVar(&cfg.LogDir, "log-dir", "", "Event log directory (empty disables)")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Verbose logging")
	f.BoolVar(&showVersion, "version", false, "Show version and exit")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, app.ErrConfig) {
			os.Exit(exitConfig)
		}
		os.Exit(exitDevice)
	}
}
