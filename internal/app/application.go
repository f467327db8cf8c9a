// Package app wires the receiver pipeline: sample source, demodulator,
// CRC verifier, parser, aircraft registry, formatters and the network
// services, with one context governing the lifetime of all of them.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"adsb1090/internal/dsp"
	"adsb1090/internal/logging"
	"adsb1090/internal/modes"
	"adsb1090/internal/network"
	"adsb1090/internal/sbs"
	"adsb1090/internal/sdr"
	"adsb1090/internal/stats"
	"adsb1090/internal/track"
	"adsb1090/internal/web"
)

const (
	heartbeatEvery = 60 * time.Second
	sweepEvery     = time.Second
	icaoTTL        = 60 * time.Second
)

// Application owns every subsystem. It is constructed at startup and
// passed nowhere by global; subsystems get what they need explicitly.
type Application struct {
	cfg    Config
	logger *logrus.Logger

	eventLog *logging.EventLog
	stats    *stats.Stats
	promReg  *prometheus.Registry

	demod    *dsp.Demodulator
	verifier *modes.Verifier
	registry *track.Registry
	mux      *network.Mux
	webSrv   *web.Server
	source   sdr.Source

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the application from a validated config.
func New(cfg Config) (*Application, error) {
	logger := logrus.New()
	if cfg.Verbose || cfg.DebugMask != 0 {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{cfg: cfg, logger: logger, ctx: ctx, cancel: cancel}

	if cfg.LogDir != "" {
		ev, err := logging.NewEventLog(cfg.LogDir, true, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		app.eventLog = ev
		logger.AddHook(logging.NewHook(ev))
	}

	app.promReg = prometheus.NewRegistry()
	app.stats = stats.New(app.promReg)

	recent := modes.NewICAOCache(icaoTTL)
	app.verifier = modes.NewVerifier(recent, 1, logger)

	app.registry = track.New(track.Config{
		HomeLat:  cfg.HomeLat,
		HomeLon:  cfg.HomeLon,
		HasHome:  cfg.HasHome,
		MaxDistM: cfg.MaxDistM,
		CPRTrace: cfg.CPRTrace,
	}, logger)

	app.demod = dsp.NewDemodulator(dsp.NewMagLUT(), logger)
	app.mux = network.NewMux(logger, app.stats)

	if cfg.Net {
		if cfg.NetActive != "" {
			app.mux.AddActive(network.RawIn, cfg.NetActive, app.handleRawLine)
		} else if cfg.RawInPort > 0 {
			app.mux.AddListener(network.RawIn, cfg.RawInPort, app.handleRawLine)
		}
		if cfg.RawOutPort > 0 {
			app.mux.AddListener(network.RawOut, cfg.RawOutPort, nil)
		}
		if cfg.SBSPort > 0 {
			app.mux.AddListener(network.SBSOut, cfg.SBSPort, nil)
		}
		if cfg.SBSInPort > 0 {
			app.mux.AddListener(network.SBSIn, cfg.SBSInPort, app.handleSBSLine)
		}
		if cfg.HTTPPort > 0 {
			app.webSrv = web.NewServer(web.Config{
				Port:    cfg.HTTPPort,
				WebRoot: cfg.WebRoot,
				WebPage: cfg.WebPage,
				HomeLat: cfg.HomeLat,
				HomeLon: cfg.HomeLon,
				HasHome: cfg.HasHome,
				Version: Version,
			}, app.registry, app.stats, app.promReg, logger)
		}
	}

	return app, nil
}

// Run starts every component and blocks until a shutdown signal.
func (a *Application) Run() error {
	a.logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}).Info("starting 1090 MHz receiver")

	if !a.cfg.NetOnly {
		dev, err := sdr.Open(sdr.Config{
			DeviceIndex:  a.cfg.DeviceIndex,
			GainMode:     gainMode(a.cfg.Gain),
			GainTenthsDB: a.cfg.Gain * 10,
			PPM:          a.cfg.PPM,
		}, a.logger)
		if err != nil {
			a.cancel()
			return err
		}
		a.source = dev
	}

	if err := a.mux.Start(a.ctx); err != nil {
		a.cancel()
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if a.webSrv != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.webSrv.Start(a.ctx); err != nil {
				a.logger.WithError(err).Error("HTTP service failed")
			}
		}()
	}

	if a.eventLog != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.eventLog.Start(a.ctx)
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.housekeeping()
	}()

	sourceErr := make(chan error, 1)
	if a.source != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			// The DSP work runs on the source callback goroutine; only
			// the registry update takes a lock, and only briefly.
			sourceErr <- a.source.Start(a.ctx, func(buf []byte) {
				a.demod.ProcessBuffer(buf, a.radioSink)
			})
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		a.logger.WithField("signal", sig.String()).Info("shutting down")
	case err := <-sourceErr:
		if err != nil {
			a.logger.WithError(err).Error("sample source failed")
			runErr = err
		}
	}

	a.shutdown()
	return runErr
}

func gainMode(gain int) sdr.GainMode {
	if gain == 0 {
		return sdr.GainAuto
	}
	return sdr.GainManual
}

// radioSink is the demodulator's frame sink: CRC check, parse, merge,
// fan out. It runs on the sample source goroutine.
func (a *Application) radioSink(f *dsp.Frame) bool {
	lowConf := f.LowConfidenceBits(8, dsp.LongFrameBits)
	raw, drop := a.verifier.Verify(f.Bytes[:], lowConf, f.Signal, false, time.Now())
	if raw == nil {
		if drop != modes.DropBadCRC {
			a.stats.Inc("demod", drop.String())
		}
		return false
	}

	a.stats.Inc("demod", "frames")
	if raw.Repaired > 0 {
		a.stats.Inc("demod", "repaired")
	}
	a.dispatch(raw)
	return true
}

// dispatch merges one validated frame and feeds the output services.
func (a *Application) dispatch(raw *modes.RawMessage) {
	msg := modes.Parse(raw)
	view := a.registry.Update(msg)

	a.mux.Broadcast(network.RawOut, network.FormatRaw(raw.Bytes))

	pos := sbs.Position{Lat: view.Lat, Lon: view.Lon,
		Valid: view.Flags.Has(modes.FlagLatLonValid) && msg.HasPosition()}
	if line := sbs.Format(msg, pos, raw.Timestamp); line != "" {
		a.mux.Broadcast(network.SBSOut, []byte(line))
	}
}

// handleRawLine consumes one line from the RAW input service.
func (a *Application) handleRawLine(line string) bool {
	payload, fromMLAT, ok := network.ParseRawLine(line)
	if !ok {
		return false
	}
	raw, _ := a.verifier.Verify(payload, nil, 0, fromMLAT, time.Now())
	if raw == nil {
		// Recognized syntax, failed validation: counted upstream.
		return true
	}
	a.dispatch(raw)
	return true
}

// handleSBSLine consumes one line from the SBS input service.
func (a *Application) handleSBSLine(line string) bool {
	msg, ok := sbs.ParseLine(line, time.Now())
	if !ok {
		return false
	}
	a.registry.Update(msg)
	return true
}

// housekeeping drives the periodic work from one ticker: aircraft
// sweep every second, RAW heartbeat every minute, statistics report
// every thirty seconds.
func (a *Application) housekeeping() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	lastHeartbeat := time.Now()
	lastReport := time.Now()

	for {
		select {
		case <-a.ctx.Done():
			return
		case now := <-ticker.C:
			a.registry.Sweep(now)

			if now.Sub(lastHeartbeat) >= heartbeatEvery {
				lastHeartbeat = now
				a.mux.Broadcast(network.RawOut, network.HeartbeatBlock())
			}
			if now.Sub(lastReport) >= 30*time.Second {
				lastReport = now
				a.reportStats()
			}
		}
	}
}

func (a *Application) reportStats() {
	samples, preambles, accepted, rejected := a.demod.Stats()
	verified, rep1, rep2, _ := a.verifier.Stats()
	a.logger.WithFields(logrus.Fields{
		"samples":   samples,
		"preambles": preambles,
		"accepted":  accepted,
		"rejected":  rejected,
		"verified":  verified,
		"repaired1": rep1,
		"repaired2": rep2,
		"aircraft":  a.registry.Len(),
	}).Info("processing statistics")
}

func (a *Application) shutdown() {
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		a.logger.Warn("shutdown timeout, forcing exit")
	}

	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.logger.WithError(err).Warn("sample source close failed")
		}
	}
	for svc, err := range a.mux.LastErrors() {
		a.logger.WithError(err).WithField("service", svc).Warn("service ended with error")
	}
	if a.eventLog != nil {
		_ = a.eventLog.Close()
	}
	a.logger.Info("shutdown complete")
}
