// Package network multiplexes the TCP services: RAW and SBS, inbound
// and outbound. Formatters hand it bytes via Broadcast; inbound lines
// are dispatched to per-service handlers. A slow client is cut off at
// the high-water mark, never allowed to stall the pipeline.
package network

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"adsb1090/internal/stats"
)

const (
	// DefaultHWM is the per-connection send backlog limit.
	DefaultHWM = 1 << 20

	connectTimeout = 5 * time.Second
	reconnectWait  = 2 * time.Second
)

// Mux owns every TCP service. It is constructed once, services are
// registered, then Start runs the accept/connect loops until the
// context is cancelled.
type Mux struct {
	logger *logrus.Logger
	stats  *stats.Stats
	hwm    int

	mu       sync.Mutex
	services map[ServiceID]*Service
	wg       sync.WaitGroup
}

// NewMux creates an empty multiplexer.
func NewMux(logger *logrus.Logger, st *stats.Stats) *Mux {
	return &Mux{
		logger:   logger,
		stats:    st,
		hwm:      DefaultHWM,
		services: make(map[ServiceID]*Service),
	}
}

// AddListener registers a passive service on the given port.
func (m *Mux) AddListener(id ServiceID, port int, onLine LineHandler) *Service {
	s := newService(id, port)
	s.OnLine = onLine
	m.mu.Lock()
	m.services[id] = s
	m.mu.Unlock()
	return s
}

// AddActive registers an active service that connects out to target
// ("host:port") instead of listening.
func (m *Mux) AddActive(id ServiceID, target string, onLine LineHandler) *Service {
	s := newService(id, 0)
	s.Target = target
	s.OnLine = onLine
	m.mu.Lock()
	m.services[id] = s
	m.mu.Unlock()
	return s
}

// Service returns the registered service for id, or nil.
func (m *Mux) Service(id ServiceID) *Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services[id]
}

// Start brings up every registered service. Listeners that cannot bind
// fail startup; active connects retry in the background after the
// initial attempt.
func (m *Mux) Start(ctx context.Context) error {
	m.mu.Lock()
	services := make([]*Service, 0, len(m.services))
	for _, s := range m.services {
		services = append(services, s)
	}
	m.mu.Unlock()

	for _, s := range services {
		if s.Target != "" {
			m.wg.Add(1)
			go m.connectLoop(ctx, s)
			continue
		}
		if s.Port <= 0 {
			continue
		}
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
		if err != nil {
			return fmt.Errorf("%s: listen on %d: %w", s.ID, s.Port, err)
		}
		m.logger.WithFields(logrus.Fields{
			"service": s.ID.String(),
			"port":    s.Port,
		}).Info("listening")

		m.wg.Add(1)
		go m.acceptLoop(ctx, s, ln)
	}
	return nil
}

// Wait blocks until every service loop has exited.
func (m *Mux) Wait() { m.wg.Wait() }

func (m *Mux) acceptLoop(ctx context.Context, s *Service, ln net.Listener) {
	defer m.wg.Done()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.setErr(err)
			m.stats.Inc(s.ID.String(), "accept_errors")
			continue
		}
		m.stats.Inc(s.ID.String(), "accepted")
		m.runConn(ctx, s, newConn(s.ID, c, true))
	}
}

// connectLoop dials the active target, with a hard deadline on the
// first attempt and backoff retries afterwards.
func (m *Mux) connectLoop(ctx context.Context, s *Service) {
	defer m.wg.Done()

	first := true
	for ctx.Err() == nil {
		d := net.Dialer{Timeout: connectTimeout}
		c, err := d.DialContext(ctx, "tcp", s.Target)
		if err != nil {
			s.setErr(err)
			m.stats.Inc(s.ID.String(), "connect_errors")
			if first {
				m.logger.WithError(err).WithFields(logrus.Fields{
					"service": s.ID.String(),
					"target":  s.Target,
					"kind":    KindOf(err).String(),
				}).Error("active connect failed")
			}
			first = false
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectWait):
			}
			continue
		}
		first = false
		m.logger.WithFields(logrus.Fields{
			"service": s.ID.String(),
			"target":  s.Target,
		}).Info("connected")

		done := make(chan struct{})
		cn := newConn(s.ID, c, false)
		m.runConnNotify(ctx, s, cn, done)
		<-done

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectWait):
		}
	}
}

func (m *Mux) runConn(ctx context.Context, s *Service, cn *Conn) {
	m.runConnNotify(ctx, s, cn, nil)
}

// runConnNotify starts the reader and writer for one connection. The
// reader doubles as the close detector for output-only services.
func (m *Mux) runConnNotify(ctx context.Context, s *Service, cn *Conn, done chan struct{}) {
	s.mu.Lock()
	s.conns[cn.ID] = cn
	s.mu.Unlock()

	entry := m.logger.WithFields(logrus.Fields{
		"service": s.ID.String(),
		"conn":    cn.ID,
		"remote":  cn.c.RemoteAddr().String(),
	})
	entry.Debug("connection open")

	go cn.writeLoop(entry)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, cn.ID)
			s.mu.Unlock()
			cn.markClosing()
			entry.Debug("connection closed")
			if done != nil {
				close(done)
			}
		}()

		stop := context.AfterFunc(ctx, func() { _ = cn.c.Close() })
		defer stop()

		sc := bufio.NewScanner(cn.c)
		sc.Buffer(make([]byte, 4096), 64*1024)
		for sc.Scan() {
			line := sc.Text()
			m.stats.Add(s.ID.String(), "bytes_in", uint64(len(line)+1))
			if s.OnLine == nil {
				continue // output-only service; discard client chatter
			}
			if s.OnLine(line) {
				m.stats.Inc(s.ID.String(), "lines_in")
			} else {
				s.mu.Lock()
				s.unrecog++
				s.mu.Unlock()
				m.stats.Inc(s.ID.String(), "unrecognized")
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			s.setErr(err)
		}
	}()
}

// LastErrors reports the most recent non-OK condition per service,
// for surfacing at exit.
func (m *Mux) LastErrors() map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]error)
	for id, s := range m.services {
		if err := s.LastError(); err != nil {
			out[id.String()] = err
		}
	}
	return out
}

// Broadcast enqueues b on every live connection of the service.
// Clients whose backlog would pass the high-water mark are dropped.
func (m *Mux) Broadcast(id ServiceID, b []byte) {
	s := m.Service(id)
	if s == nil || len(b) == 0 {
		return
	}

	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, cn := range s.conns {
		conns = append(conns, cn)
	}
	s.mu.Unlock()

	for _, cn := range conns {
		if cn.enqueue(b, m.hwm) {
			m.stats.Add(id.String(), "bytes_out", uint64(len(b)))
		} else {
			m.stats.Inc(id.String(), "dropped_clients")
		}
	}
}
