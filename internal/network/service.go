package network

import (
	"net"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// ServiceID keys the TCP roles the multiplexer runs. Connections refer
// to their owning service by this key, never by pointer.
type ServiceID int

const (
	RawIn ServiceID = iota
	RawOut
	SBSIn
	SBSOut
	serviceCount
)

func (id ServiceID) String() string {
	switch id {
	case RawIn:
		return "raw_in"
	case RawOut:
		return "raw_out"
	case SBSIn:
		return "sbs_in"
	case SBSOut:
		return "sbs_out"
	}
	return "unknown"
}

// LineHandler consumes one inbound line and reports whether it was
// recognized. Unrecognized lines are counted and dropped.
type LineHandler func(line string) bool

// Service owns one listen socket (or active connect) and its live
// connections.
type Service struct {
	ID     ServiceID
	Port   int
	Target string // non-empty in active (outbound connect) mode

	// OnLine is set for the inbound roles.
	OnLine LineHandler

	mu       sync.Mutex
	conns    map[string]*Conn
	lastErr  error
	accepted uint64
	unrecog  uint64
}

func newService(id ServiceID, port int) *Service {
	return &Service{ID: id, Port: port, conns: make(map[string]*Conn)}
}

// LastError returns the most recent non-OK condition on the service.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Service) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// NumConns returns the live connection count.
func (s *Service) NumConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Conn is one TCP peer of a service. Writes go through a bounded queue
// drained by a dedicated goroutine; the pipeline never blocks on a
// slow client.
type Conn struct {
	ID      string
	Service ServiceID

	c        net.Conn
	accepted bool

	mu      sync.Mutex
	queue   [][]byte
	queued  int // bytes waiting in queue
	closing bool
	wakeup  chan struct{}
}

func newConn(svc ServiceID, c net.Conn, accepted bool) *Conn {
	return &Conn{
		ID:       xid.New().String(),
		Service:  svc,
		c:        c,
		accepted: accepted,
		wakeup:   make(chan struct{}, 1),
	}
}

// enqueue appends b for writing. When the pending backlog would exceed
// hwm the connection is marked for close instead.
func (cn *Conn) enqueue(b []byte, hwm int) bool {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closing {
		return false
	}
	if cn.queued+len(b) > hwm {
		cn.closing = true
		cn.notify()
		return false
	}
	cn.queue = append(cn.queue, b)
	cn.queued += len(b)
	cn.notify()
	return true
}

func (cn *Conn) notify() {
	select {
	case cn.wakeup <- struct{}{}:
	default:
	}
}

func (cn *Conn) markClosing() {
	cn.mu.Lock()
	cn.closing = true
	cn.notify()
	cn.mu.Unlock()
}

// writeLoop drains the queue until the connection is closing and
// drained, then closes the socket.
func (cn *Conn) writeLoop(logger *logrus.Entry) {
	for range cn.wakeup {
		for {
			cn.mu.Lock()
			if len(cn.queue) == 0 {
				done := cn.closing
				cn.mu.Unlock()
				if done {
					_ = cn.c.Close()
					return
				}
				break
			}
			b := cn.queue[0]
			cn.queue = cn.queue[1:]
			cn.queued -= len(b)
			cn.mu.Unlock()

			for len(b) > 0 {
				n, err := cn.c.Write(b)
				if err != nil {
					logger.WithError(err).WithField("kind", KindOf(err).String()).
						Debug("write failed, closing connection")
					cn.markClosing()
					_ = cn.c.Close()
					return
				}
				// Short writes are requeued implicitly by advancing.
				b = b[n:]
			}
		}
	}
}
