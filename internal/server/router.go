package server

import (
	"sync"

	"github.com/woo850115-hub/project-g/internal/core/observability/log"
	"github.com/woo850115-hub/project-g/internal/core/session"
)

// outputRouter fans the core's single outbound channel out to per-session
// write queues. It is the only reader of the outbound channel; write
// queues are consumed by each connection's writer goroutine.
type outputRouter struct {
	mu      sync.Mutex
	writers map[uint64]chan string
	logger  log.Log
}

func newOutputRouter(logger log.Log) *outputRouter {
	return &outputRouter{
		writers: make(map[uint64]chan string),
		logger:  logger,
	}
}

// register installs a session's write queue and returns it.
func (r *outputRouter) register(sessionID uint64) chan string {
	ch := make(chan string, 256)
	r.mu.Lock()
	r.writers[sessionID] = ch
	r.mu.Unlock()
	return ch
}

// unregister drops a session's write queue. Pending deliveries to that
// session vanish silently.
func (r *outputRouter) unregister(sessionID uint64) {
	r.mu.Lock()
	ch, ok := r.writers[sessionID]
	delete(r.writers, sessionID)
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

// run consumes the outbound channel until it closes.
func (r *outputRouter) run(outbound <-chan session.Outbound) {
	for msg := range outbound {
		switch msg.Kind {
		case session.OutboundSend:
			r.deliver(msg.Session, msg.Payload)
		case session.OutboundBroadcastArea:
			// The core resolves area membership before emitting, so
			// area broadcasts arrive as individual sends; this arm
			// keeps the envelope total for future transports.
			r.deliver(msg.Session, msg.Payload)
		case session.OutboundDisconnect:
			r.unregister(msg.Session)
		}
	}
}

func (r *outputRouter) deliver(sessionID uint64, payload string) {
	r.mu.Lock()
	ch, ok := r.writers[sessionID]
	r.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- payload:
	default:
		r.logger.Warn("session write queue full, dropping output",
			log.Uint64("session", sessionID))
	}
}
