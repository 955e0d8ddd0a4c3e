package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"shariahguide/internal/service/assistant"
)

const (
	DefaultQueueSize   = 4
	DefaultIdleTimeout = 30 * time.Minute
)

var (
	ErrSessionBusy = errors.New("too many pending questions for this session")
	ErrClosed      = errors.New("worker manager closed")
)

// Asker runs a single turn. *assistant.Service implements it.
type Asker interface {
	Ask(ctx context.Context, req assistant.TurnRequest) (*assistant.Turn, error)
}

type Config struct {
	QueueSize   int
	IdleTimeout time.Duration
}

// Manager runs turns on one goroutine per session, so questions of a session
// are answered one at a time in submission order while different sessions
// proceed in parallel.
type Manager struct {
	asker       Asker
	queueSize   int
	idleTimeout time.Duration

	mu      sync.Mutex
	closed  bool
	workers map[int64]*sessionState
}

func NewManager(asker Asker, cfg Config) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		asker:       asker,
		queueSize:   cfg.QueueSize,
		idleTimeout: cfg.IdleTimeout,
		workers:     make(map[int64]*sessionState),
	}
}

// Ask queues a turn on the session's worker and waits for its result.
// ErrSessionBusy is returned without waiting when the queue is full.
func (m *Manager) Ask(ctx context.Context, req assistant.TurnRequest) (*assistant.Turn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.SessionID <= 0 {
		return nil, errors.New("session id required")
	}
	resultCh := make(chan workerReturn, 1)
	if err := m.enqueue(req.SessionID, turnTask{ctx: ctx, req: req, resultCh: resultCh}); err != nil {
		return nil, err
	}
	select {
	case ret := <-resultCh:
		return ret.turn, ret.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActiveSessions reports how many session workers are running.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// Close stops every worker. Queued turns fail with ErrClosed; a turn already
// running finishes.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, state := range m.workers {
		close(state.stopCh)
		delete(m.workers, id)
	}
}

func (m *Manager) enqueue(sessionID int64, task turnTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	state, ok := m.workers[sessionID]
	if !ok {
		state = newSessionState(m.queueSize)
		m.workers[sessionID] = state
		go m.runWorker(sessionID, state)
		log.WithField("session_id", sessionID).Debug("session worker started")
	}
	select {
	case state.taskCh <- task:
		return nil
	default:
		return ErrSessionBusy
	}
}

func (m *Manager) runWorker(sessionID int64, state *sessionState) {
	timer := time.NewTimer(m.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-state.stopCh:
			state.drain(ErrClosed)
			log.WithField("session_id", sessionID).Debug("session worker stopped")
			return
		case task := <-state.taskCh:
			select {
			case <-state.stopCh:
				task.resultCh <- workerReturn{err: ErrClosed}
				state.drain(ErrClosed)
				return
			default:
			}
			task.resultCh <- m.handleTurn(task)
			state.touch()
			timer.Reset(m.idleTimeout)
		case <-timer.C:
			if m.retire(sessionID, state) {
				log.WithFields(log.Fields{"session_id": sessionID, "idle": state.idleFor()}).Debug("session worker retired")
				return
			}
			timer.Reset(m.idleTimeout)
		}
	}
}

// retire removes an idle worker unless a task slipped in. Enqueue and retire
// both hold m.mu, so no task is left on an abandoned queue.
func (m *Manager) retire(sessionID int64, state *sessionState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(state.taskCh) > 0 {
		return false
	}
	if m.workers[sessionID] == state {
		delete(m.workers, sessionID)
	}
	return true
}

func (m *Manager) handleTurn(task turnTask) (ret workerReturn) {
	if err := task.ctx.Err(); err != nil {
		return workerReturn{err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"panic": r, "session_id": task.req.SessionID}).Error("turn panicked")
			ret = workerReturn{err: fmt.Errorf("turn panicked: %v", r)}
		}
	}()
	turn, err := m.asker.Ask(task.ctx, task.req)
	return workerReturn{turn: turn, err: err}
}
