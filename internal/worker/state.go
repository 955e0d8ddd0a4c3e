package worker

import (
	"context"
	"sync/atomic"
	"time"

	"shariahguide/internal/service/assistant"
)

type turnTask struct {
	ctx      context.Context
	req      assistant.TurnRequest
	resultCh chan workerReturn
}

type workerReturn struct {
	turn *assistant.Turn
	err  error
}

// sessionState is the queue of one session's worker goroutine.
type sessionState struct {
	taskCh     chan turnTask
	stopCh     chan struct{}
	lastActive atomic.Int64
}

func newSessionState(queueSize int) *sessionState {
	s := &sessionState{
		taskCh: make(chan turnTask, queueSize),
		stopCh: make(chan struct{}),
	}
	s.touch()
	return s
}

func (s *sessionState) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *sessionState) idleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActive.Load()))
}

// drain fails every queued task with err.
func (s *sessionState) drain(err error) {
	for {
		select {
		case task := <-s.taskCh:
			task.resultCh <- workerReturn{err: err}
		default:
			return
		}
	}
}
