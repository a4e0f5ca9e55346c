package store

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Persister is the slice of the store the saver writes through. Live
// state is the source of truth for a running match; a failed save is
// retried and logged, never surfaced to gameplay.
type Persister interface {
	SaveSnapshot(gameID string, round int, payload []byte) error
	SaveRoundLog(gameID string, round int, message string) error
}

type saveJob struct {
	gameID  string
	round   int
	payload []byte
	message string
	isLog   bool
}

// Saver decouples persistence from the gameplay critical path: queueing
// never blocks, writes happen on a single background goroutine with
// retry and backoff.
type Saver struct {
	p         Persister
	log       *zap.Logger
	jobs      chan saveJob
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	retries   int
	backoff   time.Duration
}

func NewSaver(p Persister, log *zap.Logger) *Saver {
	return newSaver(p, log, 3, 250*time.Millisecond)
}

func newSaver(p Persister, log *zap.Logger, retries int, backoff time.Duration) *Saver {
	s := &Saver{
		p:       p,
		log:     log,
		jobs:    make(chan saveJob, 256),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		retries: retries,
		backoff: backoff,
	}
	go s.run()
	return s
}

func (s *Saver) QueueSnapshot(gameID string, round int, payload []byte) {
	s.enqueue(saveJob{gameID: gameID, round: round, payload: payload})
}

func (s *Saver) QueueRoundLog(gameID string, round int, message string) {
	s.enqueue(saveJob{gameID: gameID, round: round, message: message, isLog: true})
}

func (s *Saver) enqueue(job saveJob) {
	select {
	case <-s.quit:
		return
	default:
	}
	select {
	case s.jobs <- job:
	default:
		// shedding is preferable to ever stalling a match goroutine
		s.log.Warn("save queue full, dropping job",
			zap.String("game_id", job.gameID),
			zap.Int("round", job.round))
	}
}

// Close stops the worker after the already-queued jobs drain. Jobs
// queued after Close are dropped.
func (s *Saver) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.stopped
}

func (s *Saver) run() {
	defer close(s.stopped)
	for {
		select {
		case job := <-s.jobs:
			s.attempt(job)
		case <-s.quit:
			for {
				select {
				case job := <-s.jobs:
					s.attempt(job)
				default:
					return
				}
			}
		}
	}
}

func (s *Saver) attempt(job saveJob) {
	delay := s.backoff
	for try := 0; try <= s.retries; try++ {
		var err error
		if job.isLog {
			err = s.p.SaveRoundLog(job.gameID, job.round, job.message)
		} else {
			err = s.p.SaveSnapshot(job.gameID, job.round, job.payload)
		}
		if err == nil {
			return
		}
		s.log.Warn("persist failed",
			zap.String("game_id", job.gameID),
			zap.Int("round", job.round),
			zap.Int("try", try+1),
			zap.Error(err))
		if try < s.retries {
			time.Sleep(delay)
			delay *= 2
		}
	}
	s.log.Error("persist abandoned after retries",
		zap.String("game_id", job.gameID),
		zap.Int("round", job.round))
}

// Discard is a Persister for running without a database; everything the
// saver would write is dropped.
type Discard struct{}

func (Discard) SaveSnapshot(string, int, []byte) error { return nil }
func (Discard) SaveRoundLog(string, int, string) error { return nil }
