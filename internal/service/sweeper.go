package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/daily-diet/internal/repository"
)

// SessionSweeper periodically deletes expired session rows. Validation never
// depends on it: an expired session is rejected whether or not it was swept.
type SessionSweeper struct {
	sessions repository.SessionRepository
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewSessionSweeper(sessions repository.SessionRepository, interval time.Duration, logger *slog.Logger) *SessionSweeper {
	return &SessionSweeper{
		sessions: sessions,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start launches the background loop. Calling it more than once is a no-op,
// as is calling it with a non-positive interval.
func (s *SessionSweeper) Start() {
	if s.interval <= 0 {
		return
	}
	s.startOnce.Do(func() {
		s.logger.Info("starting expired session sweeper", slog.Duration("interval", s.interval))
		s.wg.Add(1)
		go s.loop()
	})
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *SessionSweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

// Sweep deletes every session that expired before now and returns how many
// rows went away.
func (s *SessionSweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired sessions swept", slog.Int64("count", n))
	}
	return n, nil
}

func (s *SessionSweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("failed to sweep expired sessions", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}
