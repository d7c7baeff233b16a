// The daemon starts a trading session at market open on weekdays and keeps
// running across days. SIGINT/SIGTERM ends the current session gracefully
// (leftover rows are flushed) before the process exits.
package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"suptrading/internal/config"
	"suptrading/internal/market"
	"suptrading/internal/robot"
	"suptrading/internal/session"
	"suptrading/internal/status"
)

// liveSource exposes the currently running session to the status server,
// or an idle view between sessions.
type liveSource struct {
	mu      sync.Mutex
	current *session.Session
}

func (l *liveSource) set(s *session.Session) {
	l.mu.Lock()
	l.current = s
	l.mu.Unlock()
}

func (l *liveSource) get() *session.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (l *liveSource) State() robot.State {
	if s := l.get(); s != nil {
		return s.State()
	}
	return robot.StateNotTradingHours
}

func (l *liveSource) Snapshot() []market.Row {
	if s := l.get(); s != nil {
		return s.Snapshot()
	}
	return nil
}

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	cfg := config.Load()
	if cfg.DBHost == "" || cfg.DBName == "" || cfg.DBUser == "" {
		logger.Fatal("DB_HOST, DB_NAME and DB_USER are required; set them in .env or the environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	live := &liveSource{}
	if cfg.StatusAddr != "" {
		status.Serve(cfg.StatusAddr, live, logger)
	}

	var running sync.Mutex
	runSession := func() {
		if wd := time.Now().Weekday(); wd == time.Saturday || wd == time.Sunday {
			logger.Info("market closed (weekend); skipping session")
			return
		}
		if !running.TryLock() {
			logger.Warn("previous session still running; skipping")
			return
		}
		defer running.Unlock()

		s := session.New(cfg, logger)
		live.set(s)
		if err := s.Run(ctx); err != nil {
			logger.Errorf("session ended in failure: %v", err)
		}
		live.set(nil)
	}

	sched := gocron.NewScheduler(time.Local)
	if _, err := sched.Every(1).Day().At("09:00").Do(runSession); err != nil {
		logger.Fatalf("schedule session job: %v", err)
	}
	sched.StartAsync()
	logger.Info("daemon started; sessions begin weekdays at 09:00")

	// Catch up when the daemon boots mid-window instead of waiting for
	// tomorrow's 09:00 run.
	if robot.InTradingWindow(time.Now()) {
		go runSession()
	}

	<-ctx.Done()
	sched.Stop()
	logger.Info("daemon stopped")
}
