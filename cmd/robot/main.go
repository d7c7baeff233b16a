package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"suptrading/internal/config"
	"suptrading/internal/robot"
	"suptrading/internal/session"
	"suptrading/internal/status"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	cfg := config.Load()
	if cfg.DBHost == "" || cfg.DBName == "" || cfg.DBUser == "" {
		logger.Fatal("DB_HOST, DB_NAME and DB_USER are required; set them in .env or the environment")
	}

	if wd := time.Now().Weekday(); wd == time.Saturday || wd == time.Sunday {
		logger.Info("market closed (weekend); nothing to do")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := session.New(cfg, logger)
	if cfg.StatusAddr != "" {
		status.Serve(cfg.StatusAddr, s, logger)
	}

	if err := s.Run(ctx); err != nil {
		logger.Errorf("session ended in failure: %v", err)
		os.Exit(1)
	}
	if s.State() == robot.StateNotTradingHours {
		logger.Info("robot did not start; outside trading hours")
	}
}
