// Package session wires one trading-session robot from configuration.
package session

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"suptrading/internal/config"
	"suptrading/internal/database"
	"suptrading/internal/export"
	"suptrading/internal/market"
	"suptrading/internal/notify"
	"suptrading/internal/robot"
	"suptrading/internal/symbols"
)

// Session owns a fully wired robot for one trading day.
type Session struct {
	bot *robot.Robot
}

func New(cfg config.Config, log *logrus.Logger) *Session {
	open := func(ctx context.Context) (robot.Store, io.Closer, error) {
		db, err := database.Connect(cfg.DSN())
		if err != nil {
			return nil, nil, err
		}
		return database.New(db, log), db, nil
	}

	bot := robot.New(
		market.NewFetcher(log),
		open,
		notify.NewMailer(cfg.MailConfig, log),
		export.NewWriter(cfg.ExportDir, cfg.ExportFormat, log),
		robot.Options{
			DailyTable:   cfg.DailyTable,
			HistoryTable: cfg.HistoryTable,
			Tickers:      symbols.Tickers(),
			Interval:     cfg.PollInterval,
			TimingLog:    cfg.TimingLog,
		},
		log,
	)
	return &Session{bot: bot}
}

// Run blocks until the session ends.
func (s *Session) Run(ctx context.Context) error {
	return s.bot.Run(ctx)
}

func (s *Session) State() robot.State {
	return s.bot.State()
}

func (s *Session) Snapshot() []market.Row {
	return s.bot.Snapshot()
}
