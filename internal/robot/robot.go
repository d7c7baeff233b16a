// Package robot drives the trading-session polling loop: fetch quotes on a
// schedule, persist rows not seen on the previous tick, and flush the daily
// table to a mailed export at session end.
package robot

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"suptrading/internal/database"
	"suptrading/internal/market"
)

// State is the loop's lifecycle position.
type State int

const (
	StateNotTradingHours State = iota
	StateRunning
	StateFlushing
	StateTerminated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotTradingHours:
		return "NOT_TRADING_HOURS"
	case StateRunning:
		return "RUNNING"
	case StateFlushing:
		return "FLUSHING"
	case StateTerminated:
		return "TERMINATED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Fetcher returns the latest row per symbol. Per-symbol failures are
// handled inside; the slice simply misses those symbols.
type Fetcher interface {
	Fetch(ctx context.Context, tickers []string) []market.Row
}

// Store is the persistence gateway. Every error from it is fatal to the run.
type Store interface {
	EnsureTable(ctx context.Context, name string) error
	Insert(ctx context.Context, name string, row market.Row) error
	SelectAll(ctx context.Context, name string) ([]database.StoredRow, error)
	Flush(ctx context.Context, daily, history string) error
}

// Mailer sends one message with an optional attachment path.
type Mailer interface {
	Send(subject, body, attachment string) error
}

// Exporter writes rows to a file and returns its path.
type Exporter interface {
	Write(rows []database.StoredRow, prefix string) (string, error)
}

// OpenStore acquires the persistence gateway for one run. The returned
// closer releases the underlying connection.
type OpenStore func(ctx context.Context) (Store, io.Closer, error)

type Options struct {
	DailyTable   string
	HistoryTable string
	Tickers      []string
	Interval     time.Duration
	TimingLog    string
}

type Robot struct {
	fetcher  Fetcher
	open     OpenStore
	store    Store // set for the duration of one run
	mailer   Mailer
	exporter Exporter
	opts     Options
	log      *logrus.Logger
	clock    func() time.Time

	mu       sync.Mutex
	state    State
	snapshot []market.Row
}

func New(fetcher Fetcher, open OpenStore, mailer Mailer, exporter Exporter, opts Options, log *logrus.Logger) *Robot {
	return &Robot{
		fetcher:  fetcher,
		open:     open,
		mailer:   mailer,
		exporter: exporter,
		opts:     opts,
		log:      log,
		clock:    time.Now,
	}
}

// InTradingWindow reports whether polling is permitted at t: any minute of
// hours 9 through 16, plus 17:00 through 17:40 inclusive.
func InTradingWindow(t time.Time) bool {
	h, m := t.Hour(), t.Minute()
	return (h >= 9 && h < 17) || (h == 17 && m <= 40)
}

// FlushDue reports whether the end-of-session flush should run at t.
func FlushDue(t time.Time) bool {
	return t.Hour() == 17 && t.Minute() >= 40
}

// State returns the current loop state.
func (r *Robot) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns the rows fetched on the most recent tick.
func (r *Robot) Snapshot() []market.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]market.Row, len(r.snapshot))
	copy(out, r.snapshot)
	return out
}

func (r *Robot) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Robot) replaceSnapshot(rows []market.Row) {
	r.mu.Lock()
	r.snapshot = rows
	r.mu.Unlock()
}

// Run executes one trading session and blocks until it ends. It returns nil
// after a clean termination (including a never-started run outside trading
// hours) and the causing error after a failure, the alert already sent.
func (r *Robot) Run(ctx context.Context) error {
	now := r.clock()
	if !InTradingWindow(now) {
		r.setState(StateNotTradingHours)
		r.log.Infof("outside trading hours (%02d:%02d); not starting", now.Hour(), now.Minute())
		return nil
	}

	r.setState(StateRunning)
	r.replaceSnapshot(nil)
	r.log.Info("trading session started")

	store, closer, err := r.open(ctx)
	if err != nil {
		return r.fail(fmt.Errorf("database connect: %w", err))
	}
	defer closer.Close()
	r.store = store

	for _, tbl := range []string{r.opts.DailyTable, r.opts.HistoryTable} {
		if err := r.store.EnsureTable(ctx, tbl); err != nil {
			return r.fail(err)
		}
	}

	for {
		now = r.clock()
		if !InTradingWindow(now) {
			r.log.Infof("outside trading hours (%02d:%02d); stopping", now.Hour(), now.Minute())
			// A session that accumulated rows still gets its export even
			// when the explicit flush minute was never observed.
			if err := r.flush(ctx, true); err != nil {
				return r.fail(err)
			}
			r.setState(StateTerminated)
			return nil
		}

		if err := r.tick(ctx); err != nil {
			return r.fail(err)
		}

		if FlushDue(r.clock()) {
			if err := r.flush(ctx, false); err != nil {
				return r.fail(err)
			}
			r.setState(StateTerminated)
			return nil
		}

		select {
		case <-ctx.Done():
			r.log.Info("context cancelled; flushing and stopping")
			if err := r.flush(context.Background(), true); err != nil {
				return r.fail(err)
			}
			r.setState(StateTerminated)
			return nil
		case <-time.After(r.opts.Interval):
		}
	}
}

// tick runs one fetch-compare-insert cycle. Rows whose (date, symbol) key
// was present on the previous tick are skipped; the snapshot is then
// replaced wholesale so comparison stays tick-to-tick.
func (r *Robot) tick(ctx context.Context) error {
	fetchStart := time.Now()
	rows := r.fetcher.Fetch(ctx, r.opts.Tickers)
	retrieval := time.Since(fetchStart)

	if len(rows) == 0 {
		r.log.Info("no quote data this tick")
		return nil
	}

	prevRows := r.Snapshot()
	seen := make(map[market.Key]struct{}, len(prevRows))
	for _, p := range prevRows {
		seen[p.Key()] = struct{}{}
	}

	var insertion time.Duration
	inserted := 0
	for _, row := range rows {
		if _, ok := seen[row.Key()]; ok {
			r.log.Debugf("row already seen: %s @ %s", row.Symbol, row.Date.Format(time.RFC3339))
			continue
		}
		insertStart := time.Now()
		if err := r.store.Insert(ctx, r.opts.DailyTable, row); err != nil {
			return err
		}
		insertion += time.Since(insertStart)
		inserted++
		r.log.Infof("new row inserted: %s @ %s", row.Symbol, row.Date.Format(time.RFC3339))
	}

	r.replaceSnapshot(rows)
	r.appendTiming(retrieval, insertion, inserted)
	return nil
}

// flush exports the daily table, mails the file, then archives and empties
// the table. When onExit is set (window exit or cancellation) an empty
// table ends the session quietly instead of mailing a bare header.
func (r *Robot) flush(ctx context.Context, onExit bool) error {
	r.setState(StateFlushing)

	rows, err := r.store.SelectAll(ctx, r.opts.DailyTable)
	if err != nil {
		return err
	}
	if onExit && len(rows) == 0 {
		r.log.Info("daily table empty on exit; nothing to flush")
		return nil
	}

	path, err := r.exporter.Write(rows, r.opts.DailyTable)
	if err != nil {
		return err
	}

	now := r.clock()
	subject := fmt.Sprintf("CAC40 daily data %s", now.Format("2006-01-02 15:04:05"))
	body := "Hello,\nAttached is today's CAC40 share price file.\nRegards, the IT team"
	if err := r.mailer.Send(subject, body, path); err != nil {
		return err
	}

	return r.store.Flush(ctx, r.opts.DailyTable, r.opts.HistoryTable)
}

// fail writes a timestamped error report, mails it as an alert, removes the
// report file, and hands the original error back. An alert-mail failure is
// only logged so it cannot mask the cause.
func (r *Robot) fail(cause error) error {
	r.setState(StateFailed)
	now := r.clock()
	r.log.Errorf("run failed: %v", cause)

	report := fmt.Sprintf("Error occurred on %s\n\nDetails:\n%v\n",
		now.Format("2006-01-02 15:04:05"), cause)
	reportFile := fmt.Sprintf("error_%s.txt", now.Format("20060102_150405"))
	if err := os.WriteFile(reportFile, []byte(report), 0o644); err != nil {
		r.log.Errorf("write error report: %v", err)
		return cause
	}

	if err := r.mailer.Send(
		"SupTrading robot failure",
		"An error occurred during the robot run. Details attached.",
		reportFile,
	); err != nil {
		r.log.Errorf("alert mail failed: %v", err)
	} else {
		r.log.Info("alert mail sent")
	}

	if err := os.Remove(reportFile); err != nil {
		r.log.Errorf("remove error report: %v", err)
	}
	return cause
}

// appendTiming records tick durations in the append-only timing log. The
// log is observability only; a write failure never stops the run.
func (r *Robot) appendTiming(retrieval, insertion time.Duration, inserted int) {
	f, err := os.OpenFile(r.opts.TimingLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.log.Warnf("open timing log: %v", err)
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "data retrieval time: %.6f seconds\n", retrieval.Seconds())
	if inserted > 0 {
		fmt.Fprintf(f, "total insertion time: %.6f seconds\n", insertion.Seconds())
	}
}
