package robot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suptrading/internal/database"
	"suptrading/internal/market"
)

type fakeFetcher struct {
	batches [][]market.Row
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context, tickers []string) []market.Row {
	var out []market.Row
	if f.calls < len(f.batches) {
		out = f.batches[f.calls]
	}
	f.calls++
	return out
}

type fakeStore struct {
	mu        sync.Mutex
	ops       []string
	daily     []market.Row
	history   []market.Row
	insertErr error
	selectErr error
	flushErr  error
}

func (s *fakeStore) EnsureTable(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "ensure:"+name)
	return nil
}

func (s *fakeStore) Insert(ctx context.Context, name string, row market.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "insert:"+row.Symbol)
	if s.insertErr != nil {
		return s.insertErr
	}
	s.daily = append(s.daily, row)
	return nil
}

func (s *fakeStore) SelectAll(ctx context.Context, name string) ([]database.StoredRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "select:"+name)
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	out := make([]database.StoredRow, len(s.daily))
	for i, r := range s.daily {
		out[i] = database.StoredRow{
			ID: int64(i + 1), Date: r.Date, Share: r.Share, Symbol: r.Symbol,
			Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
			AdjClose: r.AdjClose, Volume: r.Volume,
		}
	}
	return out, nil
}

func (s *fakeStore) Flush(ctx context.Context, daily, history string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "flush")
	if s.flushErr != nil {
		return s.flushErr
	}
	s.history = append(s.history, s.daily...)
	s.daily = nil
	return nil
}

func (s *fakeStore) inserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range s.ops {
		if len(op) > 6 && op[:7] == "insert:" {
			n++
		}
	}
	return n
}

type sendCall struct {
	subject, body, attachment string
	attachmentExisted         bool
}

type fakeMailer struct {
	mu    sync.Mutex
	sends []sendCall
	err   error
}

func (m *fakeMailer) Send(subject, body, attachment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existed := false
	if attachment != "" {
		if _, err := os.Stat(attachment); err == nil {
			existed = true
		}
	}
	m.sends = append(m.sends, sendCall{subject, body, attachment, existed})
	return m.err
}

type fakeExporter struct {
	dir      string
	lastRows []database.StoredRow
	err      error
}

func (e *fakeExporter) Write(rows []database.StoredRow, prefix string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.lastRows = rows
	path := filepath.Join(e.dir, fmt.Sprintf("%s_test.csv", prefix))
	if err := os.WriteFile(path, []byte("export"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func staticOpener(s Store) OpenStore {
	return func(ctx context.Context) (Store, io.Closer, error) {
		return s, nopCloser{}, nil
	}
}

// scriptClock hands out the scripted times in order, repeating the last one
// once the script is exhausted.
func scriptClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[len(times)-1]
		if i < len(times) {
			t = times[i]
			i++
		}
		return t
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 11, hour, minute, 0, 0, time.UTC)
}

func row(sym, share string, ts time.Time, price float64) market.Row {
	d := decimal.NewFromFloat(price)
	return market.Row{
		Date: ts, Share: share, Symbol: sym,
		Open: d, High: d, Low: d, Close: d, AdjClose: d, Volume: 100,
	}
}

func newTestRobot(t *testing.T, f Fetcher, s Store, m Mailer, e Exporter) *Robot {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	r := New(f, staticOpener(s), m, e, Options{
		DailyTable:   "cac40_daily_data",
		HistoryTable: "cac40_history_data",
		Tickers:      []string{"AC.PA", "AI.PA", "MC.PA"},
		Interval:     0,
		TimingLog:    filepath.Join(t.TempDir(), "execution_times.txt"),
	}, log)
	r.store = s // for tests that drive tick directly
	return r
}

func TestInTradingWindow(t *testing.T) {
	cases := []struct {
		hour, minute int
		want         bool
	}{
		{8, 59, false},
		{9, 0, true},
		{12, 30, true},
		{16, 59, true},
		{17, 0, true},
		{17, 40, true},
		{17, 41, false},
		{18, 0, false},
		{0, 0, false},
	}
	for _, c := range cases {
		got := InTradingWindow(at(c.hour, c.minute))
		assert.Equal(t, c.want, got, "%02d:%02d", c.hour, c.minute)
	}
}

func TestFlushDue(t *testing.T) {
	assert.False(t, FlushDue(at(17, 39)))
	assert.True(t, FlushDue(at(17, 40)))
	assert.True(t, FlushDue(at(17, 59)))
	assert.False(t, FlushDue(at(18, 0)))
	assert.False(t, FlushDue(at(9, 40)))
}

func TestRunOutsideWindowNeverStarts(t *testing.T) {
	store := &fakeStore{}
	r := newTestRobot(t, &fakeFetcher{}, store, &fakeMailer{}, &fakeExporter{dir: t.TempDir()})
	r.clock = scriptClock(at(8, 0))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StateNotTradingHours, r.State())
	assert.Empty(t, store.ops)
}

func TestDuplicateRowSkippedOnSecondTick(t *testing.T) {
	ts := at(10, 0)
	same := row("AC.PA", "Accor", ts, 38.25)
	fetcher := &fakeFetcher{batches: [][]market.Row{{same}, {same}}}
	store := &fakeStore{}
	mailer := &fakeMailer{}
	r := newTestRobot(t, fetcher, store, mailer, &fakeExporter{dir: t.TempDir()})
	// start, tick1 window, tick1 flush check, tick2 window, tick2 flush
	// check hits 17:40, then the flush itself.
	r.clock = scriptClock(at(10, 0), at(10, 0), at(10, 1), at(10, 2), at(17, 40), at(17, 40))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StateTerminated, r.State())
	assert.Equal(t, 1, store.inserts(), "duplicate must not be re-inserted")
	assert.Len(t, store.history, 1)
	require.Len(t, mailer.sends, 1)
	assert.Contains(t, mailer.sends[0].subject, "CAC40 daily data")
	assert.True(t, mailer.sends[0].attachmentExisted)
}

func TestSnapshotReplacedWholesale(t *testing.T) {
	ts := at(10, 0)
	a := row("AC.PA", "Accor", ts, 38.25)
	b := row("AI.PA", "Air Liquide", ts, 170.5)
	fetcher := &fakeFetcher{batches: [][]market.Row{{a, b}, {b}, {a}}}
	store := &fakeStore{}
	r := newTestRobot(t, fetcher, store, &fakeMailer{}, &fakeExporter{dir: t.TempDir()})
	ctx := context.Background()

	require.NoError(t, r.tick(ctx))
	assert.Len(t, r.Snapshot(), 2)
	assert.Equal(t, 2, store.inserts())

	// Tick 2 returns only b: nothing new, snapshot shrinks to the fetched set.
	require.NoError(t, r.tick(ctx))
	assert.Len(t, r.Snapshot(), 1)
	assert.Equal(t, 2, store.inserts())

	// Tick 3 returns a again: a left the snapshot on tick 2, so it counts
	// as new. Comparison is tick-to-tick, never cumulative.
	require.NoError(t, r.tick(ctx))
	assert.Equal(t, 3, store.inserts())
}

func TestEmptyFetchKeepsSnapshot(t *testing.T) {
	ts := at(10, 0)
	a := row("AC.PA", "Accor", ts, 38.25)
	fetcher := &fakeFetcher{batches: [][]market.Row{{a}, nil}}
	store := &fakeStore{}
	r := newTestRobot(t, fetcher, store, &fakeMailer{}, &fakeExporter{dir: t.TempDir()})
	ctx := context.Background()

	require.NoError(t, r.tick(ctx))
	require.NoError(t, r.tick(ctx))
	assert.Len(t, r.Snapshot(), 1, "an all-failed tick leaves the snapshot alone")
	assert.Equal(t, 1, store.inserts())
}

func TestPartialBatch(t *testing.T) {
	// Two of three symbols got rows; the third failed inside the fetcher.
	ts := at(10, 0)
	fetcher := &fakeFetcher{batches: [][]market.Row{{
		row("AC.PA", "Accor", ts, 38.25),
		row("AI.PA", "Air Liquide", ts, 170.5),
	}}}
	store := &fakeStore{}
	r := newTestRobot(t, fetcher, store, &fakeMailer{}, &fakeExporter{dir: t.TempDir()})

	require.NoError(t, r.tick(context.Background()))
	assert.Len(t, r.Snapshot(), 2)
	assert.Equal(t, 2, store.inserts())
}

func TestInsertBeforeFlushRead(t *testing.T) {
	// A row arriving exactly at 17:40 is persisted before the flush reads
	// the table back.
	ts := at(17, 40)
	fetcher := &fakeFetcher{batches: [][]market.Row{{row("AC.PA", "Accor", ts, 38.25)}}}
	store := &fakeStore{}
	exporter := &fakeExporter{dir: t.TempDir()}
	r := newTestRobot(t, fetcher, store, &fakeMailer{}, exporter)
	r.clock = scriptClock(at(17, 35), at(17, 39), at(17, 40), at(17, 40))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StateTerminated, r.State())
	require.Len(t, exporter.lastRows, 1)
	assert.Equal(t, "AC.PA", exporter.lastRows[0].Symbol)

	insertIdx, selectIdx := -1, -1
	for i, op := range store.ops {
		switch op {
		case "insert:AC.PA":
			insertIdx = i
		case "select:cac40_daily_data":
			selectIdx = i
		}
	}
	require.GreaterOrEqual(t, insertIdx, 0)
	require.GreaterOrEqual(t, selectIdx, 0)
	assert.Less(t, insertIdx, selectIdx)
}

func TestWindowExitFlushesLeftovers(t *testing.T) {
	ts := at(10, 0)
	fetcher := &fakeFetcher{batches: [][]market.Row{{row("AC.PA", "Accor", ts, 38.25)}}}
	store := &fakeStore{}
	mailer := &fakeMailer{}
	r := newTestRobot(t, fetcher, store, mailer, &fakeExporter{dir: t.TempDir()})
	// One in-window tick, then the next window check lands outside.
	r.clock = scriptClock(at(10, 0), at(10, 0), at(10, 1), at(18, 0), at(18, 0))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StateTerminated, r.State())
	assert.Len(t, store.history, 1, "leftover rows archived on window exit")
	assert.Len(t, mailer.sends, 1)
}

func TestWindowExitWithEmptyTableSendsNothing(t *testing.T) {
	fetcher := &fakeFetcher{} // every tick comes back empty
	store := &fakeStore{}
	mailer := &fakeMailer{}
	r := newTestRobot(t, fetcher, store, mailer, &fakeExporter{dir: t.TempDir()})
	r.clock = scriptClock(at(10, 0), at(10, 0), at(10, 1), at(18, 0))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StateTerminated, r.State())
	assert.Empty(t, mailer.sends)
	assert.Empty(t, store.history)
}

func TestPersistenceErrorFailsRun(t *testing.T) {
	ts := at(10, 0)
	fetcher := &fakeFetcher{batches: [][]market.Row{{row("AC.PA", "Accor", ts, 38.25)}}}
	store := &fakeStore{insertErr: errors.New("connection reset")}
	mailer := &fakeMailer{}
	r := newTestRobot(t, fetcher, store, mailer, &fakeExporter{dir: t.TempDir()})
	r.clock = scriptClock(at(10, 0))

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, StateFailed, r.State())

	require.Len(t, mailer.sends, 1)
	alert := mailer.sends[0]
	assert.Contains(t, alert.subject, "failure")
	assert.True(t, alert.attachmentExisted, "report file must exist while the alert is sent")
	_, statErr := os.Stat(alert.attachment)
	assert.True(t, os.IsNotExist(statErr), "report file must be removed afterwards")
}

func TestAlertMailFailureDoesNotMaskCause(t *testing.T) {
	ts := at(10, 0)
	fetcher := &fakeFetcher{batches: [][]market.Row{{row("AC.PA", "Accor", ts, 38.25)}}}
	store := &fakeStore{insertErr: errors.New("connection reset")}
	mailer := &fakeMailer{err: errors.New("smtp down")}
	r := newTestRobot(t, fetcher, store, mailer, &fakeExporter{dir: t.TempDir()})
	r.clock = scriptClock(at(10, 0))

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NotContains(t, err.Error(), "smtp down")
	assert.Equal(t, StateFailed, r.State())
}

func TestConnectFailureRaisesAlert(t *testing.T) {
	mailer := &fakeMailer{}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	open := func(ctx context.Context) (Store, io.Closer, error) {
		return nil, nil, errors.New("no route to host")
	}
	r := New(&fakeFetcher{}, open, mailer, &fakeExporter{dir: t.TempDir()}, Options{
		DailyTable:   "cac40_daily_data",
		HistoryTable: "cac40_history_data",
		TimingLog:    filepath.Join(t.TempDir(), "execution_times.txt"),
	}, log)
	r.clock = scriptClock(at(10, 0))

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connect")
	assert.Equal(t, StateFailed, r.State())
	require.Len(t, mailer.sends, 1)
}

func TestTimingLogWritten(t *testing.T) {
	ts := at(10, 0)
	fetcher := &fakeFetcher{batches: [][]market.Row{{row("AC.PA", "Accor", ts, 38.25)}}}
	store := &fakeStore{}
	r := newTestRobot(t, fetcher, store, &fakeMailer{}, &fakeExporter{dir: t.TempDir()})

	require.NoError(t, r.tick(context.Background()))

	b, err := os.ReadFile(r.opts.TimingLog)
	require.NoError(t, err)
	assert.Contains(t, string(b), "data retrieval time")
	assert.Contains(t, string(b), "total insertion time")
}
