// Package market retrieves intraday quote bars from Yahoo Finance and
// normalizes them into rows the persistence layer understands.
package market

import (
	"context"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"suptrading/internal/symbols"
)

// Row is one observation of one symbol at one timestamp. (Date, Symbol) is
// the dedup key within a polling session.
type Row struct {
	Date     time.Time       `db:"date" json:"date"`
	Share    string          `db:"share" json:"share"`
	Symbol   string          `db:"symbol" json:"symbol"`
	Open     decimal.Decimal `db:"open" json:"open"`
	High     decimal.Decimal `db:"high" json:"high"`
	Low      decimal.Decimal `db:"low" json:"low"`
	Close    decimal.Decimal `db:"close" json:"close"`
	AdjClose decimal.Decimal `db:"adj_close" json:"adj_close"`
	Volume   int64           `db:"volume" json:"volume"`
}

// Key identifies a row for dedup purposes.
type Key struct {
	Date   time.Time
	Symbol string
}

// Key returns the dedup key of the row.
func (r Row) Key() Key {
	return Key{Date: r.Date, Symbol: r.Symbol}
}

const (
	lookback       = 120 * time.Minute
	requestTimeout = 15 * time.Second
)

// Fetcher pulls the latest 1-minute bar per symbol.
type Fetcher struct {
	log   *logrus.Logger
	clock func() time.Time
}

func NewFetcher(log *logrus.Logger) *Fetcher {
	return &Fetcher{log: log, clock: time.Now}
}

// Fetch requests the last two hours of 1-minute bars for every symbol and
// keeps the newest bar each. A symbol whose name cannot be resolved, or
// whose provider request fails, is logged and skipped; it contributes no
// row to this tick. The next tick is the retry.
func (f *Fetcher) Fetch(ctx context.Context, tickers []string) []Row {
	rows := make([]Row, 0, len(tickers))
	for _, sym := range tickers {
		share, ok := symbols.NameOf(sym)
		if !ok {
			f.log.Errorf("symbol not found in universe: %s", sym)
			continue
		}
		row, err := f.latestBar(ctx, sym, share)
		if err != nil {
			f.log.Errorf("fetch %s: %v", sym, err)
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func (f *Fetcher) latestBar(ctx context.Context, sym, share string) (Row, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	now := f.clock()
	start := now.Add(-lookback)
	iter := chart.Get(&chart.Params{
		Params:   finance.Params{Context: &reqCtx},
		Symbol:   sym,
		Start:    datetime.New(&start),
		End:      datetime.New(&now),
		Interval: datetime.OneMin,
	})

	var last *finance.ChartBar
	for iter.Next() {
		b := iter.Bar()
		last = b
	}
	if err := iter.Err(); err != nil {
		return Row{}, fmt.Errorf("chart request: %w", err)
	}
	if last == nil {
		return Row{}, fmt.Errorf("no bars returned for %s", sym)
	}
	return rowFromBar(sym, share, last), nil
}

// rowFromBar converts a provider bar into the canonical row shape.
func rowFromBar(sym, share string, b *finance.ChartBar) Row {
	return Row{
		Date:     time.Unix(int64(b.Timestamp), 0).UTC(),
		Share:    share,
		Symbol:   sym,
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		AdjClose: b.AdjClose,
		Volume:   int64(b.Volume),
	}
}
