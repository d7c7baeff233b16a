package database

import (
	"time"

	"github.com/shopspring/decimal"
)

// StoredRow is a quote row as read back from a table, id included.
type StoredRow struct {
	ID       int64           `db:"id" json:"id"`
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
