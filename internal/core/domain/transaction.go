package domain

import "time"

// LedgerTransaction is a read-only view of an on-chain token transfer as
// returned by the ledger. ValueUnits is the transferred amount in the
// token's smallest denomination.
type LedgerTransaction struct {
	ID             string
	From           string
	To             string
	TokenSymbol    string
	ValueUnits     int64
	BlockTimestamp time.Time
}
