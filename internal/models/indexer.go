package models

import "context"

// Transaction is one incoming on-chain transfer as seen by the indexer.
type Transaction struct {
	Hash string `json:"hash"`
	// LT is the chain's logical time of the transaction.
	LT int64 `json:"lt"`
	// AmountNano is the transferred amount in nano units (1e-9).
	AmountNano int64 `json:"amount"`
	// Source is the sender wallet address.
	Source string `json:"source"`
	// Comment is the transfer's free-text memo. Used purely as a correlation
	// key, never trusted for amount.
	Comment   string `json:"comment"`
	Timestamp int64  `json:"timestamp"`
}

// ChainIndexer lists incoming transfers for a receiving wallet.
type ChainIndexer interface {
	IncomingTransactions(ctx context.Context, wallet string, limit int) ([]Transaction, error)
}
