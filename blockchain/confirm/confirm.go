// Package confirm resolves a submitted transaction hash to its receipt by polling a node.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"truecanvas/blockchain/types"
	"truecanvas/config"
	"truecanvas/internal/poll"
)

// ErrReceiptTimeout is matched by every ReceiptTimeoutError
var ErrReceiptTimeout = errors.New("transaction receipt timeout")

// ReceiptTimeoutError reports a transaction that was not confirmed within the attempt budget
type ReceiptTimeoutError struct {
	Hash     common.Hash
	ChainID  uint64
	Attempts int
}

func (e *ReceiptTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s on chain %d not confirmed after %d attempts; check the explorer before resubmitting",
		e.Hash.Hex(), e.ChainID, e.Attempts)
}

func (e *ReceiptTimeoutError) Is(target error) bool { return target == ErrReceiptTimeout }

// ReceiptFetcher is the node read the engine polls.
// Implementations return types.ErrReceiptNotFound while the transaction is not yet mined.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Engine polls for receipts with a fixed interval and attempt budget
type Engine struct {
	interval    time.Duration
	maxAttempts int
	logger      *log.Logger
}

// New creates a confirmation engine; non-positive values select the 2s x 20 defaults
func New(interval time.Duration, maxAttempts int, logger *log.Logger) *Engine {
	if interval <= 0 {
		interval = poll.DefaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = poll.DefaultMaxAttempts
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{interval: interval, maxAttempts: maxAttempts, logger: logger}
}

// FromConfig creates a confirmation engine from the client configuration
func FromConfig(cfg config.ConfirmationConfig, logger *log.Logger) *Engine {
	return New(cfg.Interval(), cfg.MaxAttempts, logger)
}

// Confirm waits for the receipt of tx. A receipt with failure status is returned as is.
func (e *Engine) Confirm(ctx context.Context, fetcher ReceiptFetcher, tx types.PendingTransaction) (*types.Receipt, error) {
	opts := poll.Options{Interval: e.interval, MaxAttempts: e.maxAttempts}

	receipt, err := poll.Poll(ctx, opts, func(ctx context.Context) (*types.Receipt, error) {
		r, err := fetcher.TransactionReceipt(ctx, tx.Hash)
		if err != nil {
			if errors.Is(err, types.ErrReceiptNotFound) {
				return nil, poll.Retry(err)
			}
			return nil, fmt.Errorf("receipt lookup for %s failed: %w", tx.Hash.Hex(), err)
		}
		if r == nil {
			return nil, poll.Retry(types.ErrReceiptNotFound)
		}
		return r, nil
	})
	if err != nil {
		var te *poll.TimeoutError
		if errors.As(err, &te) {
			e.logger.Printf("Transaction %s not confirmed after %d attempts", tx.Hash.Hex(), te.Attempts)
			return nil, &ReceiptTimeoutError{Hash: tx.Hash, ChainID: tx.ChainID, Attempts: te.Attempts}
		}
		return nil, err
	}

	e.logger.Printf("Transaction %s confirmed in block %d (status: %s, %d logs, %s after submission)",
		tx.Hash.Hex(), receipt.BlockNumber, receipt.Status, len(receipt.Logs), time.Since(tx.SubmittedAt).Round(time.Millisecond))
	return receipt, nil
}
