package types

import "errors"

var (
	// ErrReceiptNotFound is returned by a client's receipt lookup while the transaction is not yet mined.
	// Clients translate their own library's not-found condition into this error.
	ErrReceiptNotFound = errors.New("transaction receipt not found")

	// ErrWalletNotConnected is returned by write calls when no signer is configured
	ErrWalletNotConnected = errors.New("wallet not connected")
)
