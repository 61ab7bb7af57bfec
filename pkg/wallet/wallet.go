// Package wallet is the port to the outside custody/blockchain layer:
// assigning a deposit address and submitting a withdrawal. The core
// never interprets a transaction hash or status beyond what this
// interface returns.
package wallet

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/altxchange/spotcore/pkg/exch"
)

// Port is the wallet dependency the account and admin services are
// written against.
type Port interface {
	// AssignDepositAddress returns the deposit address for (userID,
	// asset), stable across repeated calls for the same pair.
	AssignDepositAddress(userID int64, asset exch.Asset) (string, error)
	// SubmitWithdrawal submits an outbound transfer and returns an
	// opaque transaction hash.
	SubmitWithdrawal(userID int64, asset exch.Asset, amount decimal.Decimal, address string) (string, error)
	// TransactionStatus probes the chain for tx's current state. The
	// core treats the result as opaque beyond logging it.
	TransactionStatus(txHash string) (Status, error)
}

// Status is an opaque chain-status record; callers don't branch on its
// fields beyond surfacing them.
type Status struct {
	TxHash        string
	Confirmed     bool
	Confirmations int
}

// ErrUnsupportedAsset reports a request for an asset a Port does not
// handle. SimChain accepts every asset and never returns it.
type ErrUnsupportedAsset struct {
	Asset exch.Asset
}

func (e *ErrUnsupportedAsset) Error() string {
	return fmt.Sprintf("wallet: unsupported asset %q", e.Asset)
}
