package backtest

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownAsset  = errors.New("unknown asset")
	ErrMissingVolume = errors.New("missing trade volume")
	ErrInvalidConfig = errors.New("invalid backtest config")
)

// InsufficientDataError aborts a run: an asset has no bars, or the assets
// share no overlapping day inside the requested range.
type InsufficientDataError struct {
	Symbol string
	Reason string
}

func (e *InsufficientDataError) Error() string {
	if e.Symbol == "" {
		return "insufficient data: " + e.Reason
	}
	return fmt.Sprintf("insufficient data for %s: %s", e.Symbol, e.Reason)
}

// InsufficientFundsError is returned when a debit would take cash below zero.
type InsufficientFundsError struct {
	Need decimal.Decimal
	Have decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %s, have %s", e.Need.String(), e.Have.String())
}

// InsufficientInventoryError is returned when a sell exceeds unreserved volume.
type InsufficientInventoryError struct {
	Symbol string
	Need   decimal.Decimal
	Have   decimal.Decimal
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient %s inventory: need %s, available %s", e.Symbol, e.Need.String(), e.Have.String())
}

// IsSkippable reports whether err only means a signal could not be executed.
func IsSkippable(err error) bool {
	var funds *InsufficientFundsError
	var inv *InsufficientInventoryError
	return errors.As(err, &funds) || errors.As(err, &inv)
}
