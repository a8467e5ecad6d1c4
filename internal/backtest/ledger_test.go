package backtest

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerBuyAndSell(t *testing.T) {
	l := NewLedger(dec("100"), nil)
	require.NoError(t, l.ApplyBuy("X", dec("10"), dec("2")))
	assertDec(t, "80", l.Cash())
	assertDec(t, "2", l.Held("X"))

	require.NoError(t, l.ApplySell("X", dec("12"), dec("1"), decimal.Zero))
	assertDec(t, "92", l.Cash())
	assertDec(t, "1", l.Held("X"))
}

func TestLedgerRejectsOverdraft(t *testing.T) {
	l := NewLedger(dec("5"), nil)
	err := l.ApplyBuy("X", dec("10"), dec("1"))
	var funds *InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assertDec(t, "10", funds.Need)
	assertDec(t, "5", funds.Have)
	assertDec(t, "5", l.Cash())
	assertDec(t, "0", l.Held("X"))
	assert.True(t, IsSkippable(err))
}

func TestLedgerSellRespectsReservation(t *testing.T) {
	l := NewLedger(decimal.Zero, map[string]decimal.Decimal{"X": dec("3")})
	assertDec(t, "1", l.Available("X", dec("2")))

	err := l.ApplySell("X", dec("10"), dec("2"), dec("2"))
	var inv *InsufficientInventoryError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "X", inv.Symbol)
	assertDec(t, "1", inv.Have)
	assertDec(t, "3", l.Held("X"))

	require.NoError(t, l.ApplySell("X", dec("10"), dec("1"), dec("2")))
	assertDec(t, "10", l.Cash())
	assertDec(t, "2", l.Held("X"))
}

func TestLedgerPositionsAreCopies(t *testing.T) {
	l := NewLedger(dec("1"), map[string]decimal.Decimal{"B": dec("1"), "A": dec("2"), "Z": decimal.Zero})
	pos := l.Positions()
	pos["A"] = dec("99")
	assertDec(t, "2", l.Held("A"))
	assert.Equal(t, []string{"A", "B"}, l.Symbols())
}

func TestLedgerDebitCredit(t *testing.T) {
	l := NewLedger(dec("1"), nil)
	assert.Error(t, l.Debit(dec("1.01")))
	l.Credit(dec("0.01"))
	require.NoError(t, l.Debit(dec("1.01")))
	assert.True(t, l.Cash().IsZero())
	assert.False(t, IsSkippable(errors.New("other")))
}
