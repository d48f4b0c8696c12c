package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Chart holds the ids of the system accounts.
type Chart struct {
	Cash               int64
	Bank               int64
	AccountsReceivable int64
	Inventory          int64
	AccountsPayable    int64
	OwnerCapital       int64
	SalesRevenue       int64
	COGS               int64
}

// LoadChart resolves the system accounts inside a unit of work.
func LoadChart(ctx context.Context, tx TxRepository) (Chart, error) {
	var chart Chart
	targets := map[string]*int64{
		CodeCash:               &chart.Cash,
		CodeBank:               &chart.Bank,
		CodeAccountsReceivable: &chart.AccountsReceivable,
		CodeInventory:          &chart.Inventory,
		CodeAccountsPayable:    &chart.AccountsPayable,
		CodeOwnerCapital:       &chart.OwnerCapital,
		CodeSalesRevenue:       &chart.SalesRevenue,
		CodeCOGS:               &chart.COGS,
	}
	for code, dst := range targets {
		acc, err := tx.GetAccountByCode(ctx, code)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return Chart{}, fmt.Errorf("%w: system account %s missing, chart not initialised", shared.ErrNotFound, code)
			}
			return Chart{}, err
		}
		*dst = acc.ID
	}
	return chart, nil
}

// ensureChart creates whichever system accounts are missing.
func ensureChart(ctx context.Context, tx TxRepository) (int, error) {
	created := 0
	for _, sys := range SystemChart {
		_, err := tx.GetAccountByCode(ctx, sys.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return created, err
		}
		if _, err := tx.CreateAccount(ctx, Account{Code: sys.Code, Name: sys.Name, Type: sys.Type}); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
