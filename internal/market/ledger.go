package market

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tabmarket/backend/internal/models"
)

// Ledger holds per-account balances in minor units. No operation leaves a
// balance negative.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*models.Account)}
}

// Open creates an account with the given starting balance.
func (l *Ledger) Open(accountID string, balance int64, now time.Time) (models.Account, error) {
	if balance < 0 {
		return models.Account{}, fmt.Errorf("%w: opening balance %d", ErrInvalidAmount, balance)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.accounts[accountID]; exists {
		return models.Account{}, fmt.Errorf("%w: %s", ErrAccountExists, accountID)
	}
	acct := &models.Account{ID: accountID, Balance: balance, Version: 1, UpdatedAt: now}
	l.accounts[accountID] = acct
	return *acct, nil
}

func (l *Ledger) Exists(accountID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.accounts[accountID]
	return ok
}

// Account returns a copy of the account record.
func (l *Ledger) Account(accountID string) (models.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acct, ok := l.accounts[accountID]
	if !ok {
		return models.Account{}, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	return *acct, nil
}

func (l *Ledger) Balance(accountID string) (int64, error) {
	acct, err := l.Account(accountID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Debit subtracts amount, failing with ErrInsufficientFunds when the balance
// would go negative.
func (l *Ledger) Debit(accountID string, amount int64, now time.Time) (models.Account, error) {
	if amount <= 0 {
		return models.Account{}, fmt.Errorf("%w: debit %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[accountID]
	if !ok {
		return models.Account{}, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	if acct.Balance < amount {
		return models.Account{}, fmt.Errorf("%w: account %s has %d, needs %d", ErrInsufficientFunds, accountID, acct.Balance, amount)
	}
	acct.Balance -= amount
	acct.Version++
	acct.UpdatedAt = now
	return *acct, nil
}

// Credit adds amount to the account.
func (l *Ledger) Credit(accountID string, amount int64, now time.Time) (models.Account, error) {
	if amount <= 0 {
		return models.Account{}, fmt.Errorf("%w: credit %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[accountID]
	if !ok {
		return models.Account{}, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	if acct.Balance > math.MaxInt64-amount {
		return models.Account{}, fmt.Errorf("%w: account %s", ErrBalanceOverflow, accountID)
	}
	acct.Balance += amount
	acct.Version++
	acct.UpdatedAt = now
	return *acct, nil
}

// Snapshot returns copies of all accounts ordered by id.
func (l *Ledger) Snapshot() []models.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Account, 0, len(l.accounts))
	for _, acct := range l.accounts {
		out = append(out, *acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// restore puts back a previously read account record, or removes the
// account when prev is nil.
func (l *Ledger) restore(accountID string, prev *models.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev == nil {
		delete(l.accounts, accountID)
		return
	}
	acct := *prev
	l.accounts[accountID] = &acct
}
