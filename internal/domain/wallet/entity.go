package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementTypePayin MovementType = "payin"
)

// Wallet holds one owner's balance in one currency.
type Wallet struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	OwnerID   uuid.UUID       `db:"owner_id" json:"ownerId"`
	Currency  string          `db:"currency" json:"currency"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	IsActive  bool            `db:"is_active" json:"isActive"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// LedgerEntry is an append-only balance movement.
type LedgerEntry struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	WalletID     uuid.UUID       `db:"wallet_id" json:"walletId"`
	PayinID      uuid.NullUUID   `db:"payin_id" json:"payinId"`
	Reference    string          `db:"reference" json:"reference"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	BalanceAfter decimal.Decimal `db:"balance_after" json:"balanceAfter"`
	MovementType MovementType    `db:"movement_type" json:"movementType"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// Settlement is the outcome of crediting one payin.
type Settlement struct {
	WalletID      uuid.UUID       `json:"walletId"`
	LedgerEntryID uuid.UUID       `json:"ledgerEntryId"`
	Balance       decimal.Decimal `json:"balance"`
}

// Audit compares a wallet's balance with the sum of its ledger.
type Audit struct {
	WalletID  uuid.UUID       `db:"wallet_id" json:"walletId"`
	OwnerID   uuid.UUID       `db:"owner_id" json:"ownerId"`
	Currency  string          `db:"currency" json:"currency"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	LedgerSum decimal.Decimal `db:"ledger_sum" json:"ledgerSum"`
	Entries   int             `db:"entries" json:"entries"`
}

// Consistent reports whether the balance equals the ledger sum.
func (a *Audit) Consistent() bool {
	return a.Balance.Equal(a.LedgerSum)
}
