package assets

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"equity-portal/grant-ledger-backend/pkg/numeric"
)

var (
	// ErrInsufficientBalance is returned when a pull exceeds the payer's funds.
	ErrInsufficientBalance = errors.New("insufficient payment balance")
	// ErrInsufficientAllowance is returned when a pull exceeds what the payer
	// has approved for the ledger operator.
	ErrInsufficientAllowance = errors.New("insufficient payment allowance")
)

// PaymentAccount is a per-holder balance of the payment asset, smallest units.
type PaymentAccount struct {
	HolderID uuid.UUID      `json:"holder_id" gorm:"type:uuid;primaryKey"`
	Balance  numeric.BigInt `json:"balance" gorm:"not null"`
}

// PaymentAllowance records what an owner lets a spender pull on their behalf.
type PaymentAllowance struct {
	OwnerID   uuid.UUID      `json:"owner_id" gorm:"type:uuid;primaryKey"`
	SpenderID uuid.UUID      `json:"spender_id" gorm:"type:uuid;primaryKey"`
	Amount    numeric.BigInt `json:"amount" gorm:"not null"`
}

// PaymentLedger is the allowance/pull payment collaborator used to collect
// strike payments. The grant ledger acts as the spender; holders approve it
// before exercising.
type PaymentLedger struct {
	db       *gorm.DB
	operator uuid.UUID
}

// NewPaymentLedger creates the ledger. operator is the spender identity the
// grant ledger pulls under.
func NewPaymentLedger(db *gorm.DB, operator uuid.UUID) (*PaymentLedger, error) {
	if err := db.AutoMigrate(&PaymentAccount{}, &PaymentAllowance{}); err != nil {
		return nil, fmt.Errorf("failed to migrate payment ledger: %w", err)
	}
	return &PaymentLedger{db: db, operator: operator}, nil
}

// Deposit credits a holder's payment balance.
func (l *PaymentLedger) Deposit(ctx context.Context, holder uuid.UUID, amount *big.Int) error {
	var acct PaymentAccount
	err := l.db.WithContext(ctx).First(&acct, "holder_id = ?", holder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		acct = PaymentAccount{HolderID: holder, Balance: numeric.NewBigInt(amount)}
		if err := l.db.WithContext(ctx).Create(&acct).Error; err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	acct.Balance.Add(amount)
	if err := l.db.WithContext(ctx).Save(&acct).Error; err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// Approve sets (not increments) the owner's allowance for the ledger operator.
func (l *PaymentLedger) Approve(ctx context.Context, owner uuid.UUID, amount *big.Int) error {
	a := PaymentAllowance{OwnerID: owner, SpenderID: l.operator, Amount: numeric.NewBigInt(amount)}
	if err := l.db.WithContext(ctx).Save(&a).Error; err != nil {
		return fmt.Errorf("failed to set allowance: %w", err)
	}
	return nil
}

// Pull moves amount from the payer to the payee under the operator's
// allowance, decrementing both the allowance and the payer's balance. It runs
// inside the caller's transaction so a failed settlement leaves no partial
// movement behind.
func (l *PaymentLedger) Pull(ctx context.Context, tx *gorm.DB, from, to uuid.UUID, amount *big.Int) error {
	if tx == nil {
		tx = l.db
	}

	var allowance PaymentAllowance
	err := tx.WithContext(ctx).First(&allowance, "owner_id = ? AND spender_id = ?", from, l.operator).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInsufficientAllowance
	} else if err != nil {
		return fmt.Errorf("failed to load allowance: %w", err)
	}
	if allowance.Amount.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}

	var payer PaymentAccount
	err = tx.WithContext(ctx).First(&payer, "holder_id = ?", from).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInsufficientBalance
	} else if err != nil {
		return fmt.Errorf("failed to load payer account: %w", err)
	}
	if payer.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	allowance.Amount.Sub(amount)
	if err := tx.WithContext(ctx).Save(&allowance).Error; err != nil {
		return fmt.Errorf("failed to update allowance: %w", err)
	}

	payer.Balance.Sub(amount)
	if err := tx.WithContext(ctx).Save(&payer).Error; err != nil {
		return fmt.Errorf("failed to update payer account: %w", err)
	}

	var payee PaymentAccount
	err = tx.WithContext(ctx).First(&payee, "holder_id = ?", to).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		payee = PaymentAccount{HolderID: to, Balance: numeric.NewBigInt(amount)}
		if err := tx.WithContext(ctx).Create(&payee).Error; err != nil {
			return fmt.Errorf("failed to create payee account: %w", err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to load payee account: %w", err)
	}
	payee.Balance.Add(amount)
	if err := tx.WithContext(ctx).Save(&payee).Error; err != nil {
		return fmt.Errorf("failed to update payee account: %w", err)
	}
	return nil
}

// BalanceOf returns the holder's payment balance.
func (l *PaymentLedger) BalanceOf(ctx context.Context, holder uuid.UUID) (*big.Int, error) {
	var acct PaymentAccount
	err := l.db.WithContext(ctx).First(&acct, "holder_id = ?", holder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return big.NewInt(0), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return acct.Balance.Int(), nil
}

// AllowanceOf returns what the holder has approved for the ledger operator.
func (l *PaymentLedger) AllowanceOf(ctx context.Context, owner uuid.UUID) (*big.Int, error) {
	var a PaymentAllowance
	err := l.db.WithContext(ctx).First(&a, "owner_id = ? AND spender_id = ?", owner, l.operator).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return big.NewInt(0), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load allowance: %w", err)
	}
	return a.Amount.Int(), nil
}
