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

// ErrSupplyCapExceeded is returned when a mint would push issued supply past
// the asset's hard cap.
var ErrSupplyCapExceeded = errors.New("equity supply cap exceeded")

// EquitySupply is the single supply row for the equity asset. Cap and Issued
// are kept in the asset's smallest unit.
type EquitySupply struct {
	AssetCode string         `json:"asset_code" gorm:"primaryKey"`
	Decimals  int            `json:"decimals" gorm:"not null"`
	Cap       numeric.BigInt `json:"cap" gorm:"not null"`
	Issued    numeric.BigInt `json:"issued" gorm:"not null"`
}

// EquityBalance is a per-holder balance of the equity asset, smallest units.
type EquityBalance struct {
	HolderID uuid.UUID      `json:"holder_id" gorm:"type:uuid;primaryKey"`
	Balance  numeric.BigInt `json:"balance" gorm:"not null"`
}

// CappedEquityLedger is the mint-only equity asset collaborator. Minting is
// restricted to the grant settlement path and bounded by the supply cap; it
// always runs inside the caller's transaction so a failed settlement leaves
// no supply change behind.
type CappedEquityLedger struct {
	db        *gorm.DB
	assetCode string
}

// NewCappedEquityLedger creates the ledger and ensures the supply row exists.
// cap is given in whole units and scaled by decimals.
func NewCappedEquityLedger(db *gorm.DB, assetCode string, decimals int, capWholeUnits uint64) (*CappedEquityLedger, error) {
	if err := db.AutoMigrate(&EquitySupply{}, &EquityBalance{}); err != nil {
		return nil, fmt.Errorf("failed to migrate equity ledger: %w", err)
	}

	var supply EquitySupply
	err := db.First(&supply, "asset_code = ?", assetCode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		capUnits := numeric.ScalePow10(new(big.Int).SetUint64(capWholeUnits), decimals)
		supply = EquitySupply{
			AssetCode: assetCode,
			Decimals:  decimals,
			Cap:       numeric.NewBigInt(capUnits),
			Issued:    numeric.FromUint64(0),
		}
		if err := db.Create(&supply).Error; err != nil {
			return nil, fmt.Errorf("failed to create supply row: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load supply row: %w", err)
	}

	return &CappedEquityLedger{db: db, assetCode: assetCode}, nil
}

// Mint converts wholeOptions into smallest-unit equity (1 option = 1 whole
// unit) and credits the recipient, failing if the supply cap would be
// breached. Returns the minted smallest-unit amount.
func (l *CappedEquityLedger) Mint(ctx context.Context, tx *gorm.DB, recipient uuid.UUID, wholeOptions uint64) (*big.Int, error) {
	if tx == nil {
		tx = l.db
	}

	var supply EquitySupply
	if err := tx.WithContext(ctx).First(&supply, "asset_code = ?", l.assetCode).Error; err != nil {
		return nil, fmt.Errorf("failed to load supply row: %w", err)
	}

	units := numeric.ScalePow10(new(big.Int).SetUint64(wholeOptions), supply.Decimals)
	issued := supply.Issued.Int()
	issued.Add(issued, units)
	if issued.Cmp(supply.Cap.Int()) > 0 {
		return nil, ErrSupplyCapExceeded
	}

	supply.Issued.Set(issued)
	if err := tx.WithContext(ctx).Save(&supply).Error; err != nil {
		return nil, fmt.Errorf("failed to update supply: %w", err)
	}

	var balance EquityBalance
	err := tx.WithContext(ctx).First(&balance, "holder_id = ?", recipient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		balance = EquityBalance{HolderID: recipient, Balance: numeric.NewBigInt(units)}
		if err := tx.WithContext(ctx).Create(&balance).Error; err != nil {
			return nil, fmt.Errorf("failed to create balance: %w", err)
		}
		return units, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}

	balance.Balance.Add(units)
	if err := tx.WithContext(ctx).Save(&balance).Error; err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	return units, nil
}

// BalanceOf returns the holder's equity balance in smallest units.
func (l *CappedEquityLedger) BalanceOf(ctx context.Context, holder uuid.UUID) (*big.Int, error) {
	var balance EquityBalance
	err := l.db.WithContext(ctx).First(&balance, "holder_id = ?", holder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return big.NewInt(0), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	return balance.Balance.Int(), nil
}

// Supply returns issued supply and the cap, both in smallest units.
func (l *CappedEquityLedger) Supply(ctx context.Context) (issued, cap *big.Int, err error) {
	var supply EquitySupply
	if err := l.db.WithContext(ctx).First(&supply, "asset_code = ?", l.assetCode).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load supply row: %w", err)
	}
	return supply.Issued.Int(), supply.Cap.Int(), nil
}
