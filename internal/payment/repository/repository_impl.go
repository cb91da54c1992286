package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/condolabs/condoledger/internal/payment/domain"
	tenantdomain "github.com/condolabs/condoledger/internal/tenant/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// FindUnitForUpdate takes the unit row lock that serializes allocations for
// one unit.
func (r *Repository) FindUnitForUpdate(ctx context.Context, db *gorm.DB, unitID snowflake.ID) (*tenantdomain.Unit, error) {
	query := db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var unit tenantdomain.Unit
	err := query.First(&unit, "id = ?", unitID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &unit, nil
}

func (r *Repository) InsertPayment(ctx context.Context, db *gorm.DB, payment *paymentdomain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *Repository) InsertFeePayment(ctx context.Context, db *gorm.DB, allocation *paymentdomain.FeePayment) error {
	return db.WithContext(ctx).Create(allocation).Error
}

func (r *Repository) InsertCredit(ctx context.Context, db *gorm.DB, credit *paymentdomain.UnitCredit) error {
	return db.WithContext(ctx).Create(credit).Error
}

// AppliedToFee sums the allocation trail of one fee.
func (r *Repository) AppliedToFee(ctx context.Context, db *gorm.DB, feeID snowflake.ID) (decimal.Decimal, error) {
	var applied decimal.NullDecimal
	err := db.WithContext(ctx).Raw(
		`SELECT SUM(amount) FROM fee_payments WHERE fee_id = ?`,
		feeID,
	).Scan(&applied).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !applied.Valid {
		return decimal.Zero, nil
	}
	return applied.Decimal, nil
}

// OutstandingForUnit computes sum(fee.amount) - sum(applied) over the unit's
// non-historical fees.
func (r *Repository) OutstandingForUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) (decimal.Decimal, error) {
	var billed decimal.NullDecimal
	err := db.WithContext(ctx).Raw(
		`SELECT SUM(amount) FROM fees WHERE unit_id = ? AND is_historical = ?`,
		unitID, false,
	).Scan(&billed).Error
	if err != nil {
		return decimal.Zero, err
	}

	var applied decimal.NullDecimal
	err = db.WithContext(ctx).Raw(
		`SELECT SUM(fp.amount)
		 FROM fee_payments fp
		 JOIN fees f ON f.id = fp.fee_id
		 WHERE f.unit_id = ? AND f.is_historical = ?`,
		unitID, false,
	).Scan(&applied).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	if billed.Valid {
		total = billed.Decimal
	}
	if applied.Valid {
		total = total.Sub(applied.Decimal)
	}
	return total, nil
}

// CreditForUnit sums accumulated prepayments.
func (r *Repository) CreditForUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) (decimal.Decimal, error) {
	var credit decimal.NullDecimal
	err := db.WithContext(ctx).Raw(
		`SELECT SUM(amount) FROM unit_credits WHERE unit_id = ?`,
		unitID,
	).Scan(&credit).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !credit.Valid {
		return decimal.Zero, nil
	}
	return credit.Decimal, nil
}
