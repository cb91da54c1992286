// Package verify re-derives the engine's cross-table invariants from raw rows
// and reports (optionally repairs) any drift.
package verify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	feedomain "github.com/condolabs/condoledger/internal/fee/domain"
	subscriptiondomain "github.com/condolabs/condoledger/internal/subscription/domain"
)

type FindingKind string

const (
	FindingUsedLicensesDrift FindingKind = "used_licenses_drift"
	FindingDoubleAttachment  FindingKind = "double_active_attachment"
	FindingOverAppliedFee    FindingKind = "over_applied_fee"
	FindingStatusMismatch    FindingKind = "fee_status_mismatch"
)

type Finding struct {
	Kind     FindingKind
	EntityID snowflake.ID
	Detail   string
	Fixed    bool
}

type Report struct {
	Findings []Finding
	Fixed    int
}

func (r Report) Clean() bool { return len(r.Findings) == 0 }

type Verifier struct {
	db     *gorm.DB
	log    *zap.Logger
	ledger subscriptiondomain.Service
}

type VerifierParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Ledger subscriptiondomain.Service
}

func NewVerifier(p VerifierParam) *Verifier {
	return &Verifier{
		db:     p.DB,
		log:    p.Log.Named("verify"),
		ledger: p.Ledger,
	}
}

// Run checks every invariant. With fix set, used-licenses drift is repaired
// through the ledger's Recalculate (the single writer) and fee statuses are
// realigned with their allocation trail. Findings are always reported.
func (v *Verifier) Run(ctx context.Context, fix bool) (Report, error) {
	var report Report

	if err := v.checkUsedLicenses(ctx, &report, fix); err != nil {
		return report, err
	}
	if err := v.checkDoubleAttachments(ctx, &report); err != nil {
		return report, err
	}
	if err := v.checkFeeAllocations(ctx, &report, fix); err != nil {
		return report, err
	}

	for _, finding := range report.Findings {
		v.log.Warn("integrity finding",
			zap.String("kind", string(finding.Kind)),
			zap.String("entity_id", finding.EntityID.String()),
			zap.String("detail", finding.Detail),
			zap.Bool("fixed", finding.Fixed),
		)
	}
	return report, nil
}

func (v *Verifier) checkUsedLicenses(ctx context.Context, report *Report, fix bool) error {
	var rows []struct {
		ID            snowflake.ID
		UsedLicenses  int64
		ChargeMinimum bool
		LicenseMin    int64
		Aggregate     int64
	}
	err := v.db.WithContext(ctx).Raw(
		`SELECT s.id, s.used_licenses, s.charge_minimum, p.license_min,
		        COALESCE((
		          SELECT COUNT(u.id)
		          FROM tenant_attachments ta
		          JOIN units u ON u.tenant_id = ta.tenant_id
		          WHERE ta.subscription_id = s.id
		            AND ta.status = 'active'
		            AND u.is_active = ?
		            AND u.license_consumed = ?
		            AND u.archived_at IS NULL
		        ), 0) AS aggregate
		 FROM subscriptions s
		 JOIN plans p ON p.id = s.plan_id`,
		true, true,
	).Scan(&rows).Error
	if err != nil {
		return err
	}

	for _, row := range rows {
		expected := row.Aggregate
		if row.ChargeMinimum && expected < row.LicenseMin {
			expected = row.LicenseMin
		}
		if expected == row.UsedLicenses {
			continue
		}
		finding := Finding{
			Kind:     FindingUsedLicensesDrift,
			EntityID: row.ID,
			Detail:   fmt.Sprintf("stored %d, derived %d", row.UsedLicenses, expected),
		}
		if fix {
			if _, err := v.ledger.Recalculate(ctx, row.ID); err != nil {
				return err
			}
			finding.Fixed = true
			report.Fixed++
		}
		report.Findings = append(report.Findings, finding)
	}
	return nil
}

func (v *Verifier) checkDoubleAttachments(ctx context.Context, report *Report) error {
	var rows []struct {
		TenantID snowflake.ID
		Cnt      int64
	}
	err := v.db.WithContext(ctx).Raw(
		`SELECT tenant_id, COUNT(1) AS cnt
		 FROM tenant_attachments
		 WHERE status = 'active'
		 GROUP BY tenant_id
		 HAVING COUNT(1) > 1`,
	).Scan(&rows).Error
	if err != nil {
		return err
	}
	// Never auto-fixed: choosing which attachment survives is a human call.
	for _, row := range rows {
		report.Findings = append(report.Findings, Finding{
			Kind:     FindingDoubleAttachment,
			EntityID: row.TenantID,
			Detail:   fmt.Sprintf("%d active attachments", row.Cnt),
		})
	}
	return nil
}

func (v *Verifier) checkFeeAllocations(ctx context.Context, report *Report, fix bool) error {
	var rows []struct {
		ID      snowflake.ID
		Status  feedomain.FeeStatus
		Amount  string
		Applied string
	}
	err := v.db.WithContext(ctx).Raw(
		`SELECT f.id, f.status, f.amount,
		        COALESCE((SELECT SUM(fp.amount) FROM fee_payments fp WHERE fp.fee_id = f.id), 0) AS applied
		 FROM fees f`,
	).Scan(&rows).Error
	if err != nil {
		return err
	}

	for _, row := range rows {
		amount, applied, err := parseAmounts(row.Amount, row.Applied)
		if err != nil {
			return err
		}

		if applied.GreaterThan(amount) {
			report.Findings = append(report.Findings, Finding{
				Kind:     FindingOverAppliedFee,
				EntityID: row.ID,
				Detail:   fmt.Sprintf("amount %s, applied %s", amount, applied),
			})
			continue
		}

		settled := applied.Equal(amount)
		statusSettled := row.Status == feedomain.FeeStatusPaid
		if settled == statusSettled {
			continue
		}
		finding := Finding{
			Kind:     FindingStatusMismatch,
			EntityID: row.ID,
			Detail:   fmt.Sprintf("status %s, applied %s of %s", row.Status, applied, amount),
		}
		if fix {
			target := feedomain.FeeStatusPending
			if settled {
				target = feedomain.FeeStatusPaid
			}
			if err := v.db.WithContext(ctx).Exec(
				`UPDATE fees SET status = ? WHERE id = ?`, target, row.ID,
			).Error; err != nil {
				return err
			}
			finding.Fixed = true
			report.Fixed++
		}
		report.Findings = append(report.Findings, finding)
	}
	return nil
}
