// Package domain holds the managed condominium (tenant), its billable units
// and the attachment rows that bind tenants to subscriptions.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrTenantNotFound     = errors.New("tenant_not_found")
	ErrUnitNotFound       = errors.New("unit_not_found")
	ErrAttachmentNotFound = errors.New("attachment_not_found")
	ErrTenantAlreadyBound = errors.New("tenant_already_attached_elsewhere")
)

type TenantState string

const (
	TenantStateActive   TenantState = "active"
	TenantStateLocked   TenantState = "locked"
	TenantStateReadOnly TenantState = "read_only"
)

// Tenant is a managed condominium. SubscriptionID is a denormalized pointer
// to the currently attached subscription.
type Tenant struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	OwnerID        snowflake.ID  `gorm:"not null;index"`
	Name           string        `gorm:"type:text;not null"`
	Slug           string        `gorm:"type:text;not null;uniqueIndex"`
	SubscriptionID *snowflake.ID `gorm:"index"`
	State          TenantState   `gorm:"type:text;not null;default:active"`
	LockedAt       *time.Time
	LockedReason   *string   `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (Tenant) TableName() string { return "tenants" }

// Unit is a billable fraction of a tenant. Weight is the permillage share of
// the tenant total; units of one tenant nominally sum to 1000.
type Unit struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	TenantID        snowflake.ID `gorm:"not null;index"`
	Label           string       `gorm:"type:text;not null"`
	Weight          int64        `gorm:"not null"`
	IsActive        bool         `gorm:"not null;default:true"`
	LicenseConsumed bool         `gorm:"not null;default:true"`
	ArchivedAt      *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (Unit) TableName() string { return "units" }

// Billable reports whether the unit counts toward license usage.
func (u Unit) Billable() bool {
	return u.IsActive && u.LicenseConsumed && u.ArchivedAt == nil
}

type AttachmentStatus string

const (
	AttachmentStatusActive   AttachmentStatus = "active"
	AttachmentStatusDetached AttachmentStatus = "detached"
)

// TenantAttachment binds a tenant to a subscription. Rows are append-only;
// detaching marks the row, it never deletes it.
type TenantAttachment struct {
	ID             snowflake.ID     `gorm:"primaryKey"`
	SubscriptionID snowflake.ID     `gorm:"not null;index"`
	TenantID       snowflake.ID     `gorm:"not null;index"`
	Status         AttachmentStatus `gorm:"type:text;not null;default:active"`
	AttachedAt     time.Time        `gorm:"not null"`
	AttachedBy     snowflake.ID     `gorm:"not null"`
	DetachedAt     *time.Time
	DetachedBy     *snowflake.ID
	Notes          *string   `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (TenantAttachment) TableName() string { return "tenant_attachments" }
