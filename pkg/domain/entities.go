// Package domain defines the persistent entities, identity and version
// contracts, and persistence abstractions used by wellcore.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the kind of record stored in the back office.
type EntityType string

// Supported entity type identifiers used in Change records and persistence rows.
const (
	// EntityWell identifies a well record.
	EntityWell EntityType = "well"
	// EntityLease identifies a lease record.
	EntityLease EntityType = "lease"
	// EntityProductionRecord identifies a monthly production record.
	EntityProductionRecord EntityType = "production_record"
	// EntityPartner identifies a working/royalty interest partner record.
	EntityPartner EntityType = "partner"
	// EntityAFE identifies an authorization-for-expenditure record.
	EntityAFE EntityType = "afe"
	// EntityVendor identifies a vendor record.
	EntityVendor EntityType = "vendor"
	// EntityOwnerPayment identifies an owner payment record.
	EntityOwnerPayment EntityType = "owner_payment"
)

// EntityTypes lists every supported entity kind in a stable order. Persistence
// backends iterate this when wiring repository factories.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityWell,
		EntityLease,
		EntityProductionRecord,
		EntityPartner,
		EntityAFE,
		EntityVendor,
		EntityOwnerPayment,
	}
}

// WellStatus represents the operational state of a well.
type WellStatus string

// Canonical well statuses tracked through the drilling and production lifecycle.
const (
	WellStatusPermitted WellStatus = "permitted"
	WellStatusDrilling  WellStatus = "drilling"
	WellStatusProducing WellStatus = "producing"
	WellStatusShutIn    WellStatus = "shut_in"
	WellStatusPlugged   WellStatus = "plugged"
)

// LeaseStatus represents the contractual state of a lease.
type LeaseStatus string

// Canonical lease statuses.
const (
	LeaseStatusActive     LeaseStatus = "active"
	LeaseStatusExpired    LeaseStatus = "expired"
	LeaseStatusTerminated LeaseStatus = "terminated"
)

// AFEStatus enumerates the AFE approval workflow states.
type AFEStatus string

// Canonical AFE statuses used by the approval workflow.
const (
	AFEStatusDraft     AFEStatus = "draft"
	AFEStatusSubmitted AFEStatus = "submitted"
	AFEStatusApproved  AFEStatus = "approved"
	AFEStatusRejected  AFEStatus = "rejected"
	AFEStatusClosed    AFEStatus = "closed"
)

// PaymentStatus enumerates owner payment states.
type PaymentStatus string

// Canonical owner payment statuses.
const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusIssued  PaymentStatus = "issued"
	PaymentStatusVoided  PaymentStatus = "voided"
)

// Base contains common fields for all domain records. OperatorID scopes every
// record to one tenant; Version is the optimistic concurrency counter bumped
// on each successful update.
type Base struct {
	ID         string    `json:"id"`
	OperatorID string    `json:"operator_id"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EntityID returns the record identifier.
func (b *Base) EntityID() string { return b.ID }

// Operator returns the owning tenant identifier.
func (b *Base) Operator() string { return b.OperatorID }

// EntityVersion returns the optimistic concurrency version.
func (b *Base) EntityVersion() int64 { return b.Version }

// BumpVersion increments the optimistic concurrency version.
func (b *Base) BumpVersion() { b.Version++ }

// Touch records the time of the latest modification.
func (b *Base) Touch(now time.Time) { b.UpdatedAt = now }

// Entity is the contract every registered record must satisfy: a stable
// identity, a tenant scope, and an optimistic concurrency version.
type Entity interface {
	Kind() EntityType
	EntityID() string
	Operator() string
	EntityVersion() int64
	BumpVersion()
}

// Identity addresses one logical row as (entity type, entity identifier).
type Identity struct {
	Kind EntityType
	ID   string
}

func (i Identity) String() string { return string(i.Kind) + "/" + i.ID }

// IdentityOf builds the composite identity for an entity.
func IdentityOf(e Entity) Identity {
	return Identity{Kind: e.Kind(), ID: e.EntityID()}
}

// Well represents a drilled or planned wellbore.
type Well struct {
	Base
	Name             string     `json:"name"`
	APINumber        string     `json:"api_number"`
	LeaseID          *string    `json:"lease_id"`
	Status           WellStatus `json:"status"`
	County           string     `json:"county"`
	State            string     `json:"state"`
	SpudDate         *time.Time `json:"spud_date"`
	CumulativeOilBBL float64    `json:"cumulative_oil_bbl"`
	CumulativeGasMCF float64    `json:"cumulative_gas_mcf"`
	DocumentKeys     []string   `json:"document_keys"`
}

// Lease represents a mineral lease under which wells are operated.
type Lease struct {
	Base
	Name           string      `json:"name"`
	LeaseNumber    string      `json:"lease_number"`
	Lessor         string      `json:"lessor"`
	Status         LeaseStatus `json:"status"`
	RoyaltyRate    float64     `json:"royalty_rate"`
	GrossAcres     float64     `json:"gross_acres"`
	EffectiveDate  time.Time   `json:"effective_date"`
	ExpirationDate *time.Time  `json:"expiration_date"`
	DocumentKeys   []string    `json:"document_keys"`
}

// ProductionRecord captures reported volumes for one well and month.
type ProductionRecord struct {
	Base
	WellID    string  `json:"well_id"`
	Month     string  `json:"month"` // YYYY-MM
	OilBBL    float64 `json:"oil_bbl"`
	GasMCF    float64 `json:"gas_mcf"`
	WaterBBL  float64 `json:"water_bbl"`
	RunTicket *string `json:"run_ticket,omitempty"`
}

// Partner represents a working or royalty interest owner in a lease.
type Partner struct {
	Base
	Name            string  `json:"name"`
	LeaseID         string  `json:"lease_id"`
	WorkingInterest float64 `json:"working_interest"`
	RoyaltyInterest float64 `json:"royalty_interest"`
	RemitAddress    *string `json:"remit_address,omitempty"`
}

// AFE represents an authorization for expenditure against a well.
type AFE struct {
	Base
	AFENumber          string     `json:"afe_number"`
	WellID             string     `json:"well_id"`
	Description        string     `json:"description"`
	EstimatedCostCents int64      `json:"estimated_cost_cents"`
	Status             AFEStatus  `json:"status"`
	SubmittedAt        *time.Time `json:"submitted_at"`
	ApprovedAt         *time.Time `json:"approved_at"`
	VendorIDs          []string   `json:"vendor_ids"`
	DocumentKeys       []string   `json:"document_keys"`
}

// Vendor represents a service provider billed against AFEs.
type Vendor struct {
	Base
	Name        string `json:"name"`
	ServiceType string `json:"service_type"`
	Active      bool   `json:"active"`
}

// OwnerPayment represents one partner's share of distributed revenue.
type OwnerPayment struct {
	Base
	PartnerID   string        `json:"partner_id"`
	LeaseID     string        `json:"lease_id"`
	Month       string        `json:"month"`
	AmountCents int64         `json:"amount_cents"`
	Status      PaymentStatus `json:"status"`
	IssuedAt    *time.Time    `json:"issued_at"`
}

// Kind implements Entity.
func (w *Well) Kind() EntityType { return EntityWell }

// Kind implements Entity.
func (l *Lease) Kind() EntityType { return EntityLease }

// Kind implements Entity.
func (p *ProductionRecord) Kind() EntityType { return EntityProductionRecord }

// Kind implements Entity.
func (p *Partner) Kind() EntityType { return EntityPartner }

// Kind implements Entity.
func (a *AFE) Kind() EntityType { return EntityAFE }

// Kind implements Entity.
func (v *Vendor) Kind() EntityType { return EntityVendor }

// Kind implements Entity.
func (p *OwnerPayment) Kind() EntityType { return EntityOwnerPayment }

// NewEntity returns a zero value of the concrete type for kind. Persistence
// backends use it to decode stored payloads into typed records.
func NewEntity(kind EntityType) (Entity, error) {
	switch kind {
	case EntityWell:
		return &Well{}, nil
	case EntityLease:
		return &Lease{}, nil
	case EntityProductionRecord:
		return &ProductionRecord{}, nil
	case EntityPartner:
		return &Partner{}, nil
	case EntityAFE:
		return &AFE{}, nil
	case EntityVendor:
		return &Vendor{}, nil
	case EntityOwnerPayment:
		return &OwnerPayment{}, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", kind)
	}
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was inserted.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	// ActionDelete indicates an entity was deleted.
	ActionDelete Action = "delete"
)

// Change records one applied modification within a committed unit of work.
type Change struct {
	Entity EntityType
	Action Action
	ID     string
	Before any
	After  any
}
