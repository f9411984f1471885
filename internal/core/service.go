package core

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"wellcore/internal/blob"
	"wellcore/pkg/domain"
)

// Service exposes the tenant-scoped back-office operations. Every mutating
// operation runs through a fresh UnitOfWork so all writes within one call
// commit or abort together.
type Service struct {
	store    Store
	registry *Registry
	docs     blob.Store
	metrics  MetricsRecorder
	tracer   Tracer
	nowFn    func() time.Time
	idFn     func() string
}

// ServiceOption customizes Service construction.
type ServiceOption func(*Service)

// WithMetrics attaches a metrics recorder to service operations.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer attaches a tracer to service operations.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithDocumentStore attaches a blob store for document operations.
func WithDocumentStore(d blob.Store) ServiceOption {
	return func(s *Service) { s.docs = d }
}

// NewService wires a service over the store, building a registry from the
// store's repository factories.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	registry, err := NewRegistryForStore(store)
	if err != nil {
		return nil, err
	}
	s := &Service{
		store:    store,
		registry: registry,
		metrics:  NoopMetricsRecorder{},
		tracer:   NoopTracer{},
		nowFn:    func() time.Time { return time.Now().UTC() },
		idFn:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Registry exposes the resolver for callers composing their own units of work.
func (s *Service) Registry() *Registry { return s.registry }

// instrument wraps one service operation with tracing and metrics. Conflicts
// are counted separately so optimistic concurrency pressure is visible.
func (s *Service) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	start := s.nowFn()
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, s.nowFn().Sub(start))
	if domain.IsConflict(err) {
		s.metrics.ObserveConflict(ctx, operation)
	}
	return err
}

// commit runs build against a fresh unit of work and commits it.
func (s *Service) commit(ctx context.Context, build func(u *UnitOfWork) error) ([]Change, error) {
	u := NewUnitOfWork(s.store, s.registry)
	if err := u.Begin(); err != nil {
		return nil, err
	}
	if err := build(u); err != nil {
		u.Rollback()
		return nil, err
	}
	return u.Commit(ctx)
}

// load fetches a committed entity scoped to operator. A row owned by another
// tenant is reported as not found so nothing leaks across operators.
func (s *Service) load(ctx context.Context, kind EntityType, operator, id string) (Entity, error) {
	e, err := s.store.Find(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if e.Operator() != operator {
		return nil, domain.NotFoundError{Identity: Identity{Kind: kind, ID: id}}
	}
	return e, nil
}

func (s *Service) stamp(base *domain.Base, operator string) {
	if base.ID == "" {
		base.ID = s.idFn()
	}
	base.OperatorID = operator
	base.Version = 0
	now := s.nowFn()
	base.CreatedAt = now
	base.UpdatedAt = now
}

func (s *Service) createOne(ctx context.Context, operation string, e Entity) error {
	return s.instrument(ctx, operation, func(ctx context.Context) error {
		_, err := s.commit(ctx, func(u *UnitOfWork) error {
			return u.RegisterNew(e)
		})
		return err
	})
}

func (s *Service) updateOne(ctx context.Context, operation string, kind EntityType, operator, id string, mutate func(Entity) error) (Entity, error) {
	var out Entity
	err := s.instrument(ctx, operation, func(ctx context.Context) error {
		e, err := s.load(ctx, kind, operator, id)
		if err != nil {
			return err
		}
		if err := mutate(e); err != nil {
			return err
		}
		s.touch(e)
		_, err = s.commit(ctx, func(u *UnitOfWork) error {
			return u.RegisterDirty(e)
		})
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

func (s *Service) deleteOne(ctx context.Context, operation string, kind EntityType, operator, id string) error {
	return s.instrument(ctx, operation, func(ctx context.Context) error {
		e, err := s.load(ctx, kind, operator, id)
		if err != nil {
			return err
		}
		_, err = s.commit(ctx, func(u *UnitOfWork) error {
			return u.RegisterDeleted(e)
		})
		return err
	})
}

func (s *Service) touch(e Entity) {
	if t, ok := e.(interface{ Touch(time.Time) }); ok {
		t.Touch(s.nowFn())
	}
}

// --- wells ---

// CreateWell registers and commits a new well for the operator.
func (s *Service) CreateWell(ctx context.Context, operator string, well *Well) (*Well, error) {
	if well == nil {
		return nil, fmt.Errorf("create well: nil well")
	}
	s.stamp(&well.Base, operator)
	if well.Status == "" {
		well.Status = domain.WellStatusPermitted
	}
	if err := s.createOne(ctx, "create_well", well); err != nil {
		return nil, err
	}
	return well, nil
}

// GetWell returns the committed well scoped to operator.
func (s *Service) GetWell(ctx context.Context, operator, id string) (*Well, error) {
	e, err := s.load(ctx, EntityWell, operator, id)
	if err != nil {
		return nil, err
	}
	return e.(*Well), nil
}

// ListWells returns all wells owned by operator, ordered by ID.
func (s *Service) ListWells(ctx context.Context, operator string) ([]*Well, error) {
	entities, err := s.store.List(ctx, EntityWell, operator)
	if err != nil {
		return nil, err
	}
	out := make([]*Well, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.(*Well))
	}
	return out, nil
}

// UpdateWell applies mutate to the committed well and commits the result
// with an optimistic version check.
func (s *Service) UpdateWell(ctx context.Context, operator, id string, mutate func(*Well) error) (*Well, error) {
	e, err := s.updateOne(ctx, "update_well", EntityWell, operator, id, func(e Entity) error {
		return mutate(e.(*Well))
	})
	if err != nil {
		return nil, err
	}
	return e.(*Well), nil
}

// DeleteWell removes the well.
func (s *Service) DeleteWell(ctx context.Context, operator, id string) error {
	return s.deleteOne(ctx, "delete_well", EntityWell, operator, id)
}

// --- leases ---

// CreateLease registers and commits a new lease for the operator.
func (s *Service) CreateLease(ctx context.Context, operator string, lease *Lease) (*Lease, error) {
	if lease == nil {
		return nil, fmt.Errorf("create lease: nil lease")
	}
	s.stamp(&lease.Base, operator)
	if lease.Status == "" {
		lease.Status = domain.LeaseStatusActive
	}
	if err := s.createOne(ctx, "create_lease", lease); err != nil {
		return nil, err
	}
	return lease, nil
}

// GetLease returns the committed lease scoped to operator.
func (s *Service) GetLease(ctx context.Context, operator, id string) (*Lease, error) {
	e, err := s.load(ctx, EntityLease, operator, id)
	if err != nil {
		return nil, err
	}
	return e.(*Lease), nil
}

// ListLeases returns all leases owned by operator, ordered by ID.
func (s *Service) ListLeases(ctx context.Context, operator string) ([]*Lease, error) {
	entities, err := s.store.List(ctx, EntityLease, operator)
	if err != nil {
		return nil, err
	}
	out := make([]*Lease, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.(*Lease))
	}
	return out, nil
}

// UpdateLease applies mutate to the committed lease and commits the result.
func (s *Service) UpdateLease(ctx context.Context, operator, id string, mutate func(*Lease) error) (*Lease, error) {
	e, err := s.updateOne(ctx, "update_lease", EntityLease, operator, id, func(e Entity) error {
		return mutate(e.(*Lease))
	})
	if err != nil {
		return nil, err
	}
	return e.(*Lease), nil
}

// DeleteLease removes the lease.
func (s *Service) DeleteLease(ctx context.Context, operator, id string) error {
	return s.deleteOne(ctx, "delete_lease", EntityLease, operator, id)
}

// --- partners ---

// CreatePartner registers and commits a new partner. The referenced lease
// must exist under the same operator.
func (s *Service) CreatePartner(ctx context.Context, operator string, partner *Partner) (*Partner, error) {
	if partner == nil {
		return nil, fmt.Errorf("create partner: nil partner")
	}
	err := s.instrument(ctx, "create_partner", func(ctx context.Context) error {
		if _, err := s.load(ctx, EntityLease, operator, partner.LeaseID); err != nil {
			return fmt.Errorf("create partner: lease %s: %w", partner.LeaseID, err)
		}
		s.stamp(&partner.Base, operator)
		_, err := s.commit(ctx, func(u *UnitOfWork) error {
			return u.RegisterNew(partner)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return partner, nil
}

// GetPartner returns the committed partner scoped to operator.
func (s *Service) GetPartner(ctx context.Context, operator, id string) (*Partner, error) {
	e, err := s.load(ctx, EntityPartner, operator, id)
	if err != nil {
		return nil, err
	}
	return e.(*Partner), nil
}

// ListLeasePartners returns all partners on the lease, ordered by ID.
func (s *Service) ListLeasePartners(ctx context.Context, operator, leaseID string) ([]*Partner, error) {
	entities, err := s.store.List(ctx, EntityPartner, operator)
	if err != nil {
		return nil, err
	}
	out := make([]*Partner, 0, len(entities))
	for _, e := range entities {
		p := e.(*Partner)
		if p.LeaseID == leaseID {
			out = append(out, p)
		}
	}
	return out, nil
}

// UpdatePartner applies mutate to the committed partner and commits the result.
func (s *Service) UpdatePartner(ctx context.Context, operator, id string, mutate func(*Partner) error) (*Partner, error) {
	e, err := s.updateOne(ctx, "update_partner", EntityPartner, operator, id, func(e Entity) error {
		return mutate(e.(*Partner))
	})
	if err != nil {
		return nil, err
	}
	return e.(*Partner), nil
}

// DeletePartner removes the partner.
func (s *Service) DeletePartner(ctx context.Context, operator, id string) error {
	return s.deleteOne(ctx, "delete_partner", EntityPartner, operator, id)
}

// --- vendors ---

// CreateVendor registers and commits a new vendor.
func (s *Service) CreateVendor(ctx context.Context, operator string, vendor *Vendor) (*Vendor, error) {
	if vendor == nil {
		return nil, fmt.Errorf("create vendor: nil vendor")
	}
	s.stamp(&vendor.Base, operator)
	vendor.Active = true
	if err := s.createOne(ctx, "create_vendor", vendor); err != nil {
		return nil, err
	}
	return vendor, nil
}

// GetVendor returns the committed vendor scoped to operator.
func (s *Service) GetVendor(ctx context.Context, operator, id string) (*Vendor, error) {
	e, err := s.load(ctx, EntityVendor, operator, id)
	if err != nil {
		return nil, err
	}
	return e.(*Vendor), nil
}

// UpdateVendor applies mutate to the committed vendor and commits the result.
func (s *Service) UpdateVendor(ctx context.Context, operator, id string, mutate func(*Vendor) error) (*Vendor, error) {
	e, err := s.updateOne(ctx, "update_vendor", EntityVendor, operator, id, func(e Entity) error {
		return mutate(e.(*Vendor))
	})
	if err != nil {
		return nil, err
	}
	return e.(*Vendor), nil
}

// DeleteVendor removes the vendor.
func (s *Service) DeleteVendor(ctx context.Context, operator, id string) error {
	return s.deleteOne(ctx, "delete_vendor", EntityVendor, operator, id)
}

// --- AFEs ---

// CreateAFE registers and commits a new AFE in draft status. The referenced
// well must exist under the same operator.
func (s *Service) CreateAFE(ctx context.Context, operator string, afe *AFE) (*AFE, error) {
	if afe == nil {
		return nil, fmt.Errorf("create afe: nil afe")
	}
	err := s.instrument(ctx, "create_afe", func(ctx context.Context) error {
		if _, err := s.load(ctx, EntityWell, operator, afe.WellID); err != nil {
			return fmt.Errorf("create afe: well %s: %w", afe.WellID, err)
		}
		s.stamp(&afe.Base, operator)
		afe.Status = domain.AFEStatusDraft
		_, err := s.commit(ctx, func(u *UnitOfWork) error {
			return u.RegisterNew(afe)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return afe, nil
}

// GetAFE returns the committed AFE scoped to operator.
func (s *Service) GetAFE(ctx context.Context, operator, id string) (*AFE, error) {
	e, err := s.load(ctx, EntityAFE, operator, id)
	if err != nil {
		return nil, err
	}
	return e.(*AFE), nil
}

// SubmitAFE advances a draft AFE to submitted.
func (s *Service) SubmitAFE(ctx context.Context, operator, id string) (*AFE, error) {
	e, err := s.updateOne(ctx, "submit_afe", EntityAFE, operator, id, func(e Entity) error {
		afe := e.(*AFE)
		if afe.Status != domain.AFEStatusDraft {
			return fmt.Errorf("submit afe %s: status %s is not %s", id, afe.Status, domain.AFEStatusDraft)
		}
		now := s.nowFn()
		afe.Status = domain.AFEStatusSubmitted
		afe.SubmittedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.(*AFE), nil
}

// ApproveAFE advances a submitted AFE to approved.
func (s *Service) ApproveAFE(ctx context.Context, operator, id string) (*AFE, error) {
	e, err := s.updateOne(ctx, "approve_afe", EntityAFE, operator, id, func(e Entity) error {
		afe := e.(*AFE)
		if afe.Status != domain.AFEStatusSubmitted {
			return fmt.Errorf("approve afe %s: status %s is not %s", id, afe.Status, domain.AFEStatusSubmitted)
		}
		now := s.nowFn()
		afe.Status = domain.AFEStatusApproved
		afe.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.(*AFE), nil
}

// --- cross-entity operations ---

// AssignWellToLease links the well to the lease after validating both exist
// under the operator, committing the updated well with a version check.
func (s *Service) AssignWellToLease(ctx context.Context, operator, wellID, leaseID string) (*Well, error) {
	var out *Well
	err := s.instrument(ctx, "assign_well_to_lease", func(ctx context.Context) error {
		if _, err := s.load(ctx, EntityLease, operator, leaseID); err != nil {
			return fmt.Errorf("assign well %s: lease %s: %w", wellID, leaseID, err)
		}
		e, err := s.load(ctx, EntityWell, operator, wellID)
		if err != nil {
			return err
		}
		well := e.(*Well)
		well.LeaseID = &leaseID
		s.touch(well)
		if _, err := s.commit(ctx, func(u *UnitOfWork) error {
			return u.RegisterDirty(well)
		}); err != nil {
			return err
		}
		out = well
		return nil
	})
	return out, err
}

// RecordProduction inserts a monthly production record and folds the volumes
// into the well's cumulative totals within one unit of work. The insert and
// the version-checked well update commit or abort together.
func (s *Service) RecordProduction(ctx context.Context, operator string, rec *ProductionRecord) (*ProductionRecord, error) {
	if rec == nil {
		return nil, fmt.Errorf("record production: nil record")
	}
	err := s.instrument(ctx, "record_production", func(ctx context.Context) error {
		e, err := s.load(ctx, EntityWell, operator, rec.WellID)
		if err != nil {
			return fmt.Errorf("record production: well %s: %w", rec.WellID, err)
		}
		well := e.(*Well)
		s.stamp(&rec.Base, operator)
		well.CumulativeOilBBL += rec.OilBBL
		well.CumulativeGasMCF += rec.GasMCF
		s.touch(well)
		_, err = s.commit(ctx, func(u *UnitOfWork) error {
			if err := u.RegisterNew(rec); err != nil {
				return err
			}
			return u.RegisterDirty(well)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListWellProduction returns the production records for the well, ordered by ID.
func (s *Service) ListWellProduction(ctx context.Context, operator, wellID string) ([]*ProductionRecord, error) {
	entities, err := s.store.List(ctx, EntityProductionRecord, operator)
	if err != nil {
		return nil, err
	}
	out := make([]*ProductionRecord, 0, len(entities))
	for _, e := range entities {
		rec := e.(*ProductionRecord)
		if rec.WellID == wellID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// DistributeRevenue creates one pending owner payment per partner on the
// lease, splitting totalCents by royalty interest. All payments commit in a
// single unit of work, so a failure leaves no partial distribution behind.
func (s *Service) DistributeRevenue(ctx context.Context, operator, leaseID, month string, totalCents int64) ([]*OwnerPayment, error) {
	var out []*OwnerPayment
	err := s.instrument(ctx, "distribute_revenue", func(ctx context.Context) error {
		if totalCents <= 0 {
			return fmt.Errorf("distribute revenue: total %d must be positive", totalCents)
		}
		if _, err := s.load(ctx, EntityLease, operator, leaseID); err != nil {
			return fmt.Errorf("distribute revenue: lease %s: %w", leaseID, err)
		}
		partners, err := s.ListLeasePartners(ctx, operator, leaseID)
		if err != nil {
			return err
		}
		if len(partners) == 0 {
			return fmt.Errorf("distribute revenue: lease %s has no partners", leaseID)
		}
		payments := make([]*OwnerPayment, 0, len(partners))
		for _, p := range partners {
			payment := &OwnerPayment{
				PartnerID:   p.ID,
				LeaseID:     leaseID,
				Month:       month,
				AmountCents: int64(math.Round(float64(totalCents) * p.RoyaltyInterest)),
				Status:      domain.PaymentStatusPending,
			}
			s.stamp(&payment.Base, operator)
			payments = append(payments, payment)
		}
		if _, err := s.commit(ctx, func(u *UnitOfWork) error {
			for _, payment := range payments {
				if err := u.RegisterNew(payment); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
		out = payments
		return nil
	})
	return out, err
}

// IssuePayment marks a pending owner payment as issued.
func (s *Service) IssuePayment(ctx context.Context, operator, id string) (*OwnerPayment, error) {
	e, err := s.updateOne(ctx, "issue_payment", EntityOwnerPayment, operator, id, func(e Entity) error {
		payment := e.(*OwnerPayment)
		if payment.Status != domain.PaymentStatusPending {
			return fmt.Errorf("issue payment %s: status %s is not %s", id, payment.Status, domain.PaymentStatusPending)
		}
		now := s.nowFn()
		payment.Status = domain.PaymentStatusIssued
		payment.IssuedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.(*OwnerPayment), nil
}

// --- documents ---

// AttachWellDocument stores the document in the blob store and links its key
// on the well with a version-checked update. The blob write is compensated
// when the commit fails.
func (s *Service) AttachWellDocument(ctx context.Context, operator, wellID, filename, contentType string, r io.Reader) (blob.Info, error) {
	var info blob.Info
	err := s.instrument(ctx, "attach_well_document", func(ctx context.Context) error {
		var err error
		info, err = s.attachDocument(ctx, EntityWell, operator, wellID, "wells", filename, contentType, r, func(e Entity, key string) {
			well := e.(*Well)
			well.DocumentKeys = append(well.DocumentKeys, key)
		})
		return err
	})
	return info, err
}

// AttachLeaseDocument stores the document in the blob store and links its key
// on the lease with a version-checked update.
func (s *Service) AttachLeaseDocument(ctx context.Context, operator, leaseID, filename, contentType string, r io.Reader) (blob.Info, error) {
	var info blob.Info
	err := s.instrument(ctx, "attach_lease_document", func(ctx context.Context) error {
		var err error
		info, err = s.attachDocument(ctx, EntityLease, operator, leaseID, "leases", filename, contentType, r, func(e Entity, key string) {
			lease := e.(*Lease)
			lease.DocumentKeys = append(lease.DocumentKeys, key)
		})
		return err
	})
	return info, err
}

// AttachAFEDocument stores the document in the blob store and links its key
// on the AFE with a version-checked update.
func (s *Service) AttachAFEDocument(ctx context.Context, operator, afeID, filename, contentType string, r io.Reader) (blob.Info, error) {
	var info blob.Info
	err := s.instrument(ctx, "attach_afe_document", func(ctx context.Context) error {
		var err error
		info, err = s.attachDocument(ctx, EntityAFE, operator, afeID, "afes", filename, contentType, r, func(e Entity, key string) {
			afe := e.(*AFE)
			afe.DocumentKeys = append(afe.DocumentKeys, key)
		})
		return err
	})
	return info, err
}

func (s *Service) attachDocument(ctx context.Context, kind EntityType, operator, id, segment, filename, contentType string, r io.Reader, link func(Entity, string)) (blob.Info, error) {
	if s.docs == nil {
		return blob.Info{}, fmt.Errorf("attach document: no document store configured")
	}
	e, err := s.load(ctx, kind, operator, id)
	if err != nil {
		return blob.Info{}, err
	}
	key := fmt.Sprintf("%s/%s/%s/%s-%s", operator, segment, id, s.idFn(), filename)
	info, err := s.docs.Put(ctx, key, r, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"operator_id": operator, "entity_type": string(kind), "entity_id": id},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("store document %s: %w", key, err)
	}
	link(e, key)
	s.touch(e)
	if _, err := s.commit(ctx, func(u *UnitOfWork) error {
		return u.RegisterDirty(e)
	}); err != nil {
		_, _ = s.docs.Delete(ctx, key)
		return blob.Info{}, err
	}
	return info, nil
}

// DocumentURL returns a pre-signed (or local) URL for a stored document key.
func (s *Service) DocumentURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.docs == nil {
		return "", fmt.Errorf("document url: no document store configured")
	}
	return s.docs.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: expiry})
}
