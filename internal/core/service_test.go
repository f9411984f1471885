package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"wellcore/internal/blob"
	"wellcore/internal/persistence/memory"
	"wellcore/pkg/domain"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc, err := NewService(store, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store
}

func TestCreateAndGetWell(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateWell(ctx, "op-1", &Well{Name: "Smith 1H", APINumber: "42-123-45678"})
	if err != nil {
		t.Fatalf("create well: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("created well has no generated ID")
	}
	if created.OperatorID != "op-1" || created.Version != 0 {
		t.Fatalf("unexpected base fields: operator=%s version=%d", created.OperatorID, created.Version)
	}
	if created.Status != domain.WellStatusPermitted {
		t.Fatalf("default status = %s, want %s", created.Status, domain.WellStatusPermitted)
	}
	got, err := svc.GetWell(ctx, "op-1", created.ID)
	if err != nil {
		t.Fatalf("get well: %v", err)
	}
	if got.Name != "Smith 1H" {
		t.Fatalf("round-tripped name = %q", got.Name)
	}
}

func TestTenantIsolation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateWell(ctx, "op-1", &Well{Name: "Smith 1H"})
	if err != nil {
		t.Fatalf("create well: %v", err)
	}
	if _, err := svc.GetWell(ctx, "op-2", created.ID); !domain.IsNotFound(err) {
		t.Fatalf("cross-tenant read must report not found, got %v", err)
	}
	wells, err := svc.ListWells(ctx, "op-2")
	if err != nil {
		t.Fatalf("list wells: %v", err)
	}
	if len(wells) != 0 {
		t.Fatalf("cross-tenant list leaked %d wells", len(wells))
	}
	if err := svc.DeleteWell(ctx, "op-2", created.ID); !domain.IsNotFound(err) {
		t.Fatalf("cross-tenant delete must report not found, got %v", err)
	}
}

func TestUpdateWellBumpsVersion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateWell(ctx, "op-1", &Well{Name: "Smith 1H"})
	if err != nil {
		t.Fatalf("create well: %v", err)
	}
	updated, err := svc.UpdateWell(ctx, "op-1", created.ID, func(w *Well) error {
		w.Status = domain.WellStatusDrilling
		return nil
	})
	if err != nil {
		t.Fatalf("update well: %v", err)
	}
	if updated.Version != 1 {
		t.Fatalf("version = %d, want 1", updated.Version)
	}
	if updated.Status != domain.WellStatusDrilling {
		t.Fatalf("status = %s", updated.Status)
	}
}

func TestUpdateWellConflictCountsMetric(t *testing.T) {
	metrics := NewExpvarMetricsRecorder("")
	svc, _ := newTestService(t, WithMetrics(metrics))
	ctx := context.Background()
	created, err := svc.CreateWell(ctx, "op-1", &Well{Name: "Smith 1H"})
	if err != nil {
		t.Fatalf("create well: %v", err)
	}
	// The mutator sneaks in a concurrent update, so the outer commit sees a
	// newer persisted version and must conflict.
	_, err = svc.UpdateWell(ctx, "op-1", created.ID, func(w *Well) error {
		if _, err := svc.UpdateWell(ctx, "op-1", created.ID, func(inner *Well) error {
			inner.County = "Reeves"
			return nil
		}); err != nil {
			return err
		}
		w.County = "Loving"
		return nil
	})
	if !domain.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	snap := metrics.Snapshot()
	if snap.Conflicts["update_well"] != 1 {
		t.Fatalf("conflict counter = %d, want 1", snap.Conflicts["update_well"])
	}
	if snap.Results["update_well"]["error"] != 1 || snap.Results["update_well"]["success"] != 1 {
		t.Fatalf("unexpected result counters: %v", snap.Results["update_well"])
	}
	got, err := svc.GetWell(ctx, "op-1", created.ID)
	if err != nil {
		t.Fatalf("get well: %v", err)
	}
	if got.County != "Reeves" {
		t.Fatalf("persisted county = %q, the inner update must win", got.County)
	}
}

func TestAssignWellToLease(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lease, err := svc.CreateLease(ctx, "op-1", &Lease{Name: "Smith Ranch", RoyaltyRate: 0.1875})
	if err != nil {
		t.Fatalf("create lease: %v", err)
	}
	well, err := svc.CreateWell(ctx, "op-1", &Well{Name: "Smith 1H"})
	if err != nil {
		t.Fatalf("create well: %v", err)
	}
	assigned, err := svc.AssignWellToLease(ctx, "op-1", well.ID, lease.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.LeaseID == nil || *assigned.LeaseID != lease.ID {
		t.Fatalf("lease link missing: %v", assigned.LeaseID)
	}
	if _, err := svc.AssignWellToLease(ctx, "op-1", well.ID, "l-missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found for missing lease, got %v", err)
	}
}

func TestRecordProductionAtomicity(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	well, err := svc.CreateWell(ctx, "op-1", &Well{Name: "Smith 1H"})
	if err != nil {
		t.Fatalf("create well: %v", err)
	}
	rec, err := svc.RecordProduction(ctx, "op-1", &ProductionRecord{WellID: well.ID, Month: "2026-07", OilBBL: 1200, GasMCF: 3400})
	if err != nil {
		t.Fatalf("record production: %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("production record has no ID")
	}
	got, err := svc.GetWell(ctx, "op-1", well.ID)
	if err != nil {
		t.Fatalf("get well: %v", err)
	}
	if got.CumulativeOilBBL != 1200 || got.CumulativeGasMCF != 3400 {
		t.Fatalf("cumulative totals = %.0f/%.0f", got.CumulativeOilBBL, got.CumulativeGasMCF)
	}
	if got.Version != 1 {
		t.Fatalf("well version = %d, want 1", got.Version)
	}
	records, err := svc.ListWellProduction(ctx, "op-1", well.ID)
	if err != nil {
		t.Fatalf("list production: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("production records = %d, want 1", len(records))
	}

	// Unknown well leaves nothing behind.
	if _, err := svc.RecordProduction(ctx, "op-1", &ProductionRecord{WellID: "w-missing", Month: "2026-07"}); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if store.Len(EntityProductionRecord) != 1 {
		t.Fatalf("failed recording leaked rows")
	}
}

func TestDistributeRevenue(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	lease, err := svc.CreateLease(ctx, "op-1", &Lease{Name: "Smith Ranch"})
	if err != nil {
		t.Fatalf("create lease: %v", err)
	}
	if _, err := svc.CreatePartner(ctx, "op-1", &Partner{Name: "Acme Royalty", LeaseID: lease.ID, RoyaltyInterest: 0.125}); err != nil {
		t.Fatalf("create partner: %v", err)
	}
	if _, err := svc.CreatePartner(ctx, "op-1", &Partner{Name: "Baker Minerals", LeaseID: lease.ID, RoyaltyInterest: 0.0625}); err != nil {
		t.Fatalf("create partner: %v", err)
	}

	payments, err := svc.DistributeRevenue(ctx, "op-1", lease.ID, "2026-07", 1_000_000)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("payments = %d, want 2", len(payments))
	}
	amounts := map[int64]bool{}
	for _, p := range payments {
		if p.Status != domain.PaymentStatusPending {
			t.Fatalf("payment status = %s", p.Status)
		}
		if p.Month != "2026-07" || p.LeaseID != lease.ID {
			t.Fatalf("payment fields: %+v", p)
		}
		amounts[p.AmountCents] = true
	}
	if !amounts[125_000] || !amounts[62_500] {
		t.Fatalf("unexpected amounts %v", amounts)
	}
	if store.Len(EntityOwnerPayment) != 2 {
		t.Fatalf("persisted payments = %d", store.Len(EntityOwnerPayment))
	}
}

func TestDistributeRevenueValidation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	lease, err := svc.CreateLease(ctx, "op-1", &Lease{Name: "Dry Hole Ranch"})
	if err != nil {
		t.Fatalf("create lease: %v", err)
	}
	if _, err := svc.DistributeRevenue(ctx, "op-1", lease.ID, "2026-07", 0); err == nil {
		t.Fatalf("expected error for non-positive total")
	}
	if _, err := svc.DistributeRevenue(ctx, "op-1", lease.ID, "2026-07", 100); err == nil || !strings.Contains(err.Error(), "no partners") {
		t.Fatalf("expected no-partners error, got %v", err)
	}
	if _, err := svc.DistributeRevenue(ctx, "op-1", "l-missing", "2026-07", 100); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if store.Len(EntityOwnerPayment) != 0 {
		t.Fatalf("failed distributions leaked payments")
	}
}

func TestIssuePayment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	lease, err := svc.CreateLease(ctx, "op-1", &Lease{Name: "Smith Ranch"})
	if err != nil {
		t.Fatalf("create lease: %v", err)
	}
	if _, err := svc.CreatePartner(ctx, "op-1", &Partner{Name: "Acme", LeaseID: lease.ID, RoyaltyInterest: 0.25}); err != nil {
		t.Fatalf("create partner: %v", err)
	}
	payments, err := svc.DistributeRevenue(ctx, "op-1", lease.ID, "2026-07", 400)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	issued, err := svc.IssuePayment(ctx, "op-1", payments[0].ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Status != domain.PaymentStatusIssued || issued.IssuedAt == nil {
		t.Fatalf("payment not issued: %+v", issued)
	}
	if _, err := svc.IssuePayment(ctx, "op-1", payments[0].ID); err == nil {
		t.Fatalf("double issue must fail")
	}
}

func TestAFEWorkflow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	well, err := svc.CreateWell(ctx, "op-1", &Well{Name: "Smith 1H"})
	if err != nil {
		t.Fatalf("create well: %v", err)
	}
	afe, err := svc.CreateAFE(ctx, "op-1", &AFE{AFENumber: "AFE-100", WellID: well.ID, EstimatedCostCents: 4_500_000_00})
	if err != nil {
		t.Fatalf("create afe: %v", err)
	}
	if afe.Status != domain.AFEStatusDraft {
		t.Fatalf("new afe status = %s", afe.Status)
	}
	if _, err := svc.ApproveAFE(ctx, "op-1", afe.ID); err == nil {
		t.Fatalf("approving a draft must fail")
	}
	submitted, err := svc.SubmitAFE(ctx, "op-1", afe.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status != domain.AFEStatusSubmitted || submitted.SubmittedAt == nil {
		t.Fatalf("afe not submitted: %+v", submitted)
	}
	approved, err := svc.ApproveAFE(ctx, "op-1", afe.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.AFEStatusApproved || approved.ApprovedAt == nil {
		t.Fatalf("afe not approved: %+v", approved)
	}
	if _, err := svc.SubmitAFE(ctx, "op-1", afe.ID); err == nil {
		t.Fatalf("re-submitting an approved afe must fail")
	}
	// Referential check on creation.
	if _, err := svc.CreateAFE(ctx, "op-1", &AFE{AFENumber: "AFE-101", WellID: "w-missing"}); !domain.IsNotFound(err) {
		t.Fatalf("expected not found for missing well, got %v", err)
	}
}

func TestAttachWellDocument(t *testing.T) {
	docs := blob.NewMemory()
	svc, _ := newTestService(t, WithDocumentStore(docs))
	ctx := context.Background()
	well, err := svc.CreateWell(ctx, "op-1", &Well{Name: "Smith 1H"})
	if err != nil {
		t.Fatalf("create well: %v", err)
	}
	info, err := svc.AttachWellDocument(ctx, "op-1", well.ID, "title-opinion.pdf", "application/pdf", strings.NewReader("pdf-bytes"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !strings.HasPrefix(info.Key, "op-1/wells/"+well.ID+"/") || !strings.HasSuffix(info.Key, "-title-opinion.pdf") {
		t.Fatalf("unexpected document key %q", info.Key)
	}
	got, err := svc.GetWell(ctx, "op-1", well.ID)
	if err != nil {
		t.Fatalf("get well: %v", err)
	}
	if len(got.DocumentKeys) != 1 || got.DocumentKeys[0] != info.Key {
		t.Fatalf("document keys = %v", got.DocumentKeys)
	}
	if got.Version != 1 {
		t.Fatalf("well version = %d after attachment", got.Version)
	}
	head, err := docs.Head(ctx, info.Key)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ContentType != "application/pdf" || head.Metadata["entity_id"] != well.ID {
		t.Fatalf("stored metadata: %+v", head)
	}
}

func TestAttachDocumentMissingEntityStoresNothing(t *testing.T) {
	docs := blob.NewMemory()
	svc, _ := newTestService(t, WithDocumentStore(docs))
	ctx := context.Background()
	_, err := svc.AttachLeaseDocument(ctx, "op-1", "l-missing", "lease.pdf", "application/pdf", strings.NewReader("x"))
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	infos, err := docs.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("blob store not empty after failed attach: %v", infos)
	}
}

func TestAttachDocumentWithoutStoreConfigured(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	well, err := svc.CreateWell(ctx, "op-1", &Well{Name: "Smith 1H"})
	if err != nil {
		t.Fatalf("create well: %v", err)
	}
	if _, err := svc.AttachWellDocument(ctx, "op-1", well.ID, "f.pdf", "application/pdf", strings.NewReader("x")); err == nil {
		t.Fatalf("expected error without a document store")
	}
}

func TestServiceTimestamps(t *testing.T) {
	svc, _ := newTestService(t)
	fixed := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	svc.nowFn = func() time.Time { return fixed }
	svc.idFn = func() string { return "fixed-id" }
	ctx := context.Background()
	well, err := svc.CreateWell(ctx, "op-1", &Well{Name: "Smith 1H"})
	if err != nil {
		t.Fatalf("create well: %v", err)
	}
	if well.ID != "fixed-id" {
		t.Fatalf("id = %q", well.ID)
	}
	if !well.CreatedAt.Equal(fixed) || !well.UpdatedAt.Equal(fixed) {
		t.Fatalf("timestamps = %v / %v", well.CreatedAt, well.UpdatedAt)
	}
	later := fixed.Add(time.Hour)
	svc.nowFn = func() time.Time { return later }
	updated, err := svc.UpdateWell(ctx, "op-1", well.ID, func(w *Well) error {
		w.County = "Reeves"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.UpdatedAt.Equal(later) {
		t.Fatalf("updated at = %v, want %v", updated.UpdatedAt, later)
	}
	if !updated.CreatedAt.Equal(fixed) {
		t.Fatalf("created at changed: %v", updated.CreatedAt)
	}
}

func TestVendorLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	vendor, err := svc.CreateVendor(ctx, "op-1", &Vendor{Name: "Permian Services", ServiceType: "cementing"})
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	if !vendor.Active {
		t.Fatalf("new vendor should be active")
	}
	updated, err := svc.UpdateVendor(ctx, "op-1", vendor.ID, func(v *Vendor) error {
		v.Active = false
		return nil
	})
	if err != nil {
		t.Fatalf("update vendor: %v", err)
	}
	if updated.Active {
		t.Fatalf("vendor still active")
	}
	if err := svc.DeleteVendor(ctx, "op-1", vendor.ID); err != nil {
		t.Fatalf("delete vendor: %v", err)
	}
	if _, err := svc.GetVendor(ctx, "op-1", vendor.ID); !domain.IsNotFound(err) {
		t.Fatalf("vendor survived delete: %v", err)
	}
}
