package concierge

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/laviou/backend/internal/db"
)

type fakeGuard struct {
	owners map[uuid.UUID]uuid.UUID
}

func (f *fakeGuard) OwnedBy(ctx context.Context, itemID, ownerID uuid.UUID) error {
	actual, ok := f.owners[itemID]
	if !ok {
		return db.ErrItemNotFound
	}
	if actual != ownerID {
		return db.ErrNotOwner
	}
	return nil
}

type fakeStore struct {
	guard *fakeGuard
	rows  map[uuid.UUID]*db.ConciergeRequest
}

func (f *fakeStore) Create(ctx context.Context, req *db.ConciergeRequest) error {
	copied := *req
	copied.OwnerID = f.guard.owners[req.ItemID]
	f.rows[req.ID] = &copied
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*db.ConciergeRequest, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, db.ErrConciergeNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*db.ConciergeRequest, error) {
	var matched []*db.ConciergeRequest
	for _, row := range f.rows {
		if row.OwnerID == ownerID {
			copied := *row
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeStore) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	count := 0
	for _, row := range f.rows {
		if row.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*db.ConciergeRequest, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, db.ErrConciergeNotFound
	}
	row.Status = status
	row.UpdatedAt = time.Now()
	copied := *row
	return &copied, nil
}

type testEnv struct {
	service *Service
	store   *fakeStore
	ownerID uuid.UUID
	itemID  uuid.UUID
}

func newTestEnv() *testEnv {
	ownerID := uuid.New()
	itemID := uuid.New()
	guard := &fakeGuard{owners: map[uuid.UUID]uuid.UUID{itemID: ownerID}}
	store := &fakeStore{guard: guard, rows: make(map[uuid.UUID]*db.ConciergeRequest)}
	return &testEnv{
		service: NewService(store, guard),
		store:   store,
		ownerID: ownerID,
		itemID:  itemID,
	}
}

func TestCreateAndGet(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created, err := env.service.Create(ctx, env.ownerID, env.itemID, db.ConciergeServiceAppraisal, "Please help with appraisal.")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Status != db.ConciergeStatusPending {
		t.Errorf("new request status = %q, want pending", created.Status)
	}
	if created.ServiceType != db.ConciergeServiceAppraisal || created.Notes != "Please help with appraisal." {
		t.Errorf("unexpected request: %+v", created)
	}

	got, err := env.service.Get(ctx, env.ownerID, uuid.MustParse(created.ID))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("got %+v, want %+v", got, created)
	}
}

func TestCreate_Ownership(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.service.Create(ctx, uuid.New(), env.itemID, db.ConciergeServiceSale, ""); !errors.Is(err, db.ErrNotOwner) {
		t.Errorf("foreign owner: got %v, want ErrNotOwner", err)
	}
	if _, err := env.service.Create(ctx, env.ownerID, uuid.New(), db.ConciergeServiceSale, ""); !errors.Is(err, db.ErrItemNotFound) {
		t.Errorf("missing item: got %v, want ErrItemNotFound", err)
	}
}

func TestGet_ForeignRequest(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created, err := env.service.Create(ctx, env.ownerID, env.itemID, db.ConciergeServiceTransport, "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.service.Get(ctx, uuid.New(), uuid.MustParse(created.ID)); !errors.Is(err, db.ErrNotOwner) {
		t.Errorf("got %v, want ErrNotOwner", err)
	}
	if _, err := env.service.Get(ctx, env.ownerID, uuid.New()); !errors.Is(err, db.ErrConciergeNotFound) {
		t.Errorf("got %v, want ErrConciergeNotFound", err)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created, err := env.service.Create(ctx, env.ownerID, env.itemID, db.ConciergeServiceDonation, "")
	if err != nil {
		t.Fatal(err)
	}

	cancelled, err := env.service.Cancel(ctx, env.ownerID, uuid.MustParse(created.ID))
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != db.ConciergeStatusCancelled {
		t.Errorf("status = %q, want cancelled", cancelled.Status)
	}

	// Only the owner may cancel.
	if _, err := env.service.Cancel(ctx, uuid.New(), uuid.MustParse(created.ID)); !errors.Is(err, db.ErrNotOwner) {
		t.Errorf("got %v, want ErrNotOwner", err)
	}
}

func TestList(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.service.Create(ctx, env.ownerID, env.itemID, db.ConciergeServiceAppraisal, ""); err != nil {
			t.Fatal(err)
		}
	}

	dtos, total, err := env.service.List(ctx, env.ownerID, 1, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 || len(dtos) != 2 {
		t.Errorf("total = %d len = %d, want 3 and 2", total, len(dtos))
	}

	// A stranger sees nothing.
	dtos, total, err = env.service.List(ctx, uuid.New(), 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || len(dtos) != 0 {
		t.Errorf("stranger should see an empty list, got total=%d %+v", total, dtos)
	}
}
