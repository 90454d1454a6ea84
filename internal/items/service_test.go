package items

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/laviou/backend/internal/db"
)

type fakeStore struct {
	items map[uuid.UUID]*db.Item
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: make(map[uuid.UUID]*db.Item)}
}

func (f *fakeStore) Create(ctx context.Context, item *db.Item) error {
	copied := *item
	f.items[item.ID] = &copied
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*db.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, db.ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (f *fakeStore) OwnedBy(ctx context.Context, itemID, ownerID uuid.UUID) error {
	item, ok := f.items[itemID]
	if !ok {
		return db.ErrItemNotFound
	}
	if item.OwnerID != ownerID {
		return db.ErrNotOwner
	}
	return nil
}

func (f *fakeStore) matches(item *db.Item, ownerID uuid.UUID, query string) bool {
	if item.OwnerID != ownerID {
		return false
	}
	if query == "" {
		return true
	}
	haystack := strings.ToLower(item.Name + " " + item.Description)
	return strings.Contains(haystack, strings.ToLower(query))
}

func (f *fakeStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, query string, limit, offset int) ([]*db.Item, error) {
	var matched []*db.Item
	for _, item := range f.items {
		if f.matches(item, ownerID, query) {
			copied := *item
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

func (f *fakeStore) CountByOwner(ctx context.Context, ownerID uuid.UUID, query string) (int, error) {
	count := 0
	for _, item := range f.items {
		if f.matches(item, ownerID, query) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.items[id]; !ok {
		return db.ErrItemNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeStore) MarkSold(ctx context.Context, id uuid.UUID, price float64, currency string) (*db.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, db.ErrItemNotFound
	}
	item.Status = db.ItemStatusSold
	item.SoldPrice = sql.NullFloat64{Float64: price, Valid: true}
	item.SoldCurrency = sql.NullString{String: currency, Valid: true}
	item.UpdatedAt = time.Now()
	copied := *item
	return &copied, nil
}

func (f *fakeStore) MarkGifted(ctx context.Context, id uuid.UUID, recipientEmail string, message sql.NullString) (*db.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, db.ErrItemNotFound
	}
	item.Status = db.ItemStatusGifted
	item.GiftedRecipientEmail = sql.NullString{String: recipientEmail, Valid: true}
	item.GiftedMessage = message
	item.UpdatedAt = time.Now()
	copied := *item
	return &copied, nil
}

func (f *fakeStore) MarkDonated(ctx context.Context, id uuid.UUID, organizationID string, notes sql.NullString) (*db.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, db.ErrItemNotFound
	}
	item.Status = db.ItemStatusDonated
	item.DonatedOrganizationID = sql.NullString{String: organizationID, Valid: true}
	item.DonatedNotes = notes
	item.UpdatedAt = time.Now()
	copied := *item
	return &copied, nil
}

func (f *fakeStore) SetImageKey(ctx context.Context, id uuid.UUID, imageKey string) error {
	item, ok := f.items[id]
	if !ok {
		return db.ErrItemNotFound
	}
	item.ImageKey = sql.NullString{String: imageKey, Valid: true}
	return nil
}

type fakeImageStore struct {
	objects map[string][]byte
	deleted []string
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{objects: make(map[string][]byte)}
}

func (f *fakeImageStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeImageStore) URL(ctx context.Context, key string) (string, error) {
	if _, ok := f.objects[key]; !ok {
		return "", errors.New("no such object")
	}
	return "https://storage.test/" + key + "?signed", nil
}

func (f *fakeImageStore) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func seedItem(t *testing.T, store *fakeStore, ownerID uuid.UUID, name string, createdAt time.Time) *db.Item {
	t.Helper()
	item := &db.Item{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        name,
		Description: "description of " + name,
		Status:      db.ItemStatusActive,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if err := store.Create(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	return item
}

func TestCreateAndGet(t *testing.T) {
	store := newFakeStore()
	service := NewService(store, nil)
	ctx := context.Background()
	ownerID := uuid.New()

	created, err := service.Create(ctx, ownerID, CreateInput{Name: "Vintage watch", Description: "From my grandfather."})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Status != db.ItemStatusActive {
		t.Errorf("new item status = %q, want active", created.Status)
	}

	got, err := service.Get(ctx, ownerID, uuid.MustParse(created.ID))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "Vintage watch" || got.Description != "From my grandfather." {
		t.Errorf("unexpected item: %+v", got)
	}
}

func TestGet_Ownership(t *testing.T) {
	store := newFakeStore()
	service := NewService(store, nil)
	ctx := context.Background()
	ownerID := uuid.New()
	item := seedItem(t, store, ownerID, "Lamp", time.Now())

	if _, err := service.Get(ctx, uuid.New(), item.ID); !errors.Is(err, db.ErrNotOwner) {
		t.Errorf("foreign owner: got %v, want ErrNotOwner", err)
	}
	if _, err := service.Get(ctx, ownerID, uuid.New()); !errors.Is(err, db.ErrItemNotFound) {
		t.Errorf("missing item: got %v, want ErrItemNotFound", err)
	}
}

func TestList_PaginationAndOrder(t *testing.T) {
	store := newFakeStore()
	service := NewService(store, nil)
	ctx := context.Background()
	ownerID := uuid.New()

	base := time.Now()
	for i := 0; i < 5; i++ {
		seedItem(t, store, ownerID, []string{"a", "b", "c", "d", "e"}[i], base.Add(time.Duration(i)*time.Minute))
	}
	seedItem(t, store, uuid.New(), "not mine", base)

	dtos, total, err := service.List(ctx, ownerID, "", 1, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(dtos) != 2 || dtos[0].Name != "e" || dtos[1].Name != "d" {
		t.Errorf("expected newest first [e d], got %+v", dtos)
	}

	dtos, _, err = service.List(ctx, ownerID, "", 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(dtos) != 1 || dtos[0].Name != "a" {
		t.Errorf("last page should hold [a], got %+v", dtos)
	}
}

func TestList_Search(t *testing.T) {
	store := newFakeStore()
	service := NewService(store, nil)
	ctx := context.Background()
	ownerID := uuid.New()
	seedItem(t, store, ownerID, "Vintage watch", time.Now())
	seedItem(t, store, ownerID, "Table lamp", time.Now())

	dtos, total, err := service.List(ctx, ownerID, "watch", 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(dtos) != 1 || dtos[0].Name != "Vintage watch" {
		t.Errorf("search should match one item, got total=%d %+v", total, dtos)
	}
}

func TestLifecycleActions(t *testing.T) {
	store := newFakeStore()
	service := NewService(store, nil)
	ctx := context.Background()
	ownerID := uuid.New()

	sellItem := seedItem(t, store, ownerID, "Watch", time.Now())
	sold, err := service.Sell(ctx, ownerID, sellItem.ID, 250, "USD")
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if sold.Status != db.ItemStatusSold || sold.SoldPrice == nil || *sold.SoldPrice != 250 || sold.SoldCurrency != "USD" {
		t.Errorf("unexpected sold item: %+v", sold)
	}

	giftItem := seedItem(t, store, ownerID, "Book", time.Now())
	gifted, err := service.Gift(ctx, ownerID, giftItem.ID, "friend@example.com", "Enjoy!")
	if err != nil {
		t.Fatalf("Gift failed: %v", err)
	}
	if gifted.Status != db.ItemStatusGifted || gifted.GiftedRecipientEmail != "friend@example.com" || gifted.GiftedMessage != "Enjoy!" {
		t.Errorf("unexpected gifted item: %+v", gifted)
	}

	donateItem := seedItem(t, store, ownerID, "Coat", time.Now())
	donated, err := service.Donate(ctx, ownerID, donateItem.ID, "org-123", "")
	if err != nil {
		t.Fatalf("Donate failed: %v", err)
	}
	if donated.Status != db.ItemStatusDonated || donated.DonatedOrganizationID != "org-123" {
		t.Errorf("unexpected donated item: %+v", donated)
	}
	if donated.DonatedNotes != "" {
		t.Errorf("empty notes should stay empty, got %q", donated.DonatedNotes)
	}
}

func TestLifecycleActions_Ownership(t *testing.T) {
	store := newFakeStore()
	service := NewService(store, nil)
	ctx := context.Background()
	item := seedItem(t, store, uuid.New(), "Watch", time.Now())
	stranger := uuid.New()

	if _, err := service.Sell(ctx, stranger, item.ID, 10, "EUR"); !errors.Is(err, db.ErrNotOwner) {
		t.Errorf("sell: got %v, want ErrNotOwner", err)
	}
	if _, err := service.Gift(ctx, stranger, item.ID, "x@example.com", ""); !errors.Is(err, db.ErrNotOwner) {
		t.Errorf("gift: got %v, want ErrNotOwner", err)
	}
	if _, err := service.Donate(ctx, stranger, item.ID, "org", ""); !errors.Is(err, db.ErrNotOwner) {
		t.Errorf("donate: got %v, want ErrNotOwner", err)
	}
	if err := service.Delete(ctx, stranger, item.ID); !errors.Is(err, db.ErrNotOwner) {
		t.Errorf("delete: got %v, want ErrNotOwner", err)
	}
}

func TestUploadImage(t *testing.T) {
	store := newFakeStore()
	images := newFakeImageStore()
	service := NewService(store, images)
	ctx := context.Background()
	ownerID := uuid.New()
	item := seedItem(t, store, ownerID, "Watch", time.Now())

	dto, err := service.UploadImage(ctx, ownerID, item.ID, strings.NewReader("fake-bytes"), 10, "image/png")
	if err != nil {
		t.Fatalf("UploadImage failed: %v", err)
	}
	if dto.ImageURL == "" {
		t.Error("expected presigned image url on DTO")
	}
	if len(images.objects) != 1 {
		t.Errorf("expected one stored object, got %d", len(images.objects))
	}
}

func TestUploadImage_NoStorage(t *testing.T) {
	store := newFakeStore()
	service := NewService(store, nil)
	item := seedItem(t, store, uuid.New(), "Watch", time.Now())

	_, err := service.UploadImage(context.Background(), item.OwnerID, item.ID, strings.NewReader("x"), 1, "image/png")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("got %v, want ErrStorageUnavailable", err)
	}
}

func TestDelete_RemovesImage(t *testing.T) {
	store := newFakeStore()
	images := newFakeImageStore()
	service := NewService(store, images)
	ctx := context.Background()
	ownerID := uuid.New()
	item := seedItem(t, store, ownerID, "Watch", time.Now())

	if _, err := service.UploadImage(ctx, ownerID, item.ID, strings.NewReader("fake-bytes"), 10, "image/png"); err != nil {
		t.Fatal(err)
	}
	if err := service.Delete(ctx, ownerID, item.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(images.deleted) != 1 {
		t.Errorf("expected image object deletion, got %v", images.deleted)
	}
	if _, err := service.Get(ctx, ownerID, item.ID); !errors.Is(err, db.ErrItemNotFound) {
		t.Errorf("item should be gone, got %v", err)
	}
}
