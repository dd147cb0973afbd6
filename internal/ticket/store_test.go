package ticket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/photokeep/internal/model"
	"github.com/hitoshi/photokeep/internal/repository"
)

// --- モック定義 ---

type mockTicketRepo struct {
	insertFn         func(ctx context.Context, ticket *model.Ticket) error
	findByIDFn       func(ctx context.Context, id string) (*model.Ticket, error)
	touchActivityFn  func(ctx context.Context, id string, at time.Time) error
	updateFn         func(ctx context.Context, ticket *model.Ticket) error
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockTicketRepo) Insert(ctx context.Context, ticket *model.Ticket) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, ticket)
	}
	return nil
}

func (m *mockTicketRepo) FindByID(ctx context.Context, id string) (*model.Ticket, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockTicketRepo) TouchActivity(ctx context.Context, id string, at time.Time) error {
	if m.touchActivityFn != nil {
		return m.touchActivityFn(ctx, id, at)
	}
	return nil
}

func (m *mockTicketRepo) Update(ctx context.Context, ticket *model.Ticket) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, ticket)
	}
	return nil
}

func (m *mockTicketRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockTicketRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

// compile-time interface check
var _ repository.TicketRepository = (*mockTicketRepo)(nil)

func testPrincipal() *model.Principal {
	return &model.Principal{
		Scheme:    "cookie",
		SubjectID: "user-1",
		IssuedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Claims: []model.Claim{
			{Type: model.ClaimTypeSubject, Value: "user-1"},
			{Type: model.ClaimTypeName, Value: "Test User"},
			{Type: model.ClaimTypeEmail, Value: "test@example.com"},
		},
	}
}

// --- シリアライズ ---

func TestSerializePrincipal_RoundTrip(t *testing.T) {
	p := testPrincipal()

	b, err := SerializePrincipal(p)
	if err != nil {
		t.Fatalf("SerializePrincipal returned error: %v", err)
	}

	restored, err := DeserializePrincipal(b)
	if err != nil {
		t.Fatalf("DeserializePrincipal returned error: %v", err)
	}

	// serialize(deserialize(serialize(x))) == serialize(x)
	b2, err := SerializePrincipal(restored)
	if err != nil {
		t.Fatalf("re-serialize returned error: %v", err)
	}
	if string(b) != string(b2) {
		t.Errorf("round-trip mismatch:\n first = %s\nsecond = %s", b, b2)
	}

	if restored.Scheme != p.Scheme {
		t.Errorf("Scheme = %q, want %q", restored.Scheme, p.Scheme)
	}
	if !restored.IssuedAt.Equal(p.IssuedAt) {
		t.Errorf("IssuedAt = %v, want %v", restored.IssuedAt, p.IssuedAt)
	}
	if len(restored.Claims) != len(p.Claims) {
		t.Fatalf("len(Claims) = %d, want %d", len(restored.Claims), len(p.Claims))
	}
	// クレームの順序が保存される
	for i := range p.Claims {
		if restored.Claims[i] != p.Claims[i] {
			t.Errorf("Claims[%d] = %+v, want %+v", i, restored.Claims[i], p.Claims[i])
		}
	}
}

func TestDeserializePrincipal_EmptyBytes_ReturnsError(t *testing.T) {
	if _, err := DeserializePrincipal(nil); err == nil {
		t.Error("expected error for empty bytes, got nil")
	}
}

// --- Store ---

func TestStore_GeneratesUniqueIDAndPersists(t *testing.T) {
	ctx := context.Background()

	var inserted *model.Ticket
	repo := &mockTicketRepo{
		insertFn: func(_ context.Context, ticket *model.Ticket) error {
			inserted = ticket
			return nil
		},
	}
	store := NewStore(repo)

	expires := time.Now().Add(24 * time.Hour)
	id, err := store.Store(ctx, "user-1", testPrincipal(), &expires)
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("Store returned non-UUID id %q: %v", id, err)
	}
	if inserted == nil {
		t.Fatal("expected Insert to be called")
	}
	if inserted.ID != id {
		t.Errorf("inserted.ID = %q, want %q", inserted.ID, id)
	}
	if inserted.UserID != "user-1" {
		t.Errorf("inserted.UserID = %q, want %q", inserted.UserID, "user-1")
	}
	if inserted.LastActivity.IsZero() {
		t.Error("expected LastActivity to be set")
	}
	if inserted.ExpiresAt == nil || !inserted.ExpiresAt.Equal(expires) {
		t.Errorf("inserted.ExpiresAt = %v, want %v", inserted.ExpiresAt, expires)
	}
}

func TestStore_IDCollision_ReturnsFatalError(t *testing.T) {
	ctx := context.Background()

	repo := &mockTicketRepo{
		insertFn: func(_ context.Context, _ *model.Ticket) error {
			return repository.ErrDuplicateTicketID
		},
	}
	store := NewStore(repo)

	_, err := store.Store(ctx, "user-1", testPrincipal(), nil)
	if err == nil {
		t.Fatal("expected error on id collision, got nil")
	}
	if !errors.Is(err, repository.ErrDuplicateTicketID) {
		t.Errorf("expected ErrDuplicateTicketID, got %v", err)
	}
}

func TestRetrieve_HitTouchesActivityAndReturnsPrincipal(t *testing.T) {
	ctx := context.Background()

	p := testPrincipal()
	value, err := SerializePrincipal(p)
	if err != nil {
		t.Fatalf("SerializePrincipal returned error: %v", err)
	}

	id := uuid.New().String()
	stored := &model.Ticket{
		ID:           id,
		UserID:       "user-1",
		Value:        value,
		LastActivity: time.Now().Add(-time.Hour),
	}

	var touchedID string
	var touchedAt time.Time
	repo := &mockTicketRepo{
		findByIDFn: func(_ context.Context, reqID string) (*model.Ticket, error) {
			if reqID != id {
				t.Errorf("FindByID called with %q, want %q", reqID, id)
			}
			return stored, nil
		},
		touchActivityFn: func(_ context.Context, reqID string, at time.Time) error {
			touchedID = reqID
			touchedAt = at
			return nil
		},
	}
	store := NewStore(repo)

	ticket, principal, err := store.Retrieve(ctx, id)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if ticket == nil || principal == nil {
		t.Fatal("expected ticket and principal, got nil")
	}

	if touchedID != id {
		t.Errorf("TouchActivity called with %q, want %q", touchedID, id)
	}
	if !touchedAt.After(stored.LastActivity) {
		t.Errorf("expected activity timestamp to advance, got %v", touchedAt)
	}
	if principal.SubjectID != p.SubjectID {
		t.Errorf("principal.SubjectID = %q, want %q", principal.SubjectID, p.SubjectID)
	}
}

func TestRetrieve_MalformedID_ReturnsCleanMiss(t *testing.T) {
	ctx := context.Background()

	repo := &mockTicketRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.Ticket, error) {
			t.Error("FindByID should not be called for malformed id")
			return nil, nil
		},
	}
	store := NewStore(repo)

	ticket, principal, err := store.Retrieve(ctx, "not-a-uuid")
	if err != nil {
		t.Fatalf("expected clean miss, got error: %v", err)
	}
	if ticket != nil || principal != nil {
		t.Error("expected nil ticket and principal for malformed id")
	}
}

func TestRetrieve_Absent_ReturnsNil(t *testing.T) {
	ctx := context.Background()

	store := NewStore(&mockTicketRepo{})

	ticket, principal, err := store.Retrieve(ctx, uuid.New().String())
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if ticket != nil || principal != nil {
		t.Error("expected nil for absent ticket")
	}
}

func TestRetrieve_StorageFault_PropagatesError(t *testing.T) {
	ctx := context.Background()

	storageErr := errors.New("connection refused")
	repo := &mockTicketRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.Ticket, error) {
			return nil, storageErr
		},
	}
	store := NewStore(repo)

	_, _, err := store.Retrieve(ctx, uuid.New().String())
	if err == nil {
		t.Fatal("expected storage fault to propagate, got nil")
	}
	if !errors.Is(err, storageErr) {
		t.Errorf("expected wrapped storage error, got %v", err)
	}
}

func TestRenew_OverwritesValueAndExpiry(t *testing.T) {
	ctx := context.Background()

	var updated *model.Ticket
	repo := &mockTicketRepo{
		updateFn: func(_ context.Context, ticket *model.Ticket) error {
			updated = ticket
			return nil
		},
	}
	store := NewStore(repo)

	id := uuid.New().String()
	expires := time.Now().Add(48 * time.Hour)
	if err := store.Renew(ctx, id, testPrincipal(), &expires); err != nil {
		t.Fatalf("Renew returned error: %v", err)
	}

	if updated == nil {
		t.Fatal("expected Update to be called")
	}
	if updated.ID != id {
		t.Errorf("updated.ID = %q, want %q", updated.ID, id)
	}
	if len(updated.Value) == 0 {
		t.Error("expected serialized principal in updated.Value")
	}
	if updated.ExpiresAt == nil || !updated.ExpiresAt.Equal(expires) {
		t.Errorf("updated.ExpiresAt = %v, want %v", updated.ExpiresAt, expires)
	}
}

func TestRenew_MalformedID_IsNoOp(t *testing.T) {
	ctx := context.Background()

	repo := &mockTicketRepo{
		updateFn: func(_ context.Context, _ *model.Ticket) error {
			t.Error("Update should not be called for malformed id")
			return nil
		},
	}
	store := NewStore(repo)

	if err := store.Renew(ctx, "garbage", testPrincipal(), nil); err != nil {
		t.Fatalf("expected no-op, got error: %v", err)
	}
}

func TestRevoke_DeletesTicket(t *testing.T) {
	ctx := context.Background()

	var deletedID string
	repo := &mockTicketRepo{
		deleteByIDFn: func(_ context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	store := NewStore(repo)

	id := uuid.New().String()
	if err := store.Revoke(ctx, id); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if deletedID != id {
		t.Errorf("DeleteByID called with %q, want %q", deletedID, id)
	}
}

func TestRevoke_ThenRetrieve_ReturnsAbsent(t *testing.T) {
	ctx := context.Background()

	// 削除が権威的であることのインメモリ検証:
	// revoke後のretrieveは、直前にrenewが発行されていても不在を返す。
	rows := map[string]*model.Ticket{}
	repo := &mockTicketRepo{
		insertFn: func(_ context.Context, t *model.Ticket) error {
			rows[t.ID] = t
			return nil
		},
		findByIDFn: func(_ context.Context, id string) (*model.Ticket, error) {
			return rows[id], nil
		},
		updateFn: func(_ context.Context, t *model.Ticket) error {
			if existing, ok := rows[t.ID]; ok {
				existing.Value = t.Value
				existing.LastActivity = t.LastActivity
				existing.ExpiresAt = t.ExpiresAt
			}
			return nil
		},
		deleteByIDFn: func(_ context.Context, id string) error {
			delete(rows, id)
			return nil
		},
	}
	store := NewStore(repo)

	id, err := store.Store(ctx, "user-1", testPrincipal(), nil)
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	// renewがrevokeの直前に発行されている
	if err := store.Renew(ctx, id, testPrincipal(), nil); err != nil {
		t.Fatalf("Renew returned error: %v", err)
	}
	if err := store.Revoke(ctx, id); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	// revoke後のrenewは復活させない
	if err := store.Renew(ctx, id, testPrincipal(), nil); err != nil {
		t.Fatalf("Renew after revoke returned error: %v", err)
	}

	ticket, principal, err := store.Retrieve(ctx, id)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if ticket != nil || principal != nil {
		t.Error("expected absent ticket after revoke")
	}
}

func TestStoreThenRetrieve_ReturnsEqualTicketWithAdvancedActivity(t *testing.T) {
	ctx := context.Background()

	rows := map[string]*model.Ticket{}
	repo := &mockTicketRepo{
		insertFn: func(_ context.Context, t *model.Ticket) error {
			copied := *t
			rows[t.ID] = &copied
			return nil
		},
		findByIDFn: func(_ context.Context, id string) (*model.Ticket, error) {
			return rows[id], nil
		},
		touchActivityFn: func(_ context.Context, id string, at time.Time) error {
			if existing, ok := rows[id]; ok {
				existing.LastActivity = at
			}
			return nil
		},
	}
	store := NewStore(repo)

	p := testPrincipal()
	id, err := store.Store(ctx, "user-1", p, nil)
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	storedActivity := rows[id].LastActivity

	ticket, principal, err := store.Retrieve(ctx, id)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if ticket == nil || principal == nil {
		t.Fatal("expected hit")
	}

	b1, _ := SerializePrincipal(p)
	b2, _ := SerializePrincipal(principal)
	if string(b1) != string(b2) {
		t.Error("retrieved principal differs from stored principal")
	}
	if rows[id].LastActivity.Before(storedActivity) {
		t.Error("expected last_activity to advance on retrieve")
	}
}
