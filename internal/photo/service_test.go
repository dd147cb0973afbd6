package photo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/photokeep/internal/model"
	"github.com/hitoshi/photokeep/internal/repository"
	"github.com/hitoshi/photokeep/internal/signedurl"
)

// --- モック定義 ---

type mockPhotoRepo struct {
	findMetaByIDFn    func(ctx context.Context, id string) (*model.Photo, error)
	findContentByIDFn func(ctx context.Context, id string) (*model.PhotoContent, error)
	listByOwnerFn     func(ctx context.Context, ownerID string) ([]*model.Photo, error)
	createFn          func(ctx context.Context, photo *model.Photo, content *model.PhotoContent) error
	updateTitleFn     func(ctx context.Context, id, title string) error
	deleteFn          func(ctx context.Context, id string) error
}

func (m *mockPhotoRepo) FindMetaByID(ctx context.Context, id string) (*model.Photo, error) {
	if m.findMetaByIDFn != nil {
		return m.findMetaByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockPhotoRepo) FindContentByID(ctx context.Context, id string) (*model.PhotoContent, error) {
	if m.findContentByIDFn != nil {
		return m.findContentByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockPhotoRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Photo, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockPhotoRepo) Create(ctx context.Context, photo *model.Photo, content *model.PhotoContent) error {
	if m.createFn != nil {
		return m.createFn(ctx, photo, content)
	}
	return nil
}

func (m *mockPhotoRepo) UpdateTitle(ctx context.Context, id, title string) error {
	if m.updateTitleFn != nil {
		return m.updateTitleFn(ctx, id, title)
	}
	return nil
}

func (m *mockPhotoRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockTitleSanitizer struct {
	sanitizeFn func(rawTitle string) string
}

func (m *mockTitleSanitizer) Sanitize(rawTitle string) string {
	if m.sanitizeFn != nil {
		return m.sanitizeFn(rawTitle)
	}
	return rawTitle
}

// --- compile-time interface checks ---
var _ repository.PhotoRepository = (*mockPhotoRepo)(nil)
var _ TitleSanitizer = (*mockTitleSanitizer)(nil)

func newTestService(t *testing.T, repo *mockPhotoRepo) *Service {
	t.Helper()
	codec, err := signedurl.NewCodec([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return NewService(repo, codec, &mockTitleSanitizer{}, ServiceConfig{
		BaseURL:      "https://photos.example.com",
		SignedURLTTL: 5 * time.Minute,
	})
}

// --- テスト ---

func TestCanAccess(t *testing.T) {
	tests := []struct {
		name      string
		subjectID string
		ownerID   string
		want      bool
	}{
		{"owner can access", "user-1", "user-1", true},
		{"other user cannot", "user-2", "user-1", false},
		{"empty subject cannot", "", "user-1", false},
		{"empty subject and owner cannot", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAccess(tt.subjectID, tt.ownerID); got != tt.want {
				t.Errorf("CanAccess(%q, %q) = %v, want %v", tt.subjectID, tt.ownerID, got, tt.want)
			}
		})
	}
}

func TestList_ReturnsViewsWithVerifiableSignedURLs(t *testing.T) {
	ctx := context.Background()

	repo := &mockPhotoRepo{
		listByOwnerFn: func(ctx context.Context, ownerID string) ([]*model.Photo, error) {
			return []*model.Photo{
				{ID: "photo-1", OwnerID: ownerID, Title: "Beach", FileName: "beach.jpg"},
				{ID: "photo-2", OwnerID: ownerID, Title: "Sunset", FileName: "sunset.jpg"},
			}, nil
		},
	}

	svc := newTestService(t, repo)

	views, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}

	// 署名付きURLは同じ鍵のコーデックで検証可能であること
	codec, _ := signedurl.NewCodec([]byte("test-signing-key"))
	for _, v := range views {
		if !strings.Contains(v.SignedContentURL, "/api/photos/"+v.ID+"/signed-content") {
			t.Errorf("signed URL %q does not point at the content endpoint", v.SignedContentURL)
		}
		if err := codec.Verify(v.SignedContentURL, time.Now()); err != nil {
			t.Errorf("signed URL failed verification: %v", err)
		}
	}
}

func TestGet_OwnedPhoto_ReturnsView(t *testing.T) {
	ctx := context.Background()

	repo := &mockPhotoRepo{
		findMetaByIDFn: func(ctx context.Context, id string) (*model.Photo, error) {
			return &model.Photo{ID: id, OwnerID: "user-1", Title: "Beach"}, nil
		},
	}

	svc := newTestService(t, repo)

	view, err := svc.Get(ctx, "user-1", "photo-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.Title != "Beach" {
		t.Errorf("title = %q, want %q", view.Title, "Beach")
	}
}

func TestGet_OtherOwnersPhoto_IsForbidden(t *testing.T) {
	ctx := context.Background()

	repo := &mockPhotoRepo{
		findMetaByIDFn: func(ctx context.Context, id string) (*model.Photo, error) {
			return &model.Photo{ID: id, OwnerID: "user-1"}, nil
		},
	}

	svc := newTestService(t, repo)

	_, err := svc.Get(ctx, "user-2", "photo-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodePhotoForbidden {
		t.Fatalf("Get() error = %v, want PhotoForbidden", err)
	}
}

func TestGet_UnknownPhoto_IsNotFound(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(t, &mockPhotoRepo{})

	_, err := svc.Get(ctx, "user-1", "missing")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodePhotoNotFound {
		t.Fatalf("Get() error = %v, want PhotoNotFound", err)
	}
}

func TestAdd_SanitizesTitleAndPersists(t *testing.T) {
	ctx := context.Background()

	var createdPhoto *model.Photo
	var createdContent *model.PhotoContent

	repo := &mockPhotoRepo{
		createFn: func(ctx context.Context, photo *model.Photo, content *model.PhotoContent) error {
			createdPhoto = photo
			createdContent = content
			return nil
		},
	}

	codec, _ := signedurl.NewCodec([]byte("test-signing-key"))
	sanitizer := &mockTitleSanitizer{
		sanitizeFn: func(rawTitle string) string {
			return strings.ReplaceAll(rawTitle, "<script>", "")
		},
	}
	svc := NewService(repo, codec, sanitizer, ServiceConfig{
		BaseURL:      "https://photos.example.com",
		SignedURLTTL: 5 * time.Minute,
	})

	view, err := svc.Add(ctx, "user-1", "<script>Beach", "beach.jpg", "image/jpeg", []byte{0xFF, 0xD8})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if createdPhoto == nil || createdContent == nil {
		t.Fatal("expected photo and content to be persisted")
	}
	if createdPhoto.Title != "Beach" {
		t.Errorf("persisted title = %q, want sanitized %q", createdPhoto.Title, "Beach")
	}
	if createdPhoto.OwnerID != "user-1" {
		t.Errorf("owner = %q, want %q", createdPhoto.OwnerID, "user-1")
	}
	if createdContent.PhotoID != createdPhoto.ID {
		t.Error("content must reference the created photo")
	}
	if view.ID != createdPhoto.ID {
		t.Error("view must reference the created photo")
	}
}

func TestAdd_EmptyContent_ReturnsError(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(t, &mockPhotoRepo{})

	if _, err := svc.Add(ctx, "user-1", "Beach", "beach.jpg", "image/jpeg", nil); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestUpdateTitle_OtherOwnersPhoto_IsForbidden(t *testing.T) {
	ctx := context.Background()

	repo := &mockPhotoRepo{
		findMetaByIDFn: func(ctx context.Context, id string) (*model.Photo, error) {
			return &model.Photo{ID: id, OwnerID: "user-1"}, nil
		},
		updateTitleFn: func(ctx context.Context, id, title string) error {
			t.Fatal("title must not be updated for a forbidden subject")
			return nil
		},
	}

	svc := newTestService(t, repo)

	err := svc.UpdateTitle(ctx, "user-2", "photo-1", "New Title")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodePhotoForbidden {
		t.Fatalf("UpdateTitle() error = %v, want PhotoForbidden", err)
	}
}

func TestDelete_OwnedPhoto_Deletes(t *testing.T) {
	ctx := context.Background()

	var deletedID string
	repo := &mockPhotoRepo{
		findMetaByIDFn: func(ctx context.Context, id string) (*model.Photo, error) {
			return &model.Photo{ID: id, OwnerID: "user-1"}, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}

	svc := newTestService(t, repo)

	if err := svc.Delete(ctx, "user-1", "photo-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deletedID != "photo-1" {
		t.Errorf("deleted id = %q, want %q", deletedID, "photo-1")
	}
}

func TestGetContent_OwnedPhoto_ReturnsBinary(t *testing.T) {
	ctx := context.Background()

	repo := &mockPhotoRepo{
		findMetaByIDFn: func(ctx context.Context, id string) (*model.Photo, error) {
			return &model.Photo{ID: id, OwnerID: "user-1"}, nil
		},
		findContentByIDFn: func(ctx context.Context, id string) (*model.PhotoContent, error) {
			return &model.PhotoContent{PhotoID: id, ContentType: "image/jpeg", Content: []byte{0xFF, 0xD8}}, nil
		},
	}

	svc := newTestService(t, repo)

	content, err := svc.GetContent(ctx, "user-1", "photo-1")
	if err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	if content.ContentType != "image/jpeg" {
		t.Errorf("content type = %q, want %q", content.ContentType, "image/jpeg")
	}
}

func TestGetSignedContent_SkipsOwnershipCheck(t *testing.T) {
	ctx := context.Background()

	repo := &mockPhotoRepo{
		findMetaByIDFn: func(ctx context.Context, id string) (*model.Photo, error) {
			t.Fatal("signed content path must not consult photo metadata")
			return nil, nil
		},
		findContentByIDFn: func(ctx context.Context, id string) (*model.PhotoContent, error) {
			return &model.PhotoContent{PhotoID: id, ContentType: "image/png", Content: []byte{1}}, nil
		},
	}

	svc := newTestService(t, repo)

	content, err := svc.GetSignedContent(ctx, "photo-1")
	if err != nil {
		t.Fatalf("GetSignedContent() error = %v", err)
	}
	if content == nil {
		t.Fatal("expected content")
	}
}
