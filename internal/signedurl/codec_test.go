package signedurl

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec([]byte("test-signing-key-0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return codec
}

func TestNewCodec_EmptyKey_ReturnsError(t *testing.T) {
	if _, err := NewCodec(nil); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestSignAndVerify_WithinWindow_Succeeds(t *testing.T) {
	codec := newTestCodec(t)

	now := time.Now()
	signed, err := codec.Sign("https://photos.example.com/api/photos/abc/signed-content", now.Add(-1*time.Minute), now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if err := codec.Verify(signed, now); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
}

func TestSign_PreservesExistingQueryParams(t *testing.T) {
	codec := newTestCodec(t)

	now := time.Now()
	signed, err := codec.Sign("https://photos.example.com/content?size=large", now, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("failed to parse signed url: %v", err)
	}
	if u.Query().Get("size") != "large" {
		t.Error("existing query param should survive signing")
	}

	if err := codec.Verify(signed, now); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
}

func TestVerify_BeforeWindow_IsRejected(t *testing.T) {
	codec := newTestCodec(t)

	now := time.Now()
	signed, err := codec.Sign("https://photos.example.com/content", now.Add(1*time.Minute), now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	err = codec.Verify(signed, now)
	if !errors.Is(err, ErrOutsideWindow) {
		t.Errorf("Verify() error = %v, want ErrOutsideWindow", err)
	}
}

func TestVerify_AfterWindow_IsRejected(t *testing.T) {
	codec := newTestCodec(t)

	now := time.Now()
	signed, err := codec.Sign("https://photos.example.com/content", now.Add(-10*time.Minute), now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	err = codec.Verify(signed, now)
	if !errors.Is(err, ErrOutsideWindow) {
		t.Errorf("Verify() error = %v, want ErrOutsideWindow", err)
	}
}

func TestVerify_WindowBoundaries_AreInclusive(t *testing.T) {
	codec := newTestCodec(t)

	notBefore := time.Unix(1700000000, 0)
	notAfter := time.Unix(1700000300, 0)

	signed, err := codec.Sign("https://photos.example.com/content", notBefore, notAfter)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if err := codec.Verify(signed, notBefore); err != nil {
		t.Errorf("Verify() at not_before error = %v, want nil (inclusive)", err)
	}
	if err := codec.Verify(signed, notAfter); err != nil {
		t.Errorf("Verify() at expires error = %v, want nil (inclusive)", err)
	}
}

func TestVerify_TamperedURL_IsRejected(t *testing.T) {
	codec := newTestCodec(t)

	now := time.Now()
	signed, err := codec.Sign("https://photos.example.com/api/photos/abc/signed-content", now, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	tests := []struct {
		name     string
		tampered string
	}{
		{"path swapped", strings.Replace(signed, "/photos/abc/", "/photos/xyz/", 1)},
		{"expiry extended", strings.Replace(signed, "expires=", "expires=9", 1)},
		{"host swapped", strings.Replace(signed, "photos.example.com", "evil.example.com", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := codec.Verify(tt.tampered, now)
			if !errors.Is(err, ErrSignatureMismatch) {
				t.Errorf("Verify() error = %v, want ErrSignatureMismatch", err)
			}
		})
	}
}

func TestVerify_TamperedSignatureByte_IsRejected(t *testing.T) {
	codec := newTestCodec(t)

	now := time.Now()
	signed, err := codec.Sign("https://photos.example.com/content", now, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	idx := strings.Index(signed, "signature=") + len("signature=")
	flip := byte('A')
	if signed[idx] == 'A' {
		flip = 'B'
	}
	tampered := signed[:idx] + string(flip) + signed[idx+1:]

	if err := codec.Verify(tampered, now); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("Verify() error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerify_DifferentKey_IsRejected(t *testing.T) {
	codec := newTestCodec(t)
	otherCodec, err := NewCodec([]byte("another-key-entirely"))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	now := time.Now()
	signed, err := codec.Sign("https://photos.example.com/content", now, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if err := otherCodec.Verify(signed, now); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("Verify() with rotated key error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerify_MissingParams_IsRejected(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now()

	tests := []struct {
		name   string
		rawURL string
	}{
		{"no signature", "https://photos.example.com/content?not_before=1&expires=2"},
		{"no not_before", "https://photos.example.com/content?expires=2&signature=abc"},
		{"no expires", "https://photos.example.com/content?not_before=1&signature=abc"},
		{"non-numeric window", "https://photos.example.com/content?not_before=x&expires=2&signature=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := codec.Verify(tt.rawURL, now)
			if !errors.Is(err, ErrMissingParams) {
				t.Errorf("Verify() error = %v, want ErrMissingParams", err)
			}
		})
	}
}

func TestVerify_IsPureFunctionOfURLKeyAndTime(t *testing.T) {
	codec := newTestCodec(t)

	now := time.Unix(1700000100, 0)
	signed, err := codec.Sign("https://photos.example.com/content", time.Unix(1700000000, 0), time.Unix(1700000300, 0))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	// 同一入力は何度検証しても同じ結果になる
	for i := 0; i < 5; i++ {
		if err := codec.Verify(signed, now); err != nil {
			t.Fatalf("Verify() iteration %d error = %v", i, err)
		}
	}
}
