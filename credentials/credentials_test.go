package credentials

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestRegisterGetDelete(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "credentials.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	creds := map[string]string{"accessKey": "AK", "secretKey": "SK", "bucket": "videos"}
	key, err := s.Register(creds)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("Expected 32 character key, got %q", key)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got["bucket"] != "videos" || got["secretKey"] != "SK" {
		t.Errorf("Unexpected credentials %v", got)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
