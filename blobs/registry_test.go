package blobs

import (
	"errors"
	"testing"
	"time"
)

func TestPutGetRevoke(t *testing.T) {
	r := NewRegistry(0, 0)

	token, err := r.Put("compressed_a.mp4", "video/mp4", []byte("data"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if len(token) != 32 {
		t.Errorf("Expected 32 character token, got %d", len(token))
	}

	b, err := r.Get(token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if b.Name != "compressed_a.mp4" || string(b.Data) != "data" {
		t.Errorf("Unexpected blob %+v", b)
	}

	if !r.Revoke(token) {
		t.Error("Expected Revoke to report a live token")
	}
	if r.Revoke(token) {
		t.Error("Second Revoke should report false")
	}
	if _, err := r.Get(token); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestServedReleasesAfterDelay(t *testing.T) {
	r := NewRegistry(20*time.Millisecond, time.Minute)
	token, err := r.Put("x.mp4", "video/mp4", []byte("x"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	r.Served(token)
	if _, err := r.Get(token); err != nil {
		t.Fatalf("Blob should still be available right after serving: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Len() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Blob was not released after the delay")
}

func TestSweepDropsOnlyStaleUnfetched(t *testing.T) {
	r := NewRegistry(time.Hour, time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }

	stale, _ := r.Put("stale.mp4", "video/mp4", nil)
	fetched, _ := r.Put("fetched.mp4", "video/mp4", nil)
	r.Served(fetched)

	now = now.Add(2 * time.Minute)
	fresh, _ := r.Put("fresh.mp4", "video/mp4", nil)

	if removed := r.Sweep(); removed != 1 {
		t.Errorf("Expected 1 blob swept, got %d", removed)
	}
	if _, err := r.Get(stale); err == nil {
		t.Error("Stale blob should be gone")
	}
	if _, err := r.Get(fetched); err != nil {
		t.Error("Fetched blob is released by its own timer, not by Sweep")
	}
	if _, err := r.Get(fresh); err != nil {
		t.Error("Fresh blob should remain")
	}
	r.Revoke(fetched)
}
