package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/kettleworks/storysync/internal/model"
	"github.com/kettleworks/storysync/internal/syncerr"
)

func TestNamingConventions(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"metadata", MetadataName("p1"), "p1.json"},
		{"binary", BinaryName("img1"), "img1.webp"},
		{"thumbnail", ThumbnailName("img1"), "img1_thumb.webp"},
		{"project folder", Folder(model.CategoryProject), "projects"},
		{"script page folder", Folder(model.CategoryScriptPage), "scriptPages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	if err := m.PutJSON(ctx, "projects", "p1.json", []byte(`{"id":"p1"}`)); err != nil {
		t.Fatalf("PutJSON() error = %v", err)
	}

	data, err := m.GetJSON(ctx, "projects", "p1.json")
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if string(data) != `{"id":"p1"}` {
		t.Errorf("GetJSON() = %s", data)
	}

	if err := m.PutBinary(ctx, FilesFolder, "img1.webp", []byte{1, 2, 3}, "image/webp"); err != nil {
		t.Fatalf("PutBinary() error = %v", err)
	}
	if got := m.MimeType(FilesFolder, "img1.webp"); got != "image/webp" {
		t.Errorf("MimeType() = %q", got)
	}
}

func TestMemoryStoreAbsent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	if _, err := m.GetJSON(ctx, "projects", "ghost.json"); !errors.Is(err, ErrNotExist) {
		t.Errorf("GetJSON(absent) error = %v, want ErrNotExist", err)
	}

	// Deleting an absent blob is idempotent.
	if err := m.Delete(ctx, "projects", "ghost.json"); err != nil {
		t.Errorf("Delete(absent) error = %v", err)
	}
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "put", func() error {
		calls++
		return syncerr.New(syncerr.KindAuthFailed, "put", "bad token")
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1 for non-retryable error", calls)
	}
	if syncerr.KindOf(err) != syncerr.KindAuthFailed {
		t.Errorf("kind = %q", syncerr.KindOf(err))
	}
}

func TestWithRetryStopsOnNotExist(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "get", func() error {
		calls++
		return ErrNotExist
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1 for absent blob", calls)
	}
	if !errors.Is(err, ErrNotExist) {
		t.Errorf("error = %v, want ErrNotExist", err)
	}
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "get", func() error {
		calls++
		if calls < 3 {
			return syncerr.New(syncerr.KindNetwork, "get", "timeout")
		}
		return nil
	})
	if err != nil {
		t.Errorf("error = %v, want success on third attempt", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "get", func() error {
		calls++
		return syncerr.New(syncerr.KindNetwork, "get", "timeout")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != retryMaxAttempts {
		t.Errorf("calls = %d, want %d", calls, retryMaxAttempts)
	}
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	errc := make(chan error, 1)
	go func() {
		errc <- WithRetry(ctx, "get", func() error {
			calls++
			if calls == 1 {
				cancel()
			}
			return syncerr.New(syncerr.KindNetwork, "get", "timeout")
		})
	}()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
