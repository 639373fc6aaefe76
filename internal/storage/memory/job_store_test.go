package memory

import (
	"context"
	"testing"

	"github.com/postly/job-harvester/internal/scraper"
)

func TestJobStoreUpsertLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()

	first := scraper.JobPosting{Title: "Engineer", Company: "Acme", SourceURL: "https://a/1"}
	wasUpdate, err := store.Upsert(ctx, first)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if wasUpdate {
		t.Fatal("first write should be an insert")
	}

	second := first
	second.Title = "Engineer II"
	wasUpdate, err = store.Upsert(ctx, second)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !wasUpdate {
		t.Fatal("second write should report an update")
	}

	got, ok := store.Get("https://a/1")
	if !ok || got.Title != "Engineer II" {
		t.Fatalf("expected last write to win, got %+v ok=%v", got, ok)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one distinct posting, got %d", store.Len())
	}
}

func TestJobStoreUpsertValidation(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()

	if _, err := store.Upsert(ctx, scraper.JobPosting{Title: "Engineer"}); err == nil {
		t.Fatal("expected error for missing source url")
	}
	if _, err := store.Upsert(ctx, scraper.JobPosting{SourceURL: "https://a/1"}); err == nil {
		t.Fatal("expected error for missing title")
	}
}
