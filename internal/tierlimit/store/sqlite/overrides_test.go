package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tierlimit/internal/tierlimit"
)

func openTestDB(t *testing.T) *OverrideDB {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	db, err := Open(filepath.Join(t.TempDir(), "overrides.db"), now)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return db
}

func createReq(key string) *tierlimit.CreateOverrideRequest {
	return &tierlimit.CreateOverrideRequest{
		PrincipalID:    "acct-1",
		Resource:       "api",
		BaseLimit:      500,
		BurstLimit:     50,
		Window:         time.Hour,
		IdempotencyKey: key,
	}
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	created, err := db.Create(ctx, createReq(""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 || created.BaseLimit != 500 {
		t.Fatalf("unexpected created override: %+v", created)
	}

	got, err := db.Get(ctx, "acct-1", "api")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BaseLimit != 500 || got.BurstLimit != 50 || got.Window != time.Hour {
		t.Fatalf("unexpected stored override: %+v", got)
	}

	if _, err := db.Get(ctx, "acct-1", "other"); !errors.Is(err, tierlimit.ErrNotFound) {
		t.Fatalf("missing override: got %v, want not found", err)
	}
}

func TestCreateConflictsOnDuplicate(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Create(ctx, createReq("")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.Create(ctx, createReq("")); !errors.Is(err, tierlimit.ErrConflict) {
		t.Fatalf("duplicate create: got %v, want conflict", err)
	}
}

func TestCreateIdempotency(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.Create(ctx, createReq("idem-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	replay, err := db.Create(ctx, createReq("idem-1"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Version != first.Version || replay.BaseLimit != first.BaseLimit {
		t.Fatalf("replay must return the original: %+v vs %+v", replay, first)
	}

	changed := createReq("idem-1")
	changed.BaseLimit = 1000
	if _, err := db.Create(ctx, changed); !errors.Is(err, tierlimit.ErrConflict) {
		t.Fatalf("key reuse with new payload: got %v, want conflict", err)
	}
}

func TestUpdateOptimisticVersioning(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Create(ctx, createReq("")); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := db.Update(ctx, &tierlimit.UpdateOverrideRequest{
		PrincipalID:     "acct-1",
		Resource:        "api",
		BaseLimit:       800,
		BurstLimit:      80,
		Window:          time.Hour,
		ExpectedVersion: 1,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || updated.BaseLimit != 800 {
		t.Fatalf("unexpected updated override: %+v", updated)
	}

	_, err = db.Update(ctx, &tierlimit.UpdateOverrideRequest{
		PrincipalID:     "acct-1",
		Resource:        "api",
		BaseLimit:       900,
		BurstLimit:      90,
		Window:          time.Hour,
		ExpectedVersion: 1,
	})
	if !errors.Is(err, tierlimit.ErrConflict) {
		t.Fatalf("stale version: got %v, want conflict", err)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Create(ctx, createReq("")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Delete(ctx, "acct-1", "api", 2); !errors.Is(err, tierlimit.ErrConflict) {
		t.Fatalf("wrong version: got %v, want conflict", err)
	}
	if err := db.Delete(ctx, "acct-1", "api", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := db.Delete(ctx, "acct-1", "api", 1); !errors.Is(err, tierlimit.ErrNotFound) {
		t.Fatalf("deleted twice: got %v, want not found", err)
	}
}

func TestRejectsInvalidLimits(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	cases := []*tierlimit.CreateOverrideRequest{
		{PrincipalID: "a", Resource: "r", BaseLimit: 0, BurstLimit: 1, Window: time.Hour},
		{PrincipalID: "a", Resource: "r", BaseLimit: 10, BurstLimit: 0, Window: time.Hour},
		{PrincipalID: "a", Resource: "r", BaseLimit: 10, BurstLimit: 11, Window: time.Hour},
		{PrincipalID: "", Resource: "r", BaseLimit: 10, BurstLimit: 1, Window: time.Hour},
		{PrincipalID: "a", Resource: "", BaseLimit: 10, BurstLimit: 1, Window: time.Hour},
	}
	for i, req := range cases {
		if _, err := db.Create(ctx, req); !errors.Is(err, tierlimit.ErrInvalidInput) {
			t.Fatalf("case %d: got %v, want invalid input", i, err)
		}
	}
}

func TestListAndLoadAll(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	for _, resource := range []string{"api", "export"} {
		req := createReq("")
		req.Resource = resource
		if _, err := db.Create(ctx, req); err != nil {
			t.Fatalf("create %s: %v", resource, err)
		}
	}
	other := createReq("")
	other.PrincipalID = "acct-2"
	if _, err := db.Create(ctx, other); err != nil {
		t.Fatalf("create acct-2: %v", err)
	}

	listed, err := db.List(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("list returned %d overrides, want 2", len(listed))
	}

	all, err := db.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("load all returned %d overrides, want 3", len(all))
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open("", nil); !errors.Is(err, tierlimit.ErrInvalidInput) {
		t.Fatalf("got %v, want invalid input", err)
	}
}
