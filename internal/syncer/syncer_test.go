package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit/searchsync/internal/catalog"
	"github.com/storekit/searchsync/internal/catalog/memory"
	"github.com/storekit/searchsync/internal/searchindex"
	"github.com/storekit/searchsync/internal/transform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSyncer(t *testing.T, cfg Config) (*Syncer, *memory.Store, *searchindex.MemoryWriter) {
	t.Helper()
	store := memory.NewStore()
	writer := searchindex.NewMemoryWriter()
	s, err := New(cfg, store, writer, testLogger())
	require.NoError(t, err)
	return s, store, writer
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchDelay = 0
	return cfg
}

func stageProduct(store *memory.Store, id string, at time.Time) catalog.Product {
	p := catalog.Product{
		ID:        id,
		Title:     "Product " + id,
		Handle:    "product-" + id,
		Status:    "published",
		CreatedAt: at,
		UpdatedAt: at,
	}
	store.PutProduct(p)
	return p
}

func TestSyncNowIndexesAllRecords(t *testing.T) {
	s, store, writer := newTestSyncer(t, testConfig())
	now := time.Now()

	stageProduct(store, "prod_1", now)
	stageProduct(store, "prod_2", now.Add(time.Second))
	stageProduct(store, "prod_3", now.Add(2*time.Second))
	store.PutCustomer(catalog.Customer{ID: "cus_1", Email: "a@b.c", CreatedAt: now, UpdatedAt: now})

	result, err := s.SyncNow(context.Background(), catalog.KindProducts)
	require.NoError(t, err)
	assert.Equal(t, StatusSyncedNow, result.Status)
	assert.Equal(t, 3, result.Synced)

	ids, err := writer.ListIDs(context.Background(), catalog.KindProducts)
	require.NoError(t, err)
	assert.Equal(t, []string{"prod_1", "prod_2", "prod_3"}, ids)

	// The customer must not leak into the products index.
	count, err := writer.Count(context.Background(), catalog.KindCustomers)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncNowConfiguresSchema(t *testing.T) {
	s, store, writer := newTestSyncer(t, testConfig())
	stageProduct(store, "prod_1", time.Now())

	_, err := s.SyncNow(context.Background(), catalog.KindProducts)
	require.NoError(t, err)

	schema := writer.Schema(catalog.KindProducts)
	assert.Contains(t, schema.Filterable, "status")
	assert.Contains(t, schema.Sortable, "updated_at")
	assert.Contains(t, schema.Searchable, "title")
}

func TestSyncNowBatches(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 2
	s, store, writer := newTestSyncer(t, cfg)

	now := time.Now()
	for i := 0; i < 5; i++ {
		stageProduct(store, fmt.Sprintf("prod_%d", i), now.Add(time.Duration(i)*time.Second))
	}

	result, err := s.SyncNow(context.Background(), catalog.KindProducts)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Synced)
	assert.Equal(t, 3, writer.UpsertBatches[catalog.KindProducts])
}

func TestSyncNowPrunesStaleDocuments(t *testing.T) {
	s, store, writer := newTestSyncer(t, testConfig())
	now := time.Now()
	stageProduct(store, "prod_live", now)

	// A document whose source record no longer exists.
	_, err := writer.Upsert(context.Background(), catalog.KindProducts,
		[]transform.Document{{"id": "prod_stale", "updated_at": int64(0)}})
	require.NoError(t, err)

	result, err := s.SyncNow(context.Background(), catalog.KindProducts)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)

	_, ok := writer.Get(catalog.KindProducts, "prod_stale")
	assert.False(t, ok, "stale document should be pruned")
	_, ok = writer.Get(catalog.KindProducts, "prod_live")
	assert.True(t, ok)

	info, ok := s.LastRun(catalog.KindProducts)
	require.True(t, ok)
	assert.Equal(t, 1, info.Pruned)
	assert.Empty(t, info.Error)
}

func TestSyncNowSkipsWhenAlreadyRunning(t *testing.T) {
	s, store, _ := newTestSyncer(t, testConfig())
	stageProduct(store, "prod_1", time.Now())

	require.True(t, s.Guard().TryAcquire(catalog.KindProducts))
	defer s.Guard().Release(catalog.KindProducts)

	result, err := s.SyncNow(context.Background(), catalog.KindProducts)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyRunning, result.Status)
	assert.Zero(t, result.Synced)
}

func TestSyncNowConcurrentRunsAreExclusive(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 1
	cfg.BatchDelay = 20 * time.Millisecond
	s, store, _ := newTestSyncer(t, cfg)

	now := time.Now()
	for i := 0; i < 5; i++ {
		stageProduct(store, fmt.Sprintf("prod_%d", i), now)
	}

	first := make(chan Result, 1)
	go func() {
		r, _ := s.SyncNow(context.Background(), catalog.KindProducts)
		first <- r
	}()

	// Wait until the background run holds the guard, then race it.
	require.Eventually(t, func() bool {
		return s.Guard().Held(catalog.KindProducts)
	}, time.Second, time.Millisecond)

	second, err := s.SyncNow(context.Background(), catalog.KindProducts)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyRunning, second.Status)

	r := <-first
	assert.Equal(t, StatusSyncedNow, r.Status)
	assert.Equal(t, 5, r.Synced)
}

func TestSyncNowReleasesGuardOnFailure(t *testing.T) {
	s, store, writer := newTestSyncer(t, testConfig())
	stageProduct(store, "prod_1", time.Now())
	writer.FailUpserts = errors.New("index unavailable")

	_, err := s.SyncNow(context.Background(), catalog.KindProducts)
	require.Error(t, err)
	assert.False(t, s.Guard().Held(catalog.KindProducts))

	info, ok := s.LastRun(catalog.KindProducts)
	require.True(t, ok)
	assert.Contains(t, info.Error, "index unavailable")

	// The next run must succeed once the index recovers.
	writer.FailUpserts = nil
	result, err := s.SyncNow(context.Background(), catalog.KindProducts)
	require.NoError(t, err)
	assert.Equal(t, StatusSyncedNow, result.Status)
}

func TestSyncNowRejectsUnknownKind(t *testing.T) {
	s, _, _ := newTestSyncer(t, testConfig())

	_, err := s.SyncNow(context.Background(), catalog.Kind("orders"))
	assert.ErrorIs(t, err, catalog.ErrUnknownKind)
}

func TestSyncNowAppliesEligibilityFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Filters = map[string]string{"products": `doc.status == "published"`}
	s, store, writer := newTestSyncer(t, cfg)

	now := time.Now()
	stageProduct(store, "prod_live", now)
	draft := catalog.Product{ID: "prod_draft", Title: "Draft", Status: "draft", CreatedAt: now, UpdatedAt: now}
	store.PutProduct(draft)

	result, err := s.SyncNow(context.Background(), catalog.KindProducts)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)

	_, ok := writer.Get(catalog.KindProducts, "prod_live")
	assert.True(t, ok)
	_, ok = writer.Get(catalog.KindProducts, "prod_draft")
	assert.False(t, ok)
}

func TestSyncNowInventoryFanOut(t *testing.T) {
	s, store, writer := newTestSyncer(t, testConfig())
	now := time.Now()

	store.PutProduct(catalog.Product{
		ID:        "prod_1",
		Title:     "Chair",
		Variants:  []catalog.Variant{{ID: "var_1", ProductID: "prod_1", SKU: "CHAIR-1"}},
		CreatedAt: now,
		UpdatedAt: now,
	})
	store.PutInventoryItem(catalog.InventoryItem{
		ID:        "iitem_1",
		SKU:       "CHAIR-1",
		VariantID: "var_1",
		Levels: []catalog.InventoryLevel{
			{LocationID: "loc_a", Stocked: 10, Reserved: 3},
			{LocationID: "loc_b", Stocked: 5},
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	// Orphan: no variant resolves, must never be indexed.
	store.PutInventoryItem(catalog.InventoryItem{
		ID:        "iitem_orphan",
		VariantID: "var_gone",
		Levels:    []catalog.InventoryLevel{{LocationID: "loc_a", Stocked: 1}},
		CreatedAt: now,
		UpdatedAt: now,
	})

	result, err := s.SyncNow(context.Background(), catalog.KindInventory)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Synced)

	doc, ok := writer.Get(catalog.KindInventory, "iitem_1:loc_a")
	require.True(t, ok)
	assert.Equal(t, int64(7), doc["available"])
	assert.Equal(t, "Chair", doc["product_title"])

	_, ok = writer.Get(catalog.KindInventory, "iitem_1:loc_b")
	assert.True(t, ok)

	ids, err := writer.ListIDs(context.Background(), catalog.KindInventory)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestSyncNowHonorsContextCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 1
	cfg.BatchDelay = 50 * time.Millisecond
	s, store, _ := newTestSyncer(t, cfg)

	now := time.Now()
	for i := 0; i < 10; i++ {
		stageProduct(store, fmt.Sprintf("prod_%d", i), now)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	_, err := s.SyncNow(ctx, catalog.KindProducts)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.Guard().Held(catalog.KindProducts))
}

func TestNewRejectsBadFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Filters = map[string]string{"products": `doc.status ==`}
	_, err := New(cfg, memory.NewStore(), searchindex.NewMemoryWriter(), testLogger())
	require.Error(t, err)

	cfg.Filters = map[string]string{"orders": `true`}
	_, err = New(cfg, memory.NewStore(), searchindex.NewMemoryWriter(), testLogger())
	require.Error(t, err)
}
