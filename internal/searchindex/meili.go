package searchindex

import (
	"context"
	"fmt"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/storekit/searchsync/internal/catalog"
	"github.com/storekit/searchsync/internal/transform"
)

// Config holds the search index client configuration.
type Config struct {
	// Host is the base URL of the index service.
	Host string `yaml:"host"`

	// APIKey authenticates against the index service.
	APIKey string `yaml:"api_key"`

	// IndexPrefix namespaces this deployment's indexes, e.g. "store_".
	IndexPrefix string `yaml:"index_prefix"`

	// PollInterval is how often WaitFor polls task status.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ListPageSize bounds one page of the ListIDs scan.
	ListPageSize int64 `yaml:"list_page_size"`
}

// DefaultConfig returns the default index client configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "http://localhost:7700",
		PollInterval: 50 * time.Millisecond,
		ListPageSize: 1000,
	}
}

// MeiliWriter implements Writer on a Meilisearch deployment. One index per
// entity kind, named IndexPrefix + kind.
type MeiliWriter struct {
	cfg    Config
	client meilisearch.ServiceManager
}

// NewMeiliWriter creates a Writer backed by Meilisearch.
func NewMeiliWriter(cfg Config) *MeiliWriter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.ListPageSize <= 0 {
		cfg.ListPageSize = 1000
	}

	var opts []meilisearch.Option
	if cfg.APIKey != "" {
		opts = append(opts, meilisearch.WithAPIKey(cfg.APIKey))
	}

	return &MeiliWriter{
		cfg:    cfg,
		client: meilisearch.New(cfg.Host, opts...),
	}
}

func (w *MeiliWriter) index(kind catalog.Kind) meilisearch.IndexManager {
	return w.client.Index(w.cfg.IndexPrefix + string(kind))
}

// ConfigureSchema declares the attribute sets for the kind's index.
func (w *MeiliWriter) ConfigureSchema(ctx context.Context, kind catalog.Kind, schema Schema) error {
	task, err := w.index(kind).UpdateSettingsWithContext(ctx, &meilisearch.Settings{
		FilterableAttributes: schema.Filterable,
		SortableAttributes:   schema.Sortable,
		SearchableAttributes: schema.Searchable,
	})
	if err != nil {
		return fmt.Errorf("failed to update settings for %s: %w", kind, err)
	}

	// Settings updates are cheap but must land before documents depend on
	// them, so block here.
	return w.WaitFor(ctx, Task{UID: task.TaskUID, Valid: true})
}

// ReplaceAll deletes every document, then bulk-inserts the fresh set. The
// two steps are separate index tasks, not a transaction.
func (w *MeiliWriter) ReplaceAll(ctx context.Context, kind catalog.Kind, docs []transform.Document) (Task, error) {
	idx := w.index(kind)

	delTask, err := idx.DeleteAllDocumentsWithContext(ctx)
	if err != nil {
		return Task{}, fmt.Errorf("failed to clear index %s: %w", kind, err)
	}
	if err := w.WaitFor(ctx, Task{UID: delTask.TaskUID, Valid: true}); err != nil {
		return Task{}, err
	}

	return w.Upsert(ctx, kind, docs)
}

// Upsert adds or wholly replaces the given documents.
func (w *MeiliWriter) Upsert(ctx context.Context, kind catalog.Kind, docs []transform.Document) (Task, error) {
	if len(docs) == 0 {
		return Task{}, nil
	}

	task, err := w.index(kind).AddDocumentsWithContext(ctx, docs, "id")
	if err != nil {
		return Task{}, fmt.Errorf("failed to upsert %d documents to %s: %w", len(docs), kind, err)
	}
	return Task{UID: task.TaskUID, Valid: true}, nil
}

// DeleteByID removes one document. Absent ids succeed.
func (w *MeiliWriter) DeleteByID(ctx context.Context, kind catalog.Kind, id string) (Task, error) {
	task, err := w.index(kind).DeleteDocumentWithContext(ctx, id)
	if err != nil {
		return Task{}, fmt.Errorf("failed to delete document %s from %s: %w", id, kind, err)
	}
	return Task{UID: task.TaskUID, Valid: true}, nil
}

// WaitFor blocks until the index durably applied the task. The zero Task is
// a no-op; uid 0 is a real task on a fresh deployment, so validity is carried
// explicitly rather than inferred from the uid.
func (w *MeiliWriter) WaitFor(ctx context.Context, task Task) error {
	if !task.Valid {
		return nil
	}

	final, err := w.client.WaitForTaskWithContext(ctx, task.UID, w.cfg.PollInterval)
	if err != nil {
		return fmt.Errorf("failed waiting for task %d: %w", task.UID, err)
	}
	if final.Status != meilisearch.TaskStatusSucceeded {
		return fmt.Errorf("task %d ended as %s: %w", task.UID, final.Status, ErrTaskFailed)
	}
	return nil
}

// Count returns the number of documents in the kind's index.
func (w *MeiliWriter) Count(ctx context.Context, kind catalog.Kind) (int64, error) {
	stats, err := w.index(kind).GetStatsWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch stats for %s: %w", kind, err)
	}
	return stats.NumberOfDocuments, nil
}

// LastUpdatedAt returns the freshest updated_at in the index via one sorted
// query, or 0 when empty.
func (w *MeiliWriter) LastUpdatedAt(ctx context.Context, kind catalog.Kind) (int64, error) {
	res, err := w.index(kind).SearchWithContext(ctx, "", &meilisearch.SearchRequest{
		Limit:                1,
		Sort:                 []string{"updated_at:desc"},
		AttributesToRetrieve: []string{"updated_at"},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query freshness for %s: %w", kind, err)
	}
	if len(res.Hits) == 0 {
		return 0, nil
	}

	hit, ok := res.Hits[0].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("unexpected hit shape for %s", kind)
	}
	ms, ok := hit["updated_at"].(float64)
	if !ok {
		return 0, fmt.Errorf("document in %s has non-numeric updated_at", kind)
	}
	return int64(ms), nil
}

// ListIDs pages through the kind's index returning every primary id.
func (w *MeiliWriter) ListIDs(ctx context.Context, kind catalog.Kind) ([]string, error) {
	idx := w.index(kind)

	var ids []string
	var offset int64
	for {
		var page meilisearch.DocumentsResult
		err := idx.GetDocumentsWithContext(ctx, &meilisearch.DocumentsQuery{
			Fields: []string{"id"},
			Limit:  w.cfg.ListPageSize,
			Offset: offset,
		}, &page)
		if err != nil {
			return nil, fmt.Errorf("failed to list ids for %s: %w", kind, err)
		}

		for _, doc := range page.Results {
			if id, ok := doc["id"].(string); ok {
				ids = append(ids, id)
			}
		}

		offset += int64(len(page.Results))
		if int64(len(page.Results)) < w.cfg.ListPageSize || offset >= page.Total {
			break
		}
	}
	return ids, nil
}

// Close releases the underlying client.
func (w *MeiliWriter) Close() error {
	w.client.Close()
	return nil
}
