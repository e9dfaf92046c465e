package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storekit/searchsync/internal/catalog"
)

// Detector compares the source of truth against the search index and
// triggers a full resync only when they have drifted apart. It runs both on
// a fixed schedule and on demand.
//
// Two signals are checked because either alone is gameable: count equality
// misses in-place edits that keep the row count stable, and freshness alone
// misses deletions that bump no remaining row's timestamp.
type Detector struct {
	syncer *Syncer
	logger *slog.Logger

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	triggerCh chan catalog.Kind
}

// NewDetector creates a drift detector over the given syncer.
func NewDetector(s *Syncer, logger *slog.Logger) *Detector {
	return &Detector{
		syncer:    s,
		logger:    logger.With("component", "drift"),
		triggerCh: make(chan catalog.Kind, len(catalog.Kinds())),
	}
}

// Check computes the drift signal for one kind and resyncs when drift is
// found. When force is set the drift check is bypassed and a resync always
// runs.
func (d *Detector) Check(ctx context.Context, kind catalog.Kind, force bool) (Result, error) {
	if !kind.IsValid() {
		return Result{}, catalog.ErrUnknownKind
	}
	if force {
		return d.syncer.SyncNow(ctx, kind)
	}

	drifted, err := d.drifted(ctx, kind)
	if err != nil {
		return Result{}, err
	}
	if !drifted {
		d.logger.Debug("no drift detected", "kind", kind)
		return Result{Status: StatusAlreadySynced}, nil
	}

	return d.syncer.SyncNow(ctx, kind)
}

// drifted recomputes the ephemeral drift signal. Nothing is cached: both
// sides are queried fresh on every check.
func (d *Detector) drifted(ctx context.Context, kind catalog.Kind) (bool, error) {
	sourceCount, err := d.syncer.store.Count(ctx, kind)
	if err != nil {
		return false, fmt.Errorf("failed to count source records for %s: %w", kind, err)
	}
	sourceMax, err := d.syncer.store.MaxUpdatedAt(ctx, kind)
	if err != nil {
		return false, fmt.Errorf("failed to fetch source freshness for %s: %w", kind, err)
	}
	indexCount, err := d.syncer.writer.Count(ctx, kind)
	if err != nil {
		return false, fmt.Errorf("failed to count index documents for %s: %w", kind, err)
	}
	indexMax, err := d.syncer.writer.LastUpdatedAt(ctx, kind)
	if err != nil {
		return false, fmt.Errorf("failed to fetch index freshness for %s: %w", kind, err)
	}

	countMatches := sourceCount == indexCount
	if d.syncer.filters[kind] != nil {
		// An eligibility filter makes the raw source count incomparable to
		// the index. Count the eligible set instead: deleting or
		// unpublishing a record must still register as a count mismatch,
		// or the deletion would only converge when freshness happens to
		// move too.
		eligible, err := d.syncer.countEligible(ctx, kind)
		if err != nil {
			return false, fmt.Errorf("failed to count eligible records for %s: %w", kind, err)
		}
		countMatches = eligible == indexCount
	}

	lag := sourceMax - indexMax
	if lag < 0 {
		lag = -lag
	}
	freshnessOk := lag <= d.syncer.cfg.Tolerance.Milliseconds()

	// sourceCount > 0 guards the first run: an empty source with an empty
	// index is vacuously consistent but a fresh deployment should still
	// populate schemas via one resync.
	if countMatches && freshnessOk && sourceCount > 0 {
		return false, nil
	}

	d.logger.Info("drift detected",
		"kind", kind,
		"sourceCount", sourceCount,
		"indexCount", indexCount,
		"sourceMaxUpdatedAt", sourceMax,
		"indexMaxUpdatedAt", indexMax)
	return true, nil
}

// Start begins the recurring drift-check loop.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("drift detector already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.loop(runCtx)

	d.logger.Info("drift detector started", "interval", d.syncer.cfg.Interval)
	return nil
}

// Stop stops the loop, waiting for an in-flight check to finish.
func (d *Detector) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.cancel()
	d.running = false
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("drift detector stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests an immediate opportunistic check for one kind, e.g. on a
// page load. Drops the request when one is already queued.
func (d *Detector) Trigger(kind catalog.Kind) {
	select {
	case d.triggerCh <- kind:
	default:
	}
}

func (d *Detector) loop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.syncer.cfg.Interval)
	defer ticker.Stop()

	d.checkAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.checkAll(ctx)
		case kind := <-d.triggerCh:
			if _, err := d.Check(ctx, kind, false); err != nil && ctx.Err() == nil {
				d.logger.Error("triggered drift check failed", "kind", kind, "error", err)
			}
		}
	}
}

func (d *Detector) checkAll(ctx context.Context) {
	for _, kind := range catalog.Kinds() {
		if ctx.Err() != nil {
			return
		}
		if _, err := d.Check(ctx, kind, false); err != nil && ctx.Err() == nil {
			d.logger.Error("scheduled drift check failed", "kind", kind, "error", err)
		}
	}
}
