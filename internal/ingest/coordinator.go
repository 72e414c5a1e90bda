package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/healthtax/taxcore/internal/config"
	"github.com/healthtax/taxcore/internal/dictionary"
	"github.com/healthtax/taxcore/internal/observability"
	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
	"github.com/healthtax/taxcore/internal/version"
)

// Coordinator implements the Load Coordinator (spec §4.A): the single
// entry point for one ingestion invocation, owning the outer
// SERIALIZABLE transaction, the per-taxonomy advisory lock, and the
// sequencing of layout resolution, row transformation, reconciliation
// and taxonomy versioning.
type Coordinator struct {
	store      storage.Store
	reconciler *Reconciler
	versioner  *version.TaxonomyVersioner
	gap        *GapFiller
	cfg        config.Config
	metrics    *observability.Metrics
	log        *zap.Logger
}

// NewCoordinator wires a Coordinator from its collaborators. metrics
// and log may be nil in tests.
func NewCoordinator(store storage.Store, cfg config.Config, metrics *observability.Metrics, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:      store,
		reconciler: NewReconciler(store),
		versioner:  version.NewTaxonomyVersioner(store),
		gap:        NewGapFiller(store, cfg.Pipeline.MaxHierarchyDepth),
		cfg:        cfg,
		metrics:    metrics,
		log:        log,
	}
}

// retryableSQLSTATEs are the Postgres serialization-conflict codes a
// SERIALIZABLE transaction can surface; the Load Coordinator retries
// the whole invocation rather than surfacing these to the caller
// (SPEC_FULL.md §6 Resilience).
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlstateSerializationFailure || pgErr.Code == sqlstateDeadlockDetected
	}
	return false
}

// Run executes one ingestion invocation end to end. It applies the
// idempotent load-replay guard, opens the load header in its own
// committed transaction (spec §4.A), then retries the C-G
// transactional body on a transient serialization failure (spec §5,
// §9). An exception anywhere past that point marks the header failed
// on a separate connection rather than letting the rolled-back
// transaction erase all record of the attempt (spec §7
// TransactionFailure) — the original error is always what's returned,
// never suppressed by a failure to record it.
func (c *Coordinator) Run(ctx context.Context, req *types.IngestRequest) (*types.IngestResponse, error) {
	deadline := c.cfg.Pipeline.OuterDeadline
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	c.reapStaleLoad(ctx, req.CustomerID, req.TaxonomyID)

	load, err := c.openLoadHeader(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("open load header: %w", err)
	}

	var resp *types.IngestResponse
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	op := func() error {
		r, runErr := c.runOnce(ctx, req, load)
		if runErr != nil {
			if isRetryable(runErr) {
				return runErr
			}
			return backoff.Permanent(runErr)
		}
		resp = r
		return nil
	}
	if err := backoff.Retry(op, bo); err != nil {
		finalErr := fmt.Errorf("ingest %s/%s: %w", req.CustomerID, req.TaxonomyID, err)
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			finalErr = perm.Err
		}
		if markErr := c.store.MarkLoadFailed(ctx, load.ID, finalErr.Error()); markErr != nil {
			c.log.Warn("mark load failed", zap.Int64("load_id", load.ID), zap.Error(markErr))
		}
		return nil, finalErr
	}
	return resp, nil
}

// openLoadHeader creates the Bronze load header up front, in its own
// committed transaction, independent of the C-G SERIALIZABLE attempt
// that follows. This is what makes the TransactionFailure path in
// Run possible: even if every retry of runOnce rolls back, this row
// survives to be marked failed (spec §4.A, §7).
func (c *Coordinator) openLoadHeader(ctx context.Context, req *types.IngestRequest) (*types.Load, error) {
	tx, err := c.store.BeginSerializable(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin load header transaction: %w", err)
	}
	load := &types.Load{
		CustomerID:   req.CustomerID,
		TaxonomyID:   req.TaxonomyID,
		TaxonomyType: req.TaxonomyType,
		Status:       types.LoadInProgress,
		StartTS:      time.Now(),
		Provenance:   loadProvenance(req),
	}
	if _, err := c.store.CreateLoad(ctx, tx, load); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("create load: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit load header: %w", err)
	}
	return load, nil
}

// reapStaleLoad implements the idempotent load-replay guard
// (SPEC_FULL.md §8 Supplemented Features): if the most recent load for
// this (customer, taxonomy) is still in-progress past the outer
// deadline, it is a crashed invocation, not a concurrent one (the
// advisory lock rules out concurrency) — mark it failed so it stops
// shadowing GetLatestLoad for provenance callers. Best-effort: a
// failure here never blocks the new invocation.
func (c *Coordinator) reapStaleLoad(ctx context.Context, customerID, taxonomyID string) {
	prior, err := c.store.GetLatestLoad(ctx, c.store.Pool(), customerID, taxonomyID)
	if err != nil {
		return // storage.IsNotFound or a transient read error: nothing to reap.
	}
	if prior.Status != types.LoadInProgress {
		return
	}
	deadline := c.cfg.Pipeline.OuterDeadline
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}
	if time.Since(prior.StartTS) <= deadline {
		return
	}
	if err := c.store.MarkLoadFailed(ctx, prior.ID, "load exceeded outer deadline without completing"); err != nil {
		c.log.Warn("reap stale load failed", zap.Int64("load_id", prior.ID), zap.Error(err))
	}
}

// runOnce is the transactional body: one SERIALIZABLE attempt at the
// C-G sequence against the load header that Run already opened. Any
// returned error rolls the transaction back; the caller decides
// whether to retry.
func (c *Coordinator) runOnce(ctx context.Context, req *types.IngestRequest, load *types.Load) (resp *types.IngestResponse, err error) {
	loadID := load.ID
	start := load.StartTS
	tx, err := c.store.BeginSerializable(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin load transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = c.store.AcquireTaxonomyLock(ctx, tx, req.CustomerID, req.TaxonomyID); err != nil {
		return nil, fmt.Errorf("acquire taxonomy lock: %w", err)
	}

	loadType, existing, err := c.resolveLoadType(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	layout := req.Layout
	if layout == nil {
		layout, err = ResolveLayout(columnsOf(req.Rows), req.TaxonomyType)
		if err != nil {
			return nil, err
		}
	}

	load.LoadType = loadType
	if err = c.store.UpdateLoadHeader(ctx, tx, load); err != nil {
		return nil, fmt.Errorf("update load header: %w", err)
	}

	reconciles := c.reconciler.Applies(req.TaxonomyType, loadType)
	if reconciles {
		if err = c.reconciler.Stage(ctx, tx); err != nil {
			return nil, err
		}
	}

	dict := dictionary.New(c.store, c.dictionaryHits())
	rt := NewRowTransformer(c.store, dict, c.gap, c.cfg.Pipeline.NALiterals)

	out := &types.IngestResponse{
		LoadID:       loadID,
		CustomerID:   req.CustomerID,
		TaxonomyID:   req.TaxonomyID,
		TaxonomyType: req.TaxonomyType,
		LoadType:     loadType,
	}

	abortOnFirstError := c.cfg.Pipeline.RowFailurePolicy == config.FailureAbort
	for i, row := range req.Rows {
		result, rowErr := rt.TransformRow(ctx, tx, load, layout, i, row, reconciles)
		if rowErr != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("row %d: %v", i, rowErr))
			c.countRowFailure(req.TaxonomyType)
			if abortOnFirstError {
				err = fmt.Errorf("row %d: %w", i, rowErr)
				return nil, err
			}
			continue
		}
		out.RowsProcessed++
		out.NodeIDsProcessed = append(out.NodeIDsProcessed, result.NodeIDs...)
		c.countRowSuccess(req.TaxonomyType)
	}

	var affectedNodes []types.AffectedNode
	var affectedAttrs []types.AffectedAttribute
	if reconciles {
		affectedNodes, affectedAttrs, err = c.reconciler.Run(ctx, tx, req.TaxonomyID, req.CustomerID)
		if err != nil {
			return nil, err
		}
	}

	if _, err = c.versioner.Advance(ctx, tx, loadType, req.TaxonomyID, loadID, affectedNodes, affectedAttrs, false); err != nil {
		return nil, err
	}

	taxonomy := &types.Taxonomy{
		CustomerID: req.CustomerID,
		TaxonomyID: req.TaxonomyID,
		Name:       taxonomyName(req, existing),
		Type:       req.TaxonomyType,
		Status:     types.StatusActive,
		LastLoadID: loadID,
	}
	if err = c.store.UpsertTaxonomyHeader(ctx, tx, taxonomy); err != nil {
		return nil, fmt.Errorf("upsert taxonomy header: %w", err)
	}

	status := types.LoadCompleted
	switch {
	case out.RowsProcessed == 0 && len(out.Errors) > 0:
		status = types.LoadFailed
	case len(out.Errors) > 0:
		status = types.LoadPartiallyComplete
	}
	out.OK = status != types.LoadFailed
	endTS := time.Now()
	if err = c.store.FinalizeLoad(ctx, tx, loadID, status, endTS); err != nil {
		return nil, fmt.Errorf("finalize load: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit load transaction: %w", err)
	}

	if c.metrics != nil {
		c.metrics.LoadDuration.WithLabelValues(string(status)).Observe(time.Since(start).Seconds())
	}
	return out, nil
}

// resolveLoadType determines whether this invocation is a first
// ingestion or a resubmission against an existing taxonomy (spec
// §4.A), returning the existing header when one is found.
func (c *Coordinator) resolveLoadType(ctx context.Context, tx storage.Tx, req *types.IngestRequest) (types.LoadType, *types.Taxonomy, error) {
	existing, err := c.store.GetTaxonomy(ctx, tx, req.CustomerID, req.TaxonomyID)
	if err != nil {
		if storage.IsNotFound(err) {
			return types.LoadNew, nil, nil
		}
		return "", nil, fmt.Errorf("resolve load type: %w", err)
	}
	return types.LoadUpdated, existing, nil
}

func taxonomyName(req *types.IngestRequest, existing *types.Taxonomy) string {
	if req.TaxonomyName != "" {
		return req.TaxonomyName
	}
	if existing != nil {
		return existing.Name
	}
	return req.TaxonomyID
}

func columnsOf(rows []map[string]string) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	return cols
}

func loadProvenance(req *types.IngestRequest) *types.Document {
	doc := types.NewDocument()
	doc.Set("source", string(req.Source))
	doc.Set("source_uri", req.SourceURI)
	doc.Set("row_count", len(req.Rows))
	return doc
}

func (c *Coordinator) countRowFailure(t types.TaxonomyType) {
	if c.metrics != nil {
		c.metrics.RowsFailed.WithLabelValues(string(t)).Inc()
	}
}

func (c *Coordinator) countRowSuccess(t types.TaxonomyType) {
	if c.metrics != nil {
		c.metrics.RowsProcessed.WithLabelValues(string(t)).Inc()
	}
}

func (c *Coordinator) dictionaryHits() *prometheus.CounterVec {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.DictionaryEntries
}
