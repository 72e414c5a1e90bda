package mapping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/healthtax/taxcore/internal/config"
	"github.com/healthtax/taxcore/internal/observability"
	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
	"github.com/healthtax/taxcore/internal/version"
)

// Engine implements the Mapping Engine (spec §4.H): for each Customer
// node under consideration, finds the first rule assignment whose
// command matches a Master node and applies the resulting
// create/unchanged/supersede/no-op/deactivate transition against the
// node's existing active mapping, then advances the Mapping Version
// chain and reprojects Gold.
//
// Rule assignments are looked up by (master-node-type-id,
// child-node-type-id). Node types are a single shared dictionary
// (internal/dictionary, keyed by lower(name)) rather than one catalog
// per taxonomy, so a Master column and a Customer column sharing a
// name — "Profession" is the universal case, spec §4.B — already
// resolve to the same node-type id. The Engine therefore looks up
// assignments keyed on the child node's own type id for both halves
// of the pair; this is the open-question resolution recorded in
// DESIGN.md for "which master type does a customer type pair
// against" (spec §9 leaves it unstated).
type Engine struct {
	store      storage.Store
	versioner  *version.MappingVersioner
	gold       *GoldProjector
	cfg        config.Config
	metrics    *observability.Metrics
	log        *zap.Logger
}

// NewEngine wires an Engine from its collaborators. metrics and log
// may be nil in tests.
func NewEngine(store storage.Store, cfg config.Config, metrics *observability.Metrics, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:     store,
		versioner: version.NewMappingVersioner(store),
		gold:      NewGoldProjector(store),
		cfg:       cfg,
		metrics:   metrics,
		log:       log,
	}
}

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

// Run executes one mapping invocation end to end, retrying the whole
// transactional body on a transient SERIALIZABLE conflict.
func (e *Engine) Run(ctx context.Context, req *types.MappingRequest) (*types.MappingResponse, error) {
	deadline := e.cfg.Pipeline.OuterDeadline
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	var resp *types.MappingResponse
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	op := func() error {
		r, runErr := e.runOnce(ctx, req)
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
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, fmt.Errorf("map %s/%s: %w", req.CustomerID, req.TaxonomyID, err)
	}

	resp.ProcessingTimeMS = time.Since(start).Milliseconds()
	if e.metrics != nil {
		e.metrics.MappingDuration.Observe(time.Since(start).Seconds())
	}
	return resp, nil
}

func (e *Engine) runOnce(ctx context.Context, req *types.MappingRequest) (resp *types.MappingResponse, err error) {
	tx, err := e.store.BeginSerializable(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin mapping transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = e.store.AcquireTaxonomyLock(ctx, tx, req.CustomerID, req.TaxonomyID); err != nil {
		return nil, fmt.Errorf("acquire taxonomy lock: %w", err)
	}

	// Step 1: reuse the Taxonomy Version the ingestion load already
	// opened, so this job's counters land on the same version row
	// (spec §4.H step 1, §4.G).
	tv, err := e.store.GetTaxonomyVersionByLoad(ctx, tx, req.TaxonomyID, req.LoadID)
	if err != nil {
		return nil, fmt.Errorf("get taxonomy version for load %d: %w", req.LoadID, err)
	}

	// Step 2: resolve the single active Master taxonomy to map against.
	master, err := e.store.GetActiveMasterTaxonomy(ctx, tx)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("map %s/%s: %w", req.CustomerID, req.TaxonomyID, types.ErrNoActiveMaster)
		}
		return nil, fmt.Errorf("resolve active master taxonomy: %w", err)
	}
	_ = master // identity only; node-type ids are shared across taxonomies.

	// Step 3: load the customer nodes to process.
	mappingLevel := e.cfg.Pipeline.DefaultMappingLevel
	var nodes []types.Node
	if len(req.NodeIDs) > 0 {
		nodes, err = e.store.ActiveNodesByIDs(ctx, tx, req.NodeIDs)
	} else {
		nodes, err = e.store.ActiveNodesAtLevel(ctx, tx, req.TaxonomyID, mappingLevel)
	}
	if err != nil {
		return nil, fmt.Errorf("load customer nodes: %w", err)
	}

	cache := NewRuleCache(e.store)
	results := make([]types.NodeMappingResult, 0, len(nodes))
	var counts struct {
		created, unchanged, superseded, deactivated, noop, failed int
	}

	for _, node := range nodes {
		r := e.mapNode(ctx, tx, cache, req.LoadType, node)
		results = append(results, r)
		switch {
		case r.Err != nil:
			counts.failed++
		case r.Action == types.ActionCreate:
			counts.created++
		case r.Action == types.ActionUnchanged:
			counts.unchanged++
		case r.Action == types.ActionSupersede:
			counts.superseded++
		case r.Action == types.ActionDeactivate:
			counts.deactivated++
		case r.Action == types.ActionNoOp:
			counts.noop++
		}
	}

	// Step 5/6: update the Taxonomy Version counters for this pass.
	tv.Processed = len(nodes)
	tv.New = counts.created
	tv.Changed = counts.superseded + counts.deactivated
	tv.Unchanged = counts.unchanged
	tv.Failed = counts.failed
	if err = version.NewTaxonomyVersioner(e.store).RecordCounters(ctx, tx, tv); err != nil {
		return nil, err
	}

	// Step 7: reproject Gold.
	inserted, deleted, err := e.gold.Sync(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit mapping transaction: %w", err)
	}

	resp = &types.MappingResponse{
		Success:    counts.failed == 0,
		LoadID:     req.LoadID,
		CustomerID: req.CustomerID,
		TaxonomyID: req.TaxonomyID,
		Results: types.MappingResults{
			NodesProcessed:      len(nodes),
			MappingsCreated:     counts.created,
			MappingsUpdated:     counts.superseded,
			MappingsDeactivated: counts.deactivated,
			MappingsUnchanged:   counts.unchanged,
			Failures:            counts.failed,
		},
		VersionID: &tv.ID,
	}
	for _, r := range results {
		if r.Err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("node %d: %v", r.ChildNodeID, r.Err))
		}
	}
	e.countTransitions(counts.created, counts.unchanged, counts.superseded, counts.deactivated, counts.noop)
	e.log.Debug("gold projection synced", zap.Int("inserted", inserted), zap.Int("deleted", deleted))
	return resp, nil
}

// mapNode evaluates one customer node against the rule cache and
// applies the state-transition table of spec §4.H step 4. Errors here
// are non-fatal (spec §7 MappingRuleApplicationError): they are
// captured on the result and the Engine moves to the next node.
func (e *Engine) mapNode(ctx context.Context, tx storage.Tx, cache *RuleCache, loadType types.LoadType, node types.Node) types.NodeMappingResult {
	result := types.NodeMappingResult{ChildNodeID: node.ID}

	assignments, err := cache.AssignmentsFor(ctx, tx, node.NodeTypeID, node.NodeTypeID)
	if err != nil {
		result.Err = fmt.Errorf("load rule assignments: %w", err)
		return result
	}

	var match *types.Node
	var winner types.RuleAssignment
	for _, a := range assignments {
		if !a.Enabled || a.Rule.AIFlag {
			continue
		}
		m, err := e.store.MatchMasterNode(ctx, tx, a.MasterTypeID, a.Rule.Command, a.Rule.Pattern, node.Value)
		if err != nil {
			result.Err = fmt.Errorf("match rule %d: %w", a.RuleID, err)
			return result
		}
		if m != nil {
			match, winner = m, a
			break
		}
	}

	existing, err := e.store.GetActiveMapping(ctx, tx, node.ID)
	if err != nil {
		result.Err = fmt.Errorf("get active mapping: %w", err)
		return result
	}

	switch {
	case match != nil && existing == nil:
		result.Action = types.ActionCreate
		id, err := e.createMapping(ctx, tx, winner, match.ID, node.ID)
		if err != nil {
			result.Err = err
			return result
		}
		result.MappingID = id

	case match != nil && existing != nil && existing.MasterNodeID == match.ID && existing.RuleID == winner.RuleID:
		result.Action = types.ActionUnchanged
		result.MappingID = existing.ID

	case match != nil && existing != nil:
		result.Action = types.ActionSupersede
		id, err := e.supersedeMapping(ctx, tx, winner, match.ID, node.ID, existing.ID)
		if err != nil {
			result.Err = err
			return result
		}
		result.MappingID = id

	case match == nil && existing != nil && loadType == types.LoadUpdated:
		result.Action = types.ActionDeactivate
		if err := e.deactivateMapping(ctx, tx, existing.ID); err != nil {
			result.Err = err
			return result
		}
		result.MappingID = existing.ID

	default:
		result.Action = types.ActionNoOp
	}

	return result
}

func (e *Engine) createMapping(ctx context.Context, tx storage.Tx, rule types.RuleAssignment, masterNodeID, childNodeID int64) (int64, error) {
	m := &types.Mapping{
		RuleID:       rule.RuleID,
		MasterNodeID: masterNodeID,
		ChildNodeID:  childNodeID,
		Confidence:   100,
		Status:       types.StatusActive,
		AttributedBy: rule.Rule.Name,
	}
	id, err := e.store.InsertMapping(ctx, tx, m)
	if err != nil {
		return 0, fmt.Errorf("insert mapping: %w", err)
	}
	if _, err := e.versioner.OpenFor(ctx, tx, id); err != nil {
		return 0, err
	}
	return id, nil
}

func (e *Engine) supersedeMapping(ctx context.Context, tx storage.Tx, rule types.RuleAssignment, masterNodeID, childNodeID, outgoingMappingID int64) (int64, error) {
	if err := e.store.DeactivateMapping(ctx, tx, outgoingMappingID); err != nil {
		return 0, fmt.Errorf("deactivate superseded mapping %d: %w", outgoingMappingID, err)
	}
	m := &types.Mapping{
		RuleID:       rule.RuleID,
		MasterNodeID: masterNodeID,
		ChildNodeID:  childNodeID,
		Confidence:   100,
		Status:       types.StatusActive,
		AttributedBy: rule.Rule.Name,
	}
	id, err := e.store.InsertMapping(ctx, tx, m)
	if err != nil {
		return 0, fmt.Errorf("insert superseding mapping: %w", err)
	}
	if err := e.versioner.CloseOutgoing(ctx, tx, outgoingMappingID, &id); err != nil {
		return 0, err
	}
	if _, err := e.versioner.OpenSupersede(ctx, tx, id, outgoingMappingID); err != nil {
		return 0, err
	}
	return id, nil
}

func (e *Engine) deactivateMapping(ctx context.Context, tx storage.Tx, mappingID int64) error {
	if err := e.store.DeactivateMapping(ctx, tx, mappingID); err != nil {
		return fmt.Errorf("deactivate mapping %d: %w", mappingID, err)
	}
	return e.versioner.CloseOutgoing(ctx, tx, mappingID, nil)
}

func (e *Engine) countTransitions(created, unchanged, superseded, deactivated, noop int) {
	if e.metrics == nil {
		return
	}
	e.metrics.MappingTransitions.WithLabelValues(string(types.ActionCreate)).Add(float64(created))
	e.metrics.MappingTransitions.WithLabelValues(string(types.ActionUnchanged)).Add(float64(unchanged))
	e.metrics.MappingTransitions.WithLabelValues(string(types.ActionSupersede)).Add(float64(superseded))
	e.metrics.MappingTransitions.WithLabelValues(string(types.ActionDeactivate)).Add(float64(deactivated))
	e.metrics.MappingTransitions.WithLabelValues(string(types.ActionNoOp)).Add(float64(noop))
}
