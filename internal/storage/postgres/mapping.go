package postgres

import (
	"context"
	"errors"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
	"github.com/jackc/pgx/v5"
)

// RuleAssignmentsFor returns the enabled rule assignments (of enabled
// rules) bound to a (master-type, child-type) pair, ordered by
// priority ascending — the Mapping Engine tries them in this order
// and takes the first match (spec §4.H step 4, §4.I).
func (s *Store) RuleAssignmentsFor(ctx context.Context, q storage.Querier, masterTypeID, childTypeID int64) ([]types.RuleAssignment, error) {
	rows, err := q.Query(ctx, `
		SELECT ra.rule_id, ra.master_type_id, ra.child_type_id, ra.priority, ra.enabled,
		       r.id, r.name, r.enabled, r.command, r.pattern, r.ai_flag, r.human
		FROM rule_assignments ra
		JOIN mapping_rules r ON r.id = ra.rule_id
		WHERE ra.master_type_id = $1 AND ra.child_type_id = $2 AND ra.enabled AND r.enabled
		ORDER BY ra.priority ASC
	`, masterTypeID, childTypeID)
	if err != nil {
		return nil, storage.WrapDBError("rule assignments for", err)
	}
	defer rows.Close()

	var out []types.RuleAssignment
	for rows.Next() {
		var a types.RuleAssignment
		var command string
		if err := rows.Scan(&a.RuleID, &a.MasterTypeID, &a.ChildTypeID, &a.Priority, &a.Enabled,
			&a.Rule.ID, &a.Rule.Name, &a.Rule.Enabled, &command, &a.Rule.Pattern, &a.Rule.AIFlag, &a.Rule.Human); err != nil {
			return nil, storage.WrapDBError("scan rule assignment", err)
		}
		a.Rule.Command = types.RuleCommand(command)
		out = append(out, a)
	}
	return out, storage.WrapDBError("iterate rule assignments", rows.Err())
}

// MatchMasterNode finds the first active Master node of masterTypeID
// satisfying command (spec §4.H step 4b). equals always compares
// against the child node's own value; contains/startswith/endswith/
// regex compare against rule.pattern, falling back to the child
// node's value when pattern is empty. Returns nil (not an error) when
// no Master node matches — a normal, expected outcome of rule
// evaluation, not a failure.
func (s *Store) MatchMasterNode(ctx context.Context, q storage.Querier, masterTypeID int64, command types.RuleCommand, pattern, childValue string) (*types.Node, error) {
	literal := pattern
	if literal == "" {
		literal = childValue
	}

	var predicate string
	var arg string
	switch command {
	case types.CommandEquals:
		predicate = "lower(value) = lower($2)"
		arg = childValue
	case types.CommandContains:
		predicate = "lower(value) LIKE '%' || lower($2) || '%'"
		arg = literal
	case types.CommandStartsWith:
		predicate = "lower(value) LIKE lower($2) || '%'"
		arg = literal
	case types.CommandEndsWith:
		predicate = "lower(value) LIKE '%' || lower($2)"
		arg = literal
	case types.CommandRegex:
		predicate = "value ~* $2"
		arg = literal
	default:
		return nil, errors.New("match master node: unknown rule command " + string(command))
	}

	row := q.QueryRow(ctx, `
		SELECT id, node_type_id, taxonomy_id, customer_id, parent_id, value, profession, level, status, load_id, row_id
		FROM nodes
		WHERE node_type_id = $1 AND status = 'active' AND `+predicate+`
		  AND EXISTS (
		    SELECT 1 FROM taxonomies t
		    WHERE t.customer_id = nodes.customer_id AND t.taxonomy_id = nodes.taxonomy_id
		      AND t.type = 'master'
		  )
		ORDER BY id
		LIMIT 1
	`, masterTypeID, arg)
	n, err := scanNodeRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.WrapDBError("match master node", err)
	}
	return &n, nil
}

// GetActiveMapping returns the active mapping for a child node, or nil
// if the node has never been mapped (spec §4.H step 4a, the
// exists-diff-transition lookup).
func (s *Store) GetActiveMapping(ctx context.Context, q storage.Querier, childNodeID int64) (*types.Mapping, error) {
	var m types.Mapping
	var status string
	err := q.QueryRow(ctx, `
		SELECT id, rule_id, master_node_id, child_node_id, confidence, status, attributed_by
		FROM mappings WHERE child_node_id = $1 AND status = 'active'
	`, childNodeID).Scan(&m.ID, &m.RuleID, &m.MasterNodeID, &m.ChildNodeID, &m.Confidence, &status, &m.AttributedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.WrapDBError("get active mapping", err)
	}
	m.Status = types.EntityStatus(status)
	return &m, nil
}

// InsertMapping writes a new mapping row (spec §4.H, "create" and
// "supersede" actions both insert a fresh row; "supersede" additionally
// closes the prior one via DeactivateMapping/CloseMappingVersion).
func (s *Store) InsertMapping(ctx context.Context, tx storage.Tx, m *types.Mapping) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO mappings (rule_id, master_node_id, child_node_id, confidence, status, attributed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, m.RuleID, m.MasterNodeID, m.ChildNodeID, m.Confidence, types.StatusActive, m.AttributedBy).Scan(&id)
	if err != nil {
		return 0, storage.WrapDBError("insert mapping", err)
	}
	m.ID = id
	return id, nil
}

// DeactivateMapping marks a mapping inactive — the "supersede" and
// "deactivate" transitions of spec §4.H.
func (s *Store) DeactivateMapping(ctx context.Context, tx storage.Tx, mappingID int64) error {
	_, err := tx.Exec(ctx, `UPDATE mappings SET status = 'inactive' WHERE id = $1`, mappingID)
	return storage.WrapDBError("deactivate mapping", err)
}
