package postgres

import (
	"context"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// MasterNodesForVocabulary returns every active Master node for the
// given taxonomy, the raw material the Vocabulary Extractor fans out
// over to build Strong Heads, Qualified Heads and Qualifiers (spec
// §4.J). Placeholders are included deliberately: an N/A node at a
// level still participates in the parent-chain walk the extractor
// performs, even though it is never itself a head or qualifier.
func (s *Store) MasterNodesForVocabulary(ctx context.Context, q storage.Querier, masterTaxonomyID string) ([]types.Node, error) {
	rows, err := q.Query(ctx, `
		SELECT id, node_type_id, taxonomy_id, customer_id, parent_id, value, profession, level, status, load_id, row_id
		FROM nodes
		WHERE taxonomy_id = $1 AND status = 'active'
		ORDER BY level, id
	`, masterTaxonomyID)
	if err != nil {
		return nil, storage.WrapDBError("master nodes for vocabulary", err)
	}
	defer rows.Close()

	var out []types.Node
	for rows.Next() {
		n, err := scanNodeRow(rows)
		if err != nil {
			return nil, storage.WrapDBError("scan vocabulary node", err)
		}
		out = append(out, n)
	}
	return out, storage.WrapDBError("iterate vocabulary nodes", rows.Err())
}
