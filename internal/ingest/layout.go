package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/healthtax/taxcore/internal/types"
)

// Column markers a source header may carry (spec §4.B). Compiled once
// at package init, matching the teacher's package-level compiled-regex
// convention for header/key parsing.
var (
	nodeMarkerRe       = regexp.MustCompile(`(?i)\(node\s+(\d+)\)\s*$`)
	professionMarkerRe = regexp.MustCompile(`(?i)\(profession\)\s*$`)
	attributeMarkerRe  = regexp.MustCompile(`(?i)\(attribute\)\s*$`)
)

// stripMarker removes a trailing "(marker)" suffix and surrounding
// whitespace, returning the bare column name.
func stripMarker(re *regexp.Regexp, column string) string {
	return strings.TrimSpace(re.ReplaceAllString(column, ""))
}

// ResolveLayout normalizes a raw list of source column names into a
// typed LayoutSpec (spec §4.B). It is a pure function over its
// arguments — no I/O, no side effects — so it can run ahead of any
// database interaction the Load Coordinator performs.
func ResolveLayout(columns []string, taxonomyType types.TaxonomyType) (*types.LayoutSpec, error) {
	if taxonomyType == types.TaxonomyCustomer {
		return resolveCustomerLayout(columns)
	}
	return resolveMasterLayout(columns)
}

func resolveMasterLayout(columns []string) (*types.LayoutSpec, error) {
	layout := &types.LayoutSpec{TaxonomyType: types.TaxonomyMaster}

	for _, col := range columns {
		switch {
		case nodeMarkerRe.MatchString(col):
			m := nodeMarkerRe.FindStringSubmatch(col)
			var level int
			if _, err := fmt.Sscanf(m[1], "%d", &level); err != nil {
				return nil, fmt.Errorf("%w: unparseable node level in column %q", types.ErrLayoutInvalid, col)
			}
			layout.NodeLevels = append(layout.NodeLevels, types.NodeLevel{
				Level: level,
				Name:  stripMarker(nodeMarkerRe, col),
			})
		case professionMarkerRe.MatchString(col):
			layout.ProfessionColumn = stripMarker(professionMarkerRe, col)
			layout.Attributes = append(layout.Attributes, layout.ProfessionColumn)
		case attributeMarkerRe.MatchString(col):
			layout.Attributes = append(layout.Attributes, stripMarker(attributeMarkerRe, col))
		default:
			// Unmarked column: implicit attribute (spec §4.B).
			layout.Attributes = append(layout.Attributes, col)
		}
	}

	if len(layout.NodeLevels) == 0 {
		return nil, fmt.Errorf("%w: master source declares no (node N) column", types.ErrLayoutInvalid)
	}
	if layout.ProfessionColumn == "" {
		return nil, fmt.Errorf("%w: master source declares no (profession) column", types.ErrLayoutInvalid)
	}

	sort.Slice(layout.NodeLevels, func(i, j int) bool {
		return layout.NodeLevels[i].Level < layout.NodeLevels[j].Level
	})
	return layout, nil
}

func resolveCustomerLayout(columns []string) (*types.LayoutSpec, error) {
	layout := &types.LayoutSpec{TaxonomyType: types.TaxonomyCustomer}

	for _, col := range columns {
		if professionMarkerRe.MatchString(col) {
			layout.ProfessionColumn = stripMarker(professionMarkerRe, col)
			continue
		}
		layout.Attributes = append(layout.Attributes, col)
	}

	if layout.ProfessionColumn == "" {
		return nil, fmt.Errorf("%w: customer source declares no (profession) column", types.ErrLayoutInvalid)
	}
	return layout, nil
}
