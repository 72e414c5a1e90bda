package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/healthtax/taxcore/internal/mapping"
	"github.com/healthtax/taxcore/internal/types"
)

var (
	mapLoadID       int64
	mapCustomerID   string
	mapTaxonomyID   string
	mapLoadType     string
	mapTaxonomyType string
	mapNodeIDs      string
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Run a mapping job against a taxonomy's customer nodes",
	RunE:  runMap,
}

func init() {
	mapCmd.Flags().Int64Var(&mapLoadID, "load-id", 0, "Load ID the mapping job is processing for (required)")
	mapCmd.Flags().StringVar(&mapCustomerID, "customer", "", "Customer ID (required)")
	mapCmd.Flags().StringVar(&mapTaxonomyID, "taxonomy", "", "Taxonomy ID (required)")
	mapCmd.Flags().StringVar(&mapLoadType, "load-type", "new", "Load type: new or updated")
	mapCmd.Flags().StringVar(&mapTaxonomyType, "type", "customer", "Taxonomy type: master or customer")
	mapCmd.Flags().StringVar(&mapNodeIDs, "node-ids", "", "Comma-separated node IDs to restrict processing to (optional)")
	_ = mapCmd.MarkFlagRequired("load-id")
	_ = mapCmd.MarkFlagRequired("customer")
	_ = mapCmd.MarkFlagRequired("taxonomy")
	rootCmd.AddCommand(mapCmd)
}

func runMap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	nodeIDs, err := parseNodeIDs(mapNodeIDs)
	if err != nil {
		return err
	}

	req := &types.MappingRequest{
		LoadID:       mapLoadID,
		CustomerID:   mapCustomerID,
		TaxonomyID:   mapTaxonomyID,
		LoadType:     types.LoadType(mapLoadType),
		TaxonomyType: types.TaxonomyType(mapTaxonomyType),
		NodeIDs:      nodeIDs,
	}

	if err := validator.New().Struct(req); err != nil {
		return fmt.Errorf("invalid mapping request: %w", err)
	}

	engine := mapping.NewEngine(store, cfg, newMetrics(), log)
	resp, err := engine.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("map: %w", err)
	}
	return printJSON(resp)
}

func parseNodeIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse node id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
