package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/healthtax/taxcore/internal/ingest"
	"github.com/healthtax/taxcore/internal/types"
)

var (
	ingestCustomerID   string
	ingestTaxonomyID   string
	ingestTaxonomyName string
	ingestTaxonomyType string
	ingestSource       string
	ingestSourceURI    string
	ingestRowsPath     string
	ingestLayoutPath   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Submit one ingestion load against a taxonomy",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCustomerID, "customer", "", "Customer ID (required)")
	ingestCmd.Flags().StringVar(&ingestTaxonomyID, "taxonomy", "", "Taxonomy ID (required)")
	ingestCmd.Flags().StringVar(&ingestTaxonomyName, "name", "", "Taxonomy display name")
	ingestCmd.Flags().StringVar(&ingestTaxonomyType, "type", "customer", "Taxonomy type: master or customer")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "api", "Ingestion source: s3 or api")
	ingestCmd.Flags().StringVar(&ingestSourceURI, "source-uri", "", "Source URI recorded in load provenance")
	ingestCmd.Flags().StringVar(&ingestRowsPath, "rows", "", "Path to a JSON file holding an array of column->value row objects (required)")
	ingestCmd.Flags().StringVar(&ingestLayoutPath, "layout", "", "Path to a JSON LayoutSpec file (optional; auto-resolved from headers when omitted)")
	_ = ingestCmd.MarkFlagRequired("customer")
	_ = ingestCmd.MarkFlagRequired("taxonomy")
	_ = ingestCmd.MarkFlagRequired("rows")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
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

	rowsData, err := os.ReadFile(ingestRowsPath)
	if err != nil {
		return fmt.Errorf("read rows file %s: %w", ingestRowsPath, err)
	}
	var rows []map[string]string
	if err := json.Unmarshal(rowsData, &rows); err != nil {
		return fmt.Errorf("decode rows file %s: %w", ingestRowsPath, err)
	}

	var layout *types.LayoutSpec
	if ingestLayoutPath != "" {
		layoutData, err := os.ReadFile(ingestLayoutPath)
		if err != nil {
			return fmt.Errorf("read layout file %s: %w", ingestLayoutPath, err)
		}
		layout = &types.LayoutSpec{}
		if err := json.Unmarshal(layoutData, layout); err != nil {
			return fmt.Errorf("decode layout file %s: %w", ingestLayoutPath, err)
		}
	}

	req := &types.IngestRequest{
		Source:       types.IngestSource(ingestSource),
		TaxonomyType: types.TaxonomyType(ingestTaxonomyType),
		CustomerID:   ingestCustomerID,
		TaxonomyID:   ingestTaxonomyID,
		TaxonomyName: ingestTaxonomyName,
		SourceURI:    ingestSourceURI,
		Layout:       layout,
		Rows:         rows,
	}

	if err := validator.New().Struct(req); err != nil {
		return fmt.Errorf("invalid ingest request: %w", err)
	}

	coord := ingest.NewCoordinator(store, cfg, newMetrics(), log)
	resp, err := coord.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	return printJSON(resp)
}
