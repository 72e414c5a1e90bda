package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/healthtax/taxcore/internal/vocabulary"
)

var (
	vocabMasterTaxonomyID string
	vocabTTL              time.Duration
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Extract the strong-head/qualified-head/qualifier vocabulary for a Master taxonomy",
	RunE:  runVocab,
}

func init() {
	vocabCmd.Flags().StringVar(&vocabMasterTaxonomyID, "taxonomy", "", "Master taxonomy ID (required)")
	vocabCmd.Flags().DurationVar(&vocabTTL, "ttl", 15*time.Minute, "How long an extracted set is cached before rebuilding")
	_ = vocabCmd.MarkFlagRequired("taxonomy")
	rootCmd.AddCommand(vocabCmd)
}

func runVocab(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	extractor := vocabulary.NewExtractor(store, vocabTTL)
	set, err := extractor.Extract(ctx, vocabMasterTaxonomyID)
	if err != nil {
		return fmt.Errorf("vocab: %w", err)
	}
	return printJSON(set)
}
