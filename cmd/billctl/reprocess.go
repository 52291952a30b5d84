package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"billocr/pkg/logger"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Rerun OCR on stored bills",
	Long: `Reprocess reads the stored original image of a bill, runs the pipeline again
and updates the row and its report. Select one bill with --id or every bill
whose confidence is below --below with --all-low.`,
	Example: `  billctl reprocess --id 42
  billctl reprocess --all-low --below 0.4`,
	Args: cobra.NoArgs,
	RunE: runReprocess,
}

func init() {
	rootCmd.AddCommand(reprocessCmd)
	reprocessCmd.Flags().Uint("id", 0, "bill id to reprocess")
	reprocessCmd.Flags().Bool("all-low", false, "reprocess every bill below --below")
	reprocessCmd.Flags().Float64("below", 0.5, "confidence threshold for --all-low")
	reprocessCmd.MarkFlagsMutuallyExclusive("id", "all-low")
}

func runReprocess(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetUint("id")
	allLow, _ := cmd.Flags().GetBool("all-low")
	below, _ := cmd.Flags().GetFloat64("below")
	if id == 0 && !allLow {
		return errors.New("one of --id or --all-low is required")
	}

	svc, err := newBillService()
	if err != nil {
		return err
	}
	log := logger.WithComponent("reprocess")
	ctx := cmd.Context()

	ids := []uint{id}
	if allLow {
		if ids, err = svc.LowConfidence(ctx, below); err != nil {
			return err
		}
		log.Info().Int("bills", len(ids)).Float64("below", below).Msg("low confidence bills")
	}

	failed := 0
	for _, id := range ids {
		before, err := svc.Get(ctx, id)
		if err != nil {
			failed++
			log.Warn().Err(err).Uint("bill_id", id).Msg("lookup failed")
			continue
		}
		after, err := svc.Reprocess(ctx, id)
		if err != nil {
			failed++
			log.Warn().Err(err).Uint("bill_id", id).Msg("reprocess failed")
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "bill %d: %s %.2f -> %s %.2f\n", id,
			before.OCRConfigUsed, before.ConfidenceScore, after.OCRConfigUsed, after.ConfidenceScore)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d bills failed", failed, len(ids))
	}
	return nil
}
