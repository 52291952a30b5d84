package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"billocr/pkg/bill"
	"billocr/pkg/report"
)

var processCmd = &cobra.Command{
	Use:   "process <image>",
	Short: "Process one bill image and print the record as JSON",
	Long: `Process runs quality assessment, preprocessing, OCR, correction and field
extraction on a single image. No database is used.`,
	Example: `  billctl process hoa_don.jpg
  billctl process nuoc.png --type water --xlsx nuoc_result.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().StringP("type", "t", string(bill.Electric), "bill type: electric or water")
	processCmd.Flags().String("xlsx", "", "also write the record as a one-row workbook")
}

func runProcess(cmd *cobra.Command, args []string) error {
	typeFlag, _ := cmd.Flags().GetString("type")
	xlsxPath, _ := cmd.Flags().GetString("xlsx")

	t, err := bill.ParseType(typeFlag)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if cfg.PipelineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.PipelineTimeout)
		defer cancel()
	}
	out, err := newPipeline().Run(ctx, data, t)
	if err != nil {
		return err
	}

	if xlsxPath != "" {
		wb, err := report.RecordWorkbook(out.Record)
		if err != nil {
			return err
		}
		if err := os.WriteFile(xlsxPath, wb, 0o644); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(struct {
		File         string      `json:"file"`
		QualityScore float64     `json:"quality_score"`
		QualityLabel string      `json:"quality_label"`
		Record       bill.Record `json:"record"`
	}{args[0], out.QualityScore, out.QualityLabel, out.Record}); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
