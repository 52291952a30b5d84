package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"billocr/pkg/bill"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write stored bills to an xlsx workbook",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("out", "o", "bills.xlsx", "output workbook path")
	exportCmd.Flags().StringP("type", "t", "", "only bills of this type (electric or water)")
}

func runExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	typeFlag, _ := cmd.Flags().GetString("type")

	var t bill.Type
	if typeFlag != "" {
		var err error
		if t, err = bill.ParseType(typeFlag); err != nil {
			return err
		}
	}

	svc, err := newBillService()
	if err != nil {
		return err
	}
	data, n, err := svc.Export(cmd.Context(), t)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d bills to %s\n", n, out)
	return nil
}
