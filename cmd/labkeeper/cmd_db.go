package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/labkeeper/internal/labdb"
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbValidateCmd, dbInsertCmd)
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Work with the lab database directly",
}

var dbValidateCmd = &cobra.Command{
	Use:   "validate <csv>",
	Short: "Validate a CSV file against the ingestion rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		csvPath := args[0]
		outPath := strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + "_invalid.csv"
		invalid, err := labdb.ValidateCSV(csvPath, outPath)
		if err != nil {
			return fmt.Errorf("validate csv: %w", err)
		}
		if len(invalid) == 0 {
			fmt.Println("All rows valid.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "%d invalid rows written to %s\n", len(invalid), outPath)
		for _, row := range invalid {
			fmt.Fprintf(os.Stdout, "  line %d: %s\n", row.Line, row.Reason)
		}
		return nil
	},
}

var dbInsertCmd = &cobra.Command{
	Use:   "insert <csv> <table>",
	Short: "Insert rows from a CSV file into a table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		db, err := labdb.Open(cfg.Lab.DBPath)
		if err != nil {
			return fmt.Errorf("open lab db: %w", err)
		}
		defer db.Close()

		inserted, skipped, err := db.InsertFromCSV(context.Background(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("insert csv: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Inserted %d rows, skipped %d.\n", inserted, len(skipped))
		for _, row := range skipped {
			fmt.Fprintf(os.Stdout, "  line %d: %s\n", row.Line, row.Reason)
		}
		return nil
	},
}
