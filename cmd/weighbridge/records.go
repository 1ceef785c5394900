package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/weighbridge/internal/config"
	"github.com/hyperengineering/weighbridge/internal/queue"
)

var recordsJSONOutput bool

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List records waiting in the local queue",
	Long:  "List all pending and failed records in the local durable queue without running the server.",
	RunE:  runRecords,
}

func init() {
	recordsCmd.Flags().BoolVar(&recordsJSONOutput, "json", false,
		"Output in JSON format")
}

func runRecords(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogger(cfg.Log)

	q, err := queue.NewSQLiteQueue(cfg.Queue.Path)
	if err != nil {
		return err
	}
	defer q.Close()

	records, err := q.ListPending(context.Background())
	if err != nil {
		return err
	}

	if recordsJSONOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOCAL ID\tCREATED\tITEMS\tNET KG\tSTATE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%s\n",
			r.LocalID,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			len(r.LineItems),
			r.Totals.NetWeightKg,
			r.SyncState,
		)
	}
	return w.Flush()
}
