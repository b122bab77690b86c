package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harun/webchat/pkg/session"
	"github.com/spf13/cobra"
)

var (
	recordsJSON  bool
	recordsPrune bool
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List persisted chat records",
	Long: `List the chat records kept by the configured store, most recently
updated first. With --prune, records older than store.retention_days are
removed first.`,
	Args: cobra.NoArgs,
	RunE: runRecords,
}

func init() {
	recordsCmd.Flags().BoolVar(&recordsJSON, "json", false, "print records as JSON")
	recordsCmd.Flags().BoolVar(&recordsPrune, "prune", false, "remove records past the retention window first")
	rootCmd.AddCommand(recordsCmd)
}

func runRecords(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if recordsPrune {
		cleanup, err := session.NewCleanup(store, time.Duration(cfg.Store.RetentionDays)*24*time.Hour, cfg.Store.CleanupSchedule, log.Component("session_cleanup"))
		if err != nil {
			return err
		}
		removed, err := cleanup.CleanupNow(ctx)
		if err != nil {
			return fmt.Errorf("prune failed: %w", err)
		}
		if !recordsJSON {
			fmt.Fprintf(out, "Pruned %d record(s)\n", removed)
		}
	}

	records, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	if recordsJSON {
		if records == nil {
			records = []*session.Record{}
		}
		return writeJSON(out, records)
	}
	return printRecords(cmd, records)
}

func printRecords(cmd *cobra.Command, records []*session.Record) error {
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No chat records")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONVERSATION\tMODE\tUSER\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ConversationID, r.ChatMode, r.User.ID, r.UpdatedAt.Local().Format(time.RFC3339))
	}
	return w.Flush()
}
