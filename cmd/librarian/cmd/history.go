package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-librarian/internal/database"
)

// historyCmd is the base command for the local resolution journal
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show locally journaled duplicate resolutions",
	Long: `Every merge or ignore performed through this client is journaled
locally. This command lists and manages that journal.`,
	Run: runHistoryList,
}

// historyClearCmd wipes the journal
var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the resolution journal",
	Run:   runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyClearCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) {
	if globalConfig.DatabasePath == "" {
		log.Fatal("Database path is not set in the configuration.")
	}
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		log.WithError(err).Fatalf("Failed to open database at %s", globalConfig.DatabasePath)
	}
	defer db.Close()

	entries, err := db.ListResolutions()
	if err != nil {
		log.WithError(err).Fatal("Failed to read the resolution journal")
	}
	if len(entries) == 0 {
		log.Info("No resolutions journaled yet.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "When\tGroup\tAction\tType\tKept\tRemoved\tFiles Deleted\tTransfers")
	fmt.Fprintln(tw, "----\t-----\t------\t----\t----\t-------\t-------------\t---------")
	for _, e := range entries {
		when := time.Unix(e.Timestamp, 0).Format("2006-01-02 15:04")
		kept := "-"
		if e.KeptTrackID != 0 {
			kept = fmt.Sprintf("%d", e.KeptTrackID)
		}
		transfers := fmt.Sprintf("%dp/%dl/%dk",
			e.Transfers.PlayHistory, e.Transfers.Playlists, e.Transfers.Likes)
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
			when, e.GroupID, e.Action, e.DetectionType, kept,
			e.DeletedTracks, len(e.DeletedFiles), transfers)
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for history")
	}
	log.Infof("%d journaled resolutions.", len(entries))
}

func runHistoryClear(cmd *cobra.Command, args []string) {
	if globalConfig.DatabasePath == "" {
		log.Fatal("Database path is not set in the configuration.")
	}
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		log.WithError(err).Fatalf("Failed to open database at %s", globalConfig.DatabasePath)
	}
	defer db.Close()

	deleted, err := db.ClearResolutions()
	if err != nil {
		log.WithError(err).Fatal("Failed to clear the resolution journal")
	}
	log.Infof("Removed %d journal entries.", deleted)
}
