package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-librarian/internal/duplicates"
	"go-librarian/internal/models"
)

// duplicatesScanCmd triggers a fresh duplicate scan and follows its progress
var duplicatesScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Trigger a fresh duplicate scan",
	Long: `Asks the server to re-scan the library for duplicates and follows the
scan's progress. Ctrl+C stops following; the scan keeps running server-side.`,
	Run: runDuplicatesScan,
}

func init() {
	duplicatesCmd.AddCommand(duplicatesScanCmd)
}

// scanStatusPrinter returns a callback rendering scan progress on a single
// updating terminal line. Each status overwrite replaces the previous one.
func scanStatusPrinter() func(models.ScanStatus) {
	writer := uilive.New()
	return func(status models.ScanStatus) {
		if status.Total > 0 {
			fmt.Fprintf(writer, "Scanning [%s] %d/%d (%.0f%%) groups=%d duplicates=%d\n",
				status.Phase, status.Processed, status.Total, status.Percent,
				status.GroupsFound, status.DuplicatesFound)
		} else {
			fmt.Fprintf(writer, "Scanning [%s]...\n", status.Phase)
		}
		writer.Flush()
	}
}

func runDuplicatesScan(cmd *cobra.Command, args []string) {
	client := newApiClient()
	store := duplicates.NewStore(client)

	// Ctrl+C cancels the client-side wait only; the server scan continues.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info("Requesting duplicate re-scan...")
	err := store.Load(ctx, true, scanStatusPrinter())
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("Stopped following the scan. It continues server-side; run 'duplicates list' later.")
			return
		}
		log.WithError(err).Fatal("Duplicate scan failed")
	}

	final := store.LastScanStatus()
	stats := store.Stats()
	fmt.Println("----- Scan Summary -----")
	fmt.Printf(" Tracks Scanned: %d\n", final.Processed)
	fmt.Printf(" Groups Found: %d\n", final.GroupsFound)
	fmt.Printf(" Duplicates Found: %d\n", final.DuplicatesFound)
	fmt.Printf(" Unresolved Groups: %d\n", stats.Unresolved)
	fmt.Println("------------------------")

	reindexGroups(store.Groups())
}
