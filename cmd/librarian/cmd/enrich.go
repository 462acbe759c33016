package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-librarian/internal/enrich"
	"go-librarian/internal/models"
)

// enrichCmd is the base command for metadata enrichment operations
var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich track metadata from MusicBrainz",
	Long: `Looks up tracks against MusicBrainz through the server, shows the
suggested corrections field by field, and applies the ones you select.`,
}

// enrichLookupCmd looks up one track and prints the field diff
var enrichLookupCmd = &cobra.Command{
	Use:   "lookup [TRACK_ID]",
	Short: "Look up one track and show suggested changes",
	Args:  cobra.ExactArgs(1),
	Run:   runEnrichLookup,
}

// enrichApplyCmd looks up a track and applies the selected suggestions
var enrichApplyCmd = &cobra.Command{
	Use:   "apply [TRACK_ID]",
	Short: "Apply suggested metadata to a track",
	Long: `Looks the track up, then applies every changed field. Use --fields to
restrict which fields are applied (comma-separated: artist,title,album,year,genre).`,
	Args: cobra.ExactArgs(1),
	Run:  runEnrichApply,
}

// enrichBatchCmd runs a server-side batch lookup and follows its progress
var enrichBatchCmd = &cobra.Command{
	Use:   "batch [TRACK_ID...]",
	Short: "Run a batch lookup over many tracks",
	Long: `Starts a server-side batch lookup. With no arguments every track
missing lookup data is processed. Ctrl+C stops following; the batch keeps
running server-side.`,
	Run: runEnrichBatch,
}

// enrichCacheStatsCmd shows lookup cache statistics
var enrichCacheStatsCmd = &cobra.Command{
	Use:   "cache-stats",
	Short: "Show lookup cache statistics",
	Run:   runEnrichCacheStats,
}

// enrichClearCacheCmd clears the server-side lookup cache
var enrichClearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Clear the server-side lookup cache",
	Run:   runEnrichClearCache,
}

func init() {
	rootCmd.AddCommand(enrichCmd)
	enrichCmd.AddCommand(enrichLookupCmd)
	enrichCmd.AddCommand(enrichApplyCmd)
	enrichCmd.AddCommand(enrichBatchCmd)
	enrichCmd.AddCommand(enrichCacheStatsCmd)
	enrichCmd.AddCommand(enrichClearCacheCmd)

	enrichApplyCmd.Flags().StringSliceP("fields", "f", []string{}, "Only apply these fields (artist,title,album,year,genre)")
	enrichClearCacheCmd.Flags().Int("older-than", 0, "Only clear entries older than this many days (0 clears everything)")

	viper.BindPFlag("enrich.fields", enrichApplyCmd.Flags().Lookup("fields"))
	viper.BindPFlag("enrich.older_than", enrichClearCacheCmd.Flags().Lookup("older-than"))
}

func printDiff(lookup models.TrackLookup, diff enrich.Diff) {
	if !lookup.Found {
		fmt.Printf("No MusicBrainz match for track %d (%s - %s).\n",
			lookup.TrackID, lookup.Current.Artist, lookup.Current.Title)
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Field\tCurrent\tSuggested\tChanged")
	fmt.Fprintln(tw, "-----\t-------\t---------\t-------")
	for _, f := range diff.Fields {
		changed := ""
		if f.Changed {
			changed = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Field, f.Current, f.Suggested, changed)
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for lookup diff")
	}

	if lookup.Suggestion != nil && lookup.Suggestion.RecordingMBID != "" {
		fmt.Printf("Recording MBID: %s\n", lookup.Suggestion.RecordingMBID)
	}
}

func runEnrichLookup(cmd *cobra.Command, args []string) {
	trackID := parseID(args[0], "track")
	coordinator := enrich.NewCoordinator(newApiClient())
	ctx := context.Background()

	lookup, diff, err := coordinator.LookupAndDiff(ctx, trackID)
	if err != nil {
		log.WithError(err).Fatalf("Lookup failed for track %d", trackID)
	}

	printDiff(lookup, diff)
	if lookup.Found && !diff.HasChanges() {
		log.Info("Metadata already matches the suggestion; nothing to apply.")
	}
}

func runEnrichApply(cmd *cobra.Command, args []string) {
	trackID := parseID(args[0], "track")
	coordinator := enrich.NewCoordinator(newApiClient())
	ctx := context.Background()

	lookup, diff, err := coordinator.LookupAndDiff(ctx, trackID)
	if err != nil {
		log.WithError(err).Fatalf("Lookup failed for track %d", trackID)
	}
	if !lookup.Found {
		log.Fatalf("No MusicBrainz match for track %d, nothing to apply.", trackID)
	}

	printDiff(lookup, diff)

	selection := enrich.DefaultSelection(diff)
	if fields := viper.GetStringSlice("enrich.fields"); len(fields) > 0 {
		// Restrict to the named fields; everything else is deselected.
		selection = make(enrich.Selection, len(enrich.Fields))
		for _, name := range enrich.Fields {
			selection[name] = false
		}
		for _, name := range fields {
			name = strings.ToLower(strings.TrimSpace(name))
			if _, ok := diff.Field(name); !ok {
				log.Fatalf("Unknown field '%s' (valid: %s)", name, strings.Join(enrich.Fields, ","))
			}
			selection[name] = true
		}
	}

	result, err := coordinator.ApplySelected(ctx, diff, selection)
	if err != nil {
		if err == enrich.ErrNothingToApply {
			log.Info("No changed fields selected; nothing to apply.")
			return
		}
		log.WithError(err).Fatalf("Failed to apply metadata to track %d", trackID)
	}

	log.Infof("Applied %d field update(s) to track %d:", len(result.Updates), result.TrackID)
	for field, value := range result.Updates {
		fmt.Printf("  %s -> %v\n", field, value)
	}
}

func runEnrichBatch(cmd *cobra.Command, args []string) {
	trackIDs := make([]int64, 0, len(args))
	for _, arg := range args {
		trackIDs = append(trackIDs, parseID(arg, "track"))
	}

	coordinator := enrich.NewCoordinator(newApiClient())

	// Ctrl+C stops following only; the server works through the batch.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if len(trackIDs) > 0 {
		log.Infof("Starting batch lookup for %d tracks...", len(trackIDs))
	} else {
		log.Info("Starting batch lookup for all tracks without lookup data...")
	}

	writer := uilive.New()
	final, err := coordinator.RunBatch(ctx, trackIDs, func(status models.LookupStatus) {
		fmt.Fprintf(writer, "Looking up %d/%d  found=%d not_found=%d errors=%d skipped=%d\n",
			status.Processed, status.Total, status.Found, status.NotFound, status.Errors, status.Skipped)
		writer.Flush()
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("Stopped following the batch. It continues server-side; check 'enrich cache-stats' later.")
			return
		}
		log.WithError(err).Fatal("Batch lookup failed")
	}

	fmt.Println("----- Batch Lookup Summary -----")
	fmt.Printf(" Processed: %d/%d\n", final.Processed, final.Total)
	fmt.Printf(" Found: %d\n", final.Found)
	fmt.Printf(" Not Found: %d\n", final.NotFound)
	fmt.Printf(" Errors: %d\n", final.Errors)
	fmt.Printf(" Skipped (cached): %d\n", final.Skipped)
	fmt.Println("--------------------------------")
}

func runEnrichCacheStats(cmd *cobra.Command, args []string) {
	coordinator := enrich.NewCoordinator(newApiClient())
	stats, err := coordinator.CacheStats(context.Background())
	if err != nil {
		log.WithError(err).Fatal("Failed to fetch lookup cache stats")
	}

	fmt.Println("----- Lookup Cache -----")
	fmt.Printf(" Cached Entries: %d\n", stats.TotalCached)
	fmt.Printf(" Found: %d\n", stats.Found)
	fmt.Printf(" Not Found: %d\n", stats.NotFound)
	fmt.Printf(" Errors: %d\n", stats.Errors)
	fmt.Printf(" Hit Rate: %.1f%%\n", stats.HitRate*100)
	fmt.Println("------------------------")
}

func runEnrichClearCache(cmd *cobra.Command, args []string) {
	coordinator := enrich.NewCoordinator(newApiClient())

	var olderThan *int
	if days := viper.GetInt("enrich.older_than"); days > 0 {
		olderThan = &days
	}

	result, err := coordinator.ClearCache(context.Background(), olderThan)
	if err != nil {
		log.WithError(err).Fatal("Failed to clear lookup cache")
	}
	log.Infof("Cleared %d cache entries (filter: %s).", result.DeletedEntries, result.Filter)
}
