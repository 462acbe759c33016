package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-librarian/index"
	"go-librarian/internal/duplicates"
	"go-librarian/internal/helpers"
	"go-librarian/internal/models"
)

// duplicatesCmd represents the base command for duplicate group operations
var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Inspect and resolve duplicate tracks",
	Long: `View the duplicate groups detected by the server, trigger re-scans,
merge groups down to a single track, and search the local group view.`,
	// No Run function for the base duplicates command itself
}

// duplicatesListCmd lists the current duplicate groups
var duplicatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List duplicate groups",
	Long: `Fetches and displays the current duplicate groups. If a scan is in
flight the command waits for it to finish first.`,
	Run: runDuplicatesList,
}

// duplicatesStatsCmd shows aggregate duplicate statistics
var duplicatesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show duplicate statistics",
	Run:   runDuplicatesStats,
}

// duplicatesSearchCmd searches the local bleve index of group tracks
var duplicatesSearchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search duplicate group tracks",
	Long: `Searches the locally indexed duplicate group tracks. The index is
rebuilt on every 'duplicates list', so run that first. Supports bleve query
syntax, e.g. '+artist:beatles +detectionType:exact_hash'.`,
	Args: cobra.ExactArgs(1),
	Run:  runDuplicatesSearch,
}

// duplicatesVerifyCmd hashes the files of a group to confirm exact duplicates
var duplicatesVerifyCmd = &cobra.Command{
	Use:   "verify [GROUP_ID]",
	Short: "Verify a group's files byte-for-byte",
	Long: `Hashes every file of a duplicate group and reports which are
byte-identical. Requires LibraryRoot pointing at the server's library mount.`,
	Args: cobra.ExactArgs(1),
	Run:  runDuplicatesVerify,
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)
	duplicatesCmd.AddCommand(duplicatesListCmd)
	duplicatesCmd.AddCommand(duplicatesStatsCmd)
	duplicatesCmd.AddCommand(duplicatesSearchCmd)
	duplicatesCmd.AddCommand(duplicatesVerifyCmd)

	duplicatesListCmd.Flags().StringSliceP("type", "t", []string{}, "Filter by detection type(s) (exact_hash, fuzzy_metadata, duration_match)")
	duplicatesListCmd.Flags().Bool("tracks", false, "Show the member tracks of each group")

	viper.BindPFlag("duplicates.type", duplicatesListCmd.Flags().Lookup("type"))
	viper.BindPFlag("duplicates.tracks", duplicatesListCmd.Flags().Lookup("tracks"))
}

func runDuplicatesList(cmd *cobra.Command, args []string) {
	client := newApiClient()
	store := duplicates.NewStore(client)
	ctx := context.Background()

	err := store.Load(ctx, false, scanStatusPrinter())
	if err != nil {
		log.WithError(err).Fatal("Failed to load duplicate groups")
	}

	groups := store.Groups()
	if types := viper.GetStringSlice("duplicates.type"); len(types) > 0 {
		groups = store.Filter(types...)
	}

	printGroups(groups, viper.GetBool("duplicates.tracks"))

	stats := store.Stats()
	log.Infof("%d groups shown, %d unresolved total, potential savings %s",
		len(groups), stats.Unresolved, helpers.BytesToSize(uint64(stats.PotentialSavingsBytes)))

	reindexGroups(store.Groups())
}

// reindexGroups rebuilds the local search index from the freshly loaded
// groups, when an index path is configured.
func reindexGroups(groups []models.DuplicateGroup) {
	if globalConfig.BleveIndexPath == "" {
		log.Debug("BleveIndexPath not set, skipping local indexing.")
		return
	}
	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		log.WithError(err).Warn("Failed to open local search index, skipping indexing")
		return
	}
	defer idx.Close()

	count, err := index.IndexGroups(idx, groups)
	if err != nil {
		log.WithError(err).Warn("Failed to index duplicate group tracks")
		return
	}
	log.Debugf("Indexed %d tracks into %s", count, globalConfig.BleveIndexPath)
}

func printGroups(groups []models.DuplicateGroup, showTracks bool) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Group\tType\tReason\tTracks\tDuplicates")
	fmt.Fprintln(tw, "-----\t----\t------\t------\t----------")
	for _, g := range groups {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n",
			g.ID, g.DetectionType, g.DetectionReason, len(g.Tracks), g.Duplicates())
		if showTracks {
			for _, t := range g.Tracks {
				marker := " "
				if t.IsMaster {
					marker = "*"
				}
				fmt.Fprintf(tw, "  %s %d\t%s - %s\t%s\t%s\tscore %.1f\n",
					marker, t.ID, t.Artist, t.Title, t.Format, helpers.BytesToSize(uint64(t.FileSize)), t.QualityScore)
			}
		}
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for duplicates list")
	}
}

func runDuplicatesStats(cmd *cobra.Command, args []string) {
	client := newApiClient()
	ctx := context.Background()

	stats, err := client.DuplicateStats(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to fetch duplicate stats")
	}

	fmt.Println("----- Duplicate Statistics -----")
	fmt.Printf(" Total Groups: %d\n", stats.TotalGroups)
	fmt.Printf(" Unresolved: %d\n", stats.Unresolved)
	fmt.Printf(" Resolved: %d\n", stats.Resolved)
	fmt.Printf(" Ignored: %d\n", stats.Ignored)
	fmt.Printf(" Potential Savings: %s\n", helpers.BytesToSize(uint64(stats.PotentialSavingsBytes)))
	fmt.Println("--------------------------------")
}

func runDuplicatesSearch(cmd *cobra.Command, args []string) {
	query := args[0]
	if globalConfig.BleveIndexPath == "" {
		log.Fatal("BleveIndexPath is not set in the configuration.")
	}

	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		log.WithError(err).Fatalf("Failed to open local search index at %s", globalConfig.BleveIndexPath)
	}
	defer idx.Close()

	results, err := index.SearchIndex(idx, query)
	if err != nil {
		log.WithError(err).Fatalf("Search failed for query '%s'", query)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Group\tTrack\tType\tArtist\tTitle\tPath")
	fmt.Fprintln(tw, "-----\t-----\t----\t------\t-----\t----")
	for _, hit := range results.Hits {
		fmt.Fprintf(tw, "%v\t%v\t%v\t%v\t%v\t%v\n",
			hit.Fields["groupId"], hit.Fields["trackId"], hit.Fields["detectionType"],
			hit.Fields["artist"], hit.Fields["title"], hit.Fields["filePath"])
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for search results")
	}
	log.Infof("%d matches for query '%s' (of %d indexed tracks)", len(results.Hits), query, results.Total)
}

func runDuplicatesVerify(cmd *cobra.Command, args []string) {
	groupID := parseID(args[0], "group")
	if globalConfig.LibraryRoot == "" {
		log.Fatal("LibraryRoot is not set in the configuration; cannot read library files.")
	}

	client := newApiClient()
	store := duplicates.NewStore(client)
	ctx := context.Background()

	if err := store.Load(ctx, false, nil); err != nil {
		log.WithError(err).Fatal("Failed to load duplicate groups")
	}
	group, ok := store.Group(groupID)
	if !ok {
		log.Fatalf("Group %d not found in the current duplicate view", groupID)
	}

	checksums := make(map[string][]models.DuplicateTrack)
	for _, t := range group.Tracks {
		fullPath := libraryPath(t.FilePath)
		sum, err := helpers.FileChecksum(fullPath)
		if err != nil {
			log.WithError(err).Errorf("Failed to hash %s", fullPath)
			continue
		}
		log.WithField("track", t.ID).Debugf("BLAKE3 %s for %s", sum, fullPath)
		checksums[sum] = append(checksums[sum], t)
	}

	if len(checksums) == 0 {
		log.Fatal("Could not hash any file of the group.")
	}
	if len(checksums) == 1 && len(group.Tracks) > 1 {
		fmt.Printf("All %d files of group %d are byte-identical.\n", len(group.Tracks), group.ID)
		return
	}

	fmt.Printf("Group %d files are NOT all identical (%d distinct contents):\n", group.ID, len(checksums))
	for sum, tracks := range checksums {
		fmt.Printf("  %s:\n", sum[:16])
		for _, t := range tracks {
			fmt.Printf("    track %d  %s\n", t.ID, t.FilePath)
		}
	}
	// Divergent contents mean the group is stale (a file was re-tagged or
	// replaced since the scan); refuse so scripts don't merge it blindly.
	os.Exit(1)
}
