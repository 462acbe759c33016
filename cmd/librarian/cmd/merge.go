package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-librarian/internal/database"
	"go-librarian/internal/duplicates"
	"go-librarian/internal/models"
)

// duplicatesMergeCmd merges one group down to a chosen track
var duplicatesMergeCmd = &cobra.Command{
	Use:   "merge [GROUP_ID]",
	Short: "Merge a duplicate group down to one track",
	Long: `Merges a duplicate group, keeping the track given by --keep (or the
server's recommended master when omitted). Play history, playlist entries and
likes of the removed tracks are transferred to the kept one.`,
	Args: cobra.ExactArgs(1),
	Run:  runDuplicatesMerge,
}

// duplicatesIgnoreCmd marks a group as not-a-duplicate
var duplicatesIgnoreCmd = &cobra.Command{
	Use:   "ignore [GROUP_ID]",
	Short: "Mark a duplicate group as not-a-duplicate",
	Args:  cobra.ExactArgs(1),
	Run:   runDuplicatesIgnore,
}

// duplicatesMergeAllCmd merges every group, keeping the best track of each
var duplicatesMergeAllCmd = &cobra.Command{
	Use:   "merge-all",
	Short: "Merge all duplicate groups at once",
	Long: `Auto-selects the highest-quality track of every group and merges them
in one bulk request. Asks for confirmation first unless --yes is given.`,
	Run: runDuplicatesMergeAll,
}

func init() {
	duplicatesCmd.AddCommand(duplicatesMergeCmd)
	duplicatesCmd.AddCommand(duplicatesIgnoreCmd)
	duplicatesCmd.AddCommand(duplicatesMergeAllCmd)

	duplicatesMergeCmd.Flags().Int64P("keep", "k", 0, "ID of the track to keep (default: server's recommended master)")
	duplicatesMergeCmd.Flags().Bool("delete-files", false, "Also delete the duplicate files from disk. Overrides config.")

	duplicatesMergeAllCmd.Flags().Bool("delete-files", false, "Also delete the duplicate files from disk. Overrides config.")
	duplicatesMergeAllCmd.Flags().StringSliceP("type", "t", []string{}, "Only merge groups of these detection type(s)")
	duplicatesMergeAllCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")

	viper.BindPFlag("merge.keep", duplicatesMergeCmd.Flags().Lookup("keep"))
	viper.BindPFlag("merge.delete_files", duplicatesMergeCmd.Flags().Lookup("delete-files"))
	viper.BindPFlag("merge_all.delete_files", duplicatesMergeAllCmd.Flags().Lookup("delete-files"))
	viper.BindPFlag("merge_all.type", duplicatesMergeAllCmd.Flags().Lookup("type"))
	viper.BindPFlag("merge_all.yes", duplicatesMergeAllCmd.Flags().Lookup("yes"))
}

// deleteFilesSetting resolves the --delete-files flag against the config
// default.
func deleteFilesSetting(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("delete-files") {
		v, _ := cmd.Flags().GetBool("delete-files")
		return v
	}
	return globalConfig.DeleteFiles
}

// openJournal opens the local resolution journal. Returns nil (and logs) when
// no database path is configured; journaling is best-effort.
func openJournal() *database.DB {
	if globalConfig.DatabasePath == "" {
		log.Debug("DatabasePath not set, resolutions will not be journaled.")
		return nil
	}
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		log.WithError(err).Warn("Failed to open resolution journal, continuing without it")
		return nil
	}
	return db
}

// journalResolution records a resolved group locally. The server-side
// resolution already happened, so failures only warn.
func journalResolution(db *database.DB, entry models.ResolutionEntry) {
	if db == nil {
		return
	}
	entry.Timestamp = time.Now().Unix()
	if err := db.RecordResolution(entry); err != nil {
		log.WithError(err).Warnf("Failed to journal resolution of group %d", entry.GroupID)
	}
}

func runDuplicatesMerge(cmd *cobra.Command, args []string) {
	groupID := parseID(args[0], "group")
	keepFlag, _ := cmd.Flags().GetInt64("keep")
	deleteFiles := deleteFilesSetting(cmd)

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

	keepTrackID := keepFlag
	if keepTrackID == 0 {
		keep, err := duplicates.DefaultSelection(group)
		if err != nil {
			log.WithError(err).Fatalf("Cannot pick a track to keep for group %d", groupID)
		}
		keepTrackID = keep.ID
		log.Infof("No --keep given, keeping recommended track %d (%s - %s)", keep.ID, keep.Artist, keep.Title)
	}

	db := openJournal()
	if db != nil {
		defer db.Close()
	}

	result, err := store.Merge(ctx, groupID, keepTrackID, deleteFiles)
	if err != nil {
		log.WithError(err).Fatalf("Merge of group %d failed", groupID)
	}

	journalResolution(db, models.ResolutionEntry{
		GroupID:       groupID,
		Action:        models.ActionMerged,
		DetectionType: group.DetectionType,
		KeptTrackID:   result.KeptTrackID,
		DeletedTracks: result.DeletedTracks,
		DeletedFiles:  result.DeletedFiles,
		Transfers:     result.Transfers,
	})

	fmt.Println("----- Merge Result -----")
	fmt.Printf(" Kept Track: %d\n", result.KeptTrackID)
	fmt.Printf(" Removed Tracks: %d\n", result.DeletedTracks)
	fmt.Printf(" Deleted Files: %d\n", len(result.DeletedFiles))
	fmt.Printf(" Transferred: %d plays, %d playlist entries, %d likes\n",
		result.Transfers.PlayHistory, result.Transfers.Playlists, result.Transfers.Likes)
	fmt.Println("------------------------")

	stats := store.Stats()
	log.Infof("%d unresolved groups remain.", stats.Unresolved)
}

func runDuplicatesIgnore(cmd *cobra.Command, args []string) {
	groupID := parseID(args[0], "group")

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

	db := openJournal()
	if db != nil {
		defer db.Close()
	}

	if err := store.Ignore(ctx, groupID); err != nil {
		log.WithError(err).Fatalf("Failed to ignore group %d", groupID)
	}

	journalResolution(db, models.ResolutionEntry{
		GroupID:       groupID,
		Action:        models.ActionIgnored,
		DetectionType: group.DetectionType,
	})

	log.Infof("Group %d marked as not-a-duplicate.", groupID)
}

func runDuplicatesMergeAll(cmd *cobra.Command, args []string) {
	deleteFiles := deleteFilesSetting(cmd)

	client := newApiClient()
	store := duplicates.NewStore(client)
	ctx := context.Background()

	if err := store.Load(ctx, false, scanStatusPrinter()); err != nil {
		log.WithError(err).Fatal("Failed to load duplicate groups")
	}

	groups := store.Groups()
	if types := viper.GetStringSlice("merge_all.type"); len(types) > 0 {
		groups = store.Filter(types...)
	}
	if len(groups) == 0 {
		log.Info("No duplicate groups to merge.")
		return
	}

	plans := duplicates.PlanAll(groups, deleteFiles)
	totalRemovable := 0
	for _, g := range groups {
		totalRemovable += g.Duplicates()
	}

	fmt.Printf("About to merge %d groups, removing %d duplicate tracks", len(plans), totalRemovable)
	if deleteFiles {
		fmt.Print(" AND DELETING THEIR FILES")
	}
	fmt.Println(".")

	if !viper.GetBool("merge_all.yes") {
		fmt.Print("Proceed? (y/N): ")
		reader := bufio.NewReader(os.Stdin)
		input, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(input)) != "y" {
			log.Info("Aborted.")
			return
		}
	}

	db := openJournal()
	if db != nil {
		defer db.Close()
	}

	result, err := store.BulkMerge(ctx, plans)
	if err != nil {
		if result.Errors > 0 {
			log.Errorf("Bulk merge reported %d failures out of %d groups. The local view was kept; run 'duplicates list' to reload.", result.Errors, len(plans))
		}
		log.WithError(err).Fatal("Bulk merge failed")
	}

	// Journal each merged group from the per-group results.
	for i, r := range result.Results {
		if i >= len(plans) {
			break
		}
		plan := plans[i]
		var detectionType string
		if g, ok := groupByID(groups, plan.GroupID); ok {
			detectionType = g.DetectionType
		}
		journalResolution(db, models.ResolutionEntry{
			GroupID:       plan.GroupID,
			Action:        models.ActionMerged,
			DetectionType: detectionType,
			KeptTrackID:   r.KeptTrackID,
			DeletedTracks: r.DeletedTracks,
			DeletedFiles:  r.DeletedFiles,
			Transfers:     r.Transfers,
		})
	}

	fmt.Println("----- Bulk Merge Summary -----")
	fmt.Printf(" Groups Merged: %d\n", result.Success)
	fmt.Printf(" Failures: %d\n", result.Errors)
	fmt.Println("------------------------------")
}

func groupByID(groups []models.DuplicateGroup, id int64) (models.DuplicateGroup, bool) {
	for _, g := range groups {
		if g.ID == id {
			return g, true
		}
	}
	return models.DuplicateGroup{}, false
}
