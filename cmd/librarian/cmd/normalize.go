package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-librarian/internal/api"
	"go-librarian/internal/jobs"
	"go-librarian/internal/models"
)

// normalizeCmd is the base command for metadata normalization operations
var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize library metadata",
	Long: `Runs the server's metadata normalization over the whole library,
previews how individual values would normalize, and reports coverage.`,
}

// normalizeRunCmd starts a library-wide normalization and follows it
var normalizeRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Normalize the whole library",
	Long: `Starts a library-wide normalization pass and follows its progress.
Ctrl+C stops following; the job keeps running server-side.`,
	Run: runNormalizeRun,
}

// normalizePreviewCmd previews normalization of given raw values
var normalizePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview how raw metadata values would normalize",
	Run:   runNormalizePreview,
}

// normalizeStatsCmd shows normalization coverage statistics
var normalizeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show normalization coverage",
	Run:   runNormalizeStats,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
	normalizeCmd.AddCommand(normalizeRunCmd)
	normalizeCmd.AddCommand(normalizePreviewCmd)
	normalizeCmd.AddCommand(normalizeStatsCmd)

	normalizePreviewCmd.Flags().String("artist", "", "Artist value to preview")
	normalizePreviewCmd.Flags().String("album", "", "Album value to preview")
	normalizePreviewCmd.Flags().String("title", "", "Title value to preview")

	viper.BindPFlag("normalize.artist", normalizePreviewCmd.Flags().Lookup("artist"))
	viper.BindPFlag("normalize.album", normalizePreviewCmd.Flags().Lookup("album"))
	viper.BindPFlag("normalize.title", normalizePreviewCmd.Flags().Lookup("title"))
}

func runNormalizeRun(cmd *cobra.Command, args []string) {
	client := newApiClient()

	// Ctrl+C stops following only; the server finishes the pass on its own.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	accepted, err := client.StartNormalize(ctx)
	if err != nil {
		if errors.Is(err, api.ErrConflict) {
			log.Warn("A normalization pass is already running; following it instead.")
		} else {
			log.WithError(err).Fatal("Failed to start normalization")
		}
	} else {
		log.Infof("Normalization started over %d tracks.", accepted.Total)
	}

	var lastStatus models.NormalizeStatus
	poller := jobs.NewPoller(jobs.KindNormalize, func(ctx context.Context) (models.JobProgress, error) {
		status, err := client.NormalizeProgress(ctx)
		if err != nil {
			return models.JobProgress{}, err
		}
		lastStatus = status
		return status.JobProgress, nil
	})

	writer := uilive.New()
	outcome, started := poller.Start(ctx, func(models.JobProgress) {
		fmt.Fprintf(writer, "Normalizing %d/%d updated=%d\n",
			lastStatus.Processed, lastStatus.Total, lastStatus.Updated)
		writer.Flush()
	})
	if !started {
		log.Fatal("A normalization poll loop is already active.")
	}

	oc := <-outcome
	if oc.Stopped {
		log.Warn("Stopped following normalization. It continues server-side; run 'normalize stats' later.")
		return
	}
	if oc.Err != nil {
		log.WithError(oc.Err).Fatal("Normalization failed")
	}

	fmt.Println("----- Normalization Summary -----")
	fmt.Printf(" Tracks Processed: %d/%d\n", lastStatus.Processed, lastStatus.Total)
	fmt.Printf(" Tracks Updated: %d\n", lastStatus.Updated)
	fmt.Println("---------------------------------")
}

func runNormalizePreview(cmd *cobra.Command, args []string) {
	artist := viper.GetString("normalize.artist")
	album := viper.GetString("normalize.album")
	title := viper.GetString("normalize.title")
	if artist == "" && album == "" && title == "" {
		log.Fatal("Provide at least one of --artist, --album, --title to preview.")
	}

	client := newApiClient()
	preview, err := client.PreviewNormalize(context.Background(), artist, album, title)
	if err != nil {
		log.WithError(err).Fatal("Preview failed")
	}

	printPreviewField := func(name, original, normalized string) {
		if original == "" {
			return
		}
		fmt.Printf(" %s: %q -> %q\n", name, original, normalized)
	}
	fmt.Println("----- Normalization Preview -----")
	printPreviewField("Artist", preview.Original.Artist, preview.Normalized.Artist)
	printPreviewField("Album", preview.Original.Album, preview.Normalized.Album)
	printPreviewField("Title", preview.Original.Title, preview.Normalized.Title)
	fmt.Println("---------------------------------")
}

func runNormalizeStats(cmd *cobra.Command, args []string) {
	client := newApiClient()
	stats, err := client.NormalizeStats(context.Background())
	if err != nil {
		log.WithError(err).Fatal("Failed to fetch normalization stats")
	}

	fmt.Println("----- Normalization Coverage -----")
	fmt.Printf(" Total Tracks: %d\n", stats.TotalTracks)
	fmt.Printf(" Normalized: %d\n", stats.NormalizedTracks)
	fmt.Printf(" Preserved Originals: %d\n", stats.PreservedOriginals)
	fmt.Printf(" Average Completeness: %.1f%%\n", stats.AverageCompleteness*100)
	fmt.Println("----------------------------------")
}
