package index

import (
	"fmt"
	"log"
	"os"

	"github.com/blevesearch/bleve/v2"

	"go-librarian/internal/models"
)

const defaultIndexPath = "librarian.bleve"

// Item is one duplicate-group track flattened for indexing. All fields are
// searchable using their lowercase JSON tag names (e.g., query
// '+artist:beatles' or '+detectionType:exact_hash').
type Item struct {
	ID              string  `json:"id"` // "g<group_id>_t<track_id>"
	GroupID         float64 `json:"groupId"`
	TrackID         float64 `json:"trackId"`
	DetectionType   string  `json:"detectionType"`
	DetectionReason string  `json:"detectionReason,omitempty"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	Album           string  `json:"album,omitempty"`
	FilePath        string  `json:"filePath"`
	Format          string  `json:"format,omitempty"`
	QualityScore    float64 `json:"qualityScore"`
	IsMaster        bool    `json:"isMaster"`
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	index, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.Printf("Creating new index at: %s", indexPath)
		mapping := bleve.NewIndexMapping()
		index, err = bleve.New(indexPath, mapping)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err // Other error opening index
	} else {
		log.Printf("Opened existing index at: %s", indexPath)
	}
	return index, nil
}

// ItemsFromGroup flattens a duplicate group into one indexable item per
// member track.
func ItemsFromGroup(g models.DuplicateGroup) []Item {
	items := make([]Item, 0, len(g.Tracks))
	for _, t := range g.Tracks {
		items = append(items, Item{
			ID:              fmt.Sprintf("g%d_t%d", g.ID, t.ID),
			GroupID:         float64(g.ID),
			TrackID:         float64(t.ID),
			DetectionType:   g.DetectionType,
			DetectionReason: g.DetectionReason,
			Title:           t.Title,
			Artist:          t.Artist,
			Album:           t.Album,
			FilePath:        t.FilePath,
			Format:          t.Format,
			QualityScore:    t.QualityScore,
			IsMaster:        t.IsMaster,
		})
	}
	return items
}

// IndexGroups (re)indexes every track of every group in one batch. Called
// after each load so searches always reflect the current local view.
func IndexGroups(index bleve.Index, groups []models.DuplicateGroup) (int, error) {
	batch := index.NewBatch()
	count := 0
	for _, g := range groups {
		for _, item := range ItemsFromGroup(g) {
			if err := batch.Index(item.ID, item); err != nil {
				return count, fmt.Errorf("error batching item %s: %w", item.ID, err)
			}
			count++
		}
	}
	if err := index.Batch(batch); err != nil {
		return 0, fmt.Errorf("error executing index batch: %w", err)
	}
	return count, nil
}

// SearchIndex performs a search query against the index.
func SearchIndex(index bleve.Index, query string) (*bleve.SearchResult, error) {
	searchQuery := bleve.NewQueryStringQuery(query)
	searchRequest := bleve.NewSearchRequest(searchQuery)
	searchRequest.Fields = []string{"*"} // Request all stored fields
	searchResults, err := index.Search(searchRequest)
	if err != nil {
		return nil, err
	}
	return searchResults, nil
}

// DeleteIndex removes the index directory. Use with caution!
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Printf("Attempting to delete index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}
