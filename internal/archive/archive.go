// Package archive reads the immutable event records written by the detection
// producer: one JSON file (plus an optional JPEG snapshot) per event, named
// event_<id>.json where <id> is a wall-clock timestamp. The archive is the
// durable source of truth; this package never writes to it.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// idTimeFormat matches the producer's event_YYYYMMDD_HHMMSS naming.
const idTimeFormat = "20060102_150405"

// suspiciousObjects are the labels extracted from alert messages for records
// that predate structured object lists.
var suspiciousObjects = []string{"fire", "cigarette", "knife", "gun", "vape", "weapon"}

// Record is one archived detection event.
type Record struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	IsLegitimate  bool      `json:"isLegitimate"`
	AlertMessage  string    `json:"alertMessage"`
	Confidence    float64   `json:"confidence"` // 0..1 as written by the producer
	ObjectTypes   []string  `json:"objectTypes"`
	HasImage      bool      `json:"hasImage"`
	ImageFilename string    `json:"imageFilename,omitempty"`
}

// ConfidencePercent converts the producer's 0..1 confidence to 0..100.
func (r *Record) ConfidencePercent() float64 {
	return r.Confidence * 100
}

// Reader provides read-only access to an archive directory.
type Reader struct {
	dir string
}

// NewReader creates a Reader over dir. The directory may not exist yet; the
// producer creates it on first detection.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// recordFile is the on-disk JSON shape written by the producer.
type recordFile struct {
	IsLegitimate bool    `json:"is_legitimate"`
	AlertMessage string  `json:"alert_message"`
	Confidence   float64 `json:"confidence"`
}

// GetByID loads a single record. The id may carry the producer's "event_"
// prefix or not; both forms resolve to the same file. Returns os.ErrNotExist
// when no such record has been written (yet).
func (r *Reader) GetByID(id string) (*Record, error) {
	id = strings.TrimPrefix(id, "event_")

	path := filepath.Join(r.dir, "event_"+id+".json")
	data, err := os.ReadFile(path) //nolint:gosec // path is anchored to the configured archive dir
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}

	var rf recordFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing record %s: %w", id, err)
	}

	rec := &Record{
		ID:           id,
		IsLegitimate: rf.IsLegitimate,
		AlertMessage: rf.AlertMessage,
		Confidence:   rf.Confidence,
		ObjectTypes:  extractObjectTypes(rf.AlertMessage),
	}

	if ts, err := time.ParseInLocation(idTimeFormat, id, time.Local); err == nil {
		rec.Timestamp = ts
	}

	imagePath := filepath.Join(r.dir, "event_"+id+".jpg")
	if _, err := os.Stat(imagePath); err == nil {
		rec.HasImage = true
		rec.ImageFilename = filepath.Base(imagePath)
	}

	return rec, nil
}

// ListIDs returns all record identifiers, newest first. The timestamp-based
// naming makes lexicographic order chronological. A missing directory is an
// empty archive, not an error.
func (r *Reader) ListIDs() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "event_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, "event_"), ".json"))
	}

	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// extractObjectTypes pulls known labels out of a free-text alert message.
func extractObjectTypes(message string) []string {
	lower := strings.ToLower(message)

	var found []string
	for _, obj := range suspiciousObjects {
		if strings.Contains(lower, obj) {
			found = append(found, strings.ToUpper(obj[:1])+obj[1:])
		}
	}
	if len(found) == 0 {
		return []string{"Unknown"}
	}
	return found
}
