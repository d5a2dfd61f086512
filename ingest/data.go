// Package ingest builds the knowledge-base index from the JSON files of a
// data directory and keeps it up to date in watch mode.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/becomeliminal/nim-sleepcoach/core"
)

// Data file names inside the data directory.
const (
	WearableFile    = "wearable_data.json"
	ProfileFile     = "user_profile.json"
	LocationFile    = "location_data.json"
	CustomFile      = "custom_collection.json"
	ChatHistoryFile = "chat_history.json"
)

// Source labels stored alongside each indexed document.
const (
	SourceWearable = "wearable_data"
	SourceProfile  = "user_profile"
	SourceLocation = "location_data"
	SourceCustom   = "custom_collection"
)

// Data holds the parsed contents of a data directory. Nil or empty fields
// mean the file was absent or unreadable.
type Data struct {
	Wearable []core.WearableRecord
	Profile  *core.Profile
	Location []core.LocationField
	Custom   []core.CustomItem

	hasLocation bool
}

// Document is a rendered text with its source label.
type Document struct {
	Text   string
	Source string
}

// LoadDataDir reads the known data files from dir. Missing files and invalid
// JSON are logged and skipped.
func LoadDataDir(dir string) (*Data, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat data dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data dir %s is not a directory", dir)
	}

	data := &Data{}
	if doc, ok := readJSON(dir, WearableFile); ok {
		doc.ForEach(func(_, rec gjson.Result) bool {
			data.Wearable = append(data.Wearable, core.ParseWearableRecord(rec))
			return true
		})
	}
	if doc, ok := readJSON(dir, ProfileFile); ok {
		data.Profile = core.ParseProfile(doc)
	}
	if doc, ok := readJSON(dir, LocationFile); ok {
		data.Location = core.ParseLocation(doc)
		data.hasLocation = true
	}
	if doc, ok := readJSON(dir, CustomFile); ok {
		doc.ForEach(func(_, item gjson.Result) bool {
			data.Custom = append(data.Custom, core.ParseCustomItem(item))
			return true
		})
	}
	return data, nil
}

func readJSON(dir, name string) (gjson.Result, bool) {
	path := filepath.Join(dir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("[INGEST] %s not found in %s", name, dir)
		} else {
			log.Errorf("[INGEST] Error reading %s: %v", name, err)
		}
		return gjson.Result{}, false
	}
	if !gjson.ValidBytes(raw) {
		log.Errorf("[INGEST] Error reading %s: invalid JSON", name)
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(raw), true
}

// Documents renders data as indexable texts in file order: wearable records,
// profile, location, then custom items.
func (d *Data) Documents() []Document {
	var docs []Document
	for _, rec := range d.Wearable {
		docs = append(docs, Document{Text: RenderWearable(rec), Source: SourceWearable})
	}
	if d.Profile != nil {
		docs = append(docs, Document{Text: RenderProfile(d.Profile), Source: SourceProfile})
	}
	if d.hasLocation {
		docs = append(docs, Document{Text: RenderLocation(d.Location), Source: SourceLocation})
	}
	for _, item := range d.Custom {
		docs = append(docs, Document{Text: RenderCustom(item), Source: SourceCustom})
	}
	return docs
}

// RenderWearable formats one night of wearable data.
func RenderWearable(rec core.WearableRecord) string {
	return fmt.Sprintf("Wearable data on %s: sleep duration %s, sleep score %s.", rec.Date, rec.Duration(), rec.SleepScore)
}

// RenderProfile formats the profile fields that were present in the source.
func RenderProfile(p *core.Profile) string {
	var b strings.Builder
	b.WriteString("User profile: ")
	if p.Has("name") {
		fmt.Fprintf(&b, "Name is %s. ", p.Name)
	}
	if p.Has("age") {
		fmt.Fprintf(&b, "Age %s. ", p.Age)
	}
	if p.Has("sleep_issues") {
		fmt.Fprintf(&b, "Sleep issues: %s. ", p.SleepIssues)
	}
	if p.Has("preferences") {
		fmt.Fprintf(&b, "Preferences: %s. ", p.Preferences)
	}
	return strings.TrimSpace(b.String())
}

// RenderLocation formats location fields as "Location info: k: v, k2: v2".
func RenderLocation(fields []core.LocationField) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Key+": "+f.Value)
	}
	return strings.TrimSpace("Location info: " + strings.Join(parts, ", "))
}

// RenderCustom formats a custom item as "title: content", or content alone
// when there is no title.
func RenderCustom(item core.CustomItem) string {
	if item.Title != "" {
		return item.Title + ": " + item.Content
	}
	return item.Content
}
