package core

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Profile is the user profile record (user_profile.json).
// Absent fields are left empty.
type Profile struct {
	Name        string
	Age         string
	SleepIssues string
	Preferences string

	// present tracks which keys existed in the source document so renderers can
	// skip fields that were never provided.
	present map[string]bool
}

// Has reports whether the profile source contained the given JSON key.
func (p *Profile) Has(key string) bool {
	if p == nil {
		return false
	}
	return p.present[key]
}

// Empty reports whether the profile is nil or its source had no known keys.
func (p *Profile) Empty() bool {
	return p == nil || len(p.present) == 0
}

// UnmarshalJSON accepts loosely typed profile documents: list values are joined
// with ", " and numbers are kept in their literal form.
func (p *Profile) UnmarshalJSON(data []byte) error {
	parsed := ParseProfile(gjson.ParseBytes(data))
	*p = *parsed
	return nil
}

// ParseProfile builds a Profile from a parsed JSON object.
func ParseProfile(doc gjson.Result) *Profile {
	p := &Profile{present: make(map[string]bool)}
	for key, dst := range map[string]*string{
		"name":         &p.Name,
		"age":          &p.Age,
		"sleep_issues": &p.SleepIssues,
		"preferences":  &p.Preferences,
	} {
		v := doc.Get(key)
		if !v.Exists() {
			continue
		}
		p.present[key] = true
		*dst = FlexString(v)
	}
	return p
}

// WearableRecord is one night of wearable sleep data (wearable_data.json).
type WearableRecord struct {
	Date          string // default "unknown date"
	SleepDuration string // empty when the record only carries Hours
	Hours         string
	SleepScore    string
}

// ParseWearableRecord builds a WearableRecord with defaults for absent fields.
func ParseWearableRecord(doc gjson.Result) WearableRecord {
	rec := WearableRecord{
		Date:          "unknown date",
		SleepDuration: FlexString(doc.Get("sleep_duration")),
		Hours:         FlexString(doc.Get("hours")),
		SleepScore:    FlexString(doc.Get("sleep_score")),
	}
	if d := doc.Get("date"); d.Exists() {
		rec.Date = FlexString(d)
	}
	return rec
}

// Duration returns the recorded sleep duration, falling back to "<hours> hours".
func (w WearableRecord) Duration() string {
	if w.SleepDuration != "" {
		return w.SleepDuration
	}
	return w.Hours + " hours"
}

// LocationField is a single key/value pair of location_data.json, kept in
// document order.
type LocationField struct {
	Key   string
	Value string
}

// ParseLocation returns the fields of a location document in document order.
func ParseLocation(doc gjson.Result) []LocationField {
	var fields []LocationField
	doc.ForEach(func(key, value gjson.Result) bool {
		fields = append(fields, LocationField{Key: key.String(), Value: FlexString(value)})
		return true
	})
	return fields
}

// CustomItem is an entry of custom_collection.json. Items are either objects
// with title/content or bare values.
type CustomItem struct {
	Title   string
	Content string
}

// ParseCustomItem builds a CustomItem from an object or scalar value.
func ParseCustomItem(doc gjson.Result) CustomItem {
	if !doc.IsObject() {
		return CustomItem{Content: FlexString(doc)}
	}
	return CustomItem{
		Title:   FlexString(doc.Get("title")),
		Content: FlexString(doc.Get("content")),
	}
}

// FlexString renders a JSON value as text. Arrays are joined with ", ",
// null and missing values become "".
func FlexString(v gjson.Result) string {
	switch {
	case !v.Exists(), v.Type == gjson.Null:
		return ""
	case v.IsArray():
		var parts []string
		for _, item := range v.Array() {
			parts = append(parts, FlexString(item))
		}
		return strings.Join(parts, ", ")
	case v.IsObject():
		return v.Raw
	}
	return v.String()
}
