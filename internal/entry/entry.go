// Package entry holds config entries: the persisted record of one configured
// integration instance (a province feed, a gateway) and the registry through
// which flows create and update them.
package entry

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"
)

// Source identifies how an entry (or the flow that produced it) was started.
type Source string

const (
	SourceUser   Source = "user"
	SourceImport Source = "import"
	SourceSSDP   Source = "ssdp"
	SourceReauth Source = "reauth"
)

// Entry is one configured integration instance.
type Entry struct {
	EntryID   string         `json:"entry_id"`
	Domain    string         `json:"domain"`
	Title     string         `json:"title"`
	Source    Source         `json:"source"`
	UniqueID  string         `json:"unique_id,omitempty"`
	Data      map[string]any `json:"data"`
	Options   map[string]any `json:"options"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a copy that shares no maps with e.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}

	cloned := *e
	cloned.Data = maps.Clone(e.Data)
	cloned.Options = maps.Clone(e.Options)
	if cloned.Data == nil {
		cloned.Data = make(map[string]any)
	}
	if cloned.Options == nil {
		cloned.Options = make(map[string]any)
	}

	return &cloned
}

// DataString returns the string stored under key in Data, or "" if it is absent or not a string.
func (e *Entry) DataString(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// DataInt returns the integer stored under key in Data.
func (e *Entry) DataInt(key string, fallback int) int {
	return intValue(e.Data[key], fallback)
}

// OptionInt returns the integer stored under key in Options.
func (e *Entry) OptionInt(key string, fallback int) int {
	return intValue(e.Options[key], fallback)
}

// intValue normalises the numeric shapes a value can take after a JSON round trip.
func intValue(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return fallback
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s/%s (%s)", e.Domain, e.EntryID, e.Title)
}
