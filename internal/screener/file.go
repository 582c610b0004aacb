package screener

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"paper-trader/pkg/types"
)

// Accepted layouts for the outer file timestamp.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ReadFile loads a screener drop from disk. The file is either a bare
// JSON array of entries or an object whose "stocks" or "recommendations"
// key holds the array; an outer "timestamp" field sets the issuance time,
// otherwise the file's mtime does. Entries that fail to parse are skipped
// and reported in the second return so the caller can log them without
// losing the rest of the file.
func ReadFile(path string) ([]types.Recommendation, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read screener file: %w", err)
	}

	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, nil, fmt.Errorf("parse screener file %s: %w", path, err)
	}

	issuedAt := fileMtime(path)
	var entries []any

	switch v := top.(type) {
	case []any:
		entries = v
	case map[string]any:
		if ts, ok := outerTimestamp(v); ok {
			issuedAt = ts
		}
		arr, ok := firstKey(v, "stocks", "recommendations")
		if !ok {
			return nil, nil, fmt.Errorf("screener file %s has no stocks or recommendations array", path)
		}
		entries, ok = arr.([]any)
		if !ok {
			return nil, nil, fmt.Errorf("screener file %s: entries are not an array", path)
		}
	default:
		return nil, nil, fmt.Errorf("screener file %s: unexpected top-level %T", path, top)
	}

	recs := make([]types.Recommendation, 0, len(entries))
	var skipped []error
	for i, e := range entries {
		raw, ok := e.(map[string]any)
		if !ok {
			skipped = append(skipped, fmt.Errorf("entry %d is not an object", i))
			continue
		}
		rec, err := ParseRecommendation(raw, issuedAt)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, skipped, nil
}

func outerTimestamp(raw map[string]any) (time.Time, bool) {
	v, ok := firstKey(raw, "timestamp", "generated_at", "issued_at")
	if !ok {
		return time.Time{}, false
	}
	switch val := v.(type) {
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, val); err == nil {
				return ts, true
			}
		}
	case float64:
		// Unix seconds.
		if val > 0 {
			return time.Unix(int64(val), 0).UTC(), true
		}
	}
	return time.Time{}, false
}

func fileMtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Now()
	}
	return info.ModTime()
}
