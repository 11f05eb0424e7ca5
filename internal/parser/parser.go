// Package parser normalizes loosely shaped habit and repetition records (JSON, YAML
// or database rows) into the canonical models used by the retention engine.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/retention"
)

// Record is one decoded object with arbitrary field names.
type Record = map[string]any

var (
	habitRefKeys    = []string{"habitId", "habit", "habit_id", "habitID"}
	timestampKeys   = []string{"timestamp", "ts", "time"}
	valueKeys       = []string{"value", "valueRaw"}
	nameKeys        = []string{"name", "title"}
	descriptionKeys = []string{"description", "desc", "details", "note", "notes", "descriptionText"}
	questionKeys    = []string{"question", "q", "prompt", "inquiry", "titleQuestion"}
	targetKeys      = []string{"targetValue", "target_value", "target"}
	targetTypeKeys  = []string{"targetType", "target_type"}
	archivedKeys    = []string{"archived", "is_archived"}
	colorKeys       = []string{"color", "colour", "color_rgb"}
	freqNumKeys     = []string{"freqNum", "freq_num"}
	freqDenKeys     = []string{"freqDen", "freq_den"}
)

// ParseHabits decodes a JSON or YAML payload holding habits. Accepted envelopes are a
// bare list, {habits: [...]} and {data: {habits: [...]}}.
func ParseHabits(data []byte) ([]models.Habit, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}
	items := list(doc, "habits")
	if items == nil {
		if m := asRecord(doc); m != nil {
			items = list(m["data"], "habits")
		}
	}
	out := make([]models.Habit, 0, len(items))
	for i, it := range items {
		rec := asRecord(it)
		if rec == nil {
			continue
		}
		out = append(out, HabitFromRecord(rec, i))
	}
	return out, nil
}

// ParseRepetitions decodes a JSON or YAML payload holding repetitions, either a bare
// list or {repetitions: [...]}. Records without a habit reference or a usable
// timestamp are skipped.
func ParseRepetitions(data []byte) ([]models.Repetition, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}
	items := list(doc, "repetitions")
	out := make([]models.Repetition, 0, len(items))
	for _, it := range items {
		rec := asRecord(it)
		if rec == nil {
			continue
		}
		if r, ok := RepetitionFromRecord(rec); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// HabitFromRecord builds a habit from rec. idx is used as a fallback id (idx+1) when
// the record carries none.
func HabitFromRecord(rec Record, idx int) models.Habit {
	h := models.Habit{
		ID:          int64(idx + 1),
		Name:        str(rec, nameKeys...),
		Description: str(rec, descriptionKeys...),
		Question:    str(rec, questionKeys...),
		Unit:        str(rec, "unit"),
		UUID:        str(rec, "uuid"),
	}
	if v, ok := first(rec, "id"); ok {
		if id, err := cast.ToInt64E(v); err == nil {
			h.ID = id
		}
	}
	if h.Name == "" {
		h.Name = fmt.Sprintf("Habit #%d", idx+1)
	}
	if v, ok := first(rec, "type"); ok {
		h.Type = models.HabitType(cast.ToInt(v)).Normalize()
	}
	if v, ok := first(rec, targetKeys...); ok {
		h.TargetValue = cast.ToFloat64(v)
	}
	if v, ok := first(rec, targetTypeKeys...); ok {
		h.TargetType = cast.ToInt(v)
	}
	if v, ok := first(rec, "position"); ok {
		h.Position = cast.ToInt(v)
	}
	if v, ok := first(rec, archivedKeys...); ok {
		h.Archived = cast.ToBool(v)
	}
	if v, ok := first(rec, colorKeys...); ok {
		h.Color = cast.ToInt64(v)
	}
	if v, ok := first(rec, freqNumKeys...); ok {
		h.FreqNum = cast.ToInt(v)
	}
	if v, ok := first(rec, freqDenKeys...); ok {
		h.FreqDen = cast.ToInt(v)
	}
	return h
}

// RepetitionFromRecord builds a repetition from rec. It reports false when the record
// has no habit reference or no numeric timestamp. Values that are missing, not
// numeric or not finite become 0.
func RepetitionFromRecord(rec Record) (models.Repetition, bool) {
	ref, ok := first(rec, habitRefKeys...)
	if !ok {
		return models.Repetition{}, false
	}
	habitID, err := cast.ToInt64E(ref)
	if err != nil {
		return models.Repetition{}, false
	}

	tsRaw, ok := first(rec, timestampKeys...)
	if !ok {
		return models.Repetition{}, false
	}
	ts, err := cast.ToFloat64E(tsRaw)
	if err != nil {
		return models.Repetition{}, false
	}

	var value int64
	if v, ok := first(rec, valueKeys...); ok {
		if f, err := cast.ToFloat64E(v); err == nil {
			value = retention.SanitizeRaw(f)
		}
	}

	return models.Repetition{
		HabitID:   habitID,
		Timestamp: retention.SanitizeRaw(ts),
		Value:     value,
		Notes:     str(rec, "notes"),
	}, true
}

// decode reads JSON, falling back to YAML.
func decode(data []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err == nil {
		return doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parser: decode: %w", err)
	}
	return doc, nil
}

// list returns doc itself when it is a list, or doc[key] when doc is a mapping.
func list(doc any, key string) []any {
	if l, ok := doc.([]any); ok {
		return l
	}
	if m := asRecord(doc); m != nil {
		if l, ok := m[key].([]any); ok {
			return l
		}
	}
	return nil
}

func asRecord(v any) Record {
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[any]any:
		out := make(Record, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out
	}
	return nil
}

// first returns the value of the first key present with a non-nil value.
func first(rec Record, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func str(rec Record, keys ...string) string {
	v, ok := first(rec, keys...)
	if !ok {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}
