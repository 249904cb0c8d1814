package partition

import (
	"time"

	"github.com/arkilian/abgen/pkg/types"
)

// GroupStats counts the sessions and conversions of one experiment arm.
type GroupStats struct {
	Rows        int64 `json:"rows"`
	Conversions int64 `json:"conversions"`
}

// StatsTracker tracks min/max and null statistics during partition build.
type StatsTracker struct {
	rowCount int64

	minTimestamp *time.Time
	maxTimestamp *time.Time

	// user ids compare lexicographically; fixed-width ids sort numerically
	minUserID *string
	maxUserID *string

	minOrderValue *float64
	maxOrderValue *float64

	nullDevice     int64
	nullOrderValue int64

	groups map[types.Group]*GroupStats
}

// NewStatsTracker creates a new statistics tracker.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{groups: make(map[types.Group]*GroupStats)}
}

// Update updates statistics with a new row.
func (s *StatsTracker) Update(row *types.SessionEvent) {
	s.rowCount++

	if s.minTimestamp == nil || row.Timestamp.Before(*s.minTimestamp) {
		ts := row.Timestamp
		s.minTimestamp = &ts
	}
	if s.maxTimestamp == nil || row.Timestamp.After(*s.maxTimestamp) {
		ts := row.Timestamp
		s.maxTimestamp = &ts
	}

	if s.minUserID == nil || row.UserID < *s.minUserID {
		id := row.UserID
		s.minUserID = &id
	}
	if s.maxUserID == nil || row.UserID > *s.maxUserID {
		id := row.UserID
		s.maxUserID = &id
	}

	if row.Device.IsMissing() {
		s.nullDevice++
	}

	if !row.HasOrderValue() {
		s.nullOrderValue++
	} else {
		v := *row.OrderValue
		if s.minOrderValue == nil || v < *s.minOrderValue {
			s.minOrderValue = &v
		}
		if s.maxOrderValue == nil || v > *s.maxOrderValue {
			s.maxOrderValue = &v
		}
	}

	g := s.groups[row.Group]
	if g == nil {
		g = &GroupStats{}
		s.groups[row.Group] = g
	}
	g.Rows++
	if row.Converted {
		g.Conversions++
	}
}

// GetMinMaxStats returns the computed min/max statistics keyed by column.
// Timestamps are rendered in the CSV layout.
func (s *StatsTracker) GetMinMaxStats() map[string]MinMax {
	stats := make(map[string]MinMax)

	if s.minTimestamp != nil && s.maxTimestamp != nil {
		stats["timestamp"] = MinMax{
			Min: s.minTimestamp.UTC().Format(timestampLayout),
			Max: s.maxTimestamp.UTC().Format(timestampLayout),
		}
	}

	if s.minUserID != nil && s.maxUserID != nil {
		stats["user_id"] = MinMax{Min: *s.minUserID, Max: *s.maxUserID}
	}

	if s.minOrderValue != nil && s.maxOrderValue != nil {
		stats["order_value"] = MinMax{Min: *s.minOrderValue, Max: *s.maxOrderValue}
	}

	return stats
}

// NullCounts returns the number of NULLs per nullable column.
func (s *StatsTracker) NullCounts() map[string]int64 {
	return map[string]int64{
		"device":      s.nullDevice,
		"order_value": s.nullOrderValue,
	}
}

// GroupCounts returns per-group row and conversion counts keyed by group name.
func (s *StatsTracker) GroupCounts() map[string]GroupStats {
	out := make(map[string]GroupStats, len(s.groups))
	for g, st := range s.groups {
		out[string(g)] = *st
	}
	return out
}

// RowCount returns the number of rows tracked.
func (s *StatsTracker) RowCount() int64 {
	return s.rowCount
}
