package partition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arkilian/abgen/internal/bloom"
	"github.com/arkilian/abgen/pkg/types"
)

// MetadataSidecar represents the .meta.json file structure.
type MetadataSidecar struct {
	PartitionID   string                      `json:"partition_id"`
	PartitionKey  string                      `json:"partition_key"`
	SchemaVersion int                         `json:"schema_version"`
	Stats         PartitionStats              `json:"stats"`
	BloomFilters  map[string]*BloomFilterMeta `json:"bloom_filters"`
	CreatedAt     int64                       `json:"created_at"`
}

// PartitionStats holds partition-level statistics.
type PartitionStats struct {
	RowCount      int64                 `json:"row_count"`
	SizeBytes     int64                 `json:"size_bytes"`
	MinTimestamp  *string               `json:"min_timestamp,omitempty"`
	MaxTimestamp  *string               `json:"max_timestamp,omitempty"`
	MinUserID     *string               `json:"min_user_id,omitempty"`
	MaxUserID     *string               `json:"max_user_id,omitempty"`
	MinOrderValue *float64              `json:"min_order_value,omitempty"`
	MaxOrderValue *float64              `json:"max_order_value,omitempty"`
	NullCounts    map[string]int64      `json:"null_counts"`
	Groups        map[string]GroupStats `json:"groups"`
}

// BloomFilterMeta holds bloom filter metadata and data.
type BloomFilterMeta struct {
	Algorithm    string  `json:"algorithm"`
	NumBits      int     `json:"num_bits"`
	NumHashes    int     `json:"num_hashes"`
	Count        uint64  `json:"count"`
	EstimatedFPR float64 `json:"estimated_fpr"`
	Base64Data   string  `json:"base64_data"`
}

// Filter decodes the stored filter.
func (m *BloomFilterMeta) Filter() (*bloom.Filter, error) {
	return bloom.DecodeBase64(m.Base64Data)
}

// MetadataGenerator generates metadata sidecars for partitions.
type MetadataGenerator struct {
	targetFPR float64
}

// NewMetadataGenerator creates a new metadata generator with a 1% bloom
// filter false positive rate.
func NewMetadataGenerator() *MetadataGenerator {
	return &MetadataGenerator{targetFPR: 0.01}
}

// Generate creates a metadata sidecar for the given partition info and rows.
func (g *MetadataGenerator) Generate(info *PartitionInfo, rows []types.SessionEvent) *MetadataSidecar {
	stats := PartitionStats{
		RowCount:   info.RowCount,
		SizeBytes:  info.SizeBytes,
		NullCounts: info.NullCounts,
		Groups:     info.Groups,
	}

	if mm, ok := info.MinMaxStats["timestamp"]; ok {
		stats.MinTimestamp = stringPtr(mm.Min)
		stats.MaxTimestamp = stringPtr(mm.Max)
	}
	if mm, ok := info.MinMaxStats["user_id"]; ok {
		stats.MinUserID = stringPtr(mm.Min)
		stats.MaxUserID = stringPtr(mm.Max)
	}
	if mm, ok := info.MinMaxStats["order_value"]; ok {
		if v, ok := mm.Min.(float64); ok {
			stats.MinOrderValue = &v
		}
		if v, ok := mm.Max.(float64); ok {
			stats.MaxOrderValue = &v
		}
	}

	return &MetadataSidecar{
		PartitionID:   info.PartitionID,
		PartitionKey:  info.PartitionKey,
		SchemaVersion: info.SchemaVersion,
		Stats:         stats,
		BloomFilters:  map[string]*BloomFilterMeta{"user_id": g.userFilter(rows)},
		CreatedAt:     info.CreatedAt.Unix(),
	}
}

// userFilter builds a bloom filter over the distinct user ids in rows.
func (g *MetadataGenerator) userFilter(rows []types.SessionEvent) *BloomFilterMeta {
	seen := make(map[string]struct{}, len(rows))
	for i := range rows {
		seen[rows[i].UserID] = struct{}{}
	}

	f := bloom.NewWithEstimates(len(seen), g.targetFPR)
	for id := range seen {
		f.AddString(id)
	}

	return &BloomFilterMeta{
		Algorithm:    bloom.Algorithm,
		NumBits:      f.NumBits(),
		NumHashes:    f.NumHashes(),
		Count:        f.Count(),
		EstimatedFPR: f.EstimatedFPR(),
		Base64Data:   f.EncodeBase64(),
	}
}

func stringPtr(v interface{}) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// MayContainUser reports whether userID may appear in the partition. It
// returns true when the sidecar carries no user filter.
func (s *MetadataSidecar) MayContainUser(userID string) (bool, error) {
	meta, ok := s.BloomFilters["user_id"]
	if !ok || meta == nil {
		return true, nil
	}
	f, err := meta.Filter()
	if err != nil {
		return false, fmt.Errorf("metadata: failed to decode user_id filter: %w", err)
	}
	return f.ContainsString(userID), nil
}

// WriteToFile writes the metadata sidecar to a JSON file.
func (s *MetadataSidecar) WriteToFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("metadata: failed to marshal sidecar: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("metadata: failed to write sidecar file: %w", err)
	}

	return nil
}

// ReadMetadataFromFile reads a metadata sidecar from a JSON file.
func ReadMetadataFromFile(path string) (*MetadataSidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to read sidecar file: %w", err)
	}

	var sidecar MetadataSidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return nil, fmt.Errorf("metadata: failed to unmarshal sidecar: %w", err)
	}

	return &sidecar, nil
}

// GenerateMetadataPath returns the metadata file path for a given SQLite path.
func GenerateMetadataPath(sqlitePath string) string {
	return strings.TrimSuffix(sqlitePath, filepath.Ext(sqlitePath)) + ".meta.json"
}

// GenerateAndWrite generates metadata, writes it next to the partition and
// records the path on info.
func (g *MetadataGenerator) GenerateAndWrite(info *PartitionInfo, rows []types.SessionEvent) (string, error) {
	sidecar := g.Generate(info, rows)

	metadataPath := GenerateMetadataPath(info.SQLitePath)
	if err := sidecar.WriteToFile(metadataPath); err != nil {
		return "", err
	}
	info.MetadataPath = metadataPath

	return metadataPath, nil
}
