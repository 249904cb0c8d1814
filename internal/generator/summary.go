package generator

import (
	"github.com/arkilian/abgen/pkg/types"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the observability counts of a generated table.
type Summary struct {
	Records        int
	Control        int
	Treatment      int
	Conversions    int
	ConversionRate float64
	MissingDevices int

	// GroupConversionRate and MeanOrderValue are keyed by experiment arm.
	GroupConversionRate map[types.Group]float64
	MeanOrderValue      map[types.Group]float64
}

// Summary computes row counts per group and conversion statistics.
func (t *Table) Summary() Summary {
	s := Summary{
		Records:             len(t.Rows),
		GroupConversionRate: make(map[types.Group]float64, len(types.Groups)),
		MeanOrderValue:      make(map[types.Group]float64, len(types.Groups)),
	}

	rows := make(map[types.Group]int, len(types.Groups))
	conversions := make(map[types.Group]int, len(types.Groups))
	values := make(map[types.Group][]float64, len(types.Groups))

	for _, r := range t.Rows {
		rows[r.Group]++
		if r.Device.IsMissing() {
			s.MissingDevices++
		}
		if r.Converted {
			s.Conversions++
			conversions[r.Group]++
		}
		if r.HasOrderValue() {
			values[r.Group] = append(values[r.Group], *r.OrderValue)
		}
	}

	s.Control = rows[types.GroupControl]
	s.Treatment = rows[types.GroupTreatment]
	if s.Records > 0 {
		s.ConversionRate = float64(s.Conversions) / float64(s.Records)
	}
	for _, g := range types.Groups {
		if rows[g] > 0 {
			s.GroupConversionRate[g] = float64(conversions[g]) / float64(rows[g])
		}
		if len(values[g]) > 0 {
			s.MeanOrderValue[g] = stat.Mean(values[g], nil)
		}
	}
	return s
}
