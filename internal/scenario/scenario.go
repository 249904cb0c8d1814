// Package scenario holds the parameter tables of the checkout experiment.
// The generator reads every probability, multiplier and bound from a Scenario,
// so swapping tables never touches the sampling code.
package scenario

import (
	"time"

	"github.com/arkilian/abgen/pkg/types"
)

// Scenario is the full set of generative parameters.
type Scenario struct {
	// UserPoolRatio sizes the user pool as floor(ratio * records)
	UserPoolRatio float64

	// UserIDPrefix and UserIDWidth format pool identifiers (U000001)
	UserIDPrefix string
	UserIDWidth  int

	// SessionIDPrefix and SessionIDWidth format row identifiers (S000001)
	SessionIDPrefix string
	SessionIDWidth  int

	// Start and Window bound the session timestamps
	Start  time.Time
	Window time.Duration

	// DeviceWeights is the categorical device distribution
	DeviceWeights map[types.Device]float64

	// BaseConversion is the control conversion probability per device
	BaseConversion map[types.Device]float64

	// Uplift multiplies the conversion probability, per group and device
	Uplift map[types.Group]map[types.Device]float64

	// BaseOrderValue is the log-normal median per device
	BaseOrderValue map[types.Device]float64

	// OrderValueMultiplier scales BaseOrderValue per group
	OrderValueMultiplier map[types.Group]float64

	// OrderValueSigma is the log-normal scale parameter
	OrderValueSigma float64

	// MinOrderValue and MaxOrderValue clamp the rounded draw
	MinOrderValue float64
	MaxOrderValue float64

	// MissingDeviceRatio sizes the missing-device injection as floor(ratio * records)
	MissingDeviceRatio float64

	// BucketCount and ControlBuckets drive hash assignment: buckets [0, ControlBuckets) are control
	BucketCount    uint64
	ControlBuckets uint64
}

// Checkout returns the multi-step vs single-page checkout scenario.
func Checkout() Scenario {
	return Scenario{
		UserPoolRatio:   0.95,
		UserIDPrefix:    "U",
		UserIDWidth:     6,
		SessionIDPrefix: "S",
		SessionIDWidth:  6,
		Start:           time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC),
		Window:          14 * 24 * time.Hour,
		DeviceWeights: map[types.Device]float64{
			types.DeviceDesktop: 0.45,
			types.DeviceMobile:  0.50,
			types.DeviceTablet:  0.05,
		},
		BaseConversion: map[types.Device]float64{
			types.DeviceDesktop: 0.12,
			types.DeviceMobile:  0.08,
			types.DeviceTablet:  0.09,
		},
		Uplift: map[types.Group]map[types.Device]float64{
			types.GroupControl: {
				types.DeviceDesktop: 1.0,
				types.DeviceMobile:  1.0,
				types.DeviceTablet:  1.0,
			},
			types.GroupTreatment: {
				types.DeviceDesktop: 1.10,
				types.DeviceMobile:  1.05,
				types.DeviceTablet:  1.05,
			},
		},
		BaseOrderValue: map[types.Device]float64{
			types.DeviceDesktop: 65,
			types.DeviceMobile:  45,
			types.DeviceTablet:  55,
		},
		OrderValueMultiplier: map[types.Group]float64{
			types.GroupControl:   1.0,
			types.GroupTreatment: 1.05,
		},
		OrderValueSigma:    0.5,
		MinOrderValue:      5.0,
		MaxOrderValue:      500.0,
		MissingDeviceRatio: 0.001,
		BucketCount:        100,
		ControlBuckets:     50,
	}
}

// WindowSeconds returns the experiment window in whole seconds.
func (s Scenario) WindowSeconds() int64 {
	return int64(s.Window / time.Second)
}

// PoolSize returns the number of distinct user identifiers for n records.
// The pool never drops below one identifier so sampling always has a source.
func (s Scenario) PoolSize(n int) int {
	size := int(float64(n) * s.UserPoolRatio)
	if size < 1 {
		size = 1
	}
	return size
}

// MissingDeviceCount returns how many rows lose their device for n records.
func (s Scenario) MissingDeviceCount(n int) int {
	return int(float64(n) * s.MissingDeviceRatio)
}

// DeviceCDF returns the device classes and their cumulative weights in sampling order.
func (s Scenario) DeviceCDF() ([]types.Device, []float64) {
	devices := make([]types.Device, 0, len(types.Devices))
	cdf := make([]float64, 0, len(types.Devices))

	sum := 0.0
	for _, d := range types.Devices {
		sum += s.DeviceWeights[d]
	}
	acc := 0.0
	for _, d := range types.Devices {
		w, ok := s.DeviceWeights[d]
		if !ok {
			continue
		}
		acc += w / sum
		devices = append(devices, d)
		cdf = append(cdf, acc)
	}
	// Guard against the last bucket landing just under 1.0.
	if n := len(cdf); n > 0 {
		cdf[n-1] = 1.0
	}
	return devices, cdf
}
