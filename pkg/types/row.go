// Package types provides the core data types for abgen datasets.
package types

import "time"

// Group is an experiment arm.
type Group string

const (
	GroupControl   Group = "control"
	GroupTreatment Group = "treatment"
)

// Groups lists the experiment arms in report order.
var Groups = []Group{GroupControl, GroupTreatment}

// LandingPage returns the checkout page a group is sent to. The mapping is 1:1.
func (g Group) LandingPage() string {
	if g == GroupTreatment {
		return LandingPageOnePage
	}
	return LandingPageStepOne
}

const (
	// LandingPageStepOne is the first page of the multi-step checkout (control).
	LandingPageStepOne = "checkout_step_1"

	// LandingPageOnePage is the single-page checkout (treatment).
	LandingPageOnePage = "checkout_one_page"
)

// Device is the device class a session was made from.
type Device string

const (
	DeviceDesktop Device = "Desktop"
	DeviceMobile  Device = "Mobile"
	DeviceTablet  Device = "Tablet"

	// DeviceMissing marks a session whose device was blanked by noise injection.
	DeviceMissing Device = ""
)

// Devices lists the device classes in sampling order.
var Devices = []Device{DeviceDesktop, DeviceMobile, DeviceTablet}

// IsMissing reports whether the device value is absent.
func (d Device) IsMissing() bool {
	return d == DeviceMissing
}

// SessionEvent represents a single row of the generated experiment table.
type SessionEvent struct {
	// SessionID is the sequence-ordered identifier (S000001, S000002, ...)
	SessionID string `json:"session_id"`

	// UserID is drawn from the user pool and may repeat across rows
	UserID string `json:"user_id"`

	// Timestamp is the session start, within the experiment window
	Timestamp time.Time `json:"timestamp"`

	// Group is the experiment arm, a pure function of UserID
	Group Group `json:"group"`

	// LandingPage is derived from Group
	LandingPage string `json:"landing_page"`

	// Device is the device class, or DeviceMissing
	Device Device `json:"device"`

	// Converted reports whether the session ended in an order
	Converted bool `json:"converted"`

	// OrderValue is set if and only if Converted is true
	OrderValue *float64 `json:"order_value,omitempty"`
}

// HasOrderValue reports whether the row carries an order value.
func (e SessionEvent) HasOrderValue() bool {
	return e.OrderValue != nil
}
