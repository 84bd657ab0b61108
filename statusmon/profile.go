// Package statusmon validates the health-state behaviour of NMOS status
// monitor objects: activation and deactivation transitions, the status
// reporting delay, overall status aggregation and transition counters. The
// rule evaluations are pure functions over captured notification slices so
// they can be exercised without a device.
package statusmon

import "github.com/c360/nccheck/nc"

// StatusValue is the shared health ordering used by monitor status
// properties. Higher values are less healthy.
type StatusValue int

const (
	StatusInactive StatusValue = iota
	StatusHealthy
	StatusPartiallyHealthy
	StatusUnhealthy
)

func (s StatusValue) String() string {
	switch s {
	case StatusInactive:
		return "Inactive"
	case StatusHealthy:
		return "Healthy"
	case StatusPartiallyHealthy:
		return "PartiallyHealthy"
	case StatusUnhealthy:
		return "Unhealthy"
	default:
		return "Unknown"
	}
}

// StatusProperty describes one domain status carried by a monitor class,
// together with its companion message and transition counter properties.
type StatusProperty struct {
	Name      string
	ID        nc.ElementID
	MessageID nc.ElementID
	// CounterID is the paired transition counter, zero when the class
	// defines none for this status.
	CounterID nc.ElementID
	// Inactivable marks statuses whose value 0 means Inactive, as opposed
	// to NotUsed (external synchronization) or link statuses that have no
	// zero value at all.
	Inactivable bool
	// ValidValues is the closed set of values the device may report.
	ValidValues []int
}

// HasCounter reports whether the status has a paired transition counter.
func (p StatusProperty) HasCounter() bool {
	return p.CounterID != nc.ElementID{}
}

// Allows reports whether value is a member of the status enumeration.
func (p StatusProperty) Allows(value int) bool {
	for _, v := range p.ValidValues {
		if v == value {
			return true
		}
	}
	return false
}

// Profile parameterizes the validator for one monitor kind. The base
// NcStatusMonitor properties sit at class level 3; the kind-specific domain
// statuses at level 4.
type Profile struct {
	Kind                   string
	ClassID                nc.ClassID
	TouchpointResourceType string

	OverallStatus        nc.ElementID
	OverallStatusMessage nc.ElementID
	StatusReportingDelay nc.ElementID

	Statuses []StatusProperty

	// AutoResetCounters and ResetCountersMethod are zero for monitor kinds
	// that define no counter surface.
	AutoResetCounters   nc.ElementID
	ResetCountersMethod nc.ElementID

	// ConnectionStatus names the domain status driven directly by resource
	// activation, used by the activation and reporting-delay rules.
	ConnectionStatus nc.ElementID

	// SynchronizationSourceID publishes the synchronization source in use:
	// null when none can be discovered, "internal" or the device's own id
	// when it is its own source. SynchronizationSourceChanges is the paired
	// change counter, zero for monitor kinds that do not count changes.
	SynchronizationSourceID      nc.ElementID
	SynchronizationSourceChanges nc.ElementID
}

// Status returns the profile entry for id.
func (p Profile) Status(id nc.ElementID) (StatusProperty, bool) {
	for _, s := range p.Statuses {
		if s.ID == id {
			return s, true
		}
	}
	return StatusProperty{}, false
}

var fullRange = []int{0, 1, 2, 3}

// SenderMonitorProfile describes NcSenderMonitor (class 1.2.2.2).
func SenderMonitorProfile() Profile {
	return Profile{
		Kind:                   "sender",
		ClassID:                nc.ClassID{1, 2, 2, 2},
		TouchpointResourceType: "sender",
		OverallStatus:          nc.ElementID{Level: 3, Index: 1},
		OverallStatusMessage:   nc.ElementID{Level: 3, Index: 2},
		StatusReportingDelay:   nc.ElementID{Level: 3, Index: 3},
		Statuses: []StatusProperty{
			{
				Name:        "linkStatus",
				ID:          nc.ElementID{Level: 4, Index: 1},
				MessageID:   nc.ElementID{Level: 4, Index: 2},
				CounterID:   nc.ElementID{Level: 4, Index: 3},
				ValidValues: []int{1, 2, 3},
			},
			{
				Name:        "transmissionStatus",
				ID:          nc.ElementID{Level: 4, Index: 4},
				MessageID:   nc.ElementID{Level: 4, Index: 5},
				CounterID:   nc.ElementID{Level: 4, Index: 6},
				Inactivable: true,
				ValidValues: fullRange,
			},
			{
				Name:        "externalSynchronizationStatus",
				ID:          nc.ElementID{Level: 4, Index: 7},
				MessageID:   nc.ElementID{Level: 4, Index: 8},
				CounterID:   nc.ElementID{Level: 4, Index: 9},
				ValidValues: fullRange,
			},
			{
				Name:        "essenceStatus",
				ID:          nc.ElementID{Level: 4, Index: 11},
				MessageID:   nc.ElementID{Level: 4, Index: 12},
				CounterID:   nc.ElementID{Level: 4, Index: 13},
				Inactivable: true,
				ValidValues: fullRange,
			},
		},
		AutoResetCounters:       nc.ElementID{Level: 4, Index: 14},
		ResetCountersMethod:     nc.ElementID{Level: 4, Index: 2},
		ConnectionStatus:        nc.ElementID{Level: 4, Index: 4},
		SynchronizationSourceID: nc.ElementID{Level: 4, Index: 10},
	}
}

// ReceiverMonitorProfile describes NcReceiverMonitor (class 1.2.2.1). The
// receiver class carries no per-status transition counters, so the counter
// rules report CouldNotTest against it.
func ReceiverMonitorProfile() Profile {
	return Profile{
		Kind:                   "receiver",
		ClassID:                nc.ClassID{1, 2, 2, 1},
		TouchpointResourceType: "receiver",
		OverallStatus:          nc.ElementID{Level: 3, Index: 1},
		OverallStatusMessage:   nc.ElementID{Level: 3, Index: 2},
		StatusReportingDelay:   nc.ElementID{Level: 3, Index: 3},
		Statuses: []StatusProperty{
			{
				Name:        "linkStatus",
				ID:          nc.ElementID{Level: 4, Index: 1},
				MessageID:   nc.ElementID{Level: 4, Index: 2},
				ValidValues: []int{1, 2, 3},
			},
			{
				Name:        "connectionStatus",
				ID:          nc.ElementID{Level: 4, Index: 3},
				MessageID:   nc.ElementID{Level: 4, Index: 4},
				Inactivable: true,
				ValidValues: fullRange,
			},
			{
				Name:        "externalSynchronizationStatus",
				ID:          nc.ElementID{Level: 4, Index: 5},
				MessageID:   nc.ElementID{Level: 4, Index: 6},
				ValidValues: fullRange,
			},
			{
				Name:        "streamStatus",
				ID:          nc.ElementID{Level: 4, Index: 9},
				MessageID:   nc.ElementID{Level: 4, Index: 10},
				Inactivable: true,
				ValidValues: fullRange,
			},
		},
		AutoResetCounters:            nc.ElementID{Level: 4, Index: 11},
		ConnectionStatus:             nc.ElementID{Level: 4, Index: 3},
		SynchronizationSourceID:      nc.ElementID{Level: 4, Index: 7},
		SynchronizationSourceChanges: nc.ElementID{Level: 4, Index: 8},
	}
}
