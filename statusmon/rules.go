package statusmon

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/nccheck/eventlog"
	"github.com/c360/nccheck/nc"
)

// Rule identifies one behavioural requirement checked by the validator.
type Rule string

const (
	RuleTouchpoint         Rule = "touchpoint"
	RuleStatusValues       Rule = "status-values"
	RuleActivationHealthy  Rule = "activation-healthy"
	RuleReportingDelay     Rule = "reporting-delay"
	RuleDegradesAfterDelay Rule = "degrades-after-delay"
	RuleOverallAggregation Rule = "overall-aggregation"
	RuleDeactivation       Rule = "deactivation-direct-to-inactive"
	RuleTransitionCounters Rule = "transition-counters"
	RuleResetCounters      Rule = "reset-counters"
	RuleAutoResetCounters  Rule = "auto-reset-counters"
	RuleReportingDelaySet  Rule = "reporting-delay-round-trip"
	RuleSyncSourceID       Rule = "synchronization-source-id"
)

// Outcome is the verdict for one rule.
type Outcome int

const (
	Passed Outcome = iota
	Failed
	// CouldNotTest means the device never produced the conditions the rule
	// needs, which is not a conformance failure.
	CouldNotTest
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case CouldNotTest:
		return "could not test"
	default:
		return "unknown"
	}
}

// RuleResult is one rule verdict with its supporting detail.
type RuleResult struct {
	Rule     Rule
	Outcome  Outcome
	Message  string
	SpecLink string
}

// Report accumulates rule verdicts for one monitor run.
type Report struct {
	MonitorOID int
	ResourceID string
	Results    []RuleResult
}

func (r *Report) add(result RuleResult) {
	r.Results = append(r.Results, result)
}

// Passed reports whether no rule failed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if res.Outcome == Failed {
			return false
		}
	}
	return true
}

// Failures returns the failed rule results.
func (r *Report) Failures() []RuleResult {
	var out []RuleResult
	for _, res := range r.Results {
		if res.Outcome == Failed {
			out = append(out, res)
		}
	}
	return out
}

func pass(rule Rule) RuleResult {
	return RuleResult{Rule: rule, Outcome: Passed}
}

func fail(rule Rule, format string, args ...any) RuleResult {
	return RuleResult{Rule: rule, Outcome: Failed, Message: fmt.Sprintf(format, args...)}
}

func skip(rule Rule, format string, args ...any) RuleResult {
	return RuleResult{Rule: rule, Outcome: CouldNotTest, Message: fmt.Sprintf(format, args...)}
}

// intValue decodes a notification payload as an integer status or counter
// value.
func intValue(raw json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return int(f), true
}

func forProperty(notifications []eventlog.Notification, propertyID nc.ElementID) []eventlog.Notification {
	var out []eventlog.Notification
	for _, n := range notifications {
		if n.PropertyID == propertyID {
			out = append(out, n)
		}
	}
	return out
}

// latestValue folds a capture window over an initial value: the last
// notification for propertyID wins, the initial value stands when there is
// none.
func latestValue(initial int, notifications []eventlog.Notification, propertyID nc.ElementID) int {
	matched := forProperty(notifications, propertyID)
	if len(matched) == 0 {
		return initial
	}
	if v, ok := intValue(matched[len(matched)-1].Value); ok {
		return v
	}
	return initial
}

// checkStatusValues rejects any notification whose status value falls outside
// its property's enumeration.
func checkStatusValues(profile Profile, notifications []eventlog.Notification) RuleResult {
	for _, n := range notifications {
		prop, ok := profile.Status(n.PropertyID)
		if !ok {
			if n.PropertyID != profile.OverallStatus {
				continue
			}
			prop = StatusProperty{Name: "overallStatus", ValidValues: fullRange}
		}
		v, ok := intValue(n.Value)
		if !ok {
			return fail(RuleStatusValues, "%s notification carries a non-integer value %s", prop.Name, n.Value)
		}
		if !prop.Allows(v) {
			return fail(RuleStatusValues, "%s reported out-of-enum value %d", prop.Name, v)
		}
	}
	return pass(RuleStatusValues)
}

// checkActivation verifies that the connection status transitioned to Healthy
// at or just after activation, within the notification-latency tolerance.
func checkActivation(profile Profile, notifications []eventlog.Notification, activationTime time.Time, tolerance time.Duration) RuleResult {
	matched := forProperty(notifications, profile.ConnectionStatus)
	if len(matched) == 0 {
		return fail(RuleActivationHealthy, "no status notifications received after activation")
	}
	first := matched[0]
	if v, ok := intValue(first.Value); !ok || StatusValue(v) != StatusHealthy {
		return fail(RuleActivationHealthy, "expected status to transition to Healthy on activation, got %s", first.Value)
	}
	if first.ReceivedAt.After(activationTime.Add(tolerance)) {
		return fail(RuleActivationHealthy, "Healthy transition arrived %v after activation, tolerance %v",
			first.ReceivedAt.Sub(activationTime), tolerance)
	}
	return pass(RuleActivationHealthy)
}

// checkReportingDelay verifies that the connection status did not degrade
// before the status reporting delay elapsed. A transition to Inactive is
// allowed at any time: early teardown is not a degradation.
func checkReportingDelay(profile Profile, notifications []eventlog.Notification, activationTime time.Time, delay time.Duration) RuleResult {
	matched := forProperty(notifications, profile.ConnectionStatus)
	deadline := activationTime.Add(delay)
	for i, n := range matched {
		if i == 0 {
			continue // the activation transition itself
		}
		v, ok := intValue(n.Value)
		if !ok {
			continue
		}
		if StatusValue(v) != StatusInactive && n.ReceivedAt.Before(deadline) {
			return fail(RuleReportingDelay,
				"status degraded to %s %v after activation, before the %v reporting delay elapsed",
				StatusValue(v), n.ReceivedAt.Sub(activationTime), delay)
		}
	}
	return pass(RuleReportingDelay)
}

// checkDegradesAfterDelay observes whether the status transitioned to a less
// healthy state once the reporting delay elapsed. With no real stream behind
// the resource a degradation is expected; a monitor that never degrades is
// reported as untestable rather than failing.
func checkDegradesAfterDelay(profile Profile, notifications []eventlog.Notification) RuleResult {
	matched := forProperty(notifications, profile.ConnectionStatus)
	if len(matched) < 2 {
		return skip(RuleDegradesAfterDelay, "status never left Healthy during the capture window")
	}
	return pass(RuleDegradesAfterDelay)
}

// checkOverallAggregation verifies the overall status against the domain
// statuses at the end of a capture window: Inactive when any inactivable
// status is Inactive, otherwise the least healthy domain value.
func checkOverallAggregation(profile Profile, initial map[nc.ElementID]int, notifications []eventlog.Notification) RuleResult {
	overall := latestValue(initial[profile.OverallStatus], notifications, profile.OverallStatus)

	allActive := true
	for _, prop := range profile.Statuses {
		if !prop.Inactivable {
			continue
		}
		v := latestValue(initial[prop.ID], notifications, prop.ID)
		if StatusValue(v) == StatusInactive {
			allActive = false
			if StatusValue(overall) != StatusInactive {
				return fail(RuleOverallAggregation,
					"overall status expected to be Inactive while %s is Inactive, got %s",
					prop.Name, StatusValue(overall))
			}
		}
	}
	if !allActive {
		return pass(RuleOverallAggregation)
	}

	leastHealthy := 0
	for _, prop := range profile.Statuses {
		if v := latestValue(initial[prop.ID], notifications, prop.ID); v > leastHealthy {
			leastHealthy = v
		}
	}
	if overall != leastHealthy {
		return fail(RuleOverallAggregation, "expected overall status %s, got %s",
			StatusValue(leastHealthy), StatusValue(overall))
	}
	return pass(RuleOverallAggregation)
}

// checkDeactivation verifies a clean disconnect: after deactivation every
// inactivable status and the overall status must reach Inactive without
// intermediate PartiallyHealthy or Unhealthy states and without waiting for
// the reporting delay. The first notification per property may restate the
// pre-deactivation value; every later one must be Inactive.
func checkDeactivation(profile Profile, notifications []eventlog.Notification) RuleResult {
	ids := []nc.ElementID{profile.OverallStatus}
	names := map[nc.ElementID]string{profile.OverallStatus: "overallStatus"}
	for _, prop := range profile.Statuses {
		if prop.Inactivable {
			ids = append(ids, prop.ID)
			names[prop.ID] = prop.Name
		}
	}

	for _, id := range ids {
		matched := forProperty(notifications, id)
		if len(matched) == 0 {
			return fail(RuleDeactivation, "no %s notifications received after deactivation", names[id])
		}
		last, ok := intValue(matched[len(matched)-1].Value)
		if !ok || StatusValue(last) != StatusInactive {
			return fail(RuleDeactivation, "%s did not transition to Inactive after deactivation", names[id])
		}
		for _, n := range matched[1:] {
			if v, ok := intValue(n.Value); ok && StatusValue(v) != StatusInactive {
				return fail(RuleDeactivation,
					"%s passed through intermediate state %s while deactivating", names[id], StatusValue(v))
			}
		}
	}
	return pass(RuleDeactivation)
}

// checkTransitionCounters verifies each counter incremented once per observed
// value change of its paired status. initialStatuses and initialCounters are
// the values read before the capture window; finalCounters the values read
// after it.
func checkTransitionCounters(profile Profile, initialStatuses, initialCounters, finalCounters map[nc.ElementID]int, notifications []eventlog.Notification) RuleResult {
	tested := false
	for _, prop := range profile.Statuses {
		if !prop.HasCounter() {
			continue
		}
		tested = true

		changes := 0
		previous := initialStatuses[prop.ID]
		for _, n := range forProperty(notifications, prop.ID) {
			v, ok := intValue(n.Value)
			if !ok {
				continue
			}
			if v != previous {
				changes++
				previous = v
			}
		}

		expected := initialCounters[prop.CounterID] + changes
		if got := finalCounters[prop.CounterID]; got != expected {
			return fail(RuleTransitionCounters,
				"%s changed value %d times but its transition counter moved from %d to %d",
				prop.Name, changes, initialCounters[prop.CounterID], got)
		}
	}
	if !tested {
		return skip(RuleTransitionCounters, "%s monitor defines no transition counters", profile.Kind)
	}
	return pass(RuleTransitionCounters)
}
