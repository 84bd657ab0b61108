package statusmon

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/c360/nccheck/errors"
	"github.com/c360/nccheck/eventlog"
	"github.com/c360/nccheck/nc"
	"github.com/c360/nccheck/protocol"
)

const component = "statusmon"

// Spec references attached to rule failures.
const (
	specRootBCP00801   = "https://specs.amwa.tv/bcp-008-01/"
	linkReportingDelay = specRootBCP00801 + "docs/Overview.html#status-reporting-delay"
	linkDeactivation   = specRootBCP00801 + "docs/Overview.html#deactivating-a-receiver"
	linkCounters       = specRootBCP00801 + "docs/Overview.html#status-transition-counters"
	linkTouchpoint     = specRootBCP00801 + "docs/Overview.html#touchpoints-and-is-04-receivers"
	linkOverallStatus  = specRootBCP00801 + "docs/Overview.html#overall-status"
	linkSyncSource     = specRootBCP00801 + "docs/Overview.html#synchronization-source-change"
)

var ruleLinks = map[Rule]string{
	RuleTouchpoint:         linkTouchpoint,
	RuleActivationHealthy:  linkReportingDelay,
	RuleReportingDelay:     linkReportingDelay,
	RuleDegradesAfterDelay: linkReportingDelay,
	RuleOverallAggregation: linkOverallStatus,
	RuleDeactivation:       linkDeactivation,
	RuleTransitionCounters: linkCounters,
	RuleResetCounters:      linkCounters,
	RuleAutoResetCounters:  linkCounters,
	RuleSyncSourceID:       linkSyncSource,
}

// Driver activates and deactivates the monitored resource through the
// Connection Management API. The validator treats the bodies as opaque; it
// only needs success or failure.
type Driver interface {
	Activate(ctx context.Context, resourceID string) error
	Deactivate(ctx context.Context, resourceID string) error
}

// Options tunes a Validator.
type Options struct {
	// ReportingDelay is written to the monitor before activation. Zero
	// means the published default of 3 seconds.
	ReportingDelay time.Duration
	// SettleTime is how long to wait after activation or deactivation for
	// notifications to arrive. Zero means 2 seconds.
	SettleTime time.Duration
	// Tolerance bounds the notification latency allowed on the
	// activation-to-Healthy transition. Zero means 200 milliseconds.
	Tolerance time.Duration
	Logger    *slog.Logger
}

// Validator runs the status monitor checks against one live device.
type Validator struct {
	client  *protocol.Client
	log     *eventlog.Log
	profile Profile
	driver  Driver

	reportingDelay time.Duration
	settleTime     time.Duration
	tolerance      time.Duration
	logger         *slog.Logger
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewValidator creates a validator over an established protocol client.
func NewValidator(client *protocol.Client, profile Profile, driver Driver, opts Options) *Validator {
	if opts.ReportingDelay <= 0 {
		opts.ReportingDelay = 3 * time.Second
	}
	if opts.SettleTime <= 0 {
		opts.SettleTime = 2 * time.Second
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 200 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		client:         client,
		log:            client.Notifications(),
		profile:        profile,
		driver:         driver,
		reportingDelay: opts.ReportingDelay,
		settleTime:     opts.SettleTime,
		tolerance:      opts.Tolerance,
		logger:         logger.With(slog.String("component", component), slog.String("monitor", profile.Kind)),
		now:            time.Now,
		sleep:          sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the full check sequence against the monitor object and returns
// the accumulated report. An error means the run could not be driven at all;
// conformance verdicts live in the report.
func (v *Validator) Run(ctx context.Context, monitorOID int) (*Report, error) {
	report := &Report{MonitorOID: monitorOID}

	if _, err := v.client.Subscribe(ctx, []int{monitorOID}); err != nil {
		return nil, errors.Wrap(err, component, "Run", "subscribe to monitor")
	}

	resourceID, touchpointResult := v.resolveTouchpoint(ctx, monitorOID)
	v.record(report, touchpointResult)
	if touchpointResult.Outcome == Failed {
		return report, nil
	}
	report.ResourceID = resourceID

	// The checks depend on the resource starting inactive.
	initial, err := v.readStatuses(ctx, monitorOID)
	if err != nil {
		return nil, err
	}
	if StatusValue(initial[v.profile.OverallStatus]) != StatusInactive {
		if err := v.driver.Deactivate(ctx, resourceID); err != nil {
			return nil, errors.Wrap(err, component, "Run", "deactivate resource")
		}
		if err := v.sleep(ctx, v.settleTime); err != nil {
			return nil, err
		}
		if initial, err = v.readStatuses(ctx, monitorOID); err != nil {
			return nil, err
		}
	}

	v.record(report, v.checkReportingDelaySet(ctx, monitorOID))
	v.record(report, v.checkSyncSourceID(ctx, monitorOID))

	initialCounters, err := v.readCounters(ctx, monitorOID)
	if err != nil {
		return nil, err
	}

	v.log.Reset()
	activationTime := v.now()

	if err := v.driver.Activate(ctx, resourceID); err != nil {
		return nil, errors.Wrap(err, component, "Run", "activate resource")
	}
	if err := v.sleep(ctx, v.reportingDelay+v.settleTime); err != nil {
		return nil, err
	}

	notifications := v.monitorNotifications(activationTime)

	v.record(report, checkStatusValues(v.profile, notifications))
	v.record(report, checkActivation(v.profile, notifications, activationTime, v.tolerance))
	v.record(report, checkReportingDelay(v.profile, notifications, activationTime, v.reportingDelay))
	v.record(report, checkDegradesAfterDelay(v.profile, notifications))
	v.record(report, checkOverallAggregation(v.profile, initial, notifications))

	finalCounters, err := v.readCounters(ctx, monitorOID)
	if err != nil {
		return nil, err
	}
	v.record(report, checkTransitionCounters(v.profile, initial, initialCounters, finalCounters, notifications))
	v.record(report, v.checkResetCounters(ctx, monitorOID))

	deactivationTime := v.now()
	if err := v.driver.Deactivate(ctx, resourceID); err != nil {
		return nil, errors.Wrap(err, component, "Run", "deactivate resource")
	}
	if err := v.sleep(ctx, v.settleTime); err != nil {
		return nil, err
	}
	v.record(report, checkDeactivation(v.profile, v.monitorNotifications(deactivationTime)))

	v.record(report, v.checkAutoResetCounters(ctx, monitorOID, resourceID))

	v.logger.Info("status monitor check complete",
		slog.Int("oid", monitorOID),
		slog.Bool("passed", report.Passed()),
		slog.Int("rules", len(report.Results)))

	return report, nil
}

func (v *Validator) record(report *Report, result RuleResult) {
	if result.SpecLink == "" {
		result.SpecLink = ruleLinks[result.Rule]
	}
	report.add(result)
	if result.Outcome == Failed {
		v.logger.Warn("rule failed", slog.String("rule", string(result.Rule)), slog.String("detail", result.Message))
	}
}

// resolveTouchpoint finds the IS-04 resource behind the monitor: exactly one
// x-nmos touchpoint with the profile's resource type.
func (v *Validator) resolveTouchpoint(ctx context.Context, monitorOID int) (string, RuleResult) {
	var touchpoints []nc.Touchpoint
	if err := v.client.GetPropertyValue(ctx, monitorOID, nc.PropTouchpoints, &touchpoints); err != nil {
		return "", fail(RuleTouchpoint, "could not read touchpoints: %v", err)
	}

	var resources []nc.TouchpointResource
	for _, tp := range touchpoints {
		if tp.ContextNamespace != "x-nmos" || tp.Resource == nil {
			continue
		}
		var resource nc.TouchpointResource
		if err := json.Unmarshal(tp.Resource, &resource); err != nil {
			return "", fail(RuleTouchpoint, "malformed touchpoint resource: %v", err)
		}
		resources = append(resources, resource)
	}

	if len(resources) != 1 {
		return "", fail(RuleTouchpoint, "exactly one x-nmos touchpoint required, found %d", len(resources))
	}
	if resources[0].ResourceType != v.profile.TouchpointResourceType {
		return "", fail(RuleTouchpoint, "touchpoint resourceType must be %q, got %q",
			v.profile.TouchpointResourceType, resources[0].ResourceType)
	}
	return resources[0].ID, pass(RuleTouchpoint)
}

// checkReportingDelaySet writes the published default reporting delay and
// reads it back.
func (v *Validator) checkReportingDelaySet(ctx context.Context, monitorOID int) RuleResult {
	delaySeconds := int(v.reportingDelay / time.Second)
	result, err := v.client.SetProperty(ctx, monitorOID, v.profile.StatusReportingDelay, delaySeconds)
	if err != nil {
		return fail(RuleReportingDelaySet, "setting statusReportingDelay: %v", err)
	}
	if !result.OK() {
		return fail(RuleReportingDelaySet, "setting statusReportingDelay rejected: %s", result.ErrorMessage)
	}

	var got int
	if err := v.client.GetPropertyValue(ctx, monitorOID, v.profile.StatusReportingDelay, &got); err != nil {
		return fail(RuleReportingDelaySet, "reading statusReportingDelay back: %v", err)
	}
	if got != delaySeconds {
		return fail(RuleReportingDelaySet, "statusReportingDelay round-trip: wrote %d, read %d", delaySeconds, got)
	}
	return pass(RuleReportingDelaySet)
}

// checkSyncSourceID verifies the published synchronization source id is
// null, "internal" or an identifier. An empty string is never valid.
func (v *Validator) checkSyncSourceID(ctx context.Context, monitorOID int) RuleResult {
	if v.profile.SynchronizationSourceID == (nc.ElementID{}) {
		return skip(RuleSyncSourceID, "%s monitor publishes no synchronization source id", v.profile.Kind)
	}

	var sourceID *string
	if err := v.client.GetPropertyValue(ctx, monitorOID, v.profile.SynchronizationSourceID, &sourceID); err != nil {
		return fail(RuleSyncSourceID, "reading synchronizationSourceId: %v", err)
	}
	if sourceID != nil && *sourceID == "" {
		return fail(RuleSyncSourceID,
			"synchronizationSourceId must be null, %q or an identifier, got an empty string", "internal")
	}
	return pass(RuleSyncSourceID)
}

// checkResetCounters invokes ResetCounters and verifies every counter reads
// zero and every status message reads empty afterwards. Without a non-zero
// counter or a populated message there is nothing to reset.
func (v *Validator) checkResetCounters(ctx context.Context, monitorOID int) RuleResult {
	if v.profile.ResetCountersMethod == (nc.ElementID{}) {
		return skip(RuleResetCounters, "%s monitor defines no ResetCounters method", v.profile.Kind)
	}

	counters, err := v.readCounters(ctx, monitorOID)
	if err != nil {
		return fail(RuleResetCounters, "reading counters: %v", err)
	}
	messages, err := v.readStatusMessages(ctx, monitorOID)
	if err != nil {
		return fail(RuleResetCounters, "reading status messages: %v", err)
	}
	if !anyNonZero(counters) && !anyNonEmpty(messages) {
		return skip(RuleResetCounters, "no transitions or status messages, nothing to reset")
	}

	result, err := v.client.InvokeMethod(ctx, monitorOID, v.profile.ResetCountersMethod, map[string]any{})
	if err != nil {
		return fail(RuleResetCounters, "invoking ResetCounters: %v", err)
	}
	if !result.OK() {
		return fail(RuleResetCounters, "ResetCounters rejected: %s", result.ErrorMessage)
	}

	counters, err = v.readCounters(ctx, monitorOID)
	if err != nil {
		return fail(RuleResetCounters, "re-reading counters: %v", err)
	}
	if anyNonZero(counters) {
		return fail(RuleResetCounters, "counters not zeroed by ResetCounters")
	}
	messages, err = v.readStatusMessages(ctx, monitorOID)
	if err != nil {
		return fail(RuleResetCounters, "re-reading status messages: %v", err)
	}
	if anyNonEmpty(messages) {
		return fail(RuleResetCounters, "status messages not cleared by ResetCounters")
	}
	return pass(RuleResetCounters)
}

// checkAutoResetCounters enables autoResetCounters, provokes transitions and
// verifies a re-activation zeroes the counters and clears the status
// messages.
func (v *Validator) checkAutoResetCounters(ctx context.Context, monitorOID int, resourceID string) RuleResult {
	if v.profile.AutoResetCounters == (nc.ElementID{}) {
		return skip(RuleAutoResetCounters, "%s monitor defines no autoResetCounters property", v.profile.Kind)
	}

	result, err := v.client.SetProperty(ctx, monitorOID, v.profile.AutoResetCounters, true)
	if err != nil {
		return fail(RuleAutoResetCounters, "enabling autoResetCounters: %v", err)
	}
	if !result.OK() {
		return fail(RuleAutoResetCounters, "enabling autoResetCounters rejected: %s", result.ErrorMessage)
	}

	// Provoke transitions, then deactivate.
	if err := v.driver.Activate(ctx, resourceID); err != nil {
		return fail(RuleAutoResetCounters, "activating resource: %v", err)
	}
	if err := v.sleep(ctx, v.reportingDelay+v.settleTime); err != nil {
		return fail(RuleAutoResetCounters, "interrupted: %v", err)
	}
	if err := v.driver.Deactivate(ctx, resourceID); err != nil {
		return fail(RuleAutoResetCounters, "deactivating resource: %v", err)
	}

	counters, err := v.readCounters(ctx, monitorOID)
	if err != nil {
		return fail(RuleAutoResetCounters, "reading counters: %v", err)
	}
	messages, err := v.readStatusMessages(ctx, monitorOID)
	if err != nil {
		return fail(RuleAutoResetCounters, "reading status messages: %v", err)
	}
	if !anyNonZero(counters) && !anyNonEmpty(messages) {
		return skip(RuleAutoResetCounters, "no transitions or status messages, nothing to auto-reset")
	}

	// Re-activation must zero the counters and clear the messages.
	if err := v.driver.Activate(ctx, resourceID); err != nil {
		return fail(RuleAutoResetCounters, "re-activating resource: %v", err)
	}
	if err := v.sleep(ctx, v.settleTime); err != nil {
		return fail(RuleAutoResetCounters, "interrupted: %v", err)
	}
	defer func() {
		if err := v.driver.Deactivate(ctx, resourceID); err != nil {
			v.logger.Warn("final deactivate failed", slog.String("error", err.Error()))
		}
	}()

	counters, err = v.readCounters(ctx, monitorOID)
	if err != nil {
		return fail(RuleAutoResetCounters, "re-reading counters: %v", err)
	}
	if anyNonZero(counters) {
		return fail(RuleAutoResetCounters, "counters not zeroed on activation with autoResetCounters enabled")
	}
	messages, err = v.readStatusMessages(ctx, monitorOID)
	if err != nil {
		return fail(RuleAutoResetCounters, "re-reading status messages: %v", err)
	}
	if anyNonEmpty(messages) {
		return fail(RuleAutoResetCounters, "status messages not cleared on activation with autoResetCounters enabled")
	}
	return pass(RuleAutoResetCounters)
}

// readStatuses reads the overall and every domain status property.
func (v *Validator) readStatuses(ctx context.Context, monitorOID int) (map[nc.ElementID]int, error) {
	out := make(map[nc.ElementID]int, len(v.profile.Statuses)+1)
	ids := []nc.ElementID{v.profile.OverallStatus}
	for _, prop := range v.profile.Statuses {
		ids = append(ids, prop.ID)
	}
	for _, id := range ids {
		var value int
		if err := v.client.GetPropertyValue(ctx, monitorOID, id, &value); err != nil {
			return nil, errors.Wrap(err, component, "readStatuses", "read status "+id.String())
		}
		if prop, ok := v.profile.Status(id); ok && !prop.Allows(value) {
			return nil, errors.New(errors.KindInvalidStatusValue, component, "readStatuses",
				"%s reported out-of-enum value %d", prop.Name, value)
		}
		out[id] = value
	}
	return out, nil
}

// readCounters reads every transition counter the profile defines, including
// the synchronization source change counter when the class carries one.
func (v *Validator) readCounters(ctx context.Context, monitorOID int) (map[nc.ElementID]int, error) {
	var ids []nc.ElementID
	for _, prop := range v.profile.Statuses {
		if prop.HasCounter() {
			ids = append(ids, prop.CounterID)
		}
	}
	if v.profile.SynchronizationSourceChanges != (nc.ElementID{}) {
		ids = append(ids, v.profile.SynchronizationSourceChanges)
	}

	out := make(map[nc.ElementID]int, len(ids))
	for _, id := range ids {
		var value int
		if err := v.client.GetPropertyValue(ctx, monitorOID, id, &value); err != nil {
			return nil, errors.Wrap(err, component, "readCounters", "read counter "+id.String())
		}
		out[id] = value
	}
	return out, nil
}

// readStatusMessages reads every status message property plus the overall
// status message. A null message reads as the empty string.
func (v *Validator) readStatusMessages(ctx context.Context, monitorOID int) (map[nc.ElementID]string, error) {
	ids := []nc.ElementID{v.profile.OverallStatusMessage}
	for _, prop := range v.profile.Statuses {
		if prop.MessageID != (nc.ElementID{}) {
			ids = append(ids, prop.MessageID)
		}
	}

	out := make(map[nc.ElementID]string, len(ids))
	for _, id := range ids {
		var message *string
		if err := v.client.GetPropertyValue(ctx, monitorOID, id, &message); err != nil {
			return nil, errors.Wrap(err, component, "readStatusMessages",
				"read status message "+id.String())
		}
		if message != nil {
			out[id] = *message
		} else {
			out[id] = ""
		}
	}
	return out, nil
}

// monitorNotifications returns the captured notifications received at or
// after since.
func (v *Validator) monitorNotifications(since time.Time) []eventlog.Notification {
	return v.log.Filter(func(n eventlog.Notification) bool {
		return !n.ReceivedAt.Before(since)
	})
}

func anyNonZero(counters map[nc.ElementID]int) bool {
	for _, v := range counters {
		if v != 0 {
			return true
		}
	}
	return false
}

func anyNonEmpty(messages map[nc.ElementID]string) bool {
	for _, v := range messages {
		if v != "" {
			return true
		}
	}
	return false
}
