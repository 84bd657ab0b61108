package statusmon

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nccheck/eventlog"
	"github.com/c360/nccheck/nc"
)

var captureStart = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// note builds a status notification received offset after captureStart.
func note(propertyID nc.ElementID, value int, offset time.Duration) eventlog.Notification {
	return eventlog.Notification{
		OID:        12,
		EventID:    nc.EventPropertyChanged,
		PropertyID: propertyID,
		ChangeType: nc.ChangeValueChanged,
		Value:      json.RawMessage(strconv.Itoa(value)),
		ReceivedAt: captureStart.Add(offset),
	}
}

func TestCheckStatusValues(t *testing.T) {
	profile := SenderMonitorProfile()
	link := nc.ElementID{Level: 4, Index: 1}

	t.Run("in-range values pass", func(t *testing.T) {
		result := checkStatusValues(profile, []eventlog.Notification{
			note(link, 1, 0),
			note(profile.ConnectionStatus, int(StatusPartiallyHealthy), time.Second),
			note(profile.OverallStatus, int(StatusUnhealthy), 2*time.Second),
		})
		assert.Equal(t, Passed, result.Outcome)
	})

	t.Run("link status has no inactive value", func(t *testing.T) {
		result := checkStatusValues(profile, []eventlog.Notification{
			note(link, int(StatusInactive), 0),
		})
		require.Equal(t, Failed, result.Outcome)
		assert.Contains(t, result.Message, "linkStatus")
	})

	t.Run("out of range value fails", func(t *testing.T) {
		result := checkStatusValues(profile, []eventlog.Notification{
			note(profile.ConnectionStatus, 7, 0),
		})
		require.Equal(t, Failed, result.Outcome)
		assert.Contains(t, result.Message, "7")
	})

	t.Run("non-integer value fails", func(t *testing.T) {
		n := note(profile.ConnectionStatus, 0, 0)
		n.Value = json.RawMessage(`"healthy"`)
		result := checkStatusValues(profile, []eventlog.Notification{n})
		assert.Equal(t, Failed, result.Outcome)
	})

	t.Run("unrelated properties are ignored", func(t *testing.T) {
		result := checkStatusValues(profile, []eventlog.Notification{
			note(nc.ElementID{Level: 1, Index: 6}, 99, 0),
		})
		assert.Equal(t, Passed, result.Outcome)
	})
}

func TestCheckActivation(t *testing.T) {
	profile := ReceiverMonitorProfile()
	tolerance := 200 * time.Millisecond

	t.Run("prompt healthy transition passes", func(t *testing.T) {
		result := checkActivation(profile, []eventlog.Notification{
			note(profile.ConnectionStatus, int(StatusHealthy), 100*time.Millisecond),
		}, captureStart, tolerance)
		assert.Equal(t, Passed, result.Outcome)
	})

	t.Run("late transition fails", func(t *testing.T) {
		result := checkActivation(profile, []eventlog.Notification{
			note(profile.ConnectionStatus, int(StatusHealthy), time.Second),
		}, captureStart, tolerance)
		assert.Equal(t, Failed, result.Outcome)
	})

	t.Run("first transition not healthy fails", func(t *testing.T) {
		result := checkActivation(profile, []eventlog.Notification{
			note(profile.ConnectionStatus, int(StatusUnhealthy), 100*time.Millisecond),
		}, captureStart, tolerance)
		assert.Equal(t, Failed, result.Outcome)
	})

	t.Run("no notifications fails", func(t *testing.T) {
		result := checkActivation(profile, nil, captureStart, tolerance)
		assert.Equal(t, Failed, result.Outcome)
	})
}

func TestCheckReportingDelay(t *testing.T) {
	profile := ReceiverMonitorProfile()
	delay := 3 * time.Second

	t.Run("degradation after the delay passes", func(t *testing.T) {
		result := checkReportingDelay(profile, []eventlog.Notification{
			note(profile.ConnectionStatus, int(StatusHealthy), 100*time.Millisecond),
			note(profile.ConnectionStatus, int(StatusPartiallyHealthy), 3400*time.Millisecond),
		}, captureStart, delay)
		assert.Equal(t, Passed, result.Outcome)
	})

	t.Run("degradation inside the delay fails", func(t *testing.T) {
		result := checkReportingDelay(profile, []eventlog.Notification{
			note(profile.ConnectionStatus, int(StatusHealthy), 100*time.Millisecond),
			note(profile.ConnectionStatus, int(StatusUnhealthy), time.Second),
		}, captureStart, delay)
		require.Equal(t, Failed, result.Outcome)
		assert.Contains(t, result.Message, "Unhealthy")
	})

	t.Run("early teardown to inactive is allowed", func(t *testing.T) {
		result := checkReportingDelay(profile, []eventlog.Notification{
			note(profile.ConnectionStatus, int(StatusHealthy), 100*time.Millisecond),
			note(profile.ConnectionStatus, int(StatusInactive), time.Second),
		}, captureStart, delay)
		assert.Equal(t, Passed, result.Outcome)
	})
}

func TestCheckDegradesAfterDelay(t *testing.T) {
	profile := ReceiverMonitorProfile()

	t.Run("observed degradation passes", func(t *testing.T) {
		result := checkDegradesAfterDelay(profile, []eventlog.Notification{
			note(profile.ConnectionStatus, int(StatusHealthy), 100*time.Millisecond),
			note(profile.ConnectionStatus, int(StatusPartiallyHealthy), 4*time.Second),
		})
		assert.Equal(t, Passed, result.Outcome)
	})

	t.Run("status pinned healthy is untestable", func(t *testing.T) {
		result := checkDegradesAfterDelay(profile, []eventlog.Notification{
			note(profile.ConnectionStatus, int(StatusHealthy), 100*time.Millisecond),
		})
		assert.Equal(t, CouldNotTest, result.Outcome)
	})
}

func TestCheckOverallAggregation(t *testing.T) {
	profile := ReceiverMonitorProfile()
	stream := nc.ElementID{Level: 4, Index: 9}
	sync := nc.ElementID{Level: 4, Index: 5}

	healthyBaseline := func() map[nc.ElementID]int {
		initial := map[nc.ElementID]int{profile.OverallStatus: int(StatusHealthy)}
		for _, prop := range profile.Statuses {
			initial[prop.ID] = int(StatusHealthy)
		}
		return initial
	}

	t.Run("overall tracks least healthy domain status", func(t *testing.T) {
		result := checkOverallAggregation(profile, healthyBaseline(), []eventlog.Notification{
			note(sync, int(StatusPartiallyHealthy), time.Second),
			note(profile.OverallStatus, int(StatusPartiallyHealthy), time.Second),
		})
		assert.Equal(t, Passed, result.Outcome)
	})

	t.Run("overall lags a degradation", func(t *testing.T) {
		result := checkOverallAggregation(profile, healthyBaseline(), []eventlog.Notification{
			note(stream, int(StatusUnhealthy), time.Second),
		})
		require.Equal(t, Failed, result.Outcome)
		assert.Contains(t, result.Message, "Unhealthy")
	})

	t.Run("inactive inactivable status forces overall inactive", func(t *testing.T) {
		result := checkOverallAggregation(profile, healthyBaseline(), []eventlog.Notification{
			note(stream, int(StatusInactive), time.Second),
		})
		require.Equal(t, Failed, result.Outcome)
		assert.Contains(t, result.Message, "streamStatus")
	})

	t.Run("clean teardown aggregates to inactive", func(t *testing.T) {
		result := checkOverallAggregation(profile, healthyBaseline(), []eventlog.Notification{
			note(stream, int(StatusInactive), time.Second),
			note(profile.ConnectionStatus, int(StatusInactive), time.Second),
			note(profile.OverallStatus, int(StatusInactive), time.Second),
		})
		assert.Equal(t, Passed, result.Outcome)
	})
}

func TestCheckDeactivation(t *testing.T) {
	profile := ReceiverMonitorProfile()
	stream := nc.ElementID{Level: 4, Index: 9}

	allInactive := func(after []eventlog.Notification) []eventlog.Notification {
		out := []eventlog.Notification{
			note(profile.OverallStatus, int(StatusInactive), 500*time.Millisecond),
			note(profile.ConnectionStatus, int(StatusInactive), 500*time.Millisecond),
			note(stream, int(StatusInactive), 500*time.Millisecond),
		}
		return append(after, out...)
	}

	t.Run("direct transition to inactive passes", func(t *testing.T) {
		result := checkDeactivation(profile, allInactive([]eventlog.Notification{
			note(profile.ConnectionStatus, int(StatusUnhealthy), 0),
		}))
		assert.Equal(t, Passed, result.Outcome)
	})

	t.Run("intermediate state while deactivating fails", func(t *testing.T) {
		result := checkDeactivation(profile, allInactive([]eventlog.Notification{
			note(profile.ConnectionStatus, int(StatusUnhealthy), 0),
			note(profile.ConnectionStatus, int(StatusPartiallyHealthy), 200*time.Millisecond),
		}))
		require.Equal(t, Failed, result.Outcome)
		assert.Contains(t, result.Message, "PartiallyHealthy")
	})

	t.Run("silent property fails", func(t *testing.T) {
		result := checkDeactivation(profile, []eventlog.Notification{
			note(profile.OverallStatus, int(StatusInactive), 500*time.Millisecond),
		})
		require.Equal(t, Failed, result.Outcome)
		assert.Contains(t, result.Message, "no")
	})

	t.Run("property stuck outside inactive fails", func(t *testing.T) {
		result := checkDeactivation(profile, []eventlog.Notification{
			note(profile.OverallStatus, int(StatusInactive), 500*time.Millisecond),
			note(profile.ConnectionStatus, int(StatusInactive), 500*time.Millisecond),
			note(stream, int(StatusUnhealthy), 500*time.Millisecond),
		})
		require.Equal(t, Failed, result.Outcome)
		assert.Contains(t, result.Message, "did not transition to Inactive")
	})
}

func TestCheckTransitionCounters(t *testing.T) {
	sender := SenderMonitorProfile()
	essence := nc.ElementID{Level: 4, Index: 11}
	essenceCounter := nc.ElementID{Level: 4, Index: 13}

	initialStatuses := map[nc.ElementID]int{essence: int(StatusHealthy)}

	t.Run("counter matches observed transitions", func(t *testing.T) {
		result := checkTransitionCounters(sender,
			initialStatuses,
			map[nc.ElementID]int{essenceCounter: 2},
			map[nc.ElementID]int{essenceCounter: 4},
			[]eventlog.Notification{
				note(essence, int(StatusPartiallyHealthy), time.Second),
				note(essence, int(StatusPartiallyHealthy), 2*time.Second),
				note(essence, int(StatusUnhealthy), 3*time.Second),
			})
		assert.Equal(t, Passed, result.Outcome)
	})

	t.Run("stale counter fails", func(t *testing.T) {
		result := checkTransitionCounters(sender,
			initialStatuses,
			map[nc.ElementID]int{essenceCounter: 2},
			map[nc.ElementID]int{essenceCounter: 2},
			[]eventlog.Notification{
				note(essence, int(StatusUnhealthy), time.Second),
			})
		require.Equal(t, Failed, result.Outcome)
		assert.Contains(t, result.Message, "essenceStatus")
	})

	t.Run("repeated values do not count as transitions", func(t *testing.T) {
		result := checkTransitionCounters(sender,
			initialStatuses,
			map[nc.ElementID]int{essenceCounter: 0},
			map[nc.ElementID]int{essenceCounter: 0},
			[]eventlog.Notification{
				note(essence, int(StatusHealthy), time.Second),
				note(essence, int(StatusHealthy), 2*time.Second),
			})
		assert.Equal(t, Passed, result.Outcome)
	})

	t.Run("receiver monitor has no counters", func(t *testing.T) {
		result := checkTransitionCounters(ReceiverMonitorProfile(), nil, nil, nil, nil)
		assert.Equal(t, CouldNotTest, result.Outcome)
	})
}

func TestReportVerdicts(t *testing.T) {
	report := &Report{MonitorOID: 12}
	report.add(pass(RuleActivationHealthy))
	report.add(skip(RuleTransitionCounters, "no counters"))
	assert.True(t, report.Passed())
	assert.Empty(t, report.Failures())

	report.add(fail(RuleReportingDelay, "degraded early"))
	assert.False(t, report.Passed())
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, RuleReportingDelay, report.Failures()[0].Rule)
}
