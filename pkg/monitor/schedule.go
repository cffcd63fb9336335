package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/propgate/propgate/pkg/constants"
)

// Kind is a monitoring cycle type.
type Kind string

// Cycle kinds.
const (
	KindQuick   Kind = "quick"
	KindFull    Kind = "full"
	KindQuality Kind = "quality"
	KindTrend   Kind = "trend"
)

// Kinds lists every cycle kind in priority order.
var Kinds = []Kind{KindFull, KindQuality, KindTrend, KindQuick}

// ParseKind parses a cycle kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown cycle kind %q", s)
}

// Checks returns the checks a cycle kind runs.
func (k Kind) Checks() []Check {
	switch k {
	case KindFull:
		return []Check{CheckQualityRegression, CheckDrift, CheckCompleteness, CheckAnomaly}
	case KindQuick:
		return []Check{CheckCompleteness}
	case KindQuality:
		return []Check{CheckQualityRegression}
	case KindTrend:
		return []Check{CheckDrift, CheckAnomaly}
	default:
		return nil
	}
}

// DefaultSchedules returns the default schedule spec per kind.
func DefaultSchedules() map[Kind]string {
	return map[Kind]string{
		KindQuick:   constants.DefaultQuickSchedule,
		KindFull:    constants.DefaultFullSchedule,
		KindQuality: constants.DefaultQualitySchedule,
		KindTrend:   constants.DefaultTrendSchedule,
	}
}

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// schedule tracks the next fire time of one kind.
type schedule struct {
	kind  Kind
	spec  string
	sched cron.Schedule
	next  time.Time
}

// parseSchedules parses cron specs or "@every <duration>" descriptors. Kinds
// with an empty spec are disabled.
func parseSchedules(specs map[Kind]string, now time.Time) ([]*schedule, error) {
	var out []*schedule
	for _, kind := range Kinds {
		spec := strings.TrimSpace(specs[kind])
		if spec == "" {
			continue
		}
		sched, err := specParser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", kind, spec, err)
		}
		out = append(out, &schedule{kind: kind, spec: spec, sched: sched, next: sched.Next(now)})
	}
	return out, nil
}

// earliest returns the schedule firing first, ties broken by kind priority.
func earliest(schedules []*schedule) *schedule {
	if len(schedules) == 0 {
		return nil
	}
	sorted := make([]*schedule, len(schedules))
	copy(sorted, schedules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].next.Before(sorted[j].next)
	})
	return sorted[0]
}
