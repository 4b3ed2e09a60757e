// Package validation screens raw provider datapoints before they reach
// storage. Pure functions only; the caller decides what a rejection
// means for the run.
package validation

import (
	"fmt"
	"math"
	"time"

	"github.com/kulu-io/kulu/providers"
	"github.com/kulu-io/kulu/types"
)

// ClockSkewTolerance is how far into the future a provider timestamp
// may drift before we reject it
const ClockSkewTolerance = 5 * time.Minute

// Reason classifies why a point was rejected
type Reason string

const (
	ReasonFutureTimestamp Reason = "future_timestamp"
	ReasonStaleTimestamp  Reason = "stale_timestamp"
	ReasonNotFinite       Reason = "not_finite"
	ReasonOutOfRange      Reason = "out_of_range"
	ReasonBadAggregation  Reason = "bad_aggregation"
)

// Rejection describes one rejected point. Rejections are data, not
// errors; they are recorded on the run and processing continues.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) String() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

// Validate screens one raw point against its metric definition and the
// requested window. Checks run in a fixed order and the first failure
// wins. A nil return means the point is accepted. The input is never
// mutated.
func Validate(def types.MetricDefinition, point providers.Point, window providers.TimeWindow, agg types.Aggregation, now time.Time) *Rejection {
	if point.Timestamp.After(now.Add(ClockSkewTolerance)) {
		return &Rejection{
			Reason:  ReasonFutureTimestamp,
			Message: fmt.Sprintf("timestamp %s is beyond clock skew tolerance", point.Timestamp.Format(time.RFC3339)),
		}
	}
	if point.Timestamp.Before(window.Start) {
		return &Rejection{
			Reason:  ReasonStaleTimestamp,
			Message: fmt.Sprintf("timestamp %s predates window start %s", point.Timestamp.Format(time.RFC3339), window.Start.Format(time.RFC3339)),
		}
	}

	if math.IsNaN(point.Value) || math.IsInf(point.Value, 0) {
		return &Rejection{
			Reason:  ReasonNotFinite,
			Message: fmt.Sprintf("value %v is not a finite number", point.Value),
		}
	}

	// Out-of-range values are rejected, never clamped
	if def.ExpectedRange != nil {
		if point.Value < def.ExpectedRange.Min || point.Value > def.ExpectedRange.Max {
			return &Rejection{
				Reason: ReasonOutOfRange,
				Message: fmt.Sprintf("value %g outside expected range [%g, %g]",
					point.Value, def.ExpectedRange.Min, def.ExpectedRange.Max),
			}
		}
	}

	if !def.AllowsAggregation(agg) {
		return &Rejection{
			Reason:  ReasonBadAggregation,
			Message: fmt.Sprintf("aggregation %s not valid for metric %s", agg, def.Name),
		}
	}

	return nil
}
