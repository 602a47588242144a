// Package metrics centralises metric names and emission helpers so services
// emit consistently tagged series.
package metrics

import (
	"time"

	obserrors "github.com/parkngo/parkngo-api/internal/observability/errors"
	"github.com/parkngo/parkngo-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Status   string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"status": in.Status,
		"result": in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// SessionMetric captures details about a billing session event.
type SessionMetric struct {
	Event       string
	EndReason   string
	AutoCreated bool
	Accrued     int64
}

// EmitSessionEvent emits billing session lifecycle metrics.
func EmitSessionEvent(sink statsd.Sink, in SessionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"event": in.Event}
	if in.EndReason != "" {
		tags["end_reason"] = in.EndReason
	}
	if in.AutoCreated {
		tags["auto_created"] = "true"
	}

	sink.Count("session.event", 1, tags)
	if in.Accrued > 0 {
		sink.Gauge("session.accrued_lovelace", float64(in.Accrued), CloneTags(tags))
	}
}

// EmitPipelineStep emits one gated pipeline step outcome.
func EmitPipelineStep(sink statsd.Sink, step, result string, cost int64) {
	if sink == nil {
		return
	}
	tags := map[string]string{"step": step, "result": result}
	sink.Count("pipeline.step", 1, tags)
	if cost > 0 {
		sink.Count("pipeline.step_cost_lovelace", cost, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering nothing.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
