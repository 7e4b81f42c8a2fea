package types

import (
	"encoding/json"
	"time"
)

// InstanceStats holds everything the HTTP layer reports for one scheduler
// instance: the raw counters from §6 plus rates computed per poll by
// history.Store. Zero on the first poll (no previous sample to diff
// against).
type InstanceStats struct {
	Device    string `json:"device"`
	Throttled bool   `json:"throttled"`

	Bytes        uint64 `json:"bytes"`
	Packets      uint64 `json:"packets"`
	Drops        uint64 `json:"drops"`
	Overlimits   uint64 `json:"overlimits"`
	Backlog      uint64 `json:"backlog"`
	FeedbackSent uint64 `json:"feedback_sent"`
	FeedbackLost uint64 `json:"feedback_lost"`

	UpdatedAt time.Time `json:"updated_at"`

	BytesPerS      float64 `json:"bytes_per_s"`
	DropsPerS      float64 `json:"drops_per_s"`
	FeedbackPerS   float64 `json:"feedback_per_s"`
	OverlimitsPerS float64 `json:"overlimits_per_s"`
}

// HistorySample is one time-series data point for a single instance.
// Numeric values are float64 so they can be directly consumed by charting
// libraries (uPlot, Chart.js, etc.).
type HistorySample struct {
	T          int64   `json:"t"` // unix timestamp (seconds)
	BytesPerS  float64 `json:"bytes_per_s"`
	Backlog    float64 `json:"backlog"`
	DropsPerS  float64 `json:"drops_per_s"`
	FeedbackPS float64 `json:"feedback_per_s"`
}

// StatsResponse is the JSON message sent to clients containing the current
// per-instance statistics along with a timestamp.
type StatsResponse struct {
	Instances []InstanceStats `json:"instances"`
	UpdatedAt string          `json:"updated_at"`
}

// HistoryResponse is the serializable representation of the in-memory
// history store: a map from instance (device) name to an ordered slice of
// samples.
type HistoryResponse map[string][]HistorySample

// MarshalJSON implements json.Marshaler using a manually allocated buffer,
// mirroring the allocation discipline an easyjson-generated method would
// give without requiring codegen.
func (r StatsResponse) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, '{')
	buf = append(buf, `"instances":`...)
	if v, err := jsonMarshal(r.Instances); err == nil {
		buf = append(buf, v...)
	} else {
		return nil, err
	}
	buf = append(buf, ',')
	buf = append(buf, `"updated_at":`...)
	buf = append(buf, '"')
	buf = append(buf, r.UpdatedAt...)
	buf = append(buf, '"')
	buf = append(buf, '}')
	return buf, nil
}

// jsonMarshal is a thin wrapper around the stdlib json package, kept
// separate so StatsResponse.MarshalJSON can reference it without an import
// cycle if this file ever grows sibling marshalers.
func jsonMarshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
