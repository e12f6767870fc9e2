// Package metrics is a small backend-agnostic abstraction for recording
// operational metrics from pipeline runs.
//
// It mirrors the storage abstraction pattern: the core depends only on
// Backend, a global pluggable backend defaults to a no-op so metric calls are
// always safe, and concrete systems live in subpackages.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration-style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordPhase measures one orchestrator phase: latency plus success/failure.
func RecordPhase(phase string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"phase": phase, "status": status}
	backend.IncCounter("dw_phase_total", 1, lbls)
	backend.ObserveHistogram("dw_phase_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a record-level counter. Typical kinds mirror the run
// summary fields: "extracted", "invalid", "duplicate", "loaded".
func RecordRows(kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("dw_records_total", float64(delta), Labels{"kind": kind})
}

// RecordBatches counts insert batches written to the warehouse.
func RecordBatches(delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("dw_batches_total", float64(delta), Labels{})
}
