// Package detection contains the core domain types of the drowsiness monitor.
//
// It defines the classifier Sample, the discrete TrackingState derived from
// it, the CalibrationStats accumulator view, the Episode bookkeeping record
// and the Snapshot tuple handed to presentation sinks on every tick.
package detection
