// Package tracker implements the face/alert state machine.
//
// Derive maps one classifier sample to a tracking state and keeps no history.
// Tracker applies the side effects of that state: it drives the alarm actuator,
// feeds the calibration aggregator, bookkeeps drowsy episodes and produces the
// snapshot handed to the presentation layer.
package tracker
