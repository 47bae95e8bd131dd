// Package monitor implements the sampling loop.
//
// The engine owns the camera stream and the tick ticker. At most one classifier
// round trip is in flight: a tick that fires while the previous round trip is
// still running is skipped, so results are applied in request order. Stopping
// the engine, cancelling its context or a panic in the loop all release the
// camera, stop the ticker and silence the alarm through deferred calls.
package monitor
