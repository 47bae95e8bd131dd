// Package monitor implements the drowsy-monitor command.
//
// It wires the camera, the classifier client, the tracker, the alarm and the
// calibration aggregator into a running engine, and exposes it over the HTTP
// presentation API, the WebSocket stream, the gRPC control API and the console.
// Episodes are optionally journaled to SQL and published to Kafka.
package monitor
