// Package rest serves the HTTP presentation API and streams snapshots over WebSocket.
//
// Routes:
//
//	GET  /health          liveness probe
//	GET  /status          current snapshot
//	GET  /calibration     calibration block
//	PUT  /calibration     {"enabled": bool} toggles calibration mode
//	POST /engine/start    acquires the camera and starts sampling
//	POST /engine/stop     stops sampling and releases the camera
//	GET  /episodes        recent drowsy episodes, when the journal is enabled
//	GET  /metrics         Prometheus metrics
//	GET  /ws              snapshot stream
package rest
