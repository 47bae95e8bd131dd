// Package client defines the shared command for drowsy-calibrate and drowsy-engine.
//
// The command connects to the monitor control API, requests a calibration
// toggle or an engine start/stop, retries until the monitor confirms the
// desired state and prints the resulting snapshot.
package client
