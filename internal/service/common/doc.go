// Package common holds helpers shared by the control commands.
//
// It provides a gRPC client wrapper for the monitor control API with call
// timeouts, and detects the current system actor (hostname/username) that is
// attached to every call for the monitor's audit log.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
