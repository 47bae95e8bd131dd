// Package view defines the JSON shapes of snapshots shared by the HTTP, WebSocket and gRPC APIs.
package view
