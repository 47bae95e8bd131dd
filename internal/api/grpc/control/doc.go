// Package control implements the gRPC control API of the monitor.
//
// The service is described by hand on top of well-known protobuf types, so no
// generated code is needed: snapshots travel as google.protobuf.Struct values
// shaped like the HTTP views, and the calling actor travels in metadata.
package control
