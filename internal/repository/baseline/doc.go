// Package baseline persists the last finished calibration session.
//
// The FileRepository stores and loads the session as protobuf JSON on disk, so
// a restarted monitor shows the previous baseline until a new calibration runs.
package baseline
