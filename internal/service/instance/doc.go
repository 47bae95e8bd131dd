// Package instance keeps a single monitor per marker file.
//
// A marker file holds the PID of the running monitor. A marker naming a dead
// process or a different executable is considered stale and is taken over.
package instance
