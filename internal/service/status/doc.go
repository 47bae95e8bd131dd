// Package status implements the drowsy-status command.
//
// It prints the monitor snapshot once, or polls the control API and prints a
// line every time the displayed status changes.
package status
