// Package alarm drives the repeating audible alert for a drowsy episode.
//
// The Actuator guarantees at most one burst loop per instance: activation is
// a check-and-set under a mutex with no blocking call inside the critical
// section, and deactivation waits for the loop to exit so nothing is audible
// once it returns.
package alarm
