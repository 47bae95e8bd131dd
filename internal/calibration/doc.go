// Package calibration accumulates a personal EAR baseline while the operator
// keeps their eyes open in front of the camera.
package calibration
