// Package camera provides the frame sources used by the sampling loop.
package camera
