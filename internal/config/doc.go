// Package config defines the settings used by the drowsy-alarm binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Values from a .env file and DROWSY_* environment variables override the
// YAML file, so containerised deployments can point the monitor at a
// different classifier without rewriting the settings file.
package config
