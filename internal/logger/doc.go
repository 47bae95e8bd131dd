// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder writing to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// The monitor engine, the alarm actuator and the transports all accept a
// context and extract the logger from it, so every diagnostic carries the
// binary name and the scope that produced it.
package logger
