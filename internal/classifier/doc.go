// Package classifier implements the HTTP client of the remote drowsiness classifier.
//
// The client performs exactly one request per call and never retries: the
// sampling loop simply moves on to the next tick. Failures are typed, so callers
// can tell a lost connection (TransportError) from a classifier that answered
// with an error (ApplicationError).
package classifier
