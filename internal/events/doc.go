// Package events publishes drowsy episode and calibration events to Kafka.
package events
