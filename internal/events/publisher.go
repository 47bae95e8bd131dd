package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/logger"
)

// Event types.
const (
	TypeEpisodeStarted      = "episode_started"
	TypeEpisodeEnded        = "episode_ended"
	TypeCalibrationFinished = "calibration_finished"
)

// Event is the JSON value of every message.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`

	Episode     *EpisodePayload     `json:"episode,omitempty"`
	Calibration *CalibrationPayload `json:"calibration,omitempty"`
}

// EpisodePayload describes a drowsy episode.
type EpisodePayload struct {
	Number     uint64     `json:"number"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMS int64      `json:"duration_ms,omitempty"`
	Samples    int        `json:"samples"`
	PeakScore  float64    `json:"peak_score"`
	MinEAR     float64    `json:"min_ear"`
	EndReason  string     `json:"end_reason,omitempty"`
}

// CalibrationPayload describes a finished calibration session.
type CalibrationPayload struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Count     int       `json:"count"`
	Min       *float64  `json:"min,omitempty"`
	Max       *float64  `json:"max,omitempty"`
	Avg       *float64  `json:"avg,omitempty"`
}

// MessageWriter is the part of kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher turns tracker and calibration callbacks into Kafka messages.
type Publisher struct {
	// writer sends the messages.
	writer MessageWriter
	// source identifies this monitor instance in every event.
	source string
	// now returns the current time.
	now func() time.Time
}

// NewWriter creates an asynchronous writer for the given brokers and topic.
// Delivery errors are logged from the completion callback.
func NewWriter(ctx context.Context, cfg config.Kafka) *kafka.Writer {
	topic := cfg.Topic
	if topic == "" {
		topic = config.DefaultKafkaTopic
	}

	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		BatchTimeout:           100 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.WarnKV(ctx, "Failed to deliver events", "count", len(messages), "error", err)
			}
		},
	}
}

// NewPublisher wraps writer. source defaults to the host name of the monitor.
func NewPublisher(writer MessageWriter, source string) *Publisher {
	if source == "" {
		source, _ = os.Hostname()
	}

	return &Publisher{
		writer: writer,
		source: source,
		now:    time.Now,
	}
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// EpisodeStarted publishes an episode_started event.
func (p *Publisher) EpisodeStarted(ctx context.Context, episode detection.Episode) {
	p.publish(ctx, strconv.FormatUint(episode.ID, 10), Event{
		Type:    TypeEpisodeStarted,
		Episode: episodePayload(episode),
	})
}

// EpisodeEnded publishes an episode_ended event.
func (p *Publisher) EpisodeEnded(ctx context.Context, episode detection.Episode) {
	p.publish(ctx, strconv.FormatUint(episode.ID, 10), Event{
		Type:    TypeEpisodeEnded,
		Episode: episodePayload(episode),
	})
}

// CalibrationFinished publishes a calibration_finished event.
func (p *Publisher) CalibrationFinished(ctx context.Context, session detection.CalibrationSession) error {
	stats := session.Stats.Clone()

	return p.write(ctx, "calibration", Event{
		Type: TypeCalibrationFinished,
		Calibration: &CalibrationPayload{
			StartedAt: session.StartedAt,
			EndedAt:   session.EndedAt,
			Count:     stats.Count,
			Min:       stats.Min,
			Max:       stats.Max,
			Avg:       stats.Avg,
		},
	})
}

func (p *Publisher) publish(ctx context.Context, key string, event Event) {
	if err := p.write(ctx, key, event); err != nil {
		logger.WarnKV(ctx, "Failed to publish event", "type", event.Type, "error", err)
	}
}

func (p *Publisher) write(ctx context.Context, key string, event Event) error {
	event.ID = uuid.NewString()
	event.Source = p.source
	event.OccurredAt = p.now()

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	return nil
}

func episodePayload(episode detection.Episode) *EpisodePayload {
	payload := &EpisodePayload{
		Number:    episode.ID,
		StartedAt: episode.StartedAt,
		Samples:   episode.Samples,
		PeakScore: episode.PeakScore,
		MinEAR:    episode.MinEAR,
	}

	if !episode.Open() {
		endedAt := episode.EndedAt
		payload.EndedAt = &endedAt
		payload.DurationMS = episode.Duration(endedAt).Milliseconds()
		payload.EndReason = string(episode.EndReason)
	}

	return payload
}
