package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the drowsy-alarm binaries.
type Config struct {
	// ClassifierURL is the base URL of the remote drowsiness classifier.
	ClassifierURL string `yaml:"classifier_url"`
	// Timeout bounds a single classifier round trip and every control RPC.
	Timeout time.Duration `yaml:"timeout"`
	// TickInterval is the time between the starts of two sampling ticks.
	TickInterval time.Duration `yaml:"tick_interval"`
	// StartupDelay lets the capture device stabilise before the first tick.
	StartupDelay time.Duration `yaml:"startup_delay"`
	// AlarmInterval is the period between two tone bursts while drowsy.
	AlarmInterval time.Duration `yaml:"alarm_interval"`
	// Camera describes the video source.
	Camera Camera `yaml:"camera"`
	// Audio describes the tone output.
	Audio Audio `yaml:"audio"`
	// ListenAddress is the HTTP presentation API address.
	ListenAddress string `yaml:"listen_address"`
	// ControlAddress is the gRPC control API address.
	ControlAddress string `yaml:"control_address"`
	// BaselineFile stores the last finished calibration as JSON.
	BaselineFile string `yaml:"baseline_file"`
	// MarkerFile holds the PID of the running monitor.
	MarkerFile string `yaml:"marker_file"`
	// JournalDSN enables the episode journal (sqlite path, file: URI or postgres:// URL).
	JournalDSN string `yaml:"journal_dsn"`
	// Kafka enables publishing episode events.
	Kafka Kafka `yaml:"kafka"`
	// LogLevel is the minimum level of the process logger.
	LogLevel string `yaml:"log_level"`
	// SampleTrace logs every classifier sample at debug level regardless of LogLevel.
	SampleTrace bool `yaml:"sample_trace"`
}

// Camera configures the frame source.
type Camera struct {
	// Source is either "directory" or "command".
	Source string `yaml:"source"`
	// Path is the folder replayed by the directory source.
	Path string `yaml:"path"`
	// Command is the capture command line that prints one JPEG to stdout.
	Command []string `yaml:"command"`
	// Width is the requested frame width in pixels.
	Width int `yaml:"width"`
	// Height is the requested frame height in pixels.
	Height int `yaml:"height"`
}

// Audio configures the alarm tone output.
type Audio struct {
	// Player overrides the platform audio player executable.
	Player string `yaml:"player"`
	// SampleRate is the PCM rate used to render tone bursts.
	SampleRate int `yaml:"sample_rate"`
	// Disabled turns the alarm into a visual-only indicator.
	Disabled bool `yaml:"disabled"`
}

// Kafka configures the episode event publisher.
type Kafka struct {
	// Brokers lists bootstrap brokers; publishing is off when empty.
	Brokers []string `yaml:"brokers"`
	// Topic receives one message per episode transition.
	Topic string `yaml:"topic"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "drowsy-alarm-settings.yaml"

	// DefaultBaselineFilename is the default filename for the calibration baseline.
	DefaultBaselineFilename = "drowsy-alarm-baseline.json"

	// DefaultMarkerFilename is the default filename of the single-instance marker.
	DefaultMarkerFilename = "drowsy-alarm-monitor.pid"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultTickInterval is the default sampling cadence.
	DefaultTickInterval = 1000 * time.Millisecond

	// DefaultStartupDelay is the default pause between camera acquisition and the first tick.
	DefaultStartupDelay = 2000 * time.Millisecond

	// DefaultAlarmInterval is the default period between two tone bursts.
	DefaultAlarmInterval = 800 * time.Millisecond

	// DefaultFrameWidth and DefaultFrameHeight are the requested capture constraints.
	DefaultFrameWidth  = 640
	DefaultFrameHeight = 480

	// DefaultSampleRate is the default PCM sample rate for tone bursts.
	DefaultSampleRate = 44100

	// DefaultListenAddress is the default HTTP presentation API address.
	DefaultListenAddress = ":8090"

	// DefaultControlAddress is the default gRPC control API address.
	DefaultControlAddress = "127.0.0.1:50061"

	// DefaultKafkaTopic is the default topic for episode events.
	DefaultKafkaTopic = "drowsy-alarm.episodes"

	// DefaultFilePermissions is the default file permission for written files.
	DefaultFilePermissions = 0o600

	// CameraSourceDirectory replays JPEG files from a folder.
	CameraSourceDirectory = "directory"
	// CameraSourceCommand runs an external capture command per frame.
	CameraSourceCommand = "command"
)

// Environment variables overriding YAML values.
const (
	EnvClassifierURL = "DROWSY_CLASSIFIER_URL"
	EnvLogLevel      = "DROWSY_LOG_LEVEL"
	EnvJournalDSN    = "DROWSY_JOURNAL_DSN"
	EnvKafkaBrokers  = "DROWSY_KAFKA_BROKERS"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errClassifierURLRequired is returned when the classifier URL is missing.
	errClassifierURLRequired = errors.New("classifier url must be provided")
	// errUnknownCameraSource is returned for an unsupported camera source.
	errUnknownCameraSource = errors.New("unknown camera source")
	// errCameraPathRequired is returned when the directory source has no folder.
	errCameraPathRequired = errors.New("camera path must be provided for the directory source")
	// errCameraCommandRequired is returned when the command source has no command.
	errCameraCommandRequired = errors.New("camera command must be provided for the command source")
)

// Load reads configuration from the provided path, applies the .env and
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	// A missing .env file is the common case.
	_ = godotenv.Load() //nolint:errcheck // Optional file.

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	applyEnvironment(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills in defaults.
//
//nolint:cyclop // A flat list of field checks reads best.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ClassifierURL == "" {
		return errClassifierURLRequired
	}

	parsed, err := url.ParseRequestURI(cfg.ClassifierURL)
	if err != nil {
		return fmt.Errorf("invalid classifier url: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid classifier url scheme %q: %w", parsed.Scheme, errClassifierURLRequired)
	}

	setDefaultDuration(&cfg.Timeout, DefaultTimeout)
	setDefaultDuration(&cfg.TickInterval, DefaultTickInterval)
	setDefaultDuration(&cfg.StartupDelay, DefaultStartupDelay)
	setDefaultDuration(&cfg.AlarmInterval, DefaultAlarmInterval)

	if err := validateCamera(&cfg.Camera); err != nil {
		return err
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}

	if cfg.ControlAddress == "" {
		cfg.ControlAddress = DefaultControlAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ControlAddress); err != nil {
		return fmt.Errorf("invalid control address: %w", err)
	}

	if cfg.BaselineFile == "" {
		cfg.BaselineFile = DefaultBaselineFilename
	}

	if cfg.MarkerFile == "" {
		cfg.MarkerFile = DefaultMarkerFilename
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}

	return nil
}

// validateCamera checks the camera section and fills in default constraints.
func validateCamera(camera *Camera) error {
	if camera.Width <= 0 {
		camera.Width = DefaultFrameWidth
	}

	if camera.Height <= 0 {
		camera.Height = DefaultFrameHeight
	}

	switch camera.Source {
	case "", CameraSourceDirectory:
		camera.Source = CameraSourceDirectory

		if camera.Path == "" {
			return errCameraPathRequired
		}
	case CameraSourceCommand:
		if len(camera.Command) == 0 {
			return errCameraCommandRequired
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownCameraSource, camera.Source)
	}

	return nil
}

// applyEnvironment overlays environment variables on top of YAML values.
func applyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvClassifierURL); v != "" {
		cfg.ClassifierURL = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv(EnvJournalDSN); v != "" {
		cfg.JournalDSN = v
	}

	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		brokers := make([]string, 0)

		for _, broker := range strings.Split(v, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}

		cfg.Kafka.Brokers = brokers
	}
}

func setDefaultDuration(value *time.Duration, fallback time.Duration) {
	if *value <= 0 {
		*value = fallback
	}
}
