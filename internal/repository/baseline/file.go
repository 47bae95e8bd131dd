package baseline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
)

// Field names of the stored document.
const (
	fieldStartedAt = "started_at"
	fieldEndedAt   = "ended_at"
	fieldMin       = "min"
	fieldMax       = "max"
	fieldAvg       = "avg"
	fieldCount     = "count"
)

// Repository defines persistence operations for the calibration baseline.
type Repository interface {
	Load(ctx context.Context) (*detection.CalibrationSession, error)
	Save(ctx context.Context, session detection.CalibrationSession) error
}

// FileRepository persists the baseline to a JSON file on disk.
// JSON is produced and consumed via protobuf JSON (protojson) over a
// google.protobuf.Struct, the same shape the control API uses.
type FileRepository struct {
	// path is the filesystem location of the JSON baseline file.
	path string
	// mu protects concurrent access to the baseline file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when the baseline file does not exist yet.
	ErrNotFound = errors.New("baseline not found")
	// errEmptySession is returned when saving a session without samples.
	errEmptySession = errors.New("calibration session has no samples")
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the baseline from disk.
func (r *FileRepository) Load(_ context.Context) (*detection.CalibrationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read baseline file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("decode baseline file: %w", err)
	}

	return fromStruct(&document)
}

// Save writes the baseline to disk. Sessions without samples are rejected.
func (r *FileRepository) Save(_ context.Context, session detection.CalibrationSession) error {
	if session.Stats.Count == 0 {
		return errEmptySession
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	marshalOptions := protojson.MarshalOptions{
		Multiline:       true,
		EmitUnpopulated: true,
	}

	data, err := marshalOptions.Marshal(toStruct(session))
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write baseline file: %w", err)
	}

	return nil
}

// CalibrationFinished stores the finished session as the new baseline.
func (r *FileRepository) CalibrationFinished(ctx context.Context, session detection.CalibrationSession) error {
	return r.Save(ctx, session)
}

// toStruct converts the session into a protobuf Struct.
func toStruct(session detection.CalibrationSession) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldStartedAt: structpb.NewStringValue(session.StartedAt.UTC().Format(time.RFC3339Nano)),
		fieldEndedAt:   structpb.NewStringValue(session.EndedAt.UTC().Format(time.RFC3339Nano)),
		fieldCount:     structpb.NewNumberValue(float64(session.Stats.Count)),
	}

	for name, value := range map[string]*float64{
		fieldMin: session.Stats.Min,
		fieldMax: session.Stats.Max,
		fieldAvg: session.Stats.Avg,
	} {
		if value == nil {
			fields[name] = structpb.NewNullValue()
			continue
		}

		fields[name] = structpb.NewNumberValue(*value)
	}

	return &structpb.Struct{Fields: fields}
}

// fromStruct converts a protobuf Struct back into the session.
func fromStruct(document *structpb.Struct) (*detection.CalibrationSession, error) {
	fields := document.GetFields()

	startedAt, err := parseTime(fields[fieldStartedAt])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldStartedAt, err)
	}

	endedAt, err := parseTime(fields[fieldEndedAt])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldEndedAt, err)
	}

	return &detection.CalibrationSession{
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Stats: detection.CalibrationStats{
			Min:   number(fields[fieldMin]),
			Max:   number(fields[fieldMax]),
			Avg:   number(fields[fieldAvg]),
			Count: int(fields[fieldCount].GetNumberValue()),
		},
	}, nil
}

func parseTime(value *structpb.Value) (time.Time, error) {
	raw := value.GetStringValue()
	if raw == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339Nano, raw)
}

func number(value *structpb.Value) *float64 {
	if _, ok := value.GetKind().(*structpb.Value_NumberValue); !ok {
		return nil
	}

	v := value.GetNumberValue()

	return &v
}
