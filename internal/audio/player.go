package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/oshokin/drowsy-alarm/internal/config"
)

// ErrUnavailable means no audio output device could be created.
var ErrUnavailable = errors.New("audio output unavailable")

// Output plays bursts. Play blocks until the burst finished or ctx is done.
type Output interface {
	Play(ctx context.Context, burst Burst) error
	Close() error
}

// Opener creates an audio output. Opening may block, so the alarm actuator
// calls it outside of its activation guard.
type Opener interface {
	Open(ctx context.Context) (Output, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Output, error)

// Open calls f(ctx).
//
//nolint:ireturn // Opener contract.
func (f OpenerFunc) Open(ctx context.Context) (Output, error) {
	return f(ctx)
}

// CommandOpener opens CommandOutputs backed by the platform player.
type CommandOpener struct {
	// player overrides the platform default when not empty.
	player string
	// sampleRate is the PCM rate used to render bursts.
	sampleRate int
}

// NewCommandOpener returns an opener for the given player override and sample rate.
func NewCommandOpener(player string, sampleRate int) *CommandOpener {
	if sampleRate <= 0 {
		sampleRate = config.DefaultSampleRate
	}

	return &CommandOpener{
		player:     player,
		sampleRate: sampleRate,
	}
}

// Open resolves the player executable and prepares a scratch folder for rendered bursts.
//
//nolint:ireturn // Opener contract.
func (o *CommandOpener) Open(_ context.Context) (Output, error) {
	argv, err := playerCommand(o.player)
	if err != nil {
		return nil, err
	}

	if _, err = exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, argv[0], err)
	}

	dir, err := os.MkdirTemp("", "drowsy-alarm-audio-")
	if err != nil {
		return nil, fmt.Errorf("%w: scratch folder: %w", ErrUnavailable, err)
	}

	return &CommandOutput{
		argv:       argv,
		dir:        dir,
		sampleRate: o.sampleRate,
		rendered:   make(map[string]string),
	}, nil
}

// CommandOutput renders bursts to WAV files and plays them with an external player.
type CommandOutput struct {
	// argv is the player command; the WAV path is substituted for "{}" or appended.
	argv []string
	// dir holds rendered WAV files until Close.
	dir string
	// sampleRate is the PCM rate used to render bursts.
	sampleRate int

	// mu protects rendered.
	mu sync.Mutex
	// rendered caches WAV paths per burst fingerprint.
	rendered map[string]string
}

// Play renders the burst (once per distinct burst) and runs the player until it
// exits. Cancelling ctx kills the player, so no tone outlives its caller.
func (o *CommandOutput) Play(ctx context.Context, burst Burst) error {
	path, err := o.render(burst)
	if err != nil {
		return err
	}

	args := make([]string, 0, len(o.argv))
	substituted := false

	for _, arg := range o.argv[1:] {
		if strings.Contains(arg, "{}") {
			arg = strings.ReplaceAll(arg, "{}", path)
			substituted = true
		}

		args = append(args, arg)
	}

	if !substituted {
		args = append(args, path)
	}

	//nolint:gosec // The player comes from trusted configuration.
	cmd := exec.CommandContext(ctx, o.argv[0], args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err = cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf("play burst: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return nil
}

// Close removes the rendered files.
func (o *CommandOutput) Close() error {
	if o == nil || o.dir == "" {
		return nil
	}

	return os.RemoveAll(o.dir)
}

func (o *CommandOutput) render(burst Burst) (string, error) {
	key := fmt.Sprintf("%v", burst.Voices)

	o.mu.Lock()
	defer o.mu.Unlock()

	if path, ok := o.rendered[key]; ok {
		return path, nil
	}

	var buf bytes.Buffer
	if err := EncodeWAV(&buf, Render(burst, o.sampleRate), o.sampleRate); err != nil {
		return "", err
	}

	path := filepath.Join(o.dir, fmt.Sprintf("burst-%d.wav", len(o.rendered)))
	if err := os.WriteFile(path, buf.Bytes(), config.DefaultFilePermissions); err != nil {
		return "", fmt.Errorf("write burst: %w", err)
	}

	o.rendered[key] = path

	return path, nil
}

// playerCommand returns the player argv for the current OS:
// - Linux:   `aplay -q <file>`
// - macOS:   `afplay <file>`
// - Windows: PowerShell Media.SoundPlayer.PlaySync.
func playerCommand(override string) ([]string, error) {
	if fields := strings.Fields(override); len(fields) > 0 {
		return fields, nil
	}

	osName := strings.ToLower(runtime.GOOS)

	switch {
	case strings.Contains(osName, "linux"):
		return []string{"aplay", "-q"}, nil
	case strings.Contains(osName, "darwin"):
		return []string{"afplay"}, nil
	case strings.Contains(osName, "windows"):
		return []string{
			"powershell.exe", "-NoProfile", "-NonInteractive", "-Command",
			"(New-Object Media.SoundPlayer '{}').PlaySync()",
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported operating system: %s", ErrUnavailable, runtime.GOOS)
	}
}
