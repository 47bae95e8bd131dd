package integration

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// reservePort returns a free loopback address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// writeFrames creates a folder with a few JPEG-looking frames for the directory source.
func writeFrames(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	for _, name := range []string{"0001.jpg", "0002.jpg", "0003.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{0xff, 0xd8, 0xff, 0xe0, 0xff, 0xd9}, 0o600))
	}

	return dir
}

// fakeClassifier answers /detect_drowsiness with a switchable verdict.
type fakeClassifier struct {
	// drowsy selects the drowsy answer.
	drowsy atomic.Bool
	// calls counts detect requests.
	calls atomic.Int64
}

func (f *fakeClassifier) start(t *testing.T) string {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /detect_drowsiness", func(w http.ResponseWriter, _ *http.Request) {
		f.calls.Add(1)

		response := map[string]any{
			"is_drowsy":    false,
			"ear":          0.33,
			"drowsy_score": 5.0,
			"confidence":   0.95,
			"face_box":     map[string]float64{"left": 100, "top": 80, "right": 260, "bottom": 270},
			"message":      "Eyes open",
		}

		if f.drowsy.Load() {
			response["is_drowsy"] = true
			response["ear"] = 0.17
			response["drowsy_score"] = 91.0
			response["message"] = "Eyes closed"
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server.URL
}
