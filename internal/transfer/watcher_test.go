package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"testrig/pkg/logging"
)

type watcherSink struct {
	appeared chan string
}

func (s *watcherSink) Capture(entry logging.LogEntry) {
	if strings.HasPrefix(entry.Message, "artifact appeared:") {
		select {
		case s.appeared <- entry.Message:
		default:
		}
	}
}

func TestWatcher_ReportsNewArtifacts(t *testing.T) {
	logging.Init(logging.LevelDebug, io.Discard)
	sink := &watcherSink{appeared: make(chan string, 1)}
	remove := logging.RegisterSink(sink)
	t.Cleanup(remove)

	root := t.TempDir()
	w, err := NewWatcher(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	// Give the watcher a moment to arm before producing the event.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "rootfs.img"), []byte("image"), 0o644))

	select {
	case msg := <-sink.appeared:
		require.Contains(t, msg, "rootfs.img")
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never reported the new artifact")
	}
}
