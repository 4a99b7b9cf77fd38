package ingest

import (
	"fmt"
	"log"

	"github.com/nxadm/tail"

	"websentry/internal/normalize"
)

// Source is a stream of raw traffic records
type Source interface {
	Start() (<-chan normalize.RawRecord, error)
	Stop() error
}

// FileTailer follows a web server access log and emits one record per
// line. Rotation is handled by reopening the file.
type FileTailer struct {
	path string
	t    *tail.Tail
}

func NewFileTailer(path string) *FileTailer {
	return &FileTailer{path: path}
}

// Start begins tailing the file and returns a channel of records
func (f *FileTailer) Start() (<-chan normalize.RawRecord, error) {
	config := tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      true, // Fallback for some filesystems/docker mounts
		Logger:    tail.DiscardingLogger,
	}

	log.Printf("[INGEST] Tailing %s (waiting if not present)", f.path)

	t, err := tail.TailFile(f.path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to tail file %s: %w", f.path, err)
	}
	f.t = t

	out := make(chan normalize.RawRecord)
	go func() {
		defer close(out)
		for line := range t.Lines {
			if line.Err != nil {
				// Rotation produces transient read errors; skip quietly
				continue
			}
			out <- normalize.RawRecord{Line: line.Text}
		}
	}()

	return out, nil
}

func (f *FileTailer) Stop() error {
	if f.t != nil {
		return f.t.Stop()
	}
	return nil
}
