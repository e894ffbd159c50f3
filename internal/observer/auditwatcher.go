package observer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
	"github.com/hochfrequenz/squad-orchestrator/internal/outcome"
)

// AuditCallback receives audit records as the executor appends them
type AuditCallback func(runID string, records []domain.AuditRecord)

// AuditWatcher follows the per-run audit files in one directory and reports
// new records live. Verdicts are still computed from the complete file after
// the run ends.
type AuditWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	callback AuditCallback

	offsets map[string]int64
	partial map[string]string
	mu      sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAuditWatcher starts watching dir, creating it if needed
func NewAuditWatcher(dir string, callback AuditCallback) (*AuditWatcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &AuditWatcher{
		watcher:  watcher,
		dir:      dir,
		callback: callback,
		offsets:  make(map[string]int64),
		partial:  make(map[string]string),
		done:     make(chan struct{}),
	}, nil
}

// Start begins delivering records
func (aw *AuditWatcher) Start(ctx context.Context) {
	ctx, aw.cancel = context.WithCancel(ctx)

	go func() {
		defer close(aw.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-aw.watcher.Events:
				if !ok {
					return
				}
				aw.handleEvent(event)
			case _, ok := <-aw.watcher.Errors:
				if !ok {
					return
				}
				// Missed events only delay live output
			}
		}
	}()
}

// Stop stops watching
func (aw *AuditWatcher) Stop() {
	if aw.cancel != nil {
		aw.cancel()
		<-aw.done
	}
	aw.watcher.Close()
}

func (aw *AuditWatcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".jsonl") {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	runID := strings.TrimSuffix(filepath.Base(event.Name), ".jsonl")

	records := aw.readNew(event.Name)
	if len(records) > 0 && aw.callback != nil {
		aw.callback(runID, records)
	}
}

// readNew returns the complete records appended since the last read
func (aw *AuditWatcher) readNew(path string) []domain.AuditRecord {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	if _, err := f.Seek(aw.offsets[path], io.SeekStart); err != nil {
		return nil
	}
	data, err := io.ReadAll(f)
	if err != nil || len(data) == 0 {
		return nil
	}
	aw.offsets[path] += int64(len(data))

	text := aw.partial[path] + string(data)
	// Keep an unterminated last line for the next event
	cut := strings.LastIndex(text, "\n")
	if cut < 0 {
		aw.partial[path] = text
		return nil
	}
	aw.partial[path] = text[cut+1:]

	records, _ := outcome.ParseAudit(strings.NewReader(text[:cut+1]))
	return records
}
