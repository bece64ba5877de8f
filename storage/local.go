// Package storage persists generated presentations and research notes to the
// output directory, optionally mirroring every file to S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ResearchDir is the subdirectory of the output directory that holds research task files.
const ResearchDir = "research"

// Mirror receives a copy of every saved file.
type Mirror interface {
	Mirror(ctx context.Context, name, content string) error
}

// Writer saves markdown under Dir. Files are written in place: no locking and
// no atomic rename, and a later save for the same topic overwrites silently.
type Writer struct {
	Dir     string
	mirror  Mirror
	verbose bool
	logger  *log.Logger
}

// NewWriter creates a Writer for dir. mirror may be nil.
func NewWriter(dir string, mirror Mirror, verbose bool, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.Default()
	}
	return &Writer{Dir: dir, mirror: mirror, verbose: verbose, logger: logger}
}

func (w *Writer) infof(format string, args ...any) {
	if !w.verbose {
		return
	}
	w.logger.Printf("[storage] "+format, args...)
}

// SanitizeTopic turns a topic into a file stem: spaces become underscores, and
// so do path separators so a topic can never leave the output directory.
func SanitizeTopic(topic string) string {
	return strings.NewReplacer(" ", "_", "/", "_", `\`, "_").Replace(topic)
}

// FileName is the name a topic's presentation is saved under.
func FileName(topic string) string {
	return SanitizeTopic(topic) + ".md"
}

// DownloadName is the name offered when the presentation is downloaded.
func DownloadName(topic string) string {
	return SanitizeTopic(topic) + "_presentation.md"
}

// Save writes content to <Dir>/<sanitized topic>.md and returns the path.
func (w *Writer) Save(ctx context.Context, topic, content string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", errors.New("storage: topic is empty")
	}
	name := FileName(topic)
	path, err := w.write(filepath.Join(w.Dir, name), content)
	if err != nil {
		return "", err
	}
	w.mirrorFile(ctx, name, content)
	return path, nil
}

// SaveTaskOutput writes a research task's output to <Dir>/research/<name>.
func (w *Writer) SaveTaskOutput(ctx context.Context, name, content string) (string, error) {
	name = filepath.Base(name)
	path, err := w.write(filepath.Join(w.Dir, ResearchDir, name), content)
	if err != nil {
		return "", err
	}
	w.mirrorFile(ctx, ResearchDir+"/"+name, content)
	return path, nil
}

// Load reads back a previously saved presentation.
func (w *Writer) Load(topic string) (string, error) {
	b, err := os.ReadFile(filepath.Join(w.Dir, FileName(topic)))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (w *Writer) write(path, content string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	w.infof("wrote %s (%d bytes)", path, len(content))
	return path, nil
}

// mirrorFile copies to the mirror. The local file is the result of record, so
// a mirror failure is logged and not returned.
func (w *Writer) mirrorFile(ctx context.Context, name, content string) {
	if w.mirror == nil {
		return
	}
	if err := w.mirror.Mirror(ctx, name, content); err != nil {
		w.logger.Printf("[storage] mirror %s failed: %v", name, err)
		return
	}
	w.infof("mirrored %s", name)
}
