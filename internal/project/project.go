// Package project scaffolds a new quill analysis project: the directory
// layout, an empty history file and default settings.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"quill/internal/config"
)

// HistoryFileName is the append-only turn log at the project root.
const HistoryFileName = "qna.json"

var scaffoldDirs = []string{
	filepath.Join("data", "raw"),
	filepath.Join("data", "processed"),
	"src",
}

// Initializer creates project layouts.
type Initializer struct {
	log *zap.Logger
}

func NewInitializer(log *zap.Logger) *Initializer {
	return &Initializer{log: log}
}

// Init scaffolds dir as a quill project. Existing files are left alone,
// so re-running init on a live project is safe.
func (i *Initializer) Init(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project dir %s: %w", dir, err)
	}
	for _, sub := range scaffoldDirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", sub, err)
		}
	}

	if err := seedFile(filepath.Join(dir, HistoryFileName), []byte("[]\n")); err != nil {
		return err
	}
	if err := seedFile(filepath.Join(dir, config.FileName), []byte("{}\n")); err != nil {
		return err
	}

	i.log.Info("project initialized", zap.String("dir", dir))
	return nil
}

// HistoryPath returns the project's history file location.
func HistoryPath(dir string) string {
	return filepath.Join(dir, HistoryFileName)
}

func seedFile(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}
	return nil
}
