package config

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogWriter returns stderr, or a size-rotated file when path is set.
func LogWriter(path string) io.Writer {
	if path == "" {
		return os.Stderr
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("Warning: cannot create log dir for %s, logging to stderr: %v", path, err)
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// NewLogger builds a component logger, e.g. NewLogger("[server] ", cfg.LogFile).
func NewLogger(prefix, path string) *log.Logger {
	return log.New(LogWriter(path), prefix, log.LstdFlags)
}
