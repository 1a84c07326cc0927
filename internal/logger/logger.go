package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days

	// AppLogName is the file name of the dozer log inside FileConfig.Dir.
	AppLogName = "dozer.log"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// SlogConfig controls the structured application logger.
type SlogConfig struct {
	Level      Level  `mapstructure:"level"`
	Format     Format `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	TimeStamps bool   `mapstructure:"timestamps"`
	Source     bool   `mapstructure:"source"`

	// Output defaults to os.Stderr.
	Output io.Writer `mapstructure:"-"`
}

// FileConfig describes rotated log files.
// If StdoutPath/StderrPath are empty, and Dir is set, files will be
// Dir/<name>.stdout.log and Dir/<name>.stderr.log
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Dir        string `mapstructure:"dir"`          // base directory for logs
	StdoutPath string `mapstructure:"stdout_path"`  // explicit stdout path overrides Dir
	StderrPath string `mapstructure:"stderr_path"`  // explicit stderr path overrides Dir
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // megabytes before rotation (default 10)
	MaxBackups int    `mapstructure:"max_backups"`  // number of backups to keep (default 3)
	MaxAgeDays int    `mapstructure:"max_age_days"` // days to keep (default 7)
	Compress   bool   `mapstructure:"compress"`     // Gzip rotated files
}

// Config is the logging configuration for dozer and the managed server output.
type Config struct {
	Slog SlogConfig `mapstructure:",squash"`
	File FileConfig `mapstructure:",squash"`
}

// SlogLevel converts l to a slog.Level; unknown values mean info.
func (l Level) SlogLevel() slog.Level {
	switch Level(strings.ToLower(string(l))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "warning":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSlogger builds the application logger. When File.Dir is set the output is
// also written to a rotated Dir/dozer.log without colors.
func (c Config) NewSlogger() *slog.Logger {
	out := c.Slog.Output
	if out == nil {
		out = os.Stderr
	}
	h := c.Slog.handler(out, c.Slog.Color)
	if c.File.Dir != "" {
		_ = os.MkdirAll(c.File.Dir, 0o750)
		file := c.File.rotated(filepath.Join(c.File.Dir, AppLogName))
		h = &fanout{handlers: []slog.Handler{h, c.Slog.handler(file, false)}}
	}
	return slog.New(h)
}

func (s SlogConfig) handler(w io.Writer, color bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     s.Level.SlogLevel(),
		AddSource: s.Source,
	}
	if !s.TimeStamps {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}
	}
	if s.Format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	if color {
		return NewColorTextHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// NewProcessLogger returns a JSON logger writing to Dir/<name>.log, or nil when
// no directory is configured.
func (c Config) NewProcessLogger(name string) *slog.Logger {
	if c.File.Dir == "" {
		return nil
	}
	_ = os.MkdirAll(c.File.Dir, 0o750)
	w := c.File.rotated(filepath.Join(c.File.Dir, name+".log"))
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.Slog.Level.SlogLevel()}))
}

// ProcessWriters returns io.WriteClosers for stdout and stderr for given process name.
// Either is nil when no destination is configured for it.
func (c Config) ProcessWriters(name string) (io.WriteCloser, io.WriteCloser, error) {
	f := c.File
	stdout := f.StdoutPath
	stderr := f.StderrPath
	if stdout == "" && f.Dir != "" {
		stdout = filepath.Join(f.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && f.Dir != "" {
		stderr = filepath.Join(f.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	if f.Dir != "" {
		if err := os.MkdirAll(f.Dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	var outW, errW io.WriteCloser
	if stdout != "" {
		outW = f.rotated(stdout)
	}
	if stderr != "" {
		errW = f.rotated(stderr)
	}
	return outW, errW, nil
}

func (f FileConfig) rotated(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
