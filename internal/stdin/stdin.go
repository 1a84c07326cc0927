// Package stdin forwards operator console lines to the running server.
package stdin

import (
	"bufio"
	"context"
	"io"
	"log/slog"

	"github.com/loykin/dozer/internal/manager"
)

// LineWriter accepts console lines.
type LineWriter interface {
	WriteLine(line string) error
}

// Source yields the current server process, or nil when none runs.
type Source interface {
	Child() manager.Child
}

// Service reads lines for the whole lifetime of dozer. One reader exists per
// process so restarts of the server never leave competing readers behind.
type Service struct {
	r   io.Reader
	src Source
	log *slog.Logger
}

func New(r io.Reader, src Source, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{r: r, src: src, log: log.With("component", "stdin")}
}

// Run forwards lines until ctx is cancelled or the input ends. The blocking
// read is left behind on cancellation; it ends with the process.
func (s *Service) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-errc; err != nil {
					s.log.Warn("failed to read from stdin", "error", err)
				}
				return nil
			}
			s.forward(line)
		}
	}
}

func (s *Service) forward(line string) {
	c := s.src.Child()
	if c == nil {
		s.log.Debug("server not running, dropped console line")
		return
	}
	w, ok := c.(LineWriter)
	if !ok {
		return
	}
	if err := w.WriteLine(line); err != nil {
		s.log.Warn("failed to write to server stdin", "error", err)
	}
}
