package inspect

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"

	"github.com/xtxerr/binwatch/internal/engine"
	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/storage/readinglog"
	"github.com/xtxerr/binwatch/internal/storage/series"
)

// Load rebuilds a memory-only engine from the reading log at path. Points
// older than retention are dropped; zero keeps everything.
func Load(path string, retention time.Duration, opts engine.Options) (*engine.Engine, readinglog.ReaderStats, error) {
	if retention <= 0 {
		// Effectively unbounded.
		retention = 100 * 365 * 24 * time.Hour
	}
	points := series.New(nil, series.Options{Retention: retention, Now: opts.Now})
	stats, err := points.Replay(path)
	if err != nil {
		return nil, stats, err
	}
	return engine.New(event.NewStore(1, nil), points, opts), stats, nil
}

// RunPrompt starts the interactive prompt and returns after exit.
func (s *Shell) RunPrompt() {
	exited := false
	p := prompt.New(
		func(line string) {
			if err := s.Execute(line); err != nil {
				if errors.Is(err, ErrExit) {
					exited = true
					return
				}
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
		},
		s.Complete,
		prompt.OptionPrefix("binwatch> "),
		prompt.OptionTitle("binwatch inspect"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && (exited || isExit(in))
		}),
	)
	p.Run()
}

func isExit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit":
		return true
	}
	return false
}

// RunScript executes one command per line of r. Errors are printed and do
// not stop the script; the first error is returned at the end.
func (s *Shell) RunScript(r io.Reader) error {
	var first error
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.Execute(line); err != nil {
			if errors.Is(err, ErrExit) {
				break
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
			if first == nil {
				first = err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return first
}
