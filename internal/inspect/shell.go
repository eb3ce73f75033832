// Package inspect implements the offline inspection shell of the binwatch
// CLI: a command interpreter over an engine rebuilt from a reading log.
package inspect

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/c-bata/go-prompt"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/engine"
	"github.com/xtxerr/binwatch/internal/errors"
	"github.com/xtxerr/binwatch/internal/forecast"
	"github.com/xtxerr/binwatch/internal/storage/query"
	"github.com/xtxerr/binwatch/internal/validation"
)

// ErrExit is returned by Execute for the exit command.
var ErrExit = errors.New("exit")

type command struct {
	usage string
	help  string
	run   func(s *Shell, args []string) error
}

var commands map[string]command

// Assigned in init because help refers back to the table.
func init() {
	commands = map[string]command{
		"bins":    {"bins", "list bins with their current fill level", (*Shell).bins},
		"series":  {"series <bin> [hours]", "print the readings of a bin", (*Shell).series},
		"predict": {"predict <bin> [hours] [linear|moving_average]", "project the fill level", (*Shell).predict},
		"rank":    {"rank [horizon_hours]", "rank bins by time to full", (*Shell).rank},
		"stats":   {"stats <bin> [hours]", "summarize the fill level", (*Shell).stats},
		"sql":     {"sql <query>", "query the archive (table: points)", (*Shell).sql},
		"help":    {"help", "show this help", (*Shell).help},
		"exit":    {"exit", "leave the shell", func(*Shell, []string) error { return ErrExit }},
	}
}

// Shell executes inspection commands.
type Shell struct {
	engine *engine.Engine
	query  *query.Service // optional
	out    io.Writer
}

// New creates a shell writing to out. q may be nil when no archive is open.
func New(e *engine.Engine, q *query.Service, out io.Writer) *Shell {
	return &Shell{engine: e, query: q, out: out}
}

// Execute runs one command line. Empty lines are ignored.
func (s *Shell) Execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToLower(fields[0])
	if name == "quit" {
		name = "exit"
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	if name == "sql" {
		// Keep the query text intact.
		return cmd.run(s, []string{strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))})
	}
	return cmd.run(s, fields[1:])
}

// Complete suggests commands and bin ids for go-prompt.
func (s *Shell) Complete(d prompt.Document) []prompt.Suggest {
	words := strings.Fields(d.TextBeforeCursor())
	word := d.GetWordBeforeCursor()

	if len(words) == 0 || (len(words) == 1 && word != "") {
		return prompt.FilterHasPrefix(commandSuggestions(), word, true)
	}

	switch strings.ToLower(words[0]) {
	case "series", "predict", "stats":
		if len(words) == 1 || (len(words) == 2 && word != "") {
			var out []prompt.Suggest
			for _, id := range s.engine.Series().Bins() {
				out = append(out, prompt.Suggest{Text: id})
			}
			return prompt.FilterHasPrefix(out, word, true)
		}
	}
	return nil
}

func commandSuggestions() []prompt.Suggest {
	out := make([]prompt.Suggest, 0, len(commands))
	for name, c := range commands {
		out = append(out, prompt.Suggest{Text: name, Description: c.help})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

// =============================================================================
// Commands
// =============================================================================

func (s *Shell) help([]string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%s\n", commands[name].usage, commands[name].help)
	}
	return tw.Flush()
}

func (s *Shell) bins([]string) error {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BIN\tPOINTS\tDISTANCE\tFULL\tSTATE\tLAST READING")
	for _, b := range s.engine.Bins() {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			b.BinID, b.Points, floatOrDash(b.DistanceCm, "%.1fcm"), intOrDash(b.PercentFull, "%d%%"),
			b.State, timeOrDash(b.LastReading))
	}
	return tw.Flush()
}

func (s *Shell) series(args []string) error {
	if len(args) < 1 {
		return usage("series")
	}
	hours, err := floatArg(args, 1, 24, config.MaxWindowHours)
	if err != nil {
		return err
	}

	points, err := s.engine.Query(args[0], hours)
	if err != nil {
		return err
	}
	h := s.engine.HeightCm(args[0])

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tDISTANCE\tFULL")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%.1fcm\t%d%%\n", p.Time().UTC().Format(time.RFC3339), p.DistanceCm, forecast.PercentFull(p.DistanceCm, h))
	}
	fmt.Fprintf(tw, "(%d points)\n", len(points))
	return tw.Flush()
}

func (s *Shell) predict(args []string) error {
	if len(args) < 1 {
		return usage("predict")
	}
	hours, err := floatArg(args, 1, 24, config.MaxHorizonHours)
	if err != nil {
		return err
	}
	var strategy forecast.Strategy
	if len(args) > 2 {
		if strategy, err = forecast.ParseStrategy(args[2]); err != nil {
			return err
		}
	}

	pred, err := s.engine.Predict(args[0], int(hours), strategy)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "bin %s, %s, %d samples\n", pred.BinID, pred.Strategy, pred.Samples)
	fmt.Fprintf(s.out, "current   %s\n", floatOrDash(pred.CurrentPercent, "%.1f%%"))
	fmt.Fprintf(s.out, "slope     %s\n", floatOrDash(pred.SlopePerHour, "%.2f%%/h"))
	fmt.Fprintf(s.out, "eta 90%%   %s\n", timeOrDash(pred.ETA90))
	fmt.Fprintf(s.out, "eta 100%%  %s\n", timeOrDash(pred.ETA100))

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, p := range pred.Points {
		fmt.Fprintf(tw, "  %s\t%.1f%%\n", p.T.UTC().Format(time.RFC3339), p.Percent)
	}
	return tw.Flush()
}

func (s *Shell) rank(args []string) error {
	horizon, err := floatArg(args, 0, 0, config.MaxWindowHours)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tBIN\tFULL\tSLOPE\tHOURS TO FULL\tETA")
	for i, c := range s.engine.RankPickups(horizon) {
		fmt.Fprintf(tw, "%d\t%s\t%.0f%%\t%s\t%s\t%s\n",
			i+1, c.BinID, c.CurrentPercent, floatOrDash(c.SlopePerHour, "%.2f%%/h"),
			floatOrDash(c.HoursToFull, "%.1f"), timeOrDash(c.ETAFull))
	}
	return tw.Flush()
}

func (s *Shell) stats(args []string) error {
	if len(args) < 1 {
		return usage("stats")
	}
	hours, err := floatArg(args, 1, 24, config.MaxWindowHours)
	if err != nil {
		return err
	}

	sum, err := s.engine.Stats(args[0], hours)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "bin %s: %d readings\n", sum.BinID, sum.Count)
	if sum.IsEmpty() {
		return nil
	}
	fmt.Fprintf(s.out, "distance min %.1f max %.1f avg %.1f cm\n", sum.Min, sum.Max, sum.Avg)
	if sum.HasPercentiles() {
		fmt.Fprintf(s.out, "p50 %s  p90 %s  p95 %s\n",
			floatOrDash(sum.P50, "%.1f"), floatOrDash(sum.P90, "%.1f"), floatOrDash(sum.P95, "%.1f"))
	}
	return nil
}

func (s *Shell) sql(args []string) error {
	if s.query == nil {
		return errors.Wrap(errors.ErrNotRunning, "no archive open (use -archive)")
	}
	if len(args) == 0 || args[0] == "" {
		return usage("sql")
	}

	rows, err := s.query.ExecuteSQL(context.Background(), args[0])
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(s.out, "(0 rows)")
		return nil
	}

	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(cols, "\t")))
	for _, r := range rows {
		vals := make([]string, len(cols))
		for i, c := range cols {
			vals[i] = fmt.Sprint(r[c])
		}
		fmt.Fprintln(tw, strings.Join(vals, "\t"))
	}
	fmt.Fprintf(tw, "(%d rows)\n", len(rows))
	return tw.Flush()
}

// =============================================================================
// Helpers
// =============================================================================

func usage(name string) error {
	return errors.NewInvalidValue("arguments", name, "usage: "+commands[name].usage)
}

func floatArg(args []string, i int, def, max float64) (float64, error) {
	if len(args) <= i {
		return def, nil
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		return 0, errors.NewInvalidValue("hours", args[i], "must be a number")
	}
	if err := validation.ValidateHours(v, max); err != nil {
		return 0, errors.NewInvalidValue("hours", args[i], err.Error())
	}
	return v, nil
}

func floatOrDash(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func intOrDash(v *int, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func timeOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
