// binwatch is the command line companion of binwatchd.
//
//	binwatch inspect [-archive dir] [-height cm] <reading-log>
//	binwatch tail [addr]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/client"
	"github.com/xtxerr/binwatch/internal/engine"
	"github.com/xtxerr/binwatch/internal/event"
	"github.com/xtxerr/binwatch/internal/inspect"
	"github.com/xtxerr/binwatch/internal/loader"
	"github.com/xtxerr/binwatch/internal/logging"
	"github.com/xtxerr/binwatch/internal/storage/query"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "inspect":
		err = runInspect(os.Args[2:])
	case "tail":
		err = runTail(os.Args[2:])
	case "version":
		fmt.Println(Version)
	case "-h", "-help", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "binwatch: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  binwatch inspect [flags] <reading-log>   explore a reading log
  binwatch tail [addr]                     print the live event tap
  binwatch version`)
}

// =============================================================================
// inspect
// =============================================================================

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	archiveDir := fs.String("archive", "", "archive directory for sql queries")
	height := fs.Float64("height", config.DefaultBinHeightCm, "empty-bin distance in cm")
	retention := fs.String("retention", "", "drop points older than this (e.g. P30D); default keeps all")
	logLevel := fs.String("log-level", "warn", "log level")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("inspect needs exactly one reading log")
	}
	logging.Init(logging.ParseLevel(*logLevel), false)

	keep, err := loader.ParseDuration(*retention)
	if err != nil {
		return err
	}

	eng, stats, err := inspect.Load(fs.Arg(0), keep, engine.Options{BinHeightCm: *height})
	if err != nil {
		return err
	}

	var q *query.Service
	if *archiveDir != "" {
		q, err = query.New(query.Options{Dir: *archiveDir, BinHeightCm: *height})
		if err != nil {
			return err
		}
		defer q.Close()
	}

	shell := inspect.New(eng, q, os.Stdout)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return shell.RunScript(os.Stdin)
	}

	fmt.Printf("%s: %d readings, %d skipped, %d bins. Type help.\n",
		fs.Arg(0), stats.RecordsRead, stats.SkippedLines, len(eng.Series().Bins()))
	shell.RunPrompt()
	return nil
}

// =============================================================================
// tail
// =============================================================================

func runTail(args []string) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	timeout := fs.Duration("timeout", 10*time.Second, "connect timeout")
	fs.Parse(args)

	addr := config.DefaultTapListenAddress
	if fs.NArg() > 0 {
		addr = fs.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, &client.Config{Addr: addr, ConnectTimeout: *timeout})
	if err != nil {
		return err
	}
	defer c.Close()

	enc := json.NewEncoder(os.Stdout)
	return c.Tail(ctx, func(msg event.Message) {
		enc.Encode(msg)
	})
}
