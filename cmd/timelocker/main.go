package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"timelocker/internal/config"
	"timelocker/internal/container"
	"timelocker/internal/progress"
	"timelocker/internal/timelock"
	"timelocker/internal/vault"
)

const usageText = `timelocker - cryptographic time-lock encryption for files and directories

Usage:
  timelocker lock <path> --until <time> [--out <file>] [--label <text>]
  timelocker unlock <file> --dest <dir>
  timelocker status <file-or-dir>
  timelocker validate <file>

Options:
  --until <time>   RFC3339 timestamp for unlock time
  --out <file>     container output path (default: <path>.tlock)
  --label <text>   human-readable duration label stored in metadata
  --dest <dir>     extraction destination directory
  --verbose        enable diagnostic logging

Locked containers decrypt only after the drand network publishes the
signature for the target round. No early unlock. No recovery.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usageText)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "lock":
		handleLock(os.Args[2:])
	case "unlock":
		handleUnlock(os.Args[2:])
	case "status":
		handleStatus(os.Args[2:])
	case "validate":
		handleValidate(os.Args[2:])
	case "help", "--help", "-h":
		fmt.Println(usageText)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		fmt.Fprintln(os.Stderr, usageText)
		os.Exit(1)
	}
}

func newService(verbose bool) *vault.Service {
	logger := zap.NewNop()
	if verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			logger = l
		}
	}

	cfg := config.Default()
	if path, err := config.DefaultPath(); err == nil {
		if loaded, err := config.Load(path); err == nil {
			cfg = loaded
		} else {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	svc := vault.NewService(logger)
	box := timelock.NewDrandBoxWithEndpoints(cfg.Endpoints, logger)
	box.ChainHash = cfg.ChainHash
	svc.Cipher = timelock.NewCipher(box, logger)
	svc.Beacon.Endpoints = cfg.Endpoints
	svc.Beacon.ChainHash = cfg.ChainHash
	svc.Throttle = cfg.Throttle()

	return svc
}

// signalContext cancels on Ctrl-C so operations unwind at the next file
// boundary and clean up partial output.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func progressSink() progress.Sink {
	return func(u progress.Update) {
		if u.Phase == progress.PhaseComplete {
			fmt.Fprintf(os.Stderr, "\rdone: %d files, %d bytes          \n", u.FilesDone, u.BytesDone)
			return
		}
		if u.Percentage != nil {
			fmt.Fprintf(os.Stderr, "\r%s %5.1f%% (%d files)", u.Phase, *u.Percentage, u.FilesDone)
		} else {
			fmt.Fprintf(os.Stderr, "\r%s (%d files)", u.Phase, u.FilesDone)
		}
	}
}

func handleLock(args []string) {
	flags := flag.NewFlagSet("lock", flag.ExitOnError)
	until := flags.String("until", "", "RFC3339 timestamp for unlock time")
	out := flags.String("out", "", "container output path")
	label := flags.String("label", "", "duration label stored in metadata")
	verbose := flags.Bool("verbose", false, "enable diagnostic logging")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: timelocker lock <path> --until <time> [--out <file>] [--label <text>]")
		flags.PrintDefaults()
	}
	flags.Parse(args)

	if *until == "" {
		fmt.Fprintln(os.Stderr, "error: --until is required")
		flags.Usage()
		os.Exit(1)
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "error: exactly one source path is required")
		flags.Usage()
		os.Exit(1)
	}

	unlockTime, err := time.Parse(time.RFC3339, *until)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid time format, expected RFC3339")
		os.Exit(1)
	}

	svc := newService(*verbose)
	ctx, cancel := signalContext()
	defer cancel()

	result, err := svc.Lock(ctx, vault.LockRequest{
		SourcePath: flags.Arg(0),
		UnlockTime: unlockTime,
		Duration:   *label,
		OutputPath: *out,
		Sink:       progressSink(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created %s (round %d, unlocks %s)\n",
		result.ContainerPath, result.Round, unlockTime.UTC().Format(time.RFC3339))
}

func handleUnlock(args []string) {
	flags := flag.NewFlagSet("unlock", flag.ExitOnError)
	dest := flags.String("dest", "", "extraction destination directory")
	verbose := flags.Bool("verbose", false, "enable diagnostic logging")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: timelocker unlock <file> --dest <dir>")
		flags.PrintDefaults()
	}
	flags.Parse(args)

	if *dest == "" {
		fmt.Fprintln(os.Stderr, "error: --dest is required")
		flags.Usage()
		os.Exit(1)
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "error: exactly one container path is required")
		flags.Usage()
		os.Exit(1)
	}

	svc := newService(*verbose)
	ctx, cancel := signalContext()
	defer cancel()

	result, err := svc.Unlock(ctx, vault.UnlockRequest{
		ContainerPath: flags.Arg(0),
		DestDir:       *dest,
		Sink:          progressSink(),
	})
	if err != nil {
		var active *timelock.TimeLockActiveError
		if errors.As(err, &active) {
			fmt.Fprintf(os.Stderr, "error: %v\n", active)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("extracted %s to %s\n", result.Metadata.OriginalFile, result.DestDir)
}

func handleStatus(args []string) {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	verbose := flags.Bool("verbose", false, "enable diagnostic logging")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: timelocker status <file-or-dir>")
	}
	flags.Parse(args)

	if flags.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "error: exactly one path is required")
		flags.Usage()
		os.Exit(1)
	}

	svc := newService(*verbose)
	ctx, cancel := signalContext()
	defer cancel()

	target := flags.Arg(0)
	info, err := os.Stat(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	paths := []string{target}
	if info.IsDir() {
		entries, err := svc.Scan(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		paths = paths[:0]
		for _, e := range entries {
			paths = append(paths, e.Path)
		}
		if len(paths) == 0 {
			fmt.Println("no containers found")
			return
		}
	}

	for _, path := range paths {
		st, err := svc.Status(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: error: %v\n", path, err)
			continue
		}
		printStatus(st)
	}
}

func printStatus(st vault.Status) {
	fmt.Printf("path: %s\n", st.Path)
	fmt.Printf("original: %s\n", st.Metadata.OriginalFile)
	fmt.Printf("created: %s\n", st.Metadata.Created.Format(time.RFC3339))
	fmt.Printf("unlocks: %s (%s)\n", st.Metadata.Unlocks.Format(time.RFC3339), st.Metadata.Duration)
	if st.Round > 0 {
		fmt.Printf("round: %d\n", st.Round)
	}
	if st.Unlockable {
		fmt.Println("state: unlockable")
	} else {
		fmt.Printf("state: locked (%s remaining)\n", st.Remaining.Round(time.Second))
	}
	if st.NetworkAvailable != nil {
		fmt.Printf("beacon published: %t\n", *st.NetworkAvailable)
	}
	fmt.Println()
}

func handleValidate(args []string) {
	flags := flag.NewFlagSet("validate", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: timelocker validate <file>")
	}
	flags.Parse(args)

	if flags.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "error: exactly one container path is required")
		flags.Usage()
		os.Exit(1)
	}

	if err := container.Validate(flags.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("valid")
}
