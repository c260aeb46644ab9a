package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/rs/zerolog"

	"github.com/AlexKimmel/ratequota/internal/obs"
)

const version = "v0.1.0"

// Exit codes.
const (
	exitOK       = 0
	exitInvalid  = 1 // usage errors and malformed input
	exitNotFound = 2 // a file named on the command line does not exist
)

const usage = `usage: ratequota <command> [flags]

commands:
  check     decide a single request   (--user U [--time T] [--config FILE])
  scenario  replay requests from file (--file FILE)
  demo      narrated walk-through
  serve     run the HTTP service      (--config FILE)
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitInvalid
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "check":
		return runCheck(rest, stdout, stderr)
	case "scenario":
		return runScenario(rest, stdout, stderr)
	case "demo":
		return runDemo(rest, stderr)
	case "serve":
		return runServe(rest, stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitInvalid
	}
}

// exitCode maps an error to the process exit code and reports it on the logger.
func exitCode(logger zerolog.Logger, stderr io.Writer, err error) int {
	if err == nil {
		return exitOK
	}
	logger.Error().Err(err).Msg("command failed")
	fmt.Fprintf(stderr, "Error: %v\n", err)
	if errors.Is(err, fs.ErrNotExist) {
		return exitNotFound
	}
	return exitInvalid
}

func cliLogger(level string, stderr io.Writer) zerolog.Logger {
	return obs.SetupLogger(level, stderr)
}
