package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/AlexKimmel/ratequota/internal/config"
	"github.com/AlexKimmel/ratequota/internal/demo"
	"github.com/AlexKimmel/ratequota/internal/format"
	"github.com/AlexKimmel/ratequota/internal/scenario"
)

func runScenario(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("scenario", flag.ContinueOnError)
	flags.SetOutput(stderr)
	path := flags.String("file", "", "path to scenario file (JSON or YAML, required)")
	level := flags.String("log-level", "warn", "log level for diagnostics on stderr")
	if err := flags.Parse(args); err != nil {
		return exitInvalid
	}
	logger := cliLogger(*level, stderr)

	if *path == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		return exitInvalid
	}

	sc, err := config.LoadScenario(*path)
	if err != nil {
		return exitCode(logger, stderr, err)
	}
	logger.Info().Str("file", *path).Int("requests", len(sc.Requests)).Msg("scenario loaded")

	// nothing is printed unless every request is valid
	results, err := scenario.Run(sc, scenario.WithLogger(logger))
	if err != nil {
		return exitCode(logger, stderr, err)
	}

	enc := format.NewEncoder(stdout)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return exitCode(logger, stderr, err)
		}
	}
	return exitOK
}

func runDemo(args []string, stderr io.Writer) int {
	flags := flag.NewFlagSet("demo", flag.ContinueOnError)
	flags.SetOutput(stderr)
	if err := flags.Parse(args); err != nil {
		return exitInvalid
	}
	return exitCode(cliLogger("warn", stderr), stderr, demo.Run(stderr))
}
