/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const logDate string = `2006-01-02T15:04:05.000-07:00`

// setupLogging installs the global logger. Routine output is only shown
// with --verbose; warnings and errors are always written.
func setupLogging(cfg *Config, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = logDate

	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: logDate,
		NoColor:    true,
	}).With().Timestamp().Logger()

	if cfg.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
}
