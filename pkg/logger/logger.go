// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package logger

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/model-proxy/pkg/config"
)

// Init configures the global zerolog logger from cfg. Local environments get
// human readable console output, everything else emits JSON lines.
func Init(cfg config.Config) error {
	return initWithWriter(cfg, os.Stdout)
}

func initWithWriter(cfg config.Config, out io.Writer) error {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	// Keep only file:line, the full path adds noise.
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		if idx := strings.LastIndex(file, "/"); idx >= 0 {
			file = file[idx+1:]
		}
		return file + ":" + strconv.Itoa(line)
	}

	if cfg.AppEnv == "local" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "02-01-2006 15:04:05.000"}
	}

	ctx := zerolog.New(out).With().Timestamp().Caller()
	if cfg.AppName != "" {
		ctx = ctx.Str("applicationName", cfg.AppName)
	}
	log.Logger = ctx.Logger()
	return nil
}
