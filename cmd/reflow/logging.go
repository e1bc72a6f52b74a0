package main

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

type logSettings struct {
	Level      string
	Format     string
	File       string
	WithCaller bool
}

func logSettingsFromViper() logSettings {
	s := logSettings{
		Level:      viper.GetString("log-level"),
		Format:     viper.GetString("log-format"),
		File:       viper.GetString("log-file"),
		WithCaller: viper.GetBool("with-caller"),
	}
	if viper.GetBool("verbose") && s.Level != "trace" {
		s.Level = "debug"
	}
	return s
}

// resolveFormat turns "auto" into text on a terminal and json otherwise.
func resolveFormat(format string, fd uintptr) string {
	if format != "" && format != "auto" {
		return format
	}
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return "text"
	}
	return "json"
}

func setupLogging(s logSettings, stderr *os.File) {
	var w io.Writer = stderr
	if resolveFormat(s.Format, stderr.Fd()) == "text" {
		w = zerolog.ConsoleWriter{Out: stderr}
	}

	if s.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   s.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		w = io.MultiWriter(w, zerolog.ConsoleWriter{Out: rotated, NoColor: true})
	}

	ctx := zerolog.New(w).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(s.Level))
	if err != nil || s.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
