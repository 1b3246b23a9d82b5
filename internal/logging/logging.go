/*
ups-hat-controller - Battery state of charge daemon for an INA219 UPS HAT
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package logging provides the leveled logger shared by the subcommands.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

// LogArgs is embedded into the go-arg struct of each subcommand.
type LogArgs struct {
	LogLevel string `arg:"-l, --log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

type Logger struct {
	*logrus.Logger
	files []*os.File
}

// NewLogger returns a logger writing to stderr at the given level.
// An unknown level falls back to info.
func NewLogger(level string) *Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		DisableColors:   true,
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return &Logger{Logger: l}
}

// NewDiscardLogger is used by tests that don't care about output.
func NewDiscardLogger() *Logger {
	l := NewLogger("error")
	l.Out = io.Discard
	return l
}

// AddFile tees all further output into the file at path, appending.
func (l *Logger) AddFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	l.files = append(l.files, f)
	l.SetOutput(io.MultiWriter(l.Out, f))
	return nil
}

// Close closes any files added with AddFile. Output goes back to stderr.
func (l *Logger) Close() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	l.SetOutput(os.Stderr)
	return firstErr
}
