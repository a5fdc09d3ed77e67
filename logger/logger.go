// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logger provides subsystem-tagged loggers backed by logrus, with
// output duplicated to a rotating log file. Subsystems map to the
// components of the indexing pipeline and query engine.
package logger

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/jrick/logrotate/rotator"
	"github.com/sirupsen/logrus"
)

// SubsystemTags enumerates the logging subsystems.
var SubsystemTags = struct {
	EXTR, // extract: walking the chain, writing staging CSVs
	SORT, // sortutil: external sort
	GRUP, // group: per-table grouping/loading
	ORPH, // orphan: orphan-chain unwinding
	META, // meta: checkpoint persistence
	PHAS, // phase: orchestrator
	STOR, // store: key-value store driver
	NODE, // rpc: node REST/JSON-RPC client
	NOTY, // notify: outbound webhook
	QURY, // query: address/tx/block query engine
	HTTP string // apiserver: HTTP transport
}{
	EXTR: "EXTR",
	SORT: "SORT",
	GRUP: "GRUP",
	ORPH: "ORPH",
	META: "META",
	PHAS: "PHAS",
	STOR: "STOR",
	NODE: "NODE",
	NOTY: "NOTY",
	QURY: "QURY",
	HTTP: "HTTP",
}

var (
	backend *logrus.Logger

	logRotator    *rotator.Rotator
	errLogRotator *rotator.Rotator

	initiated bool

	subsystemLoggers map[string]*logrus.Entry
)

func init() {
	backend = logrus.New()
	backend.SetOutput(os.Stdout)
	backend.SetLevel(logrus.InfoLevel)
	backend.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	subsystemLoggers = make(map[string]*logrus.Entry)
	for _, tag := range []string{
		SubsystemTags.EXTR, SubsystemTags.SORT, SubsystemTags.GRUP,
		SubsystemTags.ORPH, SubsystemTags.META, SubsystemTags.PHAS,
		SubsystemTags.STOR, SubsystemTags.NODE, SubsystemTags.NOTY,
		SubsystemTags.QURY, SubsystemTags.HTTP,
	} {
		subsystemLoggers[tag] = backend.WithField("subsystem", tag)
	}
}

// logWriter duplicates backend output to stdout and the rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if initiated {
		logRotator.Write(p)
	}
	return len(p), nil
}

// errRotatorHook duplicates warning-and-above entries to the error log
// rotator, the same split btcd's two-file logging gives operators tailing
// only the error stream.
type errRotatorHook struct{}

func (errRotatorHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (errRotatorHook) Fire(entry *logrus.Entry) error {
	if !initiated || errLogRotator == nil {
		return nil
	}
	line, err := entry.String()
	if err != nil {
		return err
	}
	_, err = errLogRotator.Write([]byte(line))
	return err
}

// InitLogRotators initializes the log file rotator and the error-log
// rotator. It must be called once during startup before any logging is
// expected to reach disk; until then, log lines still reach stdout.
func InitLogRotators(logFile, errLogFile string) error {
	var err error
	logRotator, err = newRotator(logFile)
	if err != nil {
		return err
	}
	errLogRotator, err = newRotator(errLogFile)
	if err != nil {
		return err
	}
	initiated = true
	backend.SetOutput(logWriter{})
	backend.AddHook(errRotatorHook{})
	return nil
}

func newRotator(logFile string) (*rotator.Rotator, error) {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return nil, err
		}
	}
	return rotator.New(logFile, 10*1024, false, 3)
}

// Get returns the logger for the given subsystem tag, creating it on first
// use for unrecognized (but plausible) tags.
func Get(tag string) *logrus.Entry {
	if entry, ok := subsystemLoggers[tag]; ok {
		return entry
	}
	entry := backend.WithField("subsystem", tag)
	subsystemLoggers[tag] = entry
	return entry
}

// SetLevel sets the logging level for every subsystem.
func SetLevel(level logrus.Level) {
	backend.SetLevel(level)
}

// SupportedSubsystems returns a sorted slice of subsystem tags, useful for
// validating a --debuglevel=TAG=level flag value.
func SupportedSubsystems() []string {
	tags := make([]string, 0, len(subsystemLoggers))
	for tag := range subsystemLoggers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
