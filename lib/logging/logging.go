// Package logging provides the loggers used throughout hotkv.
//
// Every logger writes one line per entry in the form
//
//	2006/01/02 15:04:05 LEVEL | package         | message key=value ...
//
// and all loggers share a single level that can be changed at runtime with
// SetLevel.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// --------------------------------------------------------------------------
// Formatter
// --------------------------------------------------------------------------

// pkgField is the logrus field holding the package name of a logger
const pkgField = "pkg"

// lineFormatter renders entries as "LEVEL | package | message"
type lineFormatter struct{}

func (lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	pkg, _ := entry.Data[pkgField].(string)
	level := strings.ToUpper(entry.Level.String())
	if entry.Level == logrus.WarnLevel {
		level = "WARN"
	}

	b.WriteString(entry.Time.Format("2006/01/02 15:04:05 "))
	fmt.Fprintf(&b, "%-5s | %-15s | %s", level, pkg, entry.Message)

	// remaining fields in a stable order
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != pkgField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	rootOnce sync.Once
	root     *logrus.Logger
)

func base() *logrus.Logger {
	rootOnce.Do(func() {
		root = logrus.New()
		root.SetOutput(os.Stdout)
		root.SetFormatter(lineFormatter{})
		root.SetLevel(logrus.InfoLevel)
	})
	return root
}

// NewLogger returns a logger that tags every entry with pkgName.
func NewLogger(pkgName string) *logrus.Entry {
	return base().WithField(pkgField, pkgName)
}

// SetLevel sets the level of all loggers. Valid levels are debug, info,
// warn, error.
func SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	base().SetLevel(lvl)
	return nil
}

// SetOutput redirects all loggers to w.
func SetOutput(w io.Writer) {
	base().SetOutput(w)
}

// ParseLevel converts a level name to a logrus level.
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warning", "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, errors.Newf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}
