// Package logrus adapts a logrus entry to flightcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/flightcache"
)

var _ flightcache.Logger = Logger{}

// Logger routes flightcache logs to E. An "err" field holding an error is
// attached with WithError so it lands under logrus.ErrorKey.
type Logger struct{ E *logrus.Entry }

func New(l *logrus.Logger) Logger { return Logger{E: logrus.NewEntry(l)} }

func (l Logger) Debug(msg string, f flightcache.Fields) { l.entry(f).Debug(msg) }
func (l Logger) Info(msg string, f flightcache.Fields)  { l.entry(f).Info(msg) }
func (l Logger) Warn(msg string, f flightcache.Fields)  { l.entry(f).Warn(msg) }
func (l Logger) Error(msg string, f flightcache.Fields) { l.entry(f).Error(msg) }

func (l Logger) entry(f flightcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	fields := make(logrus.Fields, len(f))
	var cause error
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			cause = err
			continue
		}
		fields[k] = v
	}
	e := l.E.WithFields(fields)
	if cause != nil {
		e = e.WithError(cause)
	}
	return e
}
