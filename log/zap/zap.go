// Package zap adapts a zap logger to flightcache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/flightcache"
)

var _ flightcache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

func New(l *zap.Logger) Logger { return Logger{L: l} }

func (z Logger) Debug(msg string, f flightcache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f flightcache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f flightcache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f flightcache.Fields) { z.L.Error(msg, fields(f)...) }

// fields sorts by key so output is stable; errors use zap.NamedError.
func fields(f flightcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		switch v := f[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
