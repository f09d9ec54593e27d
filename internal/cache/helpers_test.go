package cache

import (
	"context"
	"log/slog"
	"testing"

	language "github.com/hanpama/graphcache/internal/language"
)

func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

func deps(keys ...string) Dependencies {
	d := Dependencies{}
	for _, k := range keys {
		d.Add(k)
	}
	return d
}

// codeRecorder is a slog.Handler collecting the "code" attribute of every record.
type codeRecorder struct {
	codes *[]string
}

func newRecordingLogger() (*slog.Logger, *[]string) {
	codes := new([]string)
	return slog.New(codeRecorder{codes: codes}), codes
}

func (h codeRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h codeRecorder) Handle(_ context.Context, r slog.Record) error {
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "code" {
			*h.codes = append(*h.codes, a.Value.String())
		}
		return true
	})
	return nil
}

func (h codeRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h codeRecorder) WithGroup(string) slog.Handler      { return h }
