package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_New(t *testing.T) {
	testCases := []struct {
		name       string
		provider   Provider
		filename   string
		expectType Logger
		expectErr  bool
	}{
		{
			name:       "jellog log",
			provider:   Jellog,
			filename:   "test-jellog.log",
			expectType: jellogLogger{},
		},
		{
			name:       "slog log",
			provider:   Slog,
			filename:   "test-slog.log",
			expectType: &slog.Logger{},
		},
		{
			name:       "NoLog provider discards",
			provider:   NoLog,
			filename:   "test-none.log",
			expectType: NoOpLogger{},
		},
		{
			name:      "unknown provider is an error",
			provider:  Provider(-1),
			filename:  "test-unknown.log",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			filePath := filepath.Join(t.TempDir(), tc.filename)
			actual, closer, err := New(tc.provider, filePath)

			if tc.expectErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
				assert.IsType(tc.expectType, actual)
				assert.NoError(closer.Close())
			}
		})
	}
}

func Test_New_SlogWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bifrost.log")
	log, closer, err := New(Slog, path)
	assert.NoError(t, err)
	defer closer.Close()
	log.Info("requirement failed", "path", "results.species", "component", "whats_my_species")

	b, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "path=results.species"), string(b))
}

func Test_New_BadFile(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "dir", "x.log")
	_, _, err := New(Slog, bad)
	assert.Error(t, err)
	_, _, err = New(Jellog, bad)
	assert.Error(t, err)
}

func Test_New_CloseReleasesFile(t *testing.T) {
	for _, p := range []Provider{Slog, Jellog} {
		t.Run(p.String(), func(t *testing.T) {
			assert := assert.New(t)
			path := filepath.Join(t.TempDir(), "bifrost.log")

			log, closer, err := New(p, path)
			assert.NoError(err)
			log.Info("before close", "n", 1)
			assert.NoError(closer.Close())
			assert.NoError(closer.Close())

			lf, ok := closer.(*logFile)
			if assert.True(ok) {
				_, err = lf.Write([]byte("late\n"))
				assert.ErrorIs(err, os.ErrClosed)
				_, err = lf.f.Write([]byte("late\n"))
				assert.ErrorIs(err, os.ErrClosed)
			}
			log.Info("after close")

			b, err := os.ReadFile(path)
			assert.NoError(err)
			assert.Contains(string(b), "before close")
			assert.Contains(string(b), "n=1")
			assert.NotContains(string(b), "after close")
		})
	}
}

func Test_New_NoFileCloserIsNoop(t *testing.T) {
	for _, p := range []Provider{NoLog, Slog, Jellog} {
		_, closer, err := New(p, "")
		assert.NoError(t, err)
		assert.NotNil(t, closer)
		assert.NoError(t, closer.Close())
	}
}

func Test_ParseProvider(t *testing.T) {
	testCases := []struct {
		input     string
		expect    Provider
		expectErr bool
	}{
		{input: "", expect: Slog},
		{input: "slog", expect: Slog},
		{input: " JELLOG ", expect: Jellog},
		{input: "none", expect: NoLog},
		{input: "syslog", expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			p, err := ParseProvider(tc.input)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expect, p)
		})
	}
	assert.Equal(t, "jellog", Jellog.String())
	assert.Equal(t, "Provider(9)", Provider(9).String())
}

func Test_withAttrs(t *testing.T) {
	assert.Equal(t, "msg", withAttrs("msg", nil))
	assert.Equal(t, "msg a=1 b=x", withAttrs("msg", []any{"a", 1, "b", "x"}))
	assert.Equal(t, "msg a=1 !BADKEY=dangling", withAttrs("msg", []any{"a", 1, "dangling"}))
}
