// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	a2a "github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/config"
)

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if got, want := out.String(), "a2a-taskd "+a2a.Version+"\n"; got != want {
		t.Errorf("version output = %q, want %q", got, want)
	}
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--port", "0"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Errorf("Execute() error = %v, want a port error", err)
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg       config.Config
		wantDebug bool
		wantJSON  bool
	}{
		"text info":  {cfg: config.Config{LogFormat: "text"}},
		"json debug": {cfg: config.Config{LogFormat: "json", Debug: true}, wantDebug: true, wantJSON: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := newLogger(&buf, &tt.cfg)
			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}

			logger.Info("hello")
			if got := strings.HasPrefix(buf.String(), "{"); got != tt.wantJSON {
				t.Errorf("output %q json = %v, want %v", buf.String(), got, tt.wantJSON)
			}
		})
	}
}

func TestOpenPersister(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested")
	store, err := openPersister(t.Context(), dir)
	if err != nil {
		t.Fatalf("openPersister() error = %v", err)
	}
	defer store.Close(context.Background())

	task := a2a.NewTask("t1", "", a2a.NewUserTextMessage("Hello"))
	if err := store.Save(t.Context(), task); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Get(t.Context(), "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != "t1" || got.State != a2a.TaskStateActive {
		t.Errorf("Get() = %s %s", got.ID, got.State)
	}
}
