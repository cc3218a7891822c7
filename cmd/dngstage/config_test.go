package main

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/urfave/cli/v3"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file is empty config", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if cfg.Stage2 != nil || cfg.Backend != "" {
			t.Fatalf("expected zero config, got %+v", cfg)
		}
	})

	t.Run("parses switches", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "backend: cpu\ncategories: [float, other]\nstage2: true\nzero_copy: false\nserver_address: 0.0.0.0:9000\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if cfg.Backend != "cpu" || cfg.ServerAddress != "0.0.0.0:9000" {
			t.Fatalf("unexpected strings: %+v", cfg)
		}
		if !slices.Equal(cfg.Categories, []string{"float", "other"}) {
			t.Fatalf("categories: got %v", cfg.Categories)
		}
		if cfg.Stage2 == nil || !*cfg.Stage2 {
			t.Fatalf("stage2 should be set to true")
		}
		if cfg.ZeroCopy == nil || *cfg.ZeroCopy {
			t.Fatalf("zero_copy should be set to false")
		}
		if cfg.Stage3 != nil {
			t.Fatalf("stage3 should be unset")
		}
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("stage2: [nope"), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Fatalf("expected an error")
		}
	})

	t.Run("default path follows XDG_CONFIG_HOME", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", dir)
		if got, want := configPath(), filepath.Join(dir, "dngstage", "config.yaml"); got != want {
			t.Fatalf("configPath: got %q want %q", got, want)
		}
	})
}

func TestDecodeSettingsApplyConfig(t *testing.T) {
	yes, no := true, false
	cfg := Config{
		Categories: []string{"other"},
		Stage2:     &yes,
		ZeroCopy:   &yes,
		FloatToInt: &no,
	}

	var settings decodeSettings
	cmd := &cli.Command{
		Name:  "extract",
		Flags: append(settings.classifyFlags(), settings.stageFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			settings.applyConfig(c, cfg)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"extract", "--zero-copy=false", "--float-to-int"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !settings.stage2 {
		t.Fatalf("stage2 should come from the config file")
	}
	if settings.zeroCopy {
		t.Fatalf("explicit --zero-copy=false must win over the config file")
	}
	if !settings.floatToInt {
		t.Fatalf("explicit --float-to-int must win over the config file")
	}
	opts, err := settings.options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if !opts.Stage.Stage2 || opts.Materialize.ZeroCopy {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.Classify.Categories == 0 {
		t.Fatalf("categories from config were not applied")
	}
}

func TestDecodeSettingsRejectsUnknownCategory(t *testing.T) {
	s := decodeSettings{categories: []string{"sepia"}}
	if _, err := s.options(); err == nil {
		t.Fatalf("expected an error for an unknown category")
	}
}
