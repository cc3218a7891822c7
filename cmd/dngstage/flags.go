package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/dngstage/internal/classify"
	"github.com/samcharles93/dngstage/internal/pipeline"
)

var (
	configFile  string
	backendName string
	logLevel    string
	logFormat   string
	debug       bool
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default $XDG_CONFIG_HOME/dngstage/config.yaml)",
			Sources:     cli.EnvVars(envConfig),
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "staged decode host (auto, cpu, none)",
			Value:       "auto",
			Destination: &backendName,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func fileFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "file",
		Aliases:     []string{"f"},
		Usage:       "path to a .dng file",
		Required:    true,
		Destination: dst,
	}
}

func jsonFlag(dst *bool) cli.Flag {
	return &cli.BoolFlag{
		Name:        "json",
		Usage:       "print a JSON report",
		Destination: dst,
	}
}

// decodeSettings holds the per-command pipeline switches.
type decodeSettings struct {
	categories      []string
	addPreviews     bool
	stage2          bool
	stage3          bool
	stage2IfPresent bool
	stage3IfPresent bool
	allowSizeChange bool
	zeroCopy        bool
	floatToInt      bool
}

func (s *decodeSettings) classifyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "categories",
			Usage:       "staged categories (float, linear, deflate, 8bit, xtrans, other, default)",
			Value:       []string{"default"},
			Destination: &s.categories,
		},
		&cli.BoolFlag{
			Name:        "add-previews",
			Usage:       "accept lossy DNG previews as well as main images",
			Destination: &s.addPreviews,
		},
	}
}

func (s *decodeSettings) stageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "stage2", Usage: "always build stage 2", Destination: &s.stage2},
		&cli.BoolFlag{Name: "stage3", Usage: "always build stage 3", Destination: &s.stage3},
		&cli.BoolFlag{Name: "stage2-if-present", Usage: "build stage 2 when opcode list 2 exists", Destination: &s.stage2IfPresent},
		&cli.BoolFlag{Name: "stage3-if-present", Usage: "build stage 3 when opcode list 3 exists", Destination: &s.stage3IfPresent},
		&cli.BoolFlag{Name: "allow-size-change", Usage: "adopt the staged image bounds when they differ", Destination: &s.allowSizeChange},
		&cli.BoolFlag{Name: "zero-copy", Usage: "alias the backend buffer instead of copying", Destination: &s.zeroCopy},
		&cli.BoolFlag{Name: "float-to-int", Usage: "convert float samples to 16-bit integers", Destination: &s.floatToInt},
	}
}

// applyConfig fills every switch that was not set on the command line.
func (s *decodeSettings) applyConfig(c *cli.Command, cfg Config) {
	if cfg.Categories != nil && !c.IsSet("categories") {
		s.categories = cfg.Categories
	}
	bools := []struct {
		flag string
		v    *bool
		dst  *bool
	}{
		{"add-previews", cfg.AddPreviews, &s.addPreviews},
		{"stage2", cfg.Stage2, &s.stage2},
		{"stage3", cfg.Stage3, &s.stage3},
		{"stage2-if-present", cfg.Stage2IfPresent, &s.stage2IfPresent},
		{"stage3-if-present", cfg.Stage3IfPresent, &s.stage3IfPresent},
		{"allow-size-change", cfg.AllowSizeChange, &s.allowSizeChange},
		{"zero-copy", cfg.ZeroCopy, &s.zeroCopy},
		{"float-to-int", cfg.FloatToInt, &s.floatToInt},
	}
	for _, b := range bools {
		if b.v != nil && !c.IsSet(b.flag) {
			*b.dst = *b.v
		}
	}
}

func (s *decodeSettings) options() (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	cats, err := classify.ParseCategories(s.categories)
	if err != nil {
		return opts, err
	}
	opts.Classify = classify.Options{Categories: cats, AddPreviews: s.addPreviews}
	opts.Stage.Stage2 = s.stage2
	opts.Stage.Stage3 = s.stage3
	opts.Stage.Stage2IfPresent = s.stage2IfPresent
	opts.Stage.Stage3IfPresent = s.stage3IfPresent
	opts.AllowSizeChange = s.allowSizeChange
	opts.Materialize.ZeroCopy = s.zeroCopy
	opts.Materialize.FloatToInt = s.floatToInt
	return opts, nil
}
