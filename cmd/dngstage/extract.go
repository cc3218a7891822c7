package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/dngstage/internal/api"
	"github.com/samcharles93/dngstage/internal/logger"
	"github.com/samcharles93/dngstage/internal/pipeline"
)

func extractCmd() *cli.Command {
	var (
		path     string
		asJSON   bool
		settings decodeSettings
	)

	flags := []cli.Flag{fileFlag(&path), jsonFlag(&asJSON)}
	flags = append(flags, settings.classifyFlags()...)
	flags = append(flags, settings.stageFlags()...)

	return &cli.Command{
		Name:  "extract",
		Usage: "Run the staged decode and report the published buffer",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			settings.applyConfig(cmd, configFrom(ctx))
			opts, err := settings.options()
			if err != nil {
				return err
			}
			in, err := openInput(path)
			if err != nil {
				return err
			}
			defer in.Close()

			sess, err := newSession(log)
			if err != nil {
				return err
			}
			res, v, err := sess.Extract(ctx, in.f, in.request(opts))
			defer func() {
				if cerr := res.Close(); cerr != nil {
					log.Warn("releasing layout", "err", cerr)
				}
			}()
			out := api.SummarizeExtraction(res, v, sess.Diag, err)
			if res != nil {
				out.ID = res.ID
			}

			w := outWriter(cmd)
			if asJSON {
				if perr := printJSON(w, out); perr != nil {
					return perr
				}
				return err
			}
			printExtraction(cmd, path, out)
			return err
		},
	}
}

func printExtraction(cmd *cli.Command, path string, s api.ExtractionResponse) {
	w := outWriter(cmd)
	_, _ = fmt.Fprintf(w, "DNG Extract: %s\n", path)
	row(w, "Verdict", fmt.Sprintf("%s (%s)", s.Verdict.Decision, s.Verdict.Rule))
	row(w, "Result", s.Code)
	if s.Error != nil {
		row(w, "Error", s.Error.Message)
		row(w, "Failed step", s.Error.Step)
	}
	row(w, "Stage", s.Stage)
	row(w, "Strategy", s.Strategy)
	row(w, "Group", s.Group)
	if s.Skipped > 0 {
		row(w, "Skipped ops", fmt.Sprintf("%d", s.Skipped))
	}
	if l := s.Layout; l != nil {
		section(w, "Layout")
		row(w, "Kind", l.Kind)
		row(w, "Type", l.Type)
		row(w, "Size", fmt.Sprintf("%dx%d x%d", l.Width, l.Height, l.Planes))
		row(w, "Pitch", fmt.Sprintf("%d", l.Pitch))
		row(w, "Bytes", formatBytes(uint64(l.Bytes)))
		row(w, "Ownership", l.Ownership)
		row(w, "Linearized", fmt.Sprintf("%t", l.Linearized))
		if l.Max != 0 {
			row(w, "Max", fmt.Sprintf("%d", l.Max))
		}
	}
	if g := s.Geometry; g != nil {
		section(w, "Geometry")
		row(w, "Raw size", fmt.Sprintf("%dx%d", g.RawWidth, g.RawHeight))
		row(w, "Visible size", fmt.Sprintf("%dx%d", g.Width, g.Height))
		row(w, "Margins", fmt.Sprintf("left=%d top=%d", g.LeftMargin, g.TopMargin))
	}
	if c := s.Color; c != nil {
		section(w, "Color")
		row(w, "Filters", fmt.Sprintf("0x%08x", c.Filters))
		row(w, "Colors", fmt.Sprintf("%d", c.Colors))
		row(w, "Black", fmt.Sprintf("%d", c.Black))
		row(w, "Maximum", fmt.Sprintf("%d", c.Maximum))
	}
	diags := "none"
	if len(s.Diagnostics) > 0 {
		diags = strings.Join(s.Diagnostics, ",")
	}
	row(w, "Diagnostics", diags)
}

// exitCode is the process status for a pipeline result code.
func exitCode(err error) int {
	switch pipeline.CodeOf(err) {
	case pipeline.Success:
		return 0
	case pipeline.DataError:
		return 2
	default:
		return 1
	}
}
