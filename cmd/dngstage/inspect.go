package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/dngstage/internal/api"
	"github.com/samcharles93/dngstage/internal/logger"
)

func inspectCmd() *cli.Command {
	var (
		path     string
		asJSON   bool
		settings decodeSettings
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "List the IFD groups of a DNG in locator search order",
		Flags: append([]cli.Flag{fileFlag(&path), jsonFlag(&asJSON)}, settings.classifyFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
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

			sess, err := newSession(logger.FromContext(ctx))
			if err != nil {
				return err
			}
			out := api.SummarizeIndex(in.idx)
			v := api.SummarizeVerdict(sess.Classify(in.f, in.request(opts)), sess.Diag)
			out.Verdict = &v

			w := outWriter(cmd)
			if asJSON {
				return printJSON(w, out)
			}
			printIndex(cmd, path, uint64(in.size), out)
			return nil
		},
	}
}

func printIndex(cmd *cli.Command, path string, size uint64, s api.IndexSummary) {
	w := outWriter(cmd)
	_, _ = fmt.Fprintf(w, "DNG Inspect: %s (%s)\n", path, formatBytes(size))
	row(w, "DNG version", s.DNGVersion)
	row(w, "Make", s.Make)
	row(w, "Model", s.Model)
	row(w, "Byte order", s.ByteOrder)
	row(w, "Main image", fmt.Sprintf("%d", s.MainIndex))
	row(w, "Valid", fmt.Sprintf("%t", s.Valid))
	if s.Verdict != nil {
		row(w, "Verdict", fmt.Sprintf("%s (%s)", s.Verdict.Decision, s.Verdict.Rule))
	}

	for _, g := range s.Groups {
		section(w, fmt.Sprintf("%s (%d)", g.Group, len(g.Descriptors)))
		for _, d := range g.Descriptors {
			var tags []string
			if d.Main {
				tags = append(tags, "main")
			}
			if d.Preview {
				tags = append(tags, "preview")
			}
			layout := "strips"
			if d.Tiled {
				layout = fmt.Sprintf("tiles %dx%d", d.TileWidth, d.TileLength)
			}
			_, _ = fmt.Fprintf(w, "#%-3d %5dx%-5d spp=%d bps=%-2d %-7s comp=%-5d %s n=%d off=%d",
				d.Index, d.Width, d.Height, d.Samples, d.BitsPerSample, d.PixelType,
				d.Compression, layout, d.Tiles, d.Offset)
			if len(d.Opcodes) > 0 {
				_, _ = fmt.Fprintf(w, " opcodes=%v", d.Opcodes)
			}
			if len(tags) > 0 {
				_, _ = fmt.Fprintf(w, " [%s]", strings.Join(tags, ","))
			}
			_, _ = fmt.Fprintln(w)
		}
	}
}
