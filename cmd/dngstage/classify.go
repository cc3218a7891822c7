package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/dngstage/internal/api"
	"github.com/samcharles93/dngstage/internal/logger"
)

func classifyCmd() *cli.Command {
	var (
		path     string
		asJSON   bool
		settings decodeSettings
	)

	return &cli.Command{
		Name:  "classify",
		Usage: "Decide whether a file takes the staged decode path",
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
			v := sess.Classify(in.f, in.request(opts))
			out := api.SummarizeVerdict(v, sess.Diag)

			w := outWriter(cmd)
			if asJSON {
				return printJSON(w, out)
			}
			_, err = fmt.Fprintf(w, "%s: %s (%s)\n", path, out.Decision, out.Rule)
			return err
		},
	}
}
