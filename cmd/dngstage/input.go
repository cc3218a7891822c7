package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/dngstage/internal/backend"
	"github.com/samcharles93/dngstage/internal/classify"
	"github.com/samcharles93/dngstage/internal/logger"
	"github.com/samcharles93/dngstage/internal/pipeline"
	"github.com/samcharles93/dngstage/pkg/dng"
)

// input is an opened DNG with its parsed index.
type input struct {
	f    *os.File
	size int64
	idx  *dng.Index
}

func openInput(path string) (*input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	idx, err := dng.Parse(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &input{f: f, size: st.Size(), idx: idx}, nil
}

func (in *input) Close() error {
	return in.f.Close()
}

// request describes the main image, or only the container when there is
// none so the classifier can still answer.
func (in *input) request(opts pipeline.Options) pipeline.Request {
	req, ok := pipeline.RequestFromIndex(in.idx, in.size)
	if !ok {
		req = pipeline.Request{Meta: classify.Meta{
			DNGVersion: in.idx.DNGVersion,
			Make:       in.idx.Make,
			FileSize:   in.size,
		}}
	}
	req.Options = opts
	return req
}

func newSession(log logger.Logger) (*pipeline.Session, error) {
	host, err := backend.New(backendName)
	if err != nil {
		return nil, err
	}
	return pipeline.NewSession(host, nil, log), nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

func section(w io.Writer, title string) {
	line := strings.Repeat("-", len(title)+8)
	_, _ = fmt.Fprintf(w, "\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	_, _ = fmt.Fprintf(w, "%-24s %s\n", label+":", value)
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
