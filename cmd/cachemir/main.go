// Command cachemir demonstrates memoizing a rendered document.
//
// It renders the "foo_pdf" output of document Foo#1 twice with the same
// arguments and reports how many times the renderer actually ran. Run it
// twice with CACHEMIR_BACKEND=disk and a fixed CACHEMIR_DIR to see the
// artifact survive a restart.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/meigma/cachemir"
	"github.com/meigma/cachemir/fingerprint"
	"github.com/meigma/cachemir/storage"
	"github.com/meigma/cachemir/storage/disk"
	"github.com/meigma/cachemir/storage/memory"
)

func main() {
	if err := run(context.Background(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "cachemir:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	doc := newFoo(client, "Foo#1")
	for range 2 {
		rc, err := doc.PDF(ctx, 1, 2, 3)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	}
	fmt.Fprintf(out, "renders: %d\n", doc.renders)
	if d, ok := storage.Base(client.Backend()).(*disk.Backend); ok {
		fmt.Fprintf(out, "cache dir: %s\n", d.Dir())
	}
	return nil
}

func newClient(cfg config, logger *slog.Logger) (*cachemir.Client, error) {
	opts := []cachemir.Option{cachemir.WithLogger(logger)}
	switch cfg.Backend {
	case backendMemory:
		opts = append(opts, cachemir.WithBackend(memory.New()))
	case backendNull:
		opts = append(opts, cachemir.WithBackend(memory.New()), cachemir.WithNullStorage())
	case backendDisk:
		diskOpts := []disk.Option{disk.WithLogger(logger)}
		if cfg.Suffix != "" {
			diskOpts = append(diskOpts, disk.WithSuffix(cfg.Suffix))
		}
		// An empty dir gets a fresh temporary directory.
		d, err := disk.New(cfg.Dir, diskOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, cachemir.WithBackend(d))
	}
	if cfg.Compress {
		opts = append(opts, cachemir.WithCompression())
	}
	return cachemir.New(opts...)
}

// foo is a document with a cached rendering.
type foo struct {
	id      string
	pdf     *cachemir.Memo
	renders int
}

func newFoo(c *cachemir.Client, id string) *foo {
	f := &foo{id: id}
	f.pdf = c.Memo("foo_pdf", f.renderPDF)
	return f
}

func (f *foo) renderPDF(_ context.Context, w io.Writer, _ []any, _ fingerprint.KW) error {
	f.renders++
	_, err := io.WriteString(w, "This is my output.")
	return err
}

// PDF returns the rendered document for the given arguments.
func (f *foo) PDF(ctx context.Context, args ...any) (io.ReadCloser, error) {
	return f.pdf.Get(ctx, f.id, args, nil)
}
