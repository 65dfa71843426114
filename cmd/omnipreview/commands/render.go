package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"git.home.luguber.info/inful/omnipreview/internal/cache"
	"git.home.luguber.info/inful/omnipreview/internal/config"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/observability"
	"git.home.luguber.info/inful/omnipreview/internal/preview"
	"git.home.luguber.info/inful/omnipreview/internal/renderer"
	"git.home.luguber.info/inful/omnipreview/internal/renderer/builtin"
	"git.home.luguber.info/inful/omnipreview/internal/source"
)

// RenderCmd implements the 'render' command.
type RenderCmd struct {
	File     string `arg:"" help:"File to render."`
	Language string `short:"l" help:"Language tag. Defaults to the one configured for the file extension."`
}

func (r *RenderCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	root.setupLogging(cfg)
	return RunRender(context.Background(), cfg, r.File, r.Language, g.out())
}

// RunRender renders file once through the same coordinator path the server
// uses and writes the HTML fragment to w.
func RunRender(ctx context.Context, cfg *config.Config, file, language string, w io.Writer) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return ferrors.FileSystemError("failed to read file").WithCause(err).WithContext("path", file).Build()
	}
	if language == "" {
		language, _ = source.LanguageForPath(cfg.Watch.Languages, file)
	}

	renderers, err := builtin.Load(cfg.Renderers)
	if err != nil {
		return err
	}
	store, err := cache.NewMemoryStore(cache.WithMaxEntries(1))
	if err != nil {
		return err
	}
	coord := preview.New(renderer.NewRegistry(renderers...), store)
	defer coord.Stop()

	if !coord.HasRendererFor(file, language) {
		return ferrors.NotFoundError("no renderer available").
			WithCause(renderer.ErrNoRendererAvailable).
			WithContext("path", file).
			WithContext("language", language).
			Build()
	}

	const id = "render"
	ctx = observability.WithSource(ctx, "cli")
	snap := preview.Snapshot{DocumentID: id, Filename: file, Language: language, Text: string(data)}
	if err := coord.EnqueueViewSnapshot(ctx, snap, false, true); err != nil {
		return err
	}

	entry, ok := store.Get(id)
	if !ok {
		return ferrors.RenderError("render failed").WithContext("path", file).Build()
	}
	_, err = fmt.Fprintln(w, entry.HTMLPart)
	return err
}
