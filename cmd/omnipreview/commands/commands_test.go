package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/omnipreview/internal/config"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/renderer"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestParse_RenderFlags(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars{"version": "test", "config_path": config.DefaultPath})
	require.NoError(t, err)

	kctx, err := parser.Parse([]string{"-c", "custom.yaml", "render", "notes.txt", "--language", "markdown"})
	require.NoError(t, err)
	assert.Equal(t, "render <file>", kctx.Command())
	assert.Equal(t, "custom.yaml", cli.Config)
	assert.Equal(t, "notes.txt", cli.Render.File)
	assert.Equal(t, "markdown", cli.Render.Language)
}

func TestLoadConfig_DefaultPathFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cli := CLI{Config: config.DefaultPath}
	cfg, err := cli.LoadConfig()
	require.NoError(t, err)
	assert.Len(t, cfg.Renderers, 3)

	cli.Config = "missing.yaml"
	_, err = cli.LoadConfig()
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestRunRender_Markdown(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "notes.md", "# Title\n\nBody text.\n")

	var out bytes.Buffer
	require.NoError(t, RunRender(context.Background(), config.Default(), file, "", &out))
	assert.Contains(t, out.String(), "<h1")
	assert.Contains(t, out.String(), "Body text.")
}

func TestRunRender_LanguageFlagOverridesExtension(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "notes.txt", "<b>bold</b>")

	var out bytes.Buffer
	require.NoError(t, RunRender(context.Background(), config.Default(), file, "html", &out))
	assert.Contains(t, out.String(), "<b>bold</b>")
	assert.NotContains(t, out.String(), "plaintext")
}

func TestRunRender_NoRenderer(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "image.bin", "\x00\x01")

	cfg := config.Default()
	cfg.Renderers = cfg.Renderers[:1]

	err := RunRender(context.Background(), cfg, file, "", &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, renderer.ErrNoRendererAvailable))
	assert.Equal(t, 3, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestRunRender_MissingFile(t *testing.T) {
	err := RunRender(context.Background(), config.Default(), filepath.Join(t.TempDir(), "nope.md"), "", &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))
}

func TestListRenderers(t *testing.T) {
	cfg := config.Default()
	off := false
	cfg.Renderers[2].Enabled = &off
	cfg.Renderers[0].Extensions = []string{".md", ".mdx"}

	var out bytes.Buffer
	require.NoError(t, ListRenderers(cfg, false, &out))
	assert.Contains(t, out.String(), "markdown")
	assert.Contains(t, out.String(), ".md,.mdx")
	assert.NotContains(t, out.String(), "plaintext")

	out.Reset()
	require.NoError(t, ListRenderers(cfg, true, &out))
	assert.Contains(t, out.String(), "plaintext")
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omnipreview.yaml")

	var out bytes.Buffer
	require.NoError(t, RunInit(path, false, &out))
	assert.Contains(t, out.String(), "initialized successfully")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"./docs"}, cfg.Watch.Paths)

	err = RunInit(path, false, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	require.NoError(t, RunInit(path, true, &bytes.Buffer{}))
}

func TestServeCmd_ApplyOverrides(t *testing.T) {
	cfg := config.Default()
	cmd := ServeCmd{Paths: []string{"/docs"}, Addr: "127.0.0.1:9999", Lazy: true, NoLiveReload: true}
	cmd.applyOverrides(cfg)

	assert.Equal(t, []string{"/docs"}, cfg.Watch.Paths)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.True(t, cfg.Watch.Lazy)
	assert.False(t, cfg.Server.LiveReload)
}

func TestApp_ServesWatchedDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.md", "# Hello\n")

	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Watch.Paths = []string{dir}
	cfg.Metrics.Enabled = true

	a, err := newApp(cfg, "")
	require.NoError(t, err)
	require.NoError(t, a.start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.stop(ctx)
	})

	base := "http://" + a.server.Addr()
	require.Eventually(t, func() bool { return a.store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(base + "/documents")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var docs []struct {
		ID   string `json:"id"`
		Path string `json:"path"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "readme.md", filepath.Base(docs[0].Path))

	metricsResp, err := http.Get(base + cfg.Metrics.Path)
	require.NoError(t, err)
	defer func() { _ = metricsResp.Body.Close() }()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunServe(ctx, cfg, "") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunServe did not return after cancel")
	}
}
