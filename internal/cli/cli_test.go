package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard/internal/blockstore"
	"whiteboard/internal/config"
	"whiteboard/internal/media"
	"whiteboard/internal/server"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	return workspace{dir: dir, config: filepath.Join(dir, config.FileName)}
}

func (w workspace) args(extra ...string) []string {
	return append([]string{"--config", w.config, "--data-dir", w.dir, "--board", "b1"}, extra...)
}

func (w workspace) seed(t *testing.T, blocks ...blockstore.Block) {
	t.Helper()
	ctx := context.Background()
	store, err := blockstore.OpenSQLite(ctx, w.dir, log.New())
	require.NoError(t, err)
	defer store.Close()
	for _, b := range blocks {
		_, err := store.Create(ctx, b)
		require.NoError(t, err)
	}
}

func textBlock(id string, x float64) blockstore.Block {
	return blockstore.Block{
		ID:          id,
		BoardID:     "b1",
		ContentType: blockstore.ContentText,
		Content:     map[string]any{"html": "<p>" + id + "</p>", "width": 200.0, "height": 100.0},
		PositionX:   x,
		PositionY:   10,
	}
}

func listBlocks(t *testing.T, out string) []blockstore.Block {
	t.Helper()
	var resp struct {
		Blocks []blockstore.Block `json:"blocks"`
	}
	require.NoError(t, sonic.Unmarshal([]byte(out), &resp), out)
	return resp.Blocks
}

func TestBlocksListAndDelete(t *testing.T) {
	w := newWorkspace(t)
	w.seed(t, textBlock("t1", 0), textBlock("t2", 300))

	out, _, err := runCLI(t, w.args("blocks", "list")...)
	require.NoError(t, err)
	assert.Len(t, listBlocks(t, out), 2)

	out, _, err = runCLI(t, w.args("blocks", "delete", "t1")...)
	require.NoError(t, err)
	assert.Equal(t, "deleted t1\n", out)

	out, _, err = runCLI(t, w.args("blocks", "list", "--pretty")...)
	require.NoError(t, err)
	blocks := listBlocks(t, out)
	require.Len(t, blocks, 1)
	assert.Equal(t, "t2", blocks[0].ID)
	assert.Contains(t, out, "\n  ")

	_, _, err = runCLI(t, w.args("blocks", "delete", "t1")...)
	assert.ErrorIs(t, err, blockstore.ErrNotFound)
}

func TestBlocksListEmptyBoard(t *testing.T) {
	w := newWorkspace(t)
	out, _, err := runCLI(t, w.args("blocks", "list")...)
	require.NoError(t, err)
	assert.JSONEq(t, `{"blocks":[]}`, out)
}

func TestExportCommand(t *testing.T) {
	w := newWorkspace(t)
	w.seed(t, textBlock("t1", 0), textBlock("t2", 300), blockstore.Block{
		ID: "shape", BoardID: "b1", ContentType: blockstore.ContentShape,
	})

	png := filepath.Join(w.dir, "board.png")
	out, _, err := runCLI(t, w.args("export", "--png", png)...)
	require.NoError(t, err)
	assert.Equal(t, "exported 2 items to "+png+"\n", out)
	info, err := os.Stat(png)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	txt := filepath.Join(w.dir, "board.txt")
	out, _, err = runCLI(t, w.args("export", "--txt", txt)...)
	require.NoError(t, err)
	assert.Equal(t, "exported 2 items to "+txt+"\n", out)
	b, err := os.ReadFile(txt)
	require.NoError(t, err)
	assert.Contains(t, string(b), "|t1")
	assert.Contains(t, string(b), "|t2")

	_, _, err = runCLI(t, w.args("export")...)
	assert.ErrorContains(t, err, "--png")
}

func TestConfigInitAndShow(t *testing.T) {
	w := newWorkspace(t)

	out, _, err := runCLI(t, w.args("--board", "planning", "config", "init")...)
	require.NoError(t, err)
	assert.Equal(t, "wrote "+w.config+"\n", out)

	out, _, err = runCLI(t, "--config", w.config, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "board: planning")
	assert.Contains(t, out, "data_dir: "+w.dir)

	_, _, err = runCLI(t, w.args("config", "init")...)
	assert.ErrorContains(t, err, "already exists")
	_, _, err = runCLI(t, w.args("config", "init", "--force")...)
	assert.NoError(t, err)
}

func TestFlagsOverrideConfig(t *testing.T) {
	w := newWorkspace(t)
	_, _, err := runCLI(t, w.args("--store", "postgres", "blocks", "list")...)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, _, err = runCLI(t, w.args("--store", "http", "--server", "", "blocks", "list")...)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestBlocksListOverHTTP(t *testing.T) {
	w := newWorkspace(t)
	w.seed(t, textBlock("remote", 0))

	ctx := context.Background()
	store, err := blockstore.OpenSQLite(ctx, w.dir, log.New())
	require.NoError(t, err)
	defer store.Close()
	srv := httptest.NewServer(server.New(server.Options{Store: store, Logger: log.New()}))
	defer srv.Close()

	other := newWorkspace(t)
	out, _, err := runCLI(t, other.args("--store", "http", "--server", srv.URL, "blocks", "list")...)
	require.NoError(t, err)
	blocks := listBlocks(t, out)
	require.Len(t, blocks, 1)
	assert.Equal(t, "remote", blocks[0].ID)
}

func TestOpenStoreWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.CacheTTL = time.Minute
	app := &App{cfg: cfg, log: log.New()}

	ctx := context.Background()
	store, release, err := openStore(ctx, app)
	require.NoError(t, err)
	defer release()
	require.IsType(t, &blockstore.Cache{}, store)

	_, err = store.Create(ctx, textBlock("c1", 0))
	require.NoError(t, err)
	blocks, err := store.List(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	keys := mr.Keys()
	assert.True(t, len(keys) > 0 && strings.HasPrefix(strings.Join(keys, ","), "whiteboard:"), keys)
}

func TestParseRedis(t *testing.T) {
	opts := parseRedis("redis://:secret@localhost:6380/2")
	assert.Equal(t, "localhost:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	opts = parseRedis("boards.redis.cache.windows.net:6380,password=abc=,ssl=True,abortConnect=False")
	assert.Equal(t, "boards.redis.cache.windows.net:6380", opts.Addr)
	assert.Equal(t, "abc=", opts.Password)
	assert.NotNil(t, opts.TLSConfig)
}

func TestNewUploaderFollowsStore(t *testing.T) {
	cfg := config.Default()
	cfg.MediaDir = t.TempDir()
	app := &App{cfg: cfg, log: log.New()}
	up, err := newUploader(app)
	require.NoError(t, err)
	assert.IsType(t, &media.DirUploader{}, up)

	app.cfg.Store = config.StoreHTTP
	up, err = newUploader(app)
	require.NoError(t, err)
	assert.IsType(t, &media.HTTPUploader{}, up)
}
