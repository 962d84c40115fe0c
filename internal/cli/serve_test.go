package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Promptonauts/configrepo/internal/config"
	"github.com/Promptonauts/configrepo/internal/testutil"
	"github.com/Promptonauts/configrepo/pkg/configrepo"
	"github.com/Promptonauts/configrepo/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollSources_IngestsOnceWithoutInterval(t *testing.T) {
	dir := t.TempDir()
	logger := testutil.NewTestLogger(t)
	reg := observability.NewMetricsRegistry()
	rec := configrepo.NewReconciler(logger, observability.NewIngestMetrics(reg))

	sources := []configrepo.Source{
		configrepo.FileSource{SourceName: "web", Path: writeFile(t, dir, "web.yaml", buildDoc)},
		configrepo.FileSource{SourceName: "broken", Path: writeFile(t, dir, "broken.yaml", brokenDoc)},
		configrepo.FileSource{SourceName: "gone", Path: filepath.Join(dir, "gone.yaml")},
	}

	require.NoError(t, pollSources(context.Background(), rec, sources, 2, 0, logger))
	assert.Equal(t, []string{"web"}, rec.Sources())
	assert.Equal(t, int64(1), reg.Snapshot()["counter.configrepo.rejected"])
}

func TestPollSources_StopsOnCancel(t *testing.T) {
	logger := testutil.NewTestLogger(t)
	rec := configrepo.NewReconciler(logger, nil)
	path := writeFile(t, t.TempDir(), "web.yaml", buildDoc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- pollSources(ctx, rec, []configrepo.Source{configrepo.FileSource{SourceName: "web", Path: path}}, 1, 10*time.Millisecond, logger)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pollSources did not stop")
	}
	_, ok := rec.Active("web")
	assert.True(t, ok)
}

func TestRunServe_ShutsDownOnCancel(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		StatePath:  filepath.Join(dir, "state.db"),
		Listen:     "127.0.0.1:0",
		HungAfter:  config.DefaultHungAfter,
		LogLevel:   "debug",
		IngestJobs: 2,
		Sources:    map[string]string{"web": writeFile(t, dir, "web.yaml", buildDoc)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg, testutil.NewTestLogger(t), 0)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
	assert.FileExists(t, cfg.StatePath)
}
