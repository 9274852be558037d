package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"

	"github.com/openwrt-feedsync/feedsync/internal/config"
	"github.com/openwrt-feedsync/feedsync/internal/merge"
	"github.com/openwrt-feedsync/feedsync/internal/registry"
	"github.com/openwrt-feedsync/feedsync/internal/sources"
	"github.com/openwrt-feedsync/feedsync/internal/sources/mocks"
	"github.com/openwrt-feedsync/feedsync/internal/status"
	"github.com/openwrt-feedsync/feedsync/internal/telemetry"
)

func writePackage(t *testing.T, root, dir, name, version string) {
	t.Helper()
	path := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(filepath.Join(path, "files"), 0755))
	makefile := "PKG_NAME:=" + name + "\nPKG_VERSION:=" + version + "\nPKG_RELEASE:=1\n"
	require.NoError(t, os.WriteFile(filepath.Join(path, "Makefile"), []byte(makefile), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(path, "files", "version"), []byte(version), 0644))
}

func intPtr(i int) *int { return &i }

func fileSource(name string, priority int, path string) config.SourceConfig {
	return config.SourceConfig{Name: name, Priority: intPtr(priority), File: &config.FileConfig{Path: path}}
}

func newTestConfig(t *testing.T, policy string, srcs ...config.SourceConfig) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		OutputDir:        filepath.Join(base, "out"),
		WorkDir:          filepath.Join(base, "work"),
		Policy:           policy,
		FetchConcurrency: 2,
		Sources:          srcs,
	}
}

// luciSources lays out the classic conflict: the preferred source carries an
// older luci-app-x than the fallback one
func luciSources(t *testing.T) (string, string) {
	t.Helper()
	alpha := t.TempDir()
	beta := t.TempDir()
	writePackage(t, alpha, "luci-app-x", "luci-app-x", "1.0-1")
	writePackage(t, beta, filepath.Join("luci", "luci-app-x"), "luci-app-x", "2.0-1")
	writePackage(t, beta, "only-beta", "only-beta", "0.3")
	return alpha, beta
}

func TestRun_PolicyDecidesWinner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		policy      string
		wantRepo    string
		wantVersion string
	}{
		{name: "priority", policy: merge.PolicyPriority, wantRepo: "alpha", wantVersion: "1.0-1"},
		{name: "version", policy: merge.PolicyVersion, wantRepo: "beta", wantVersion: "2.0-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			alpha, beta := luciSources(t)
			cfg := newTestConfig(t, tt.policy, fileSource("alpha", 0, alpha), fileSource("beta", 1, beta))

			result, syncErr := NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir)).Run(context.Background())
			require.Nil(t, syncErr)
			require.NotNil(t, result)

			assert.Equal(t, status.Counts{New: 2}, result.Counts)
			assert.Empty(t, result.FailedSources())
			require.Len(t, result.Decisions, 2)
			assert.Equal(t, "luci-app-x", result.Decisions[0].Key())
			assert.Equal(t, "only-beta", result.Decisions[1].Key())

			dest := filepath.Join(cfg.OutputDir, "luci-app-x")
			p, err := registry.ReadProvenance(dest)
			require.NoError(t, err)
			assert.Equal(t, registry.Provenance{
				Repo:    tt.wantRepo,
				Package: "luci-app-x",
				Version: tt.wantVersion,
				Release: "1",
			}, p)

			data, err := os.ReadFile(filepath.Join(dest, "files", "version"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, string(data))
			assert.DirExists(t, filepath.Join(cfg.OutputDir, "only-beta"))
		})
	}
}

func TestRun_SecondRunSkips(t *testing.T) {
	t.Parallel()

	for _, policy := range []string{merge.PolicyPriority, merge.PolicyVersion} {
		t.Run(policy, func(t *testing.T) {
			t.Parallel()

			alpha, beta := luciSources(t)
			cfg := newTestConfig(t, policy, fileSource("alpha", 0, alpha), fileSource("beta", 1, beta))
			manager := NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir))

			_, syncErr := manager.Run(context.Background())
			require.Nil(t, syncErr)

			result, syncErr := manager.Run(context.Background())
			require.Nil(t, syncErr)
			assert.Equal(t, status.Counts{Skipped: 2}, result.Counts)

			for _, d := range result.Decisions {
				assert.Equal(t, policy == merge.PolicyPriority, d.Materialize, d.Key())
			}
		})
	}
}

func TestRun_PersistsStatus(t *testing.T) {
	t.Parallel()

	alpha, beta := luciSources(t)
	cfg := newTestConfig(t, merge.PolicyVersion, fileSource("alpha", 0, alpha), fileSource("beta", 1, beta))

	result, syncErr := NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir)).Run(context.Background())
	require.Nil(t, syncErr)

	saved, err := status.NewFilePersistence(cfg.WorkDir).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.RunID, saved.RunID)
	assert.Equal(t, status.RunPhaseComplete, saved.Phase)
	assert.Equal(t, merge.PolicyVersion, saved.Policy)
	assert.Equal(t, status.Counts{New: 2}, saved.Counts)
	assert.NotNil(t, saved.LastSuccessAt)
	assert.Zero(t, saved.ConsecutiveFailures)
	require.Len(t, saved.Sources, 2)
	assert.Equal(t, 1, saved.Sources[0].Packages)
	assert.Equal(t, 2, saved.Sources[1].Packages)
}

func TestRun_DryRunLeavesOutputUntouched(t *testing.T) {
	t.Parallel()

	alpha, beta := luciSources(t)
	cfg := newTestConfig(t, merge.PolicyPriority, fileSource("alpha", 0, alpha), fileSource("beta", 1, beta))

	result, syncErr := NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir), WithDryRun(true)).
		Run(context.Background())
	require.Nil(t, syncErr)

	assert.True(t, result.DryRun)
	assert.Equal(t, status.Counts{New: 2}, result.Counts)
	assert.NoDirExists(t, cfg.OutputDir)
	assert.NoFileExists(t, status.Path(cfg.WorkDir))
}

func TestRun_FetchFailureSkipsSource(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	good := t.TempDir()
	writePackage(t, good, "pkg-a", "pkg-a", "1.0")

	cfg := newTestConfig(t, merge.PolicyPriority,
		fileSource("broken", 0, "/unused"),
		fileSource("good", 1, "/unused"))
	cfg.Prune = true

	// a package only the broken source provides must survive the run
	writePackage(t, cfg.OutputDir, "pkg-b", "pkg-b", "1.0")

	handler := mocks.NewMockSourceHandler(ctrl)
	handler.EXPECT().Validate(gomock.Any()).Return(nil).Times(2)
	handler.EXPECT().Fetch(gomock.Any(), &cfg.Sources[0]).Return(nil, errors.New("connection refused"))
	handler.EXPECT().Fetch(gomock.Any(), &cfg.Sources[1]).Return(&sources.FetchResult{Path: good, Revision: "abc123"}, nil)

	factory := mocks.NewMockSourceHandlerFactory(ctrl)
	factory.EXPECT().CreateHandler(config.SourceTypeFile).Return(handler, nil).Times(2)

	result, syncErr := NewManager(cfg, factory).Run(context.Background())
	require.Nil(t, syncErr)

	assert.Equal(t, []string{"broken"}, result.FailedSources())
	assert.Equal(t, status.Counts{New: 1}, result.Counts)
	assert.Empty(t, result.Pruned)
	assert.DirExists(t, filepath.Join(cfg.OutputDir, "pkg-a"))
	assert.DirExists(t, filepath.Join(cfg.OutputDir, "pkg-b"))

	require.Len(t, result.Sources, 2)
	assert.Contains(t, result.Sources[0].Error, "connection refused")
	assert.Equal(t, "abc123", result.Sources[1].Revision)
}

func TestRun_UnsupportedSourceType(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	cfg := newTestConfig(t, merge.PolicyPriority, fileSource("a", 0, "/unused"))

	factory := mocks.NewMockSourceHandlerFactory(ctrl)
	factory.EXPECT().CreateHandler(config.SourceTypeFile).Return(nil, sources.ErrUnsupportedSourceType)

	result, syncErr := NewManager(cfg, factory).Run(context.Background())
	require.Nil(t, syncErr)
	assert.Equal(t, []string{"a"}, result.FailedSources())
	assert.Empty(t, result.Decisions)
}

func TestRun_PrunesUnproducedPackages(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writePackage(t, src, "kept", "kept", "1.0")

	cfg := newTestConfig(t, merge.PolicyVersion, fileSource("only", 0, src))
	cfg.Prune = true
	writePackage(t, cfg.OutputDir, "Orphan", "orphan", "0.1")
	writePackage(t, cfg.OutputDir, "kept", "kept", "1.0")

	result, syncErr := NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir)).Run(context.Background())
	require.Nil(t, syncErr)

	assert.Equal(t, []string{"orphan"}, result.Pruned)
	assert.Equal(t, status.Counts{Skipped: 1, Pruned: 1}, result.Counts)
	assert.NoDirExists(t, filepath.Join(cfg.OutputDir, "Orphan"))
	assert.DirExists(t, filepath.Join(cfg.OutputDir, "kept"))
}

func TestRun_DirectoryNamedAfterAnotherPackage(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writePackage(t, src, "Bar", "Bar", "1.0")
	writePackage(t, src, "foo", "foo", "1.0")

	cfg := newTestConfig(t, merge.PolicyPriority, fileSource("src", 0, src))
	// the output directory is named after its folder, not after PKG_NAME
	writePackage(t, cfg.OutputDir, "Bar", "foo", "0.9")

	result, syncErr := NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir)).Run(context.Background())
	require.Nil(t, syncErr)
	assert.Equal(t, status.Counts{New: 1, Updated: 1}, result.Counts)
	assert.Empty(t, result.FailedPackages)

	for _, dir := range []string{"Bar", "foo"} {
		p, err := registry.ReadProvenance(filepath.Join(cfg.OutputDir, dir))
		require.NoError(t, err, dir)
		assert.Equal(t, dir, p.Package)
		assert.Equal(t, "1.0", p.Version)
	}

	reg, err := registry.Load(cfg.OutputDir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bar", "foo"}, reg.Keys())
}

func TestRun_SourceFilters(t *testing.T) {
	t.Parallel()

	alpha, beta := luciSources(t)
	first := fileSource("alpha", 0, alpha)
	first.Filter = &config.FilterConfig{Names: &config.NameFilterConfig{Exclude: []string{"luci-app-*"}}}
	cfg := newTestConfig(t, merge.PolicyPriority, first, fileSource("beta", 1, beta))

	result, syncErr := NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir)).Run(context.Background())
	require.Nil(t, syncErr)

	// the excluded copy does not compete, so the lower ranked source wins
	p, err := registry.ReadProvenance(filepath.Join(cfg.OutputDir, "luci-app-x"))
	require.NoError(t, err)
	assert.Equal(t, "beta", p.Repo)

	require.Len(t, result.Sources, 2)
	assert.Equal(t, 0, result.Sources[0].Packages)
	assert.Equal(t, 1, result.Sources[0].Excluded)
}

func TestRun_MaterializeFailureIsCounted(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writePackage(t, src, "good", "good", "1.0")
	// the declared name escapes the output tree and is refused
	writePackage(t, src, "evil", "../evil", "1.0")

	cfg := newTestConfig(t, merge.PolicyPriority, fileSource("src", 0, src))
	result, syncErr := NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir)).Run(context.Background())
	require.Nil(t, syncErr)

	assert.Equal(t, status.Counts{New: 1, Failed: 1}, result.Counts)
	require.Len(t, result.FailedPackages, 1)
	assert.Equal(t, "../evil", result.FailedPackages[0].Name)
	assert.Equal(t, "src", result.FailedPackages[0].Source)
	assert.DirExists(t, filepath.Join(cfg.OutputDir, "good"))
}

func TestRun_LockHeld(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, merge.PolicyPriority, fileSource("a", 0, t.TempDir()))
	require.NoError(t, os.MkdirAll(cfg.WorkDir, 0750))

	held := flock.New(filepath.Join(cfg.WorkDir, LockFileName))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = held.Unlock() })

	result, syncErr := NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir)).Run(context.Background())
	assert.Nil(t, result)
	require.NotNil(t, syncErr)
	require.ErrorIs(t, syncErr, ErrLocked)
	assert.Equal(t, ConditionSyncSuccessful, syncErr.ConditionType)
}

func TestRun_InvalidPolicy(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, "newest", fileSource("a", 0, t.TempDir()))

	_, syncErr := NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir)).Run(context.Background())
	require.NotNil(t, syncErr)
	require.ErrorIs(t, syncErr, merge.ErrUnknownPolicy)
	assert.Equal(t, ConditionConfigValid, syncErr.ConditionType)
}

func TestRun_Canceled(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writePackage(t, src, "pkg", "pkg", "1.0")
	cfg := newTestConfig(t, merge.PolicyPriority, fileSource("a", 0, src))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, syncErr := NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir)).Run(ctx)
	require.NotNil(t, syncErr)
	require.ErrorIs(t, syncErr, context.Canceled)
	assert.NoDirExists(t, filepath.Join(cfg.OutputDir, "pkg"))

	saved, err := status.NewFilePersistence(cfg.WorkDir).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.RunPhaseFailed, saved.Phase)
	assert.Equal(t, 1, saved.ConsecutiveFailures)
}

func TestRun_RecordsMetrics(t *testing.T) {
	t.Parallel()

	alpha, beta := luciSources(t)
	cfg := newTestConfig(t, merge.PolicyVersion, fileSource("alpha", 0, alpha), fileSource("beta", 1, beta))

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := telemetry.NewSyncMetrics(provider)
	require.NoError(t, err)

	_, syncErr := NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir), WithSyncMetrics(metrics)).
		Run(context.Background())
	require.Nil(t, syncErr)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["feedsync_packages_total"])
	assert.True(t, names["feedsync_sync_duration_seconds"])
	assert.True(t, names["feedsync_registry_packages"])
	assert.False(t, names["feedsync_source_fetch_failures_total"])
}
