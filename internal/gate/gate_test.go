// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/report-engine/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	root string
	gate *Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	dirs := map[string]string{
		"market":   filepath.Join(root, "market"),
		"customer": filepath.Join(root, "customer"),
		"compete":  filepath.Join(root, "compete"),
	}
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	g := New(types.GateConfig{
		Dirs:         dirs,
		ExtraFile:    filepath.Join(root, "logs", "forum.log"),
		BaselineFile: filepath.Join(root, "out", ".baseline.yaml"),
	})
	return &fixture{root: root, gate: g}
}

func (f *fixture) write(t *testing.T, engine, name string) {
	t.Helper()
	dir := f.gate.Dirs[engine]
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("report "+name), 0o644))
}

func (f *fixture) writeForum(t *testing.T) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "logs"), 0o755))
	require.NoError(t, os.WriteFile(f.gate.ExtraFile, []byte("[HOST] hello\n"), 0o644))
}

func TestCheckReady_UnchangedCountsNotReady(t *testing.T) {
	f := newFixture(t)
	f.write(t, "market", "m1.md")
	f.write(t, "market", "m2.md")
	f.write(t, "customer", "c1.md")
	f.write(t, "compete", "x1.md")
	f.write(t, "compete", "x2.md")
	f.write(t, "compete", "x3.md")
	f.writeForum(t)

	_, err := f.gate.ResetBaseline()
	require.NoError(t, err)

	res, err := f.gate.CheckReady()
	require.NoError(t, err)
	assert.False(t, res.Ready)
	assert.Empty(t, res.NewFilesFound)
	assert.Equal(t, map[string]int{"market": 2, "customer": 1, "compete": 3}, res.BaselineCounts)
	assert.Equal(t, res.BaselineCounts, res.CurrentCounts)
	assert.Equal(t, []string{"compete", "customer", "market"}, res.Missing)
}

func TestCheckReady_AfterResetNeedsEveryDir(t *testing.T) {
	f := newFixture(t)
	f.writeForum(t)
	_, err := f.gate.ResetBaseline()
	require.NoError(t, err)

	f.write(t, "market", "m1.md")
	f.write(t, "customer", "c1.md")

	res, err := f.gate.CheckReady()
	require.NoError(t, err)
	assert.False(t, res.Ready)
	assert.Equal(t, []string{"compete"}, res.Missing)
	assert.Len(t, res.NewFilesFound, 2)

	f.write(t, "compete", "x1.md")
	res, err = f.gate.CheckReady()
	require.NoError(t, err)
	assert.True(t, res.Ready)
	assert.Empty(t, res.Missing)
	assert.Equal(t, filepath.Join(f.gate.Dirs["compete"], "x1.md"), res.NewFilesFound["compete"])
}

func TestCheckReady_NewerFileWithSameCount(t *testing.T) {
	f := newFixture(t)
	f.writeForum(t)
	for _, e := range []string{"market", "customer", "compete"} {
		f.write(t, e, "a.md")
	}
	_, err := f.gate.ResetBaseline()
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	for _, e := range []string{"market", "customer", "compete"} {
		require.NoError(t, os.Chtimes(filepath.Join(f.gate.Dirs[e], "a.md"), later, later))
	}

	res, err := f.gate.CheckReady()
	require.NoError(t, err)
	assert.True(t, res.Ready)
}

func TestCheckReady_MissingExtraFile(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.ResetBaseline()
	require.NoError(t, err)
	for _, e := range []string{"market", "customer", "compete"} {
		f.write(t, e, "a.md")
	}

	res, err := f.gate.CheckReady()
	require.NoError(t, err)
	assert.False(t, res.Ready)
	assert.False(t, res.ExtraFileExists)
	assert.Equal(t, []string{f.gate.ExtraFile}, res.Missing)
}

func TestCheckReady_NoBaselineCountsExistingFiles(t *testing.T) {
	f := newFixture(t)
	f.writeForum(t)
	for _, e := range []string{"market", "customer", "compete"} {
		f.write(t, e, "a.md")
	}

	res, err := f.gate.CheckReady()
	require.NoError(t, err)
	assert.True(t, res.Ready)
	assert.Equal(t, map[string]int{"market": 0, "customer": 0, "compete": 0}, res.BaselineCounts)
}

func TestScanDir_SkipsHiddenAndSubdirs(t *testing.T) {
	f := newFixture(t)
	dir := f.gate.Dirs["market"]
	f.write(t, "market", ".DS_Store")
	f.write(t, "market", "r.md")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "archive"), 0o755))

	snap, err := scanDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Count)
	assert.Equal(t, filepath.Join(dir, "r.md"), snap.LatestFile)

	snap, err = scanDir(filepath.Join(f.root, "does-not-exist"))
	require.NoError(t, err)
	assert.Zero(t, snap.Count)
}

func TestBaseline_PersistRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.write(t, "market", "m1.md")
	fixed := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	f.gate.now = func() time.Time { return fixed }

	recorded, err := f.gate.ResetBaseline()
	require.NoError(t, err)

	loaded, err := f.gate.Load()
	require.NoError(t, err)
	if diff := cmp.Diff(recorded, loaded); diff != "" {
		t.Errorf("baseline mismatch (-recorded +loaded):\n%s", diff)
	}
	assert.Equal(t, fixed, loaded.RecordedAt)
}

func TestInitializeBaseline_KeepsExisting(t *testing.T) {
	f := newFixture(t)
	first, err := f.gate.InitializeBaseline()
	require.NoError(t, err)
	assert.Zero(t, first.Dirs["market"].Count)

	f.write(t, "market", "m1.md")
	second, err := f.gate.InitializeBaseline()
	require.NoError(t, err)
	assert.Zero(t, second.Dirs["market"].Count, "an existing baseline is not re-recorded")

	third, err := f.gate.ResetBaseline()
	require.NoError(t, err)
	assert.Equal(t, 1, third.Dirs["market"].Count)
}

func TestRequire(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.ResetBaseline()
	require.NoError(t, err)

	_, err = f.gate.Require()
	require.ErrorIs(t, err, ErrNotReady)
	var nre *NotReadyError
	require.ErrorAs(t, err, &nre)
	assert.Len(t, nre.Result.Missing, 4)
}

func TestWait_ReturnsWhenReady(t *testing.T) {
	f := newFixture(t)
	f.writeForum(t)
	_, err := f.gate.ResetBaseline()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		for _, e := range []string{"market", "customer", "compete"} {
			os.WriteFile(filepath.Join(f.gate.Dirs[e], "new.md"), []byte("x"), 0o644)
		}
	}()

	res, err := f.gate.Wait(ctx, 100*time.Millisecond, nil)
	require.NoError(t, err)
	assert.True(t, res.Ready)
}

func TestWait_ContextDone(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.ResetBaseline()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := f.gate.Wait(ctx, 20*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, res.Ready)
}
