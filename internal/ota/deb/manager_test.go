package deb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRunner scripts dpkg and systemctl for tests. Successful installs update
// the reported version map the way a real dpkg run would.
type fakeRunner struct {
	mu           sync.Mutex
	versions     map[string]string
	failInstalls map[string]bool
	commands     []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		versions:     make(map[string]string),
		failInstalls: make(map[string]bool),
	}
}

func (r *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.record(name, args...)

	if name == "dpkg-query" && len(args) == 3 {
		r.mu.Lock()
		defer r.mu.Unlock()

		if v, ok := r.versions[args[2]]; ok {
			return []byte(v), nil
		}

		return nil, errors.New("exit status 1")
	}

	return nil, errors.New("unexpected command: " + name)
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) (bool, error) {
	r.record(name, args...)

	if name == "sudo" && len(args) >= 3 && args[0] == "dpkg" {
		base := filepath.Base(args[2])

		r.mu.Lock()
		defer r.mu.Unlock()

		if r.failInstalls[base] {
			return false, nil
		}

		if v, ok := ExtractPackageVersion(base); ok {
			r.versions[PackageName(base)] = v
		}

		return true, nil
	}

	return true, nil
}

func (r *fakeRunner) record(name string, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands = append(r.commands, strings.Join(append([]string{name}, args...), " "))
}

func (r *fakeRunner) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.commands...)
}

func writeArtifact(t *testing.T, dir, name, contents string, modTime time.Time) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	require.NoError(t, os.Chtimes(path, modTime, modTime))

	return path
}

// TestNeedsUpdate covers the fail-closed version comparison.
func TestNeedsUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	runner := newFakeRunner()
	runner.versions["pkg"] = "1.1.0"

	manager := NewManager(t.TempDir(), WithRunner(runner))

	require.True(t, manager.NeedsUpdate(ctx, "pkg", "1.2.0"))
	require.False(t, manager.NeedsUpdate(ctx, "pkg", "1.1.0"))
	require.False(t, manager.NeedsUpdate(ctx, "pkg", "1.0.0"))

	// Unknown package, fail closed.
	require.False(t, manager.NeedsUpdate(ctx, "missing", "9.9.9"))

	// Unparsable candidate, fail closed.
	require.False(t, manager.NeedsUpdate(ctx, "pkg", "latest"))
}

// TestDownloadBackupPrecedesOverwrite ensures a pre-update snapshot of the
// installed artifact exists before the new one is fetched.
func TestDownloadBackupPrecedesOverwrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	runner := newFakeRunner()
	runner.versions["pkg"] = "1.0.0"

	writeArtifact(t, dir, "pkg_1.0.0_arm64_installed.deb", "installed-bytes", time.Now().Add(-time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("new-bytes"))
	}))
	defer server.Close()

	manager := NewManager(dir, WithRunner(runner))

	path, err := manager.Download(ctx, server.URL, "pkg_2.0.0_arm64.deb")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "pkg_2.0.0_arm64.deb"), path)

	backup, err := os.ReadFile(filepath.Join(dir, "pkg_1.0.0_backup.deb"))
	require.NoError(t, err)
	require.Equal(t, "installed-bytes", string(backup))

	downloaded, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "new-bytes", string(downloaded))
}

// TestDownloadFailureKeepsBackup ensures the snapshot survives a fetch that
// never delivers a new artifact.
func TestDownloadFailureKeepsBackup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	runner := newFakeRunner()
	runner.versions["pkg"] = "1.0.0"

	writeArtifact(t, dir, "pkg_1.0.0_arm64_installed.deb", "installed-bytes", time.Now().Add(-time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	manager := NewManager(dir, WithRunner(runner))

	_, err := manager.Download(ctx, server.URL, "pkg_2.0.0_arm64.deb")
	require.Error(t, err)

	require.FileExists(t, filepath.Join(dir, "pkg_1.0.0_backup.deb"))
	require.NoFileExists(t, filepath.Join(dir, "pkg_2.0.0_arm64.deb"))
}

// TestDownloadWithoutInstalledPackage skips the backup entirely.
func TestDownloadWithoutInstalledPackage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("new-bytes"))
	}))
	defer server.Close()

	manager := NewManager(dir, WithRunner(newFakeRunner()))

	_, err := manager.Download(ctx, server.URL, "pkg_1.0.0_arm64.deb")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "pkg_1.0.0_arm64.deb", entries[0].Name())
}

// TestInstallBookkeeping checks the rename-and-purge that follows a
// successful install: one installed marker, nothing else for that package,
// other packages untouched.
func TestInstallBookkeeping(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	now := time.Now()

	target := writeArtifact(t, dir, "pkg_2.0.0_arm64.deb", "v2", now)
	writeArtifact(t, dir, "pkg_1.9.0_arm64.deb", "stale", now.Add(-time.Hour))
	writeArtifact(t, dir, "pkg_1.0.0_backup.deb", "backup", now.Add(-2*time.Hour))
	writeArtifact(t, dir, "other_1.0.0_arm64.deb", "other", now.Add(-time.Hour))

	manager := NewManager(dir, WithRunner(newFakeRunner()))

	ok, err := manager.Install(ctx, target)
	require.NoError(t, err)
	require.True(t, ok)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	require.ElementsMatch(t, []string{"pkg_2.0.0_arm64_installed.deb", "other_1.0.0_arm64.deb"}, names)
}

// TestInstallFailureIsRecoverable ensures a dpkg rejection is (false, nil)
// and leaves the artifact in place for inspection.
func TestInstallFailureIsRecoverable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	target := writeArtifact(t, dir, "pkg_2.0.0_arm64.deb", "v2", time.Now())

	runner := newFakeRunner()
	runner.failInstalls["pkg_2.0.0_arm64.deb"] = true

	manager := NewManager(dir, WithRunner(runner))

	ok, err := manager.Install(ctx, target)
	require.NoError(t, err)
	require.False(t, ok)

	require.FileExists(t, target)
	require.NoFileExists(t, filepath.Join(dir, "pkg_2.0.0_arm64_installed.deb"))
}

// TestInstallFromLastInstalledPicksNewest verifies rollback selects the most
// recently modified installed marker.
func TestInstallFromLastInstalledPicksNewest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	now := time.Now()

	writeArtifact(t, dir, "pkg_1.0.0_arm64_installed.deb", "v1.0", now.Add(-2*time.Hour))
	writeArtifact(t, dir, "pkg_1.1.0_arm64_installed.deb", "v1.1", now.Add(-time.Hour))

	runner := newFakeRunner()
	manager := NewManager(dir, WithRunner(runner))

	ok, err := manager.InstallFromLastInstalled(ctx, "pkg")
	require.NoError(t, err)
	require.True(t, ok)

	var installCommand string

	for _, command := range runner.recorded() {
		if strings.Contains(command, "dpkg -i") {
			installCommand = command
		}
	}

	require.Contains(t, installCommand, "pkg_1.1.0_arm64_installed.deb")

	version, err := manager.InstalledVersion(ctx, "pkg")
	require.NoError(t, err)
	require.Equal(t, "1.1.0", version)
}

// TestInstallFromLastInstalledWithoutMarker reports nothing to roll back to.
func TestInstallFromLastInstalledWithoutMarker(t *testing.T) {
	t.Parallel()

	manager := NewManager(t.TempDir(), WithRunner(newFakeRunner()))

	ok, err := manager.InstallFromLastInstalled(context.Background(), "pkg")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestCleanupOldFiles keeps the requested number of newest artifacts.
func TestCleanupOldFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Now()

	writeArtifact(t, dir, "pkg_1.0.0_arm64.deb", "a", now.Add(-4*time.Hour))
	writeArtifact(t, dir, "pkg_1.1.0_arm64.deb", "b", now.Add(-3*time.Hour))
	writeArtifact(t, dir, "pkg_1.2.0_arm64.deb", "c", now.Add(-2*time.Hour))
	writeArtifact(t, dir, "pkg_1.3.0_arm64.deb", "d", now.Add(-time.Hour))
	writeArtifact(t, dir, "other_1.0.0_arm64.deb", "e", now.Add(-4*time.Hour))

	manager := NewManager(dir, WithRunner(newFakeRunner()))

	require.NoError(t, manager.CleanupOldFiles("pkg", 2))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	require.ElementsMatch(t,
		[]string{"pkg_1.2.0_arm64.deb", "pkg_1.3.0_arm64.deb", "other_1.0.0_arm64.deb"}, names)
}

// TestServiceControl covers the Linux path and the sandbox no-op.
func TestServiceControl(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	linuxRunner := newFakeRunner()
	linux := NewManager(t.TempDir(), WithRunner(linuxRunner), WithGOOS("linux"))

	require.NoError(t, linux.StopService(ctx, Classify("luffy-gateway")))
	require.NoError(t, linux.StartService(ctx, Classify("luffy-gateway")))

	commands := linuxRunner.recorded()
	require.Contains(t, commands, "sudo systemctl stop luffy-gateway")
	require.Contains(t, commands, "sudo systemctl start luffy-gateway")

	sandboxRunner := newFakeRunner()
	sandbox := NewManager(t.TempDir(), WithRunner(sandboxRunner), WithGOOS("darwin"))

	require.NoError(t, sandbox.StopService(ctx, Classify("luffy-gateway")))
	require.Empty(t, sandboxRunner.recorded())
}

// TestExtractPackageVersion validates the positional version field.
func TestExtractPackageVersion(t *testing.T) {
	t.Parallel()

	version, ok := ExtractPackageVersion("luffy-gateway_1.2.0_arm64.deb")
	require.True(t, ok)
	require.Equal(t, "1.2.0", version)

	_, ok = ExtractPackageVersion("luffy-gateway.deb")
	require.False(t, ok)

	_, ok = ExtractPackageVersion("luffy-gateway_not-a-version_arm64.deb")
	require.False(t, ok)
}

// TestPackageName extracts the leading package segment.
func TestPackageName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "luffy-gateway", PackageName("luffy-gateway_1.2.0_arm64.deb"))
	require.Equal(t, "plain.deb", PackageName("plain.deb"))
}

// TestDiscard removes a named artifact and tolerates one that never arrived.
func TestDiscard(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	manager := NewManager(dir, WithRunner(newFakeRunner()))

	writeArtifact(t, dir, "pkg_1.0.0_arm64.deb", "bytes", time.Now())

	require.NoError(t, manager.Discard("pkg_1.0.0_arm64.deb"))
	require.NoFileExists(t, filepath.Join(dir, "pkg_1.0.0_arm64.deb"))

	// Discarding again must stay silent: the whole point is unwinding
	// downloads that may not have happened.
	require.NoError(t, manager.Discard("pkg_1.0.0_arm64.deb"))
}
