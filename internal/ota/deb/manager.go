package deb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/luffy-robotics/luffy/internal/logger"
)

const (
	// backupSuffix marks pre-update snapshots of the previously installed artifact.
	backupSuffix = "backup.deb"
	// installedSuffix marks artifacts whose install succeeded.
	installedSuffix = "_installed.deb"
	// artifactSuffix matches every artifact state in the work directory.
	artifactSuffix = ".deb"

	// defaultDirPermissions is used when creating the work directory.
	defaultDirPermissions = 0o755

	// downloadTimeout bounds a single artifact fetch.
	downloadTimeout = 10 * time.Minute
)

var (
	// errBadHTTPStatus is returned when an artifact fetch gets a non-200 response.
	errBadHTTPStatus = errors.New("unexpected http status")
	// errInvalidFilename is returned for artifact names missing the package segment.
	errInvalidFilename = errors.New("invalid package filename")
)

// Manager owns the artifact work directory and performs the
// backup/install/rollback primitive around the OS package manager.
// No other component touches files in the work directory; per-package
// operations are strictly sequential (callers do not interleave them).
type Manager struct {
	workDir    string
	runner     Runner
	httpClient *http.Client
	goos       string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithRunner substitutes the command runner. Tests use it to fake dpkg and systemctl.
func WithRunner(r Runner) Option {
	return func(m *Manager) {
		m.runner = r
	}
}

// WithHTTPClient substitutes the HTTP client used for artifact downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = c
	}
}

// WithGOOS pins the host OS decision for service control. Tests use it to
// exercise both the Linux and the sandbox path on any platform.
func WithGOOS(goos string) Option {
	return func(m *Manager) {
		m.goos = goos
	}
}

// NewManager returns a Manager rooted at workDir.
func NewManager(workDir string, opts ...Option) *Manager {
	m := &Manager{
		workDir:    workDir,
		runner:     ExecRunner{},
		httpClient: &http.Client{Timeout: downloadTimeout},
		goos:       runtime.GOOS,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WorkDir returns the directory holding package artifacts.
func (m *Manager) WorkDir() string {
	return m.workDir
}

// Download fetches an artifact into the work directory.
// If the package is currently installed, the newest on-disk artifact is
// copied to a version-stamped backup first, so a pre-update snapshot exists
// even when the fetch that follows fails. Partially written files are left
// for the caller to clean up.
func (m *Manager) Download(ctx context.Context, url, filename string) (string, error) {
	if err := os.MkdirAll(m.workDir, defaultDirPermissions); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}

	packageName := PackageName(filename)
	if packageName != "" {
		if installed, err := m.InstalledVersion(ctx, packageName); err == nil {
			if err = m.backupCurrent(ctx, packageName, installed); err != nil {
				return "", err
			}
		}
	}

	destination := filepath.Join(m.workDir, filename)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	response, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", filename, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: %s: %w", url, response.Status, errBadHTTPStatus)
	}

	out, err := os.Create(filepath.Clean(destination))
	if err != nil {
		return "", fmt.Errorf("create %s: %w", destination, err)
	}

	if _, err = io.Copy(out, response.Body); err != nil {
		_ = out.Close()

		return "", fmt.Errorf("write %s: %w", destination, err)
	}

	if err = out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", destination, err)
	}

	logger.InfoKV(ctx, "Downloaded artifact", "path", destination)

	return destination, nil
}

// Install runs the OS package manager on the artifact.
// A clean dpkg failure returns (false, nil): the caller treats it as a
// recoverable transaction failure, not an execution error. On success the
// artifact is renamed to its installed marker and every other file of the
// package is purged, so stale downloads never accumulate.
func (m *Manager) Install(ctx context.Context, path string) (bool, error) {
	packageName := PackageName(filepath.Base(path))
	if packageName == "" {
		return false, fmt.Errorf("%s: %w", path, errInvalidFilename)
	}

	logger.InfoKV(ctx, "Installing package", "path", path)

	ok, err := m.runner.Run(ctx, "sudo", "dpkg", "-i", path)
	if err != nil {
		return false, fmt.Errorf("install %s: %w", path, err)
	}

	if !ok {
		logger.WarnKV(ctx, "Package manager rejected artifact", "path", path)
		return false, nil
	}

	installedPath, err := m.markInstalled(path)
	if err != nil {
		return false, err
	}

	if err = m.purgeExceptInstalled(packageName); err != nil {
		return false, err
	}

	logger.InfoKV(ctx, "Installed package", "package", packageName, "marker", installedPath)

	return true, nil
}

// InstallFromLastInstalled reinstalls the most recently modified installed
// marker of the package. It is the rollback primitive: after a failed install
// the newest marker still points at the last version dpkg accepted.
// Returns (false, nil) when the package has no marker to fall back to.
func (m *Manager) InstallFromLastInstalled(ctx context.Context, packageName string) (bool, error) {
	markers, err := m.sortedPackageFiles(packageName, installedSuffix)
	if err != nil {
		return false, err
	}

	if len(markers) == 0 {
		logger.WarnKV(ctx, "No installed artifact to roll back to", "package", packageName)
		return false, nil
	}

	logger.WarnKV(ctx, "Reinstalling last known good artifact", "path", markers[0])

	return m.Install(ctx, markers[0])
}

// InstalledVersion asks the OS package manager for the installed version.
func (m *Manager) InstalledVersion(ctx context.Context, packageName string) (string, error) {
	output, err := m.runner.Output(ctx, "dpkg-query", "-W", "-f=${Version}", packageName)
	if err != nil {
		return "", fmt.Errorf("query %s version: %w", packageName, err)
	}

	return strings.TrimSpace(string(output)), nil
}

// NeedsUpdate reports whether candidateVersion is strictly newer than the
// installed version. Any lookup or parse failure means false: the engine
// never upgrades on uncertain information.
func (m *Manager) NeedsUpdate(ctx context.Context, packageName, candidateVersion string) bool {
	installed, err := m.InstalledVersion(ctx, packageName)
	if err != nil {
		logger.DebugKV(ctx, "Installed version unknown", "package", packageName, "error", err)
		return false
	}

	current, err := goversion.NewVersion(installed)
	if err != nil {
		return false
	}

	candidate, err := goversion.NewVersion(candidateVersion)
	if err != nil {
		return false
	}

	return candidate.GreaterThan(current)
}

// StopService stops the unit owning the identity.
// Outside Linux this logs a warning and succeeds, so development sandboxes
// can exercise the update flow without a service manager.
func (m *Manager) StopService(ctx context.Context, identity ServiceIdentity) error {
	return m.controlService(ctx, "stop", identity)
}

// StartService starts the unit owning the identity.
func (m *Manager) StartService(ctx context.Context, identity ServiceIdentity) error {
	return m.controlService(ctx, "start", identity)
}

// Discard removes a downloaded artifact by filename, including partial
// writes left by a failed fetch. A missing file is not an error: discard is
// how callers undo a group download where some members never arrived.
func (m *Manager) Discard(filename string) error {
	path := filepath.Join(m.workDir, filepath.Base(filename))

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard %s: %w", filename, err)
	}

	return nil
}

// CleanupOldFiles retains the keep most recently modified artifacts of the
// package and deletes the rest. This is the only retention policy applied to
// the work directory.
func (m *Manager) CleanupOldFiles(packageName string, keep int) error {
	files, err := m.sortedPackageFiles(packageName, artifactSuffix)
	if err != nil {
		return err
	}

	if keep < 0 {
		keep = 0
	}

	if keep >= len(files) {
		return nil
	}

	for _, path := range files[keep:] {
		if err = os.Remove(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}

	return nil
}

// PackageName returns the package segment of an artifact filename, which is
// everything before the first underscore.
func PackageName(filename string) string {
	name, _, _ := strings.Cut(filename, "_")
	return name
}

// ExtractPackageVersion pulls the version out of an artifact filename shaped
// name_version_arch.deb. The second field must parse as a version for the
// artifact to participate in eligibility checks.
func ExtractPackageVersion(filename string) (string, bool) {
	parts := strings.Split(filename, "_")
	if len(parts) < 2 {
		return "", false
	}

	if _, err := goversion.NewVersion(parts[1]); err != nil {
		return "", false
	}

	return parts[1], true
}

func (m *Manager) controlService(ctx context.Context, action string, identity ServiceIdentity) error {
	if m.goos != "linux" {
		logger.WarnKV(ctx, "Service control is only supported on Linux",
			"unit", identity.UnitName(), "action", action)

		return nil
	}

	// The exit status is advisory: a unit missing from a sandbox host must
	// not abort an update transaction.
	if _, err := m.runner.Run(ctx, "sudo", "systemctl", action, identity.UnitName()); err != nil {
		return fmt.Errorf("%s %s: %w", action, identity.UnitName(), err)
	}

	logger.InfoKV(ctx, "Applied service control", "unit", identity.UnitName(), "action", action)

	return nil
}

// backupCurrent snapshots the artifact matching the installed version before
// a new download overwrites the package's slot in the work directory.
func (m *Manager) backupCurrent(ctx context.Context, packageName, installedVersion string) error {
	source, ok := m.currentArtifact(packageName)
	if !ok {
		logger.DebugKV(ctx, "No artifact to back up", "package", packageName)
		return nil
	}

	backupPath := filepath.Join(m.workDir,
		fmt.Sprintf("%s_%s_%s", packageName, installedVersion, backupSuffix))

	if err := copyFile(source, backupPath); err != nil {
		return fmt.Errorf("back up %s: %w", packageName, err)
	}

	logger.InfoKV(ctx, "Backed up installed artifact", "package", packageName, "backup", backupPath)

	return nil
}

// currentArtifact locates the freshest artifact whose content corresponds to
// the installed package: the newest installed marker, else the newest backup.
// Plain downloads are skipped since a failed candidate may be newer than what
// is actually installed.
func (m *Manager) currentArtifact(packageName string) (string, bool) {
	for _, suffix := range []string{installedSuffix, backupSuffix} {
		files, err := m.sortedPackageFiles(packageName, suffix)
		if err == nil && len(files) > 0 {
			return files[0], true
		}
	}

	return "", false
}

func (m *Manager) markInstalled(path string) (string, error) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, artifactSuffix) {
		return "", fmt.Errorf("%s: %w", base, errInvalidFilename)
	}

	installedName := strings.TrimSuffix(base, artifactSuffix) + installedSuffix
	installedPath := filepath.Join(m.workDir, installedName)

	if err := os.Rename(path, installedPath); err != nil {
		return "", fmt.Errorf("mark installed: %w", err)
	}

	return installedPath, nil
}

func (m *Manager) purgeExceptInstalled(packageName string) error {
	entries, err := os.ReadDir(m.workDir)
	if err != nil {
		return fmt.Errorf("read work dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, packageName) || strings.HasSuffix(name, installedSuffix) {
			continue
		}

		if err = os.Remove(filepath.Join(m.workDir, name)); err != nil {
			return fmt.Errorf("purge %s: %w", name, err)
		}
	}

	return nil
}

// sortedPackageFiles lists work-directory files with the package prefix and
// the given suffix, newest modification time first.
func (m *Manager) sortedPackageFiles(packageName, suffix string) ([]string, error) {
	entries, err := os.ReadDir(m.workDir)
	if err != nil {
		return nil, fmt.Errorf("read work dir: %w", err)
	}

	type artifact struct {
		path    string
		modTime time.Time
	}

	files := make([]artifact, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, packageName) || !strings.HasSuffix(name, suffix) {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			return nil, fmt.Errorf("stat %s: %w", name, infoErr)
		}

		files = append(files, artifact{
			path:    filepath.Join(m.workDir, name),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.path)
	}

	return paths, nil
}

func copyFile(source, destination string) error {
	in, err := os.Open(filepath.Clean(source))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(filepath.Clean(destination))
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}
