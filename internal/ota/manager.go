package ota

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/luffy-robotics/luffy/internal/config"
	"github.com/luffy-robotics/luffy/internal/logger"
	"github.com/luffy-robotics/luffy/internal/metrics"
	"github.com/luffy-robotics/luffy/internal/ota/deb"
	"github.com/luffy-robotics/luffy/internal/ota/release"
	"github.com/luffy-robotics/luffy/internal/registry"
)

const (
	// defaultCheckInterval is used when no interval option is provided.
	defaultCheckInterval = time.Hour

	// defaultKeepArtifacts bounds the per-package artifact history kept
	// after a successful transaction.
	defaultKeepArtifacts = 3
)

var (
	// ErrUpdatesDisabled is returned by TriggerUpdate under the disabled strategy.
	ErrUpdatesDisabled = errors.New("updates are disabled")

	// ErrUpdateInProgress is returned when a trigger arrives while a cycle
	// is already running. Triggers are not queued: eligibility is recomputed
	// every cycle, so a dropped trigger loses nothing.
	ErrUpdateInProgress = errors.New("update cycle already in progress")

	// errGroupInstallFailed marks a transaction aborted by the package manager.
	errGroupInstallFailed = errors.New("group install failed")
)

// Installer is the package-level install/rollback primitive the manager
// drives. *deb.Manager implements it.
type Installer interface {
	Download(ctx context.Context, url, filename string) (string, error)
	Install(ctx context.Context, path string) (bool, error)
	InstallFromLastInstalled(ctx context.Context, packageName string) (bool, error)
	NeedsUpdate(ctx context.Context, packageName, candidateVersion string) bool
	StopService(ctx context.Context, identity deb.ServiceIdentity) error
	StartService(ctx context.Context, identity deb.ServiceIdentity) error
	CleanupOldFiles(packageName string, keep int) error
	Discard(filename string) error
}

// Resolver provides the latest release descriptor. *release.Client implements it.
type Resolver interface {
	Latest(ctx context.Context) (release.Release, error)
}

// Scope selects which release packages a manager may touch.
type Scope int

const (
	// ScopeFleet covers every package except the launcher's own: the
	// launcher cannot safely replace its running binary mid-loop.
	ScopeFleet Scope = iota

	// ScopeLauncher covers only launcher packages. The gateway runs this
	// scope, so the launcher gets updated from outside its own process.
	ScopeLauncher
)

func (s Scope) includes(identity deb.ServiceIdentity) bool {
	if s == ScopeLauncher {
		return identity.Role() == deb.RoleLauncher
	}

	return identity.Role() != deb.RoleLauncher
}

// candidate is one release asset that survived scope and version parsing.
type candidate struct {
	identity    deb.ServiceIdentity
	packageName string
	version     string
	filename    string
	url         string
}

// updateGroup is the set of candidates applied as one transaction.
type updateGroup struct {
	identity deb.ServiceIdentity
	members  []candidate
}

// VersionManager is the update orchestrator: on every tick or trigger it
// resolves the latest release, decides which service groups are behind, and
// applies each group as one stop/install/start transaction with rollback.
// It holds no durable state; on-disk artifacts and the registry are the
// only truth that survives a restart.
type VersionManager struct {
	strategy      string
	scope         Scope
	installer     Installer
	resolver      Resolver
	registry      *registry.Registry
	metrics       *metrics.Metrics
	checkInterval time.Duration
	keepArtifacts int

	// inFlight serializes cycles. A tick that finds it held is skipped,
	// not queued; a trigger that finds it held reports ErrUpdateInProgress.
	inFlight sync.Mutex
}

// Option customizes a VersionManager.
type Option func(*VersionManager)

// WithCheckInterval sets the period between automatic checks.
func WithCheckInterval(interval time.Duration) Option {
	return func(m *VersionManager) {
		if interval > 0 {
			m.checkInterval = interval
		}
	}
}

// WithKeepArtifacts sets how many artifacts per package survive cleanup.
func WithKeepArtifacts(keep int) Option {
	return func(m *VersionManager) {
		m.keepArtifacts = keep
	}
}

// NewVersionManager wires the orchestrator. The strategy is one of the
// config.Strategy values, already validated by configuration loading.
func NewVersionManager(
	strategy string,
	scope Scope,
	installer Installer,
	resolver Resolver,
	reg *registry.Registry,
	m *metrics.Metrics,
	options ...Option,
) *VersionManager {
	manager := &VersionManager{
		strategy:      strategy,
		scope:         scope,
		installer:     installer,
		resolver:      resolver,
		registry:      reg,
		metrics:       m,
		checkInterval: defaultCheckInterval,
		keepArtifacts: defaultKeepArtifacts,
	}

	for _, option := range options {
		option(manager)
	}

	return manager
}

// Run checks immediately and then on every interval until ctx is cancelled.
// Under the manual strategy scheduled cycles resolve and report availability
// without installing; under disabled the loop idles. Run returns only after
// an in-flight cycle has completed: a half-applied transaction could leave
// a service with no working package, so shutdown waits.
func (m *VersionManager) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "ota")

	if m.strategy == config.StrategyDisabled {
		logger.Info(ctx, "Update checks disabled")
		<-ctx.Done()

		return ctx.Err()
	}

	logger.InfoKV(ctx, "Update checks scheduled",
		"strategy", m.strategy, "interval", m.checkInterval)

	install := m.strategy == config.StrategyAuto

	// Cycles never inherit cancellation; stopping is cooperative and
	// happens at loop-iteration boundaries only.
	m.runScheduled(context.WithoutCancel(ctx), install)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runScheduled(context.WithoutCancel(ctx), install)
		}
	}
}

// TriggerUpdate runs one immediate cycle with installs enabled. It backs
// the bus "ota/request" message and the status page button, and is how
// updates actually apply under the manual strategy.
func (m *VersionManager) TriggerUpdate(ctx context.Context) error {
	ctx = logger.WithName(ctx, "ota")

	if m.strategy == config.StrategyDisabled {
		return ErrUpdatesDisabled
	}

	if !m.inFlight.TryLock() {
		return ErrUpdateInProgress
	}
	defer m.inFlight.Unlock()

	logger.Info(ctx, "Update cycle triggered")

	outcome := m.cycle(context.WithoutCancel(ctx), true)
	m.metrics.CycleFinished(outcome)

	return nil
}

// runScheduled runs one timer-driven cycle, skipping when one is in flight.
func (m *VersionManager) runScheduled(ctx context.Context, install bool) {
	if !m.inFlight.TryLock() {
		logger.Warn(ctx, "Skipping scheduled check, previous cycle still running")
		m.metrics.CycleFinished(metrics.OutcomeSkipped)

		return
	}
	defer m.inFlight.Unlock()

	m.metrics.CycleFinished(m.cycle(ctx, install))
}

// cycle is one resolve/filter/group/transact/report pass. Failures never
// propagate past the cycle: transport errors retry on the next tick, and a
// failed group leaves the remaining groups untouched.
func (m *VersionManager) cycle(ctx context.Context, install bool) string {
	rel, err := m.resolver.Latest(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Release check failed", "error", err)

		return metrics.OutcomeFailed
	}

	candidates := m.collect(ctx, rel)
	if len(candidates) == 0 {
		logger.InfoKV(ctx, "No packages in scope in latest release", "tag", rel.Tag)

		return metrics.OutcomeUpToDate
	}

	due := m.eligible(ctx, candidates)
	if len(due) == 0 {
		logger.InfoKV(ctx, "All packages up to date", "tag", rel.Tag)

		return metrics.OutcomeUpToDate
	}

	groups := groupCandidates(due)

	if !install {
		logger.InfoKV(ctx, "Updates available, waiting for an operator",
			"tag", rel.Tag, "services", groupNames(groups))

		return metrics.OutcomeDeferred
	}

	var installed, failed int

	for _, group := range groups {
		if err := m.transact(ctx, group); err != nil {
			logger.ErrorKV(ctx, "Update transaction failed",
				"service", group.identity, "error", err)

			failed++

			continue
		}

		installed++
	}

	logger.InfoKV(ctx, "Update cycle finished",
		"tag", rel.Tag, "updated_groups", installed, "failed_groups", failed)

	if installed > 0 {
		return metrics.OutcomeUpdated
	}

	return metrics.OutcomeFailed
}

// collect filters release assets down to in-scope candidates with parsable
// versions and reports every candidate's version to the registry, so the
// status surface shows availability even when nothing installs.
func (m *VersionManager) collect(ctx context.Context, rel release.Release) []candidate {
	candidates := make([]candidate, 0, len(rel.Assets))

	for _, asset := range rel.Assets {
		packageName := deb.PackageName(asset.Name)
		identity := deb.Classify(packageName)

		if !m.scope.includes(identity) {
			continue
		}

		version, ok := deb.ExtractPackageVersion(asset.Name)
		if !ok {
			logger.WarnKV(ctx, "Skipping asset without a parsable version",
				"asset", asset.Name)

			continue
		}

		candidates = append(candidates, candidate{
			identity:    identity,
			packageName: packageName,
			version:     version,
			filename:    asset.Name,
			url:         asset.DownloadURL,
		})

		m.registry.RecordLatestAvailable(identity.Name(), version)
	}

	return candidates
}

// eligible keeps the candidates strictly newer than what is installed.
func (m *VersionManager) eligible(ctx context.Context, candidates []candidate) []candidate {
	due := make([]candidate, 0, len(candidates))

	for _, c := range candidates {
		if !m.installer.NeedsUpdate(ctx, c.packageName, c.version) {
			continue
		}

		logger.InfoKV(ctx, "Package is behind the release",
			"package", c.packageName, "candidate", c.version)

		due = append(due, c)
	}

	return due
}

// transact applies one group: download all members, bracket the installs
// with a service stop/start, roll every member back on the first failure.
func (m *VersionManager) transact(ctx context.Context, group updateGroup) error {
	logger.InfoKV(ctx, "Starting update transaction",
		"service", group.identity, "packages", len(group.members))

	paths, err := m.download(ctx, group)
	if err != nil {
		return err
	}

	// Stop/start failures are advisory: a sandbox without the unit must
	// not abort the transaction, and after a rollback the service still
	// has to come back up.
	if err := m.installer.StopService(ctx, group.identity); err != nil {
		logger.WarnKV(ctx, "Failed to stop service before install",
			"service", group.identity, "error", err)
	}

	installErr := m.installAll(ctx, group, paths)

	if err := m.installer.StartService(ctx, group.identity); err != nil {
		logger.WarnKV(ctx, "Failed to start service after install",
			"service", group.identity, "error", err)
	}

	if installErr != nil {
		return installErr
	}

	m.cleanup(ctx, group)

	logger.InfoKV(ctx, "Update transaction finished", "service", group.identity)

	return nil
}

// download fetches every member of the group, all-or-nothing: one failed
// fetch discards everything of the group already on disk, including the
// failed member's partial write.
func (m *VersionManager) download(ctx context.Context, group updateGroup) ([]string, error) {
	paths := make([]string, 0, len(group.members))

	for i, member := range group.members {
		path, err := m.installer.Download(ctx, member.url, member.filename)
		m.metrics.DownloadFinished(err == nil)

		if err == nil {
			paths = append(paths, path)

			continue
		}

		for _, fetched := range group.members[:i+1] {
			if discardErr := m.installer.Discard(fetched.filename); discardErr != nil {
				logger.WarnKV(ctx, "Failed to discard artifact",
					"artifact", fetched.filename, "error", discardErr)
			}
		}

		return nil, fmt.Errorf("download %s: %w", member.filename, err)
	}

	return paths, nil
}

// installAll installs the group members in order. The first refusal or hard
// error fails the whole group and rolls every member back.
func (m *VersionManager) installAll(ctx context.Context, group updateGroup, paths []string) error {
	for i, member := range group.members {
		ok, err := m.installer.Install(ctx, paths[i])
		if err == nil && ok {
			m.metrics.PackageInstalled(true)

			continue
		}

		m.metrics.PackageInstalled(false)

		if err != nil {
			logger.ErrorKV(ctx, "Install errored",
				"package", member.packageName, "error", err)
		} else {
			logger.ErrorKV(ctx, "Package manager rejected the update",
				"package", member.packageName)
		}

		m.rollback(ctx, group)

		return fmt.Errorf("%s %s: %w", member.packageName, member.version, errGroupInstallFailed)
	}

	return nil
}

// rollback reinstalls the last known good artifact of every group member.
// Best effort: a member with nothing to fall back to is logged and left as
// the failed install left it, since no better recovery exists.
func (m *VersionManager) rollback(ctx context.Context, group updateGroup) {
	for _, member := range group.members {
		ok, err := m.installer.InstallFromLastInstalled(ctx, member.packageName)

		switch {
		case err != nil:
			logger.WarnKV(ctx, "Rollback failed",
				"package", member.packageName, "error", err)
		case !ok:
			logger.WarnKV(ctx, "Nothing to roll back to", "package", member.packageName)
		default:
			m.metrics.RollbackPerformed()
			logger.InfoKV(ctx, "Rolled back package", "package", member.packageName)
		}
	}
}

func (m *VersionManager) cleanup(ctx context.Context, group updateGroup) {
	for _, member := range group.members {
		if err := m.installer.CleanupOldFiles(member.packageName, m.keepArtifacts); err != nil {
			logger.WarnKV(ctx, "Artifact cleanup failed",
				"package", member.packageName, "error", err)
		}
	}
}

// groupCandidates buckets candidates by owning service, ordered by service
// name so transaction order is stable across cycles.
func groupCandidates(candidates []candidate) []updateGroup {
	buckets := make(map[deb.ServiceIdentity][]candidate)
	for _, c := range candidates {
		buckets[c.identity] = append(buckets[c.identity], c)
	}

	groups := make([]updateGroup, 0, len(buckets))
	for identity, members := range buckets {
		groups = append(groups, updateGroup{identity: identity, members: members})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].identity.Name() < groups[j].identity.Name()
	})

	return groups
}

func groupNames(groups []updateGroup) []string {
	names := make([]string, 0, len(groups))
	for _, group := range groups {
		names = append(names, group.identity.Name())
	}

	return names
}
