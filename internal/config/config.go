package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Update strategies accepted by the ota section.
const (
	// StrategyAuto applies eligible updates on every scheduled check.
	StrategyAuto = "auto"
	// StrategyManual resolves and reports updates but installs nothing
	// until an operator triggers a cycle.
	StrategyManual = "manual"
	// StrategyDisabled skips update checks entirely.
	StrategyDisabled = "disabled"
)

const (
	// DefaultConfigDir is where production deployments keep per-service configs.
	DefaultConfigDir = "/etc/luffy"

	// DefaultBusAddress is the local message bus every service dials by default.
	DefaultBusAddress = "127.0.0.1:6379"

	// DefaultWorkDir is where update artifacts are downloaded and retained.
	DefaultWorkDir = "/home/luffy/.deb"

	// DefaultCheckInterval is the period between automatic update checks.
	DefaultCheckInterval = time.Hour

	// DefaultHealthReportInterval is the period between health publications.
	// It must stay well under the monitor staleness window (60 s), or healthy
	// services would flap to unknown between reports.
	DefaultHealthReportInterval = 30 * time.Second

	// DefaultWebAddress is the launcher's status page listen address.
	DefaultWebAddress = "127.0.0.1:3000"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// EnvVehicleID overrides the configured vehicle id.
	EnvVehicleID = "LUFFY_VEHICLE_ID"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errRepositoryRequired is returned when the ota section enables update
	// checks without naming a release repository.
	errRepositoryRequired = errors.New("ota github repository must be provided")
	// errUnknownStrategy is returned for strategy values outside auto/manual/disabled.
	errUnknownStrategy = errors.New("unknown update strategy")
)

// Base holds the settings shared by every fleet service.
type Base struct {
	// VehicleID identifies this vehicle on the bus.
	// Empty means a stable id is generated at load time.
	VehicleID string `yaml:"vehicle_id"`
	// LogLevel is the minimum level emitted (debug, info, warn, error, fatal).
	LogLevel string `yaml:"log_level"`
	// Bus configures the local message bus connection.
	Bus Bus `yaml:"bus"`
	// HealthReportInterval is how often this service publishes its health.
	HealthReportInterval time.Duration `yaml:"health_report_interval"`
}

// Bus holds local message bus connection parameters.
type Bus struct {
	// Address is the host:port of the local bus broker.
	Address string `yaml:"address"`
	// Password is optional and empty for the default local broker.
	Password string `yaml:"password"`
}

// OTA configures the update engine.
type OTA struct {
	// Strategy is one of auto, manual or disabled.
	Strategy string `yaml:"strategy"`
	// CheckInterval is the period between automatic update checks.
	CheckInterval time.Duration `yaml:"check_interval"`
	// WorkDir is the directory holding downloaded, backup and installed artifacts.
	WorkDir string `yaml:"work_dir"`
	// GithubRepo is the "owner/name" release index to poll.
	GithubRepo string `yaml:"github_repo"`
	// Disabled lists services whose release assets are never considered,
	// by short name ("gateway", "media", "launcher").
	Disabled []string `yaml:"disabled"`
}

// Web configures the launcher status page.
type Web struct {
	// Address is the listen host:port.
	Address string `yaml:"address"`
}

// ChildService describes one supervised child of the launcher. Spawning and
// updating are independent: a child managed by systemd stays disabled here
// and is still updated unless listed in ota.disabled.
type ChildService struct {
	// Enabled makes the launcher spawn the service itself.
	Enabled bool `yaml:"enabled"`
	// Command starts the service when the launcher supervises it directly
	// instead of leaving process management to systemd.
	Command string `yaml:"command"`
}

// Services lists the launcher's supervised children.
type Services struct {
	Gateway ChildService `yaml:"gateway"`
	Media   ChildService `yaml:"media"`
}

// Launcher is the configuration of the luffy-launcher binary.
type Launcher struct {
	Base     `yaml:",inline"`
	OTA      OTA      `yaml:"ota"`
	Web      Web      `yaml:"web"`
	Services Services `yaml:"services"`
}

// Gateway is the configuration of the luffy-gateway binary.
type Gateway struct {
	Base `yaml:",inline"`
	OTA  OTA `yaml:"ota"`
}

// Media is the configuration of the luffy-media binary.
type Media struct {
	Base `yaml:",inline"`
}

// LoadLauncher reads the launcher configuration, applies defaults and validates it.
// An empty path falls back to /etc/luffy/launcher.yaml.
func LoadLauncher(path string) (*Launcher, error) {
	var cfg Launcher
	if err := load(path, "launcher.yaml", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Base.validate(); err != nil {
		return nil, err
	}

	if err := cfg.OTA.validate(); err != nil {
		return nil, err
	}

	if cfg.Web.Address == "" {
		cfg.Web.Address = DefaultWebAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.Web.Address); err != nil {
		return nil, fmt.Errorf("invalid web address: %w", err)
	}

	return &cfg, nil
}

// LoadGateway reads the gateway configuration, applies defaults and validates it.
// An empty path falls back to /etc/luffy/gateway.yaml.
func LoadGateway(path string) (*Gateway, error) {
	var cfg Gateway
	if err := load(path, "gateway.yaml", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Base.validate(); err != nil {
		return nil, err
	}

	if err := cfg.OTA.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadMedia reads the media configuration, applies defaults and validates it.
// An empty path falls back to /etc/luffy/media.yaml.
func LoadMedia(path string) (*Media, error) {
	var cfg Media
	if err := load(path, "media.yaml", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Base.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes a configuration to the provided path with restricted permissions.
func Save(path string, cfg any) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

func load(path, defaultFilename string, out any) error {
	if path == "" {
		path = filepath.Join(DefaultConfigDir, defaultFilename)
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(contents, out); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	return nil
}

func (b *Base) validate() error {
	b.VehicleID = resolveVehicleID(b.VehicleID)

	if b.LogLevel == "" {
		b.LogLevel = "info"
	}

	if b.Bus.Address == "" {
		b.Bus.Address = DefaultBusAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", b.Bus.Address); err != nil {
		return fmt.Errorf("invalid bus address: %w", err)
	}

	if b.HealthReportInterval <= 0 {
		b.HealthReportInterval = DefaultHealthReportInterval
	}

	return nil
}

func (o *OTA) validate() error {
	switch o.Strategy {
	case StrategyAuto, StrategyManual, StrategyDisabled:
	case "":
		// Resolve and report, but never install without an operator.
		o.Strategy = StrategyManual
	default:
		return fmt.Errorf("%w: %q", errUnknownStrategy, o.Strategy)
	}

	if o.CheckInterval <= 0 {
		o.CheckInterval = DefaultCheckInterval
	}

	if o.WorkDir == "" {
		o.WorkDir = DefaultWorkDir
	}

	if o.GithubRepo == "" && o.Strategy != StrategyDisabled {
		return errRepositoryRequired
	}

	return nil
}

// resolveVehicleID applies the environment override and generates a stable
// fallback id when neither the environment nor the file provides one.
func resolveVehicleID(configured string) string {
	if v := os.Getenv(EnvVehicleID); v != "" {
		return v
	}

	if configured != "" {
		return configured
	}

	return "luffy-" + uuid.NewString()
}
