package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/luffy-robotics/luffy/internal/logger"
	"github.com/luffy-robotics/luffy/internal/ota/deb"
)

const (
	// EnvGithubToken supplies the optional bearer token for the release index.
	EnvGithubToken = "LUFFY_GITHUB_TOKEN"

	// defaultBaseURL is the GitHub API root.
	defaultBaseURL = "https://api.github.com"

	// userAgent identifies the updater to the release index.
	userAgent = "luffy-updater"

	// acceptHeader pins the GitHub API version.
	acceptHeader = "application/vnd.github.v3+json"

	// packageSuffix is the only asset kind the engine consumes.
	packageSuffix = ".deb"

	// requestTimeout bounds a release index query.
	requestTimeout = 30 * time.Second
)

// errBadHTTPStatus is returned when the release index answers with a non-200 status.
var errBadHTTPStatus = errors.New("unexpected http status")

// Asset is one downloadable artifact attached to a release.
type Asset struct {
	// Name is the artifact filename, shaped name_version_arch.deb.
	Name string `json:"name"`
	// DownloadURL is the direct artifact location.
	DownloadURL string `json:"browser_download_url"`
}

// Release is a resolved release: the v-prefixed tag and its package assets.
type Release struct {
	// Tag is the release tag, e.g. "v1.2.0".
	Tag string
	// Assets are the candidate package artifacts, already filtered to the
	// package suffix and the enabled services.
	Assets []Asset
}

// Version parses the release tag as a v-prefixed semantic version.
func (r Release) Version() (string, bool) {
	trimmed := strings.TrimPrefix(r.Tag, "v")
	if _, err := goversion.NewVersion(trimmed); err != nil {
		return "", false
	}

	return trimmed, true
}

// Client resolves the latest release of one repository.
type Client struct {
	repo       string
	baseURL    string
	httpClient *http.Client
	disabled   map[deb.Role]bool
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient substitutes the HTTP client used for index queries.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithBaseURL points the client at a different index root, used by tests.
func WithBaseURL(baseURL string) Option {
	return func(client *Client) {
		client.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithDisabledRoles drops assets owned by the given roles from every
// resolution, implementing the per-service update-enable flags.
func WithDisabledRoles(roles ...deb.Role) Option {
	return func(client *Client) {
		for _, role := range roles {
			client.disabled[role] = true
		}
	}
}

// NewClient returns a Client for the "owner/name" repository.
func NewClient(repo string, opts ...Option) *Client {
	c := &Client{
		repo:       repo,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		disabled:   make(map[deb.Role]bool),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// githubRelease mirrors the fields of the GitHub latest-release response.
type githubRelease struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Latest queries the release index for the most recent release and returns
// its tag with the package assets that survive suffix and enable-flag
// filtering. Index failures are transport errors: callers log them and retry
// on the next cycle.
func (c *Client) Latest(ctx context.Context) (Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.baseURL, c.repo)

	logger.InfoKV(ctx, "Requesting release index", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Release{}, fmt.Errorf("build release request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	if token := os.Getenv(EnvGithubToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("fetch releases: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return Release{}, fmt.Errorf("%s: %s: %w", url, response.Status, errBadHTTPStatus)
	}

	var payload githubRelease
	if err = json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return Release{}, fmt.Errorf("decode release: %w", err)
	}

	release := Release{
		Tag:    payload.TagName,
		Assets: c.filterAssets(payload.Assets),
	}

	logger.InfoKV(ctx, "Resolved latest release",
		"tag", release.Tag, "candidates", len(release.Assets))

	return release, nil
}

func (c *Client) filterAssets(assets []Asset) []Asset {
	kept := make([]Asset, 0, len(assets))

	for _, asset := range assets {
		if !strings.HasSuffix(asset.Name, packageSuffix) {
			continue
		}

		identity := deb.Classify(deb.PackageName(asset.Name))
		if c.disabled[identity.Role()] {
			continue
		}

		kept = append(kept, asset)
	}

	return kept
}
