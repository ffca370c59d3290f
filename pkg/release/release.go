// Package release looks up topio release metadata.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/topio-agent/pkg/log"
	"github.com/cuemby/topio-agent/pkg/version"
	"github.com/rs/zerolog"
)

// DefaultAPI is the GitHub API root of the TOP-chain repository
const DefaultAPI = "https://api.github.com/repos/telosprotocol/TOP-chain"

// DefaultAssetSuffix selects the release archive among a release's assets
const DefaultAssetSuffix = "-release.tar.gz"

// Info is the outcome of a release lookup. A nil Version means no
// applicable release was found, which is not an error.
type Info struct {
	Version     *version.SemVersion
	DownloadURL string
	ArchiveName string
}

// Asset returns the download URL and archive name, if the release has one
func (i Info) Asset() (string, string, bool) {
	if i.DownloadURL == "" || i.ArchiveName == "" {
		return "", "", false
	}
	return i.DownloadURL, i.ArchiveName, true
}

// Resolver looks up a release by tag. An empty tag means the latest release.
type Resolver interface {
	Resolve(ctx context.Context, tag string) (Info, error)
}

// GitHubResolver talks to a GitHub-compatible releases API
type GitHubResolver struct {
	api         string
	assetSuffix string
	client      *http.Client
	logger      zerolog.Logger
}

// NewGitHubResolver creates a resolver rooted at api, e.g.
// https://api.github.com/repos/telosprotocol/TOP-chain
func NewGitHubResolver(api, assetSuffix string) *GitHubResolver {
	if api == "" {
		api = DefaultAPI
	}
	if assetSuffix == "" {
		assetSuffix = DefaultAssetSuffix
	}
	return &GitHubResolver{
		api:         strings.TrimRight(api, "/"),
		assetSuffix: assetSuffix,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      log.WithComponent("release"),
	}
}

// WithHTTPClient replaces the HTTP client
func (r *GitHubResolver) WithHTTPClient(c *http.Client) *GitHubResolver {
	r.client = c
	return r
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Resolve fetches release metadata for tag, or the latest release
func (r *GitHubResolver) Resolve(ctx context.Context, tag string) (Info, error) {
	endpoint := r.api + "/releases/latest"
	if tag != "" {
		endpoint = r.api + "/releases/tags/" + url.PathEscape(tag)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Info{}, fmt.Errorf("failed to build release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "topio-agent")

	resp, err := r.client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("failed to fetch release %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		r.logger.Debug().Str("tag", tag).Msg("Release not found")
		return Info{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Info{}, fmt.Errorf("release lookup %s returned %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rel githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return Info{}, fmt.Errorf("failed to decode release: %w", err)
	}

	return r.toInfo(rel), nil
}

func (r *GitHubResolver) toInfo(rel githubRelease) Info {
	v, err := version.Parse(rel.TagName)
	if err != nil {
		r.logger.Warn().Str("tag", rel.TagName).Msg("Release tag has no usable version")
		return Info{}
	}

	info := Info{Version: &v}
	for _, a := range rel.Assets {
		if strings.HasSuffix(a.Name, r.assetSuffix) {
			info.DownloadURL = a.BrowserDownloadURL
			info.ArchiveName = a.Name
			break
		}
	}
	if info.DownloadURL == "" {
		r.logger.Warn().Str("tag", rel.TagName).Str("suffix", r.assetSuffix).Msg("Release has no matching asset")
	}
	return info
}

var _ Resolver = (*GitHubResolver)(nil)
