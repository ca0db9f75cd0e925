// Package config provides configuration file support for apply-reviews.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the config file, looked up at the git
// repository root.
const ConfigFileName = ".apply-reviews.yaml"

// Defaults point at the services the tool was written for.
const (
	DefaultReviewBoardURL = "https://reviews.apache.org"
	DefaultGitHubAPIURL   = "https://api.github.com"
	DefaultGitHubPatchURL = "https://patch-diff.githubusercontent.com"
	DefaultGitHubRepo     = "apache/mesos"
)

// Config holds the resolved run configuration. It is constructed once at
// startup and passed by value; nothing mutates it afterwards.
type Config struct {
	ReviewBoardURL string
	GitHubAPIURL   string
	GitHubPatchURL string
	GitHubRepo     string
}

// fileConfig mirrors the YAML config file. Pointer fields distinguish
// "absent" from "set to empty".
type fileConfig struct {
	ReviewBoardURL *string `yaml:"reviewboard_url"`
	GitHubAPIURL   *string `yaml:"github_api_url"`
	GitHubPatchURL *string `yaml:"github_patch_url"`
	GitHubRepo     *string `yaml:"github_repo"`
}

// LoadResult contains the loaded config and any warnings encountered.
type LoadResult struct {
	Config   Config
	Warnings []string
}

// Load reads the config file from dir (if present) and resolves the final
// configuration with precedence: environment > file > default.
func Load(dir string) (*LoadResult, error) {
	return LoadFromPath(filepath.Join(dir, ConfigFileName))
}

// LoadFromPath reads a config file and resolves the final configuration.
// A missing file is not an error; defaults and environment still apply.
func LoadFromPath(path string) (*LoadResult, error) {
	var fc fileConfig
	var warnings []string

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No file; env and defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		warnings = checkUnknownKeys(data)
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", ConfigFileName, err)
		}
	}

	cfg := Config{
		ReviewBoardURL: resolve("APPLY_REVIEWS_REVIEWBOARD_URL", fc.ReviewBoardURL, DefaultReviewBoardURL),
		GitHubAPIURL:   resolve("APPLY_REVIEWS_GITHUB_API_URL", fc.GitHubAPIURL, DefaultGitHubAPIURL),
		GitHubPatchURL: resolve("APPLY_REVIEWS_GITHUB_PATCH_URL", fc.GitHubPatchURL, DefaultGitHubPatchURL),
		GitHubRepo:     resolve("APPLY_REVIEWS_GITHUB_REPO", fc.GitHubRepo, DefaultGitHubRepo),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigFileName, err)
	}

	return &LoadResult{Config: cfg, Warnings: warnings}, nil
}

// resolve applies the precedence env > file > default for one value.
func resolve(envVar string, fileVal *string, def string) string {
	if v := os.Getenv(envVar); v != "" {
		return strings.TrimRight(v, "/")
	}
	if fileVal != nil && *fileVal != "" {
		return strings.TrimRight(*fileVal, "/")
	}
	return def
}

func (c Config) validate() error {
	for _, u := range []string{c.ReviewBoardURL, c.GitHubAPIURL, c.GitHubPatchURL} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("service URL %q must start with http:// or https://", u)
		}
	}
	if strings.Count(c.GitHubRepo, "/") != 1 {
		return fmt.Errorf("github_repo %q must be of the form owner/name", c.GitHubRepo)
	}
	return nil
}

// knownKeys are the valid top-level keys in the config file.
var knownKeys = []string{"reviewboard_url", "github_api_url", "github_patch_url", "github_repo"}

// checkUnknownKeys checks for unknown keys in the YAML data and returns warnings.
func checkUnknownKeys(data []byte) []string {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		// Let the main parser report the error.
		return nil
	}

	var warnings []string
	for key := range raw {
		if !slices.Contains(knownKeys, key) {
			warnings = append(warnings, fmt.Sprintf("unknown key %q in %s", key, ConfigFileName))
		}
	}
	return warnings
}
