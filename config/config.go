// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Defaults for a host with a stock install.
const (
	DefaultCacheDir    = "/var/ampm"
	DefaultRepoURIPath = "/opt/ampm/repo_uri"
	DefaultLogLevel    = "warning"
)

// Settings is the resolved configuration for one invocation. Environment
// variables use the AMPM_ prefix: AMPM_CACHE_DIR, AMPM_SERVER,
// AMPM_REPO_URI_PATH, AMPM_LOG_LEVEL.
type Settings struct {
	CacheDir    string
	Server      string
	RepoURIPath string
	LogLevel    string
}

// Load resolves settings from defaults and the environment.
func Load() *Settings {
	v := viper.New()
	v.SetDefault("cache_dir", DefaultCacheDir)
	v.SetDefault("repo_uri_path", DefaultRepoURIPath)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetEnvPrefix("ampm")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Settings{
		CacheDir:    v.GetString("cache_dir"),
		Server:      v.GetString("server"),
		RepoURIPath: v.GetString("repo_uri_path"),
		LogLevel:    v.GetString("log_level"),
	}
}

// ServerURI picks the repository URI: an explicit override (the --server
// flag) wins, then AMPM_SERVER, then the first line of the repo_uri file.
func (s *Settings) ServerURI(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if s.Server != "" {
		return s.Server, nil
	}
	data, err := os.ReadFile(s.RepoURIPath)
	if err != nil {
		return "", fmt.Errorf("no repository configured (checked --server, AMPM_SERVER, %s): %w", s.RepoURIPath, err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("repository uri file %s is empty", s.RepoURIPath)
	}
	return line, nil
}
