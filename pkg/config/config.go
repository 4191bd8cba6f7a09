// Romshelf
// Copyright (c) 2026 The Romshelf Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Romshelf.
//
// Romshelf is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Romshelf is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Romshelf.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RomshelfProject/romshelf-core/pkg/helpers/syncutil"
	"github.com/adrg/xdg"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	AppName       = "romshelf"
	SchemaVersion = 1
	CfgEnv        = "ROMSHELF_CFG"
	CfgFile       = "settings.json"
	CacheFile     = "index.json"
)

// Values is the flat settings document persisted as JSON. All paths are
// plain strings; anything derivable from user input lives here and nothing
// else, so the blob carries no migration machinery beyond a schema number.
type Values struct {
	ArchiveDir        string `json:"romRepositoryPath"`
	BlobDir           string `json:"chdRepositoryPath"`
	CatalogPath       string `json:"mameXmlPath"`
	DestDir           string `json:"destinationPath"`
	CachePath         string `json:"cachePath"`
	ConfigSchema      int    `json:"configSchema"`
	CopyBlobs         bool   `json:"copyChds"`
	OverwriteExisting bool   `json:"overwriteExisting"`
	Portable          bool   `json:"portable"`
	DebugLogging      bool   `json:"debugLogging"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	CopyBlobs:    true,
}

// DefaultDir returns the directory holding the settings document. A settings
// file beside the executable with its portable flag set keeps all state
// (settings, cache, logs) in that directory; otherwise the roaming XDG
// config home is used.
func DefaultDir(fsys afero.Fs, exePath string) string {
	if exePath != "" && isPortableDir(fsys, filepath.Dir(exePath)) {
		return filepath.Dir(exePath)
	}
	return filepath.Join(xdg.ConfigHome, AppName)
}

func isPortableDir(fsys afero.Fs, dir string) bool {
	data, err := afero.ReadFile(fsys, filepath.Join(dir, CfgFile))
	if err != nil {
		return false
	}
	vals := BaseDefaults
	if err := json.Unmarshal(data, &vals); err != nil {
		return false
	}
	return vals.Portable
}

// Instance is a mutex-guarded view over the settings document on disk.
type Instance struct {
	fs      afero.Fs
	cfgPath string
	vals    Values
	mu      syncutil.RWMutex
}

// NewConfig loads the settings document from configDir, creating it with
// defaults on first run. The ROMSHELF_CFG environment variable overrides the
// file location.
//
//nolint:gocritic // defaults struct copied for immutability
func NewConfig(fsys afero.Fs, configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		fs:      fsys,
		cfgPath: cfgPath,
		vals:    defaults,
	}

	if _, err := cfg.fs.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		err := cfg.fs.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err := cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := afero.ReadFile(c.fs, c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top, so fields not
	// present in the file retain their default values.
	newVals := BaseDefaults
	err = json.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return errors.New("schema version mismatch")
	}

	c.vals = newVals

	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	data, err := json.MarshalIndent(&c.vals, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = afero.WriteFile(c.fs, c.cfgPath, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that the settings describe a scannable setup, returning a
// human-readable reason when they do not. Optional paths (blob repo,
// destination, catalog) are only checked when set.
func (c *Instance) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.vals.ArchiveDir == "" {
		return errors.New("archive repository path is not set")
	}
	if _, err := c.fs.Stat(c.vals.ArchiveDir); err != nil {
		return fmt.Errorf("archive repository path does not exist: %s", c.vals.ArchiveDir)
	}
	if c.vals.CatalogPath != "" {
		if _, err := c.fs.Stat(c.vals.CatalogPath); err != nil {
			return fmt.Errorf("catalog file does not exist: %s", c.vals.CatalogPath)
		}
	}
	return nil
}

func (c *Instance) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfgPath
}

func (c *Instance) ArchiveDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.ArchiveDir
}

func (c *Instance) SetArchiveDir(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.ArchiveDir = path
}

func (c *Instance) BlobDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.BlobDir
}

func (c *Instance) SetBlobDir(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.BlobDir = path
}

func (c *Instance) CatalogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.CatalogPath
}

func (c *Instance) SetCatalogPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.CatalogPath = path
}

func (c *Instance) DestDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DestDir
}

func (c *Instance) SetDestDir(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DestDir = path
}

// CachePath returns the configured snapshot location, defaulting to a file
// beside the settings document.
func (c *Instance) CachePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.CachePath != "" {
		return c.vals.CachePath
	}
	return filepath.Join(filepath.Dir(c.cfgPath), CacheFile)
}

func (c *Instance) CopyBlobs() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.CopyBlobs
}

func (c *Instance) OverwriteExisting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.OverwriteExisting
}

// Portable reports whether this is a portable install keeping all state
// beside the executable. The flag is consulted by DefaultDir at startup.
func (c *Instance) Portable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Portable
}

func (c *Instance) SetPortable(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Portable = enabled
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
}
