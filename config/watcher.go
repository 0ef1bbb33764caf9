package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	gLock     sync.RWMutex
	gConfig   *Config
	gPath     string
	gHandlers []func(*Config)
)

// Parse decodes a config from data. YAML is used for .yaml and .yml paths,
// JSON otherwise. Defaults are applied before validation.
func Parse(path string, data []byte) (*Config, error) {
	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	default:
		if len(strings.TrimSpace(string(data))) > 0 {
			if err := json.Unmarshal(data, &config); err != nil {
				return nil, err
			}
		}
	}
	config.withDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &config, nil
}

func configFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	log.Infof("Loaded configuration: %v", spew.Sdump(config))
	return config, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var config Config
	config.withDefaults()
	return &config
}

func Get() *Config {
	gLock.RLock()
	defer gLock.RUnlock()
	if gConfig == nil {
		return Default()
	}
	return gConfig
}

// Dir is the directory relative config paths are resolved against.
func Dir() string {
	gLock.RLock()
	defer gLock.RUnlock()
	if gPath == "" {
		return "."
	}
	return filepath.Dir(gPath)
}

// OnReload registers f to be called with every config reloaded from disk.
func OnReload(f func(*Config)) {
	gLock.Lock()
	defer gLock.Unlock()
	gHandlers = append(gHandlers, f)
}

func set(path string, config *Config) {
	gLock.Lock()
	gConfig = config
	gPath = path
	handlers := append([]func(*Config){}, gHandlers...)
	gLock.Unlock()
	for _, h := range handlers {
		h(config)
	}
}

func waitForChange(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-watcher.Events:
	case err := <-watcher.Errors:
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second / 10):
	}
	return ctx.Err()
}

// Load reads the config at path and keeps it current until ctx ends. A file
// that fails to parse on reload is logged and the previous config is kept.
func Load(ctx context.Context, path string) error {
	config, err := configFromFile(path)
	if err != nil {
		return err
	}
	set(path, config)
	go func() {
		for ctx.Err() == nil {
			if err := waitForChange(ctx, path); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Errorf("Error waiting for file change: %v", err)
				// Editors may replace the file; give it a moment to reappear.
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			config, err := configFromFile(path)
			if err != nil {
				log.Errorf("Failed to load new config: %v", err)
				continue
			}
			set(path, config)
		}
	}()
	return nil
}
