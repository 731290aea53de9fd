package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".fisgon"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads site configurations from a YAML file.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	if cf.Sites == nil {
		cf.Sites = make(map[string]SiteConfig)
	}
	return &cf, nil
}

// FindConfigFile returns configPath when it exists, otherwise the first
// .fisgon found in the current directory, the home directory or the XDG
// config directory. It returns "" when nothing is found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	dirs = append(dirs, XDGConfigDir())

	for _, dir := range dirs {
		p := filepath.Join(dir, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load finds and loads the config file into c.SiteConfigs. A missing file
// is an error only when c.ConfigFilePath was set explicitly.
func (c *Config) Load() error {
	path := FindConfigFile(c.ConfigFilePath)
	if path == "" {
		if c.ConfigFilePath != "" {
			return ErrConfigNotFound
		}
		c.SiteConfigs = NewFile()
		return nil
	}

	cf, err := LoadConfigFile(path)
	if err != nil {
		return err
	}
	c.SiteConfigs = cf
	return nil
}
