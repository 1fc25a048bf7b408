// Package config manages the neoctl configuration file: a set of named
// contexts, each pointing at a worker and remembering the trading session
// obtained from it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AppName is the CLI name, also used for the config directory.
const AppName = "neoctl"

// DefaultWorkerURL is used when a context does not set one.
const DefaultWorkerURL = "http://localhost:8001"

// CfgFile is set by the --config flag.
var CfgFile string

// GlobalConfig is the loaded configuration.
var GlobalConfig *Config

// ErrNoContext is returned when no context is selected.
var ErrNoContext = errors.New("no current context set")

// Context is a named worker endpoint plus the session obtained from it.
type Context struct {
	WorkerURL string `yaml:"worker_url" mapstructure:"worker_url"`
	SessionID string `yaml:"session_id,omitempty" mapstructure:"session_id"`
	UCC       string `yaml:"ucc,omitempty" mapstructure:"ucc"`
}

// Config is the on-disk configuration.
type Config struct {
	CurrentContext string              `yaml:"current_context" mapstructure:"current_context"`
	Contexts       map[string]*Context `yaml:"contexts" mapstructure:"contexts"`
}

// Path returns the config file in use.
func Path() (string, error) {
	if CfgFile != "" {
		return CfgFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, "."+AppName, "config.yaml"), nil
}

// InitConfig loads the config file into GlobalConfig. A missing file yields an
// empty configuration.
func InitConfig() error {
	path, err := Path()
	if err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	GlobalConfig = &Config{Contexts: map[string]*Context{}}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}

	if err := v.Unmarshal(GlobalConfig); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}
	if GlobalConfig.Contexts == nil {
		GlobalConfig.Contexts = map[string]*Context{}
	}

	return nil
}

// GetCurrentContext returns the selected context. When none is selected and
// exactly one exists, that one is used.
func GetCurrentContext() (*Context, error) {
	if GlobalConfig == nil {
		return nil, errors.New("configuration not loaded")
	}

	if GlobalConfig.CurrentContext == "" {
		if len(GlobalConfig.Contexts) == 1 {
			for name := range GlobalConfig.Contexts {
				GlobalConfig.CurrentContext = name
			}
		} else {
			return nil, ErrNoContext
		}
	}

	ctx, ok := GlobalConfig.Contexts[GlobalConfig.CurrentContext]
	if !ok {
		return nil, fmt.Errorf("current context %q not found in config", GlobalConfig.CurrentContext)
	}
	if ctx.WorkerURL == "" {
		ctx.WorkerURL = DefaultWorkerURL
	}

	return ctx, nil
}

// SetContext creates or updates a context. An empty workerURL keeps the
// existing value.
func SetContext(name, workerURL string) *Context {
	ctx, ok := GlobalConfig.Contexts[name]
	if !ok {
		ctx = &Context{WorkerURL: DefaultWorkerURL}
		GlobalConfig.Contexts[name] = ctx
	}
	if workerURL != "" {
		ctx.WorkerURL = workerURL
	}
	return ctx
}

// UseContext selects an existing context.
func UseContext(name string) error {
	if _, ok := GlobalConfig.Contexts[name]; !ok {
		return fmt.Errorf("context %q does not exist", name)
	}
	GlobalConfig.CurrentContext = name
	return nil
}

// SaveConfig writes GlobalConfig back to disk. The file holds session ids, so
// it is only readable by the owner.
func SaveConfig() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out, err := yaml.Marshal(GlobalConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, out, 0o600)
}
