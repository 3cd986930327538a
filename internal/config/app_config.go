// Package config loads the layered ctxd application configuration from the
// global and local configuration files and the process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/temirov/ctxd/internal/utils"
)

const (
	// environmentVariablePrefix namespaces the environment overrides.
	environmentVariablePrefix = "CTXD"

	serveAddressKey        = "serve.address"
	serveWatchKey          = "serve.watch"
	indexTTLHoursKey       = "index.ttl_hours"
	indexWorkersKey        = "index.workers"
	indexParallelDepthKey  = "index.parallel_depth"
	packMaxFileSizeMiBKey  = "pack.max_file_size_mib"
	packTokensEnabledKey   = "pack.tokens.enabled"
	packTokensModelKey     = "pack.tokens.model"
	packClipboardKey       = "pack.clipboard"
	pathsIgnoreFileKey     = "paths.ignore_file"
	pathsGitignoreFileKey  = "paths.gitignore_file"
	environmentKeySepFrom  = "."
	environmentKeySepInto  = "_"
	workingDirectoryErrMsg = "determine working directory: %w"
)

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// ApplicationConfiguration holds command-specific configuration defaults.
// Optional values are pointers so an overlay can distinguish "unset" from an
// explicit zero.
type ApplicationConfiguration struct {
	Serve ServeConfiguration `mapstructure:"serve"`
	Index IndexConfiguration `mapstructure:"index"`
	Pack  PackConfiguration  `mapstructure:"pack"`
	Paths PathsConfiguration `mapstructure:"paths"`
}

// ServeConfiguration defines defaults for the serve command.
type ServeConfiguration struct {
	Address string `mapstructure:"address"`
	Watch   *bool  `mapstructure:"watch"`
}

// IndexConfiguration controls snapshot staleness and traversal fan-out.
type IndexConfiguration struct {
	TTLHours      *int `mapstructure:"ttl_hours"`
	Workers       *int `mapstructure:"workers"`
	ParallelDepth *int `mapstructure:"parallel_depth"`
}

// PackConfiguration defines defaults for the pack command.
type PackConfiguration struct {
	MaxFileSizeMiB *int               `mapstructure:"max_file_size_mib"`
	Tokens         TokenConfiguration `mapstructure:"tokens"`
	Clipboard      *bool              `mapstructure:"clipboard"`
}

// TokenConfiguration controls token counting defaults.
type TokenConfiguration struct {
	Enabled *bool  `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
}

// PathsConfiguration overrides the ignore file names consulted by the
// resolver.
type PathsConfiguration struct {
	IgnoreFile    string `mapstructure:"ignore_file"`
	GitignoreFile string `mapstructure:"gitignore_file"`
}

// LoadApplicationConfiguration loads configuration from the global file, the
// local file, and the environment, in ascending precedence.
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, err := os.Getwd()
		if err != nil {
			return ApplicationConfiguration{}, fmt.Errorf(workingDirectoryErrMsg, err)
		}
		workingDirectory = currentDirectory
	}

	var merged ApplicationConfiguration

	if homeDirectory, err := os.UserHomeDir(); err == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.ConfigFileName)
		globalConfig, loadErr := loadConfigurationFromPath(globalPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(globalConfig)
	}

	localPath, resolveErr := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if resolveErr != nil {
		return ApplicationConfiguration{}, resolveErr
	}
	if localPath != "" {
		localConfig, loadErr := loadConfigurationFromPath(localPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(localConfig)
	}

	merged = merged.Merge(loadEnvironmentConfiguration())

	return merged, nil
}

func resolveLocalConfigPath(workingDirectory, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		if workingDirectory == "" {
			absolute, err := filepath.Abs(explicitPath)
			if err != nil {
				return "", fmt.Errorf("resolve configuration path %s: %w", explicitPath, err)
			}
			return absolute, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	if workingDirectory == "" {
		return "", nil
	}
	return filepath.Join(workingDirectory, utils.ConfigFileName), nil
}

func loadConfigurationFromPath(path string) (ApplicationConfiguration, error) {
	if path == "" {
		return ApplicationConfiguration{}, nil
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return ApplicationConfiguration{}, nil
		}
		return ApplicationConfiguration{}, fmt.Errorf("stat configuration %s: %w", path, statErr)
	}
	if info.IsDir() {
		return ApplicationConfiguration{}, fmt.Errorf("configuration path %s is a directory", path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	if readErr := reader.ReadInConfig(); readErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("read configuration from %s: %w", path, readErr)
	}
	var config ApplicationConfiguration
	if decodeErr := reader.Unmarshal(&config); decodeErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode configuration from %s: %w", path, decodeErr)
	}
	return config, nil
}

// loadEnvironmentConfiguration builds an overlay from CTXD_-prefixed
// environment variables, with configuration key dots mapped to underscores
// (serve.address becomes CTXD_SERVE_ADDRESS).
func loadEnvironmentConfiguration() ApplicationConfiguration {
	reader := viper.New()
	reader.SetEnvPrefix(environmentVariablePrefix)
	reader.SetEnvKeyReplacer(strings.NewReplacer(environmentKeySepFrom, environmentKeySepInto))
	reader.AutomaticEnv()

	var overlay ApplicationConfiguration
	if reader.IsSet(serveAddressKey) {
		overlay.Serve.Address = reader.GetString(serveAddressKey)
	}
	if reader.IsSet(serveWatchKey) {
		overlay.Serve.Watch = boolPointer(reader.GetBool(serveWatchKey))
	}
	if reader.IsSet(indexTTLHoursKey) {
		overlay.Index.TTLHours = intPointer(reader.GetInt(indexTTLHoursKey))
	}
	if reader.IsSet(indexWorkersKey) {
		overlay.Index.Workers = intPointer(reader.GetInt(indexWorkersKey))
	}
	if reader.IsSet(indexParallelDepthKey) {
		overlay.Index.ParallelDepth = intPointer(reader.GetInt(indexParallelDepthKey))
	}
	if reader.IsSet(packMaxFileSizeMiBKey) {
		overlay.Pack.MaxFileSizeMiB = intPointer(reader.GetInt(packMaxFileSizeMiBKey))
	}
	if reader.IsSet(packTokensEnabledKey) {
		overlay.Pack.Tokens.Enabled = boolPointer(reader.GetBool(packTokensEnabledKey))
	}
	if reader.IsSet(packTokensModelKey) {
		overlay.Pack.Tokens.Model = reader.GetString(packTokensModelKey)
	}
	if reader.IsSet(packClipboardKey) {
		overlay.Pack.Clipboard = boolPointer(reader.GetBool(packClipboardKey))
	}
	if reader.IsSet(pathsIgnoreFileKey) {
		overlay.Paths.IgnoreFile = reader.GetString(pathsIgnoreFileKey)
	}
	if reader.IsSet(pathsGitignoreFileKey) {
		overlay.Paths.GitignoreFile = reader.GetString(pathsGitignoreFileKey)
	}
	return overlay
}

// Merge overlays override onto the receiver returning the combined configuration.
func (config ApplicationConfiguration) Merge(override ApplicationConfiguration) ApplicationConfiguration {
	result := config
	result.Serve = result.Serve.merge(override.Serve)
	result.Index = result.Index.merge(override.Index)
	result.Pack = result.Pack.merge(override.Pack)
	result.Paths = result.Paths.merge(override.Paths)
	return result
}

func (config ServeConfiguration) merge(override ServeConfiguration) ServeConfiguration {
	result := config
	if override.Address != "" {
		result.Address = override.Address
	}
	if override.Watch != nil {
		result.Watch = cloneBool(override.Watch)
	}
	return result
}

func (config IndexConfiguration) merge(override IndexConfiguration) IndexConfiguration {
	result := config
	if override.TTLHours != nil {
		result.TTLHours = cloneInt(override.TTLHours)
	}
	if override.Workers != nil {
		result.Workers = cloneInt(override.Workers)
	}
	if override.ParallelDepth != nil {
		result.ParallelDepth = cloneInt(override.ParallelDepth)
	}
	return result
}

func (config PackConfiguration) merge(override PackConfiguration) PackConfiguration {
	result := config
	if override.MaxFileSizeMiB != nil {
		result.MaxFileSizeMiB = cloneInt(override.MaxFileSizeMiB)
	}
	result.Tokens = result.Tokens.merge(override.Tokens)
	if override.Clipboard != nil {
		result.Clipboard = cloneBool(override.Clipboard)
	}
	return result
}

func (config TokenConfiguration) merge(override TokenConfiguration) TokenConfiguration {
	result := config
	if override.Enabled != nil {
		result.Enabled = cloneBool(override.Enabled)
	}
	if override.Model != "" {
		result.Model = override.Model
	}
	return result
}

func (config PathsConfiguration) merge(override PathsConfiguration) PathsConfiguration {
	result := config
	if override.IgnoreFile != "" {
		result.IgnoreFile = override.IgnoreFile
	}
	if override.GitignoreFile != "" {
		result.GitignoreFile = override.GitignoreFile
	}
	return result
}

func cloneBool(value *bool) *bool {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

func boolPointer(value bool) *bool { return &value }

func intPointer(value int) *int { return &value }
