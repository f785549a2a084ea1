package utils

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	environmentKeySeparatorConstant                = "_"
	configurationKeySeparatorConstant              = "."
	embeddedConfigurationReadErrorTemplateConstant = "unable to read embedded configuration: %w"
	configurationFileReadErrorTemplateConstant     = "unable to read configuration file %s: %w"
	configurationSearchErrorTemplateConstant       = "unable to read configuration from search paths: %w"
	configurationDecodeErrorTemplateConstant       = "unable to decode configuration: %w"
	environmentAliasBindErrorTemplateConstant      = "unable to bind environment aliases for %s: %w"
	configurationTargetMissingMessageConstant      = "configuration target must not be nil"
	defaultEmbeddedConfigurationFormatConstant     = "yaml"
)

// LoadedConfiguration describes where the effective configuration came from.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// ConfigurationLoader layers embedded defaults, configuration files, and environment variables through viper.
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	embeddedConfiguration     []byte
	embeddedConfigurationType string
	environmentAliases        map[string][]string
}

// NewConfigurationLoader constructs a ConfigurationLoader for the provided file name, type, environment prefix, and search paths.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	copiedSearchPaths := make([]string, 0, len(searchPaths))
	for _, searchPath := range searchPaths {
		trimmedSearchPath := strings.TrimSpace(searchPath)
		if len(trimmedSearchPath) == 0 {
			continue
		}
		copiedSearchPaths = append(copiedSearchPaths, trimmedSearchPath)
	}

	return &ConfigurationLoader{
		configurationName:  configurationName,
		configurationType:  configurationType,
		environmentPrefix:  environmentPrefix,
		searchPaths:        copiedSearchPaths,
		environmentAliases: map[string][]string{},
	}
}

// SetEmbeddedConfiguration registers configuration content that forms the lowest-precedence layer.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	loader.embeddedConfiguration = append([]byte(nil), configurationData...)
	loader.embeddedConfigurationType = strings.TrimSpace(configurationType)
}

// SetEnvironmentAliases registers unprefixed environment variable names consulted for a configuration key
// when its prefixed variable is absent.
func (loader *ConfigurationLoader) SetEnvironmentAliases(aliases map[string][]string) {
	loader.environmentAliases = make(map[string][]string, len(aliases))
	for configurationKey, environmentNames := range aliases {
		loader.environmentAliases[configurationKey] = append([]string(nil), environmentNames...)
	}
}

// LoadConfiguration resolves the layered configuration into target and reports the configuration file used.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, target any) (LoadedConfiguration, error) {
	if target == nil {
		return LoadedConfiguration{}, errors.New(configurationTargetMissingMessageConstant)
	}

	configurationViper := viper.New()
	for configurationKey, defaultValue := range defaultValues {
		configurationViper.SetDefault(configurationKey, defaultValue)
	}

	if len(loader.embeddedConfiguration) > 0 {
		embeddedType := loader.embeddedConfigurationType
		if len(embeddedType) == 0 {
			embeddedType = defaultEmbeddedConfigurationFormatConstant
		}
		configurationViper.SetConfigType(embeddedType)
		if readError := configurationViper.MergeConfig(bytes.NewReader(loader.embeddedConfiguration)); readError != nil {
			return LoadedConfiguration{}, fmt.Errorf(embeddedConfigurationReadErrorTemplateConstant, readError)
		}
	}

	trimmedConfigurationFilePath := strings.TrimSpace(configurationFilePath)
	if len(trimmedConfigurationFilePath) > 0 {
		configurationViper.SetConfigFile(trimmedConfigurationFilePath)
		if mergeError := configurationViper.MergeInConfig(); mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(configurationFileReadErrorTemplateConstant, trimmedConfigurationFilePath, mergeError)
		}
	} else if len(loader.searchPaths) > 0 {
		configurationViper.SetConfigName(loader.configurationName)
		configurationViper.SetConfigType(loader.configurationType)
		for _, searchPath := range loader.searchPaths {
			configurationViper.AddConfigPath(searchPath)
		}
		if mergeError := configurationViper.MergeInConfig(); mergeError != nil {
			var notFoundError viper.ConfigFileNotFoundError
			if !errors.As(mergeError, &notFoundError) {
				return LoadedConfiguration{}, fmt.Errorf(configurationSearchErrorTemplateConstant, mergeError)
			}
		}
	}

	if len(loader.environmentPrefix) > 0 {
		configurationViper.SetEnvPrefix(loader.environmentPrefix)
	}
	configurationViper.SetEnvKeyReplacer(strings.NewReplacer(configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	configurationViper.AutomaticEnv()

	for configurationKey, environmentNames := range loader.environmentAliases {
		if len(environmentNames) == 0 {
			continue
		}
		bindArguments := append([]string{configurationKey}, environmentNames...)
		if bindError := configurationViper.BindEnv(bindArguments...); bindError != nil {
			return LoadedConfiguration{}, fmt.Errorf(environmentAliasBindErrorTemplateConstant, configurationKey, bindError)
		}
	}

	if decodeError := configurationViper.Unmarshal(target); decodeError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationDecodeErrorTemplateConstant, decodeError)
	}

	return LoadedConfiguration{ConfigFileUsed: configurationViper.ConfigFileUsed()}, nil
}
