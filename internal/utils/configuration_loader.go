package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configurationKeySeparatorConstant           = "."
	environmentKeySeparatorConstant             = "_"
	listSeparatorConstant                       = ","
	configurationReadErrorTemplateConstant      = "failed to read configuration: %w"
	configurationUnmarshalErrorTemplateConstant = "failed to parse configuration: %w"
	embeddedMergeErrorTemplateConstant          = "failed to merge embedded configuration: %w"
	environmentFileLoadErrorTemplateConstant    = "failed to load environment file %s: %w"
	configurationFileMissingTemplateConstant    = "configuration file %s does not exist"
)

// ConfigurationFileMissingError reports an explicitly requested configuration
// file that is absent. Files discovered through search paths are optional.
type ConfigurationFileMissingError struct {
	Path string
}

// Error describes the missing file.
func (missingError ConfigurationFileMissingError) Error() string {
	return fmt.Sprintf(configurationFileMissingTemplateConstant, missingError.Path)
}

// ConfigurationLoader layers configuration sources with increasing precedence:
// embedded defaults, explicit default values, a configuration file, dotenv
// files, and prefixed environment variables.
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	environmentFiles          []string
	embeddedConfiguration     []byte
	embeddedConfigurationType string
}

// LoadedConfiguration surfaces metadata about the resolved configuration.
type LoadedConfiguration struct {
	ConfigFileUsed       string
	EnvironmentFilesUsed []string
}

// NewConfigurationLoader creates a loader searching searchPaths for configurationName.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       append([]string{}, searchPaths...),
	}
}

// SetEmbeddedConfiguration stores configuration merged beneath every other source.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	if loader == nil {
		return
	}
	loader.embeddedConfiguration = bytes.Clone(configurationData)
	loader.embeddedConfigurationType = strings.TrimSpace(configurationType)
}

// SetEnvironmentFiles registers dotenv files. Missing files are skipped and
// variables already present in the process environment are never replaced.
func (loader *ConfigurationLoader) SetEnvironmentFiles(environmentFiles ...string) {
	if loader == nil {
		return
	}
	loader.environmentFiles = append([]string{}, environmentFiles...)
}

// LoadConfiguration decodes the layered configuration into targetConfiguration.
// Comma separated strings decode into slices and duration strings into
// time.Duration values.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, targetConfiguration any) (LoadedConfiguration, error) {
	environmentFilesUsed, environmentError := loader.loadEnvironmentFiles()
	if environmentError != nil {
		return LoadedConfiguration{}, environmentError
	}

	viperInstance := viper.New()
	if embeddedError := loader.mergeEmbeddedConfiguration(viperInstance); embeddedError != nil {
		return LoadedConfiguration{}, embeddedError
	}
	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	viperInstance.AutomaticEnv()

	if fileError := loader.mergeConfigurationFile(viperInstance, strings.TrimSpace(configurationFilePath)); fileError != nil {
		return LoadedConfiguration{}, fileError
	}

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(listSeparatorConstant),
	))
	if unmarshalError := viperInstance.Unmarshal(targetConfiguration, decodeHook); unmarshalError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationUnmarshalErrorTemplateConstant, unmarshalError)
	}

	return LoadedConfiguration{
		ConfigFileUsed:       viperInstance.ConfigFileUsed(),
		EnvironmentFilesUsed: environmentFilesUsed,
	}, nil
}

func (loader *ConfigurationLoader) mergeEmbeddedConfiguration(viperInstance *viper.Viper) error {
	if len(loader.embeddedConfiguration) == 0 {
		return nil
	}
	embeddedType := loader.embeddedConfigurationType
	if len(embeddedType) == 0 {
		embeddedType = loader.configurationType
	}
	viperInstance.SetConfigType(embeddedType)
	if mergeError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedConfiguration)); mergeError != nil {
		return fmt.Errorf(embeddedMergeErrorTemplateConstant, mergeError)
	}
	return nil
}

func (loader *ConfigurationLoader) mergeConfigurationFile(viperInstance *viper.Viper, configurationFilePath string) error {
	viperInstance.SetConfigType(loader.configurationType)
	if len(configurationFilePath) > 0 {
		if _, statError := os.Stat(configurationFilePath); errors.Is(statError, os.ErrNotExist) {
			return ConfigurationFileMissingError{Path: configurationFilePath}
		}
		viperInstance.SetConfigFile(configurationFilePath)
	} else {
		viperInstance.SetConfigName(loader.configurationName)
		for _, searchPath := range loader.searchPaths {
			viperInstance.AddConfigPath(searchPath)
		}
	}

	readError := viperInstance.MergeInConfig()
	var notFoundError viper.ConfigFileNotFoundError
	if readError != nil && !errors.As(readError, &notFoundError) {
		return fmt.Errorf(configurationReadErrorTemplateConstant, readError)
	}
	return nil
}

func (loader *ConfigurationLoader) loadEnvironmentFiles() ([]string, error) {
	environmentFilesUsed := make([]string, 0, len(loader.environmentFiles))
	for _, environmentFile := range loader.environmentFiles {
		trimmedEnvironmentFile := strings.TrimSpace(environmentFile)
		if len(trimmedEnvironmentFile) == 0 {
			continue
		}
		if _, statError := os.Stat(trimmedEnvironmentFile); statError != nil {
			if errors.Is(statError, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf(environmentFileLoadErrorTemplateConstant, trimmedEnvironmentFile, statError)
		}
		if loadError := godotenv.Load(trimmedEnvironmentFile); loadError != nil {
			return nil, fmt.Errorf(environmentFileLoadErrorTemplateConstant, trimmedEnvironmentFile, loadError)
		}
		environmentFilesUsed = append(environmentFilesUsed, trimmedEnvironmentFile)
	}
	return environmentFilesUsed, nil
}
