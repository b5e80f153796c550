package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/orgmigrate/internal/migrate"
	"github.com/temirov/orgmigrate/internal/utils"
	"github.com/temirov/orgmigrate/internal/utils/flags"
)

const (
	applicationNameConstant                 = "orgmigrate"
	applicationShortDescriptionConstant     = "Migrate Azure DevOps projects into a GitHub organization"
	applicationLongDescriptionConstant      = "orgmigrate reconciles Azure DevOps projects with a GitHub organization, creating repositories, teams, and memberships that are missing and transferring repository history."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	environmentFileFlagNameConstant         = "env-file"
	environmentFileFlagUsageConstant        = "Dotenv files read before environment overrides. Variables already set are kept."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level (debug, info, warn, error)."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	commonLogLevelConfigKeyConstant         = "common.log_level"
	commonLogFormatConfigKeyConstant        = "common.log_format"
	environmentPrefixConstant               = "ORGMIGRATE"
	environmentFileConstant                 = ".env"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationInitializedMessageConstant = "configuration initialized"
	logLevelFieldConstant                   = "log_level"
	logFormatFieldConstant                  = "log_format"
	configFileFieldConstant                 = "config_file"
	environmentFilesFieldConstant           = "environment_files"
	applicationFieldConstant                = "application"
	versionFieldConstant                    = "version"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	workingDirectorySearchPathConstant      = "."
)

// applicationVersion is replaced at build time through -ldflags.
var applicationVersion = "dev"

// ApplicationConfiguration is the complete persisted configuration. Migration
// settings live at the top level next to the common section.
type ApplicationConfiguration struct {
	Common    ApplicationCommonConfiguration `mapstructure:"common"`
	Migration migrate.Configuration          `mapstructure:",squash"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Application owns the root command and the state shared by its subcommands.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	environmentFiles       []string
	logLevelFlagValue      string
	logFormatFlagValue     string
	commandContextAccessor utils.CommandContextAccessor
}

// NewApplication assembles the root command with the migrate and assess subcommands.
func NewApplication() *Application {
	application := &Application{
		configurationLoader: utils.NewConfigurationLoader(
			configurationNameConstant,
			configurationTypeConstant,
			environmentPrefixConstant,
			configurationSearchPaths(),
		),
		loggerFactory: utils.NewLoggerFactory(utils.WithLoggerFields(
			zap.String(applicationFieldConstant, applicationNameConstant),
			zap.String(versionFieldConstant, applicationVersion),
		)),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
	}
	application.configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	rootCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Version:       applicationVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}
	rootCommand.SetContext(context.Background())

	persistentFlags := rootCommand.PersistentFlags()
	persistentFlags.StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	persistentFlags.StringSliceVar(&application.environmentFiles, environmentFileFlagNameConstant, []string{environmentFileConstant}, environmentFileFlagUsageConstant)
	persistentFlags.StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	persistentFlags.StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	commandBuilder := migrate.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider: func() migrate.Configuration {
			return application.configuration.Migration
		},
	}
	for _, build := range []func() (*cobra.Command, error){commandBuilder.Build, commandBuilder.BuildAssess} {
		if subcommand, buildError := build(); buildError == nil {
			rootCommand.AddCommand(subcommand)
		}
	}

	application.rootCommand = rootCommand
	return application
}

// Execute runs the command hierarchy with the process arguments and flushes
// the logger afterwards.
func (application *Application) Execute() error {
	application.rootCommand.SetArgs(flags.NormalizeToggleArguments(os.Args[1:]))
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil && executionError == nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application and runs it.
func Execute() error {
	return NewApplication().Execute()
}

func configurationSearchPaths() []string {
	searchPaths := []string{workingDirectorySearchPathConstant}
	if userConfigurationDirectory, directoryError := os.UserConfigDir(); directoryError == nil {
		searchPaths = append(searchPaths, filepath.Join(userConfigurationDirectory, applicationNameConstant))
	}
	return searchPaths
}

// initializeConfiguration layers embedded defaults, the config file, dotenv
// files, environment variables, and flags, then replaces the no-op logger.
func (application *Application) initializeConfiguration(command *cobra.Command) error {
	if loadError := application.loadConfiguration(); loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}
	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	logger, loggerError := application.loggerFactory.CreateLogger(
		utils.NormalizeLogLevel(application.configuration.Common.LogLevel),
		utils.NormalizeLogFormat(application.configuration.Common.LogFormat),
	)
	if loggerError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerError)
	}
	application.logger = logger
	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(logLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(logFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
		zap.Strings(environmentFilesFieldConstant, application.configurationMetadata.EnvironmentFilesUsed),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(command.Context(), application.configurationMetadata.ConfigFileUsed)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil && rootCommand != command {
			rootCommand.SetContext(updatedContext)
		}
	}
	return nil
}

func (application *Application) loadConfiguration() error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
	}
	for configurationKey, configurationValue := range migrate.DefaultConfigurationValues() {
		defaultValues[configurationKey] = configurationValue
	}

	application.configurationLoader.SetEnvironmentFiles(application.environmentFiles...)
	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return loadError
	}
	application.configurationMetadata = loadedConfiguration
	return nil
}

func (application *Application) humanReadableLoggingEnabled() bool {
	return utils.NormalizeLogFormat(application.configuration.Common.LogFormat) == utils.LogFormatConsole
}

// flushLogger ignores the errors returned when syncing terminals and pipes.
func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}
	syncError := application.logger.Sync()
	if errors.Is(syncError, syscall.ENOTSUP) || errors.Is(syncError, syscall.EINVAL) {
		return nil
	}
	return syncError
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}
	flagSets := []*pflag.FlagSet{command.PersistentFlags(), command.InheritedFlags()}
	if rootCommand := command.Root(); rootCommand != nil {
		flagSets = append(flagSets, rootCommand.PersistentFlags())
	}
	for _, flagSet := range flagSets {
		if flagSet != nil && flagSet.Changed(flagName) {
			return true
		}
	}
	return false
}
