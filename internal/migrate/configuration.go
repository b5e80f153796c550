package migrate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/temirov/orgmigrate/internal/githubapi"
)

// Configuration keys shared with the CLI layer.
const (
	SourceConfigurationKey    = "source"
	TargetConfigurationKey    = "target"
	NamingConfigurationKey    = "naming"
	IdentityConfigurationKey  = "identity"
	TransferConfigurationKey  = "transfer"
	MigrationConfigurationKey = "migration"
	HTTPConfigurationKey      = "http"
	ReportConfigurationKey    = "report"
)

const (
	configurationErrorTemplateConstant        = "configuration %s: %s"
	requiredValueMessageConstant              = "value required"
	positiveValueMessageConstant              = "must be greater than zero"
	nonNegativeValueMessageConstant           = "must not be negative"
	unsupportedPermissionTemplateConstant     = "unsupported permission %q"
	defaultSourceBaseURLConstant              = "https://dev.azure.com"
	defaultTargetBaseURLConstant              = "https://api.github.com/"
	defaultTargetGraphQLURLConstant           = "https://api.github.com/graphql"
	defaultTargetWebURLConstant               = "https://github.com"
	defaultRepositoryPatternConstant          = "{projectName}-{repoName}"
	defaultTeamPatternConstant                = "{projectName}-{teamName}"
	defaultMaximumNameLengthConstant          = 100
	defaultPushAttemptsConstant               = 3
	defaultPushRetryDelayConstant             = 10 * time.Second
	defaultCommandTimeoutConstant             = time.Hour
	defaultBridgeExecutableConstant           = "git-tfs"
	defaultConcurrencyConstant                = 4
	defaultMemberBatchSizeConstant            = 10
	defaultDefaultBranchAttemptsConstant      = 3
	defaultDefaultBranchRetryDelayConstant    = 5 * time.Second
	defaultHTTPMaximumAttemptsConstant        = 4
	defaultReportOutputConstant               = "migration-report.md"
	sourceOrganizationKeyConstant             = "source.organization"
	targetOrganizationKeyConstant             = "target.organization"
	identityMappingFileKeyConstant            = "identity.mapping_file"
	namingMaximumLengthKeyConstant            = "naming.max_length"
	transferPushAttemptsKeyConstant           = "transfer.push_attempts"
	transferCommandTimeoutKeyConstant         = "transfer.command_timeout"
	migrationConcurrencyKeyConstant           = "migration.concurrency"
	migrationMemberBatchSizeKeyConstant       = "migration.member_batch_size"
	migrationPermissionKeyConstant            = "migration.repository_permission"
	migrationDefaultBranchAttemptsKeyConstant = "migration.default_branch_attempts"
	httpMaximumAttemptsKeyConstant            = "http.max_attempts"
	httpRequestsPerSecondKeyConstant          = "http.requests_per_second"
)

// ConfigurationError reports an invalid or missing configuration value. It is
// fatal and always raised before any platform call.
type ConfigurationError struct {
	Key     string
	Message string
}

// Error describes the configuration problem.
func (configurationError ConfigurationError) Error() string {
	return fmt.Sprintf(configurationErrorTemplateConstant, configurationError.Key, configurationError.Message)
}

// SourceConfiguration identifies the source organization.
type SourceConfiguration struct {
	Organization string   `mapstructure:"organization"`
	BaseURL      string   `mapstructure:"base_url"`
	Token        string   `mapstructure:"token"`
	Projects     []string `mapstructure:"projects"`
}

// TargetConfiguration identifies the target organization.
type TargetConfiguration struct {
	Organization string `mapstructure:"organization"`
	BaseURL      string `mapstructure:"base_url"`
	GraphQLURL   string `mapstructure:"graphql_url"`
	WebURL       string `mapstructure:"web_url"`
	Token        string `mapstructure:"token"`
}

// NamingConfiguration holds the target name patterns.
type NamingConfiguration struct {
	RepositoryPattern string `mapstructure:"repository_pattern"`
	TeamPattern       string `mapstructure:"team_pattern"`
	MaximumLength     int    `mapstructure:"max_length"`
}

// IdentityConfiguration locates the identity mapping file.
type IdentityConfiguration struct {
	MappingFile string `mapstructure:"mapping_file"`
}

// TransferConfiguration tunes content transfer.
type TransferConfiguration struct {
	Workspace        string        `mapstructure:"workspace"`
	PushAttempts     int           `mapstructure:"push_attempts"`
	PushRetryDelay   time.Duration `mapstructure:"push_retry_delay"`
	CommandTimeout   time.Duration `mapstructure:"command_timeout"`
	VerifyReferences bool          `mapstructure:"verify_references"`
	BridgeExecutable string        `mapstructure:"bridge_executable"`
}

// MigrationConfiguration tunes the orchestrator.
type MigrationConfiguration struct {
	Concurrency             int           `mapstructure:"concurrency"`
	RepositoryPermission    string        `mapstructure:"repository_permission"`
	MemberBatchSize         int           `mapstructure:"member_batch_size"`
	DefaultBranchAttempts   int           `mapstructure:"default_branch_attempts"`
	DefaultBranchRetryDelay time.Duration `mapstructure:"default_branch_retry_delay"`
}

// HTTPConfiguration tunes the rate-limit aware client.
type HTTPConfiguration struct {
	MaximumAttempts   int     `mapstructure:"max_attempts"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ReportConfiguration locates the rendered report.
type ReportConfiguration struct {
	Output string `mapstructure:"output"`
}

// Configuration aggregates every section consumed by the migrate and assess commands.
type Configuration struct {
	Source    SourceConfiguration    `mapstructure:"source"`
	Target    TargetConfiguration    `mapstructure:"target"`
	Naming    NamingConfiguration    `mapstructure:"naming"`
	Identity  IdentityConfiguration  `mapstructure:"identity"`
	Transfer  TransferConfiguration  `mapstructure:"transfer"`
	Migration MigrationConfiguration `mapstructure:"migration"`
	HTTP      HTTPConfiguration      `mapstructure:"http"`
	Report    ReportConfiguration    `mapstructure:"report"`
}

// DefaultConfiguration returns baseline values for every section.
func DefaultConfiguration() Configuration {
	return Configuration{
		Source: SourceConfiguration{BaseURL: defaultSourceBaseURLConstant},
		Target: TargetConfiguration{
			BaseURL:    defaultTargetBaseURLConstant,
			GraphQLURL: defaultTargetGraphQLURLConstant,
			WebURL:     defaultTargetWebURLConstant,
		},
		Naming: NamingConfiguration{
			RepositoryPattern: defaultRepositoryPatternConstant,
			TeamPattern:       defaultTeamPatternConstant,
			MaximumLength:     defaultMaximumNameLengthConstant,
		},
		Transfer: TransferConfiguration{
			PushAttempts:     defaultPushAttemptsConstant,
			PushRetryDelay:   defaultPushRetryDelayConstant,
			CommandTimeout:   defaultCommandTimeoutConstant,
			VerifyReferences: true,
			BridgeExecutable: defaultBridgeExecutableConstant,
		},
		Migration: MigrationConfiguration{
			Concurrency:             defaultConcurrencyConstant,
			RepositoryPermission:    string(githubapi.PermissionPush),
			MemberBatchSize:         defaultMemberBatchSizeConstant,
			DefaultBranchAttempts:   defaultDefaultBranchAttemptsConstant,
			DefaultBranchRetryDelay: defaultDefaultBranchRetryDelayConstant,
		},
		HTTP:   HTTPConfiguration{MaximumAttempts: defaultHTTPMaximumAttemptsConstant},
		Report: ReportConfiguration{Output: defaultReportOutputConstant},
	}
}

// DefaultConfigurationValues returns viper defaults keyed by dotted configuration path.
func DefaultConfigurationValues() map[string]any {
	defaults := DefaultConfiguration()
	return map[string]any{
		SourceConfigurationKey + ".base_url":                      defaults.Source.BaseURL,
		TargetConfigurationKey + ".base_url":                      defaults.Target.BaseURL,
		TargetConfigurationKey + ".graphql_url":                   defaults.Target.GraphQLURL,
		TargetConfigurationKey + ".web_url":                       defaults.Target.WebURL,
		NamingConfigurationKey + ".repository_pattern":            defaults.Naming.RepositoryPattern,
		NamingConfigurationKey + ".team_pattern":                  defaults.Naming.TeamPattern,
		NamingConfigurationKey + ".max_length":                    defaults.Naming.MaximumLength,
		TransferConfigurationKey + ".push_attempts":               defaults.Transfer.PushAttempts,
		TransferConfigurationKey + ".push_retry_delay":            defaults.Transfer.PushRetryDelay.String(),
		TransferConfigurationKey + ".command_timeout":             defaults.Transfer.CommandTimeout.String(),
		TransferConfigurationKey + ".verify_references":           defaults.Transfer.VerifyReferences,
		TransferConfigurationKey + ".bridge_executable":           defaults.Transfer.BridgeExecutable,
		MigrationConfigurationKey + ".concurrency":                defaults.Migration.Concurrency,
		MigrationConfigurationKey + ".repository_permission":      defaults.Migration.RepositoryPermission,
		MigrationConfigurationKey + ".member_batch_size":          defaults.Migration.MemberBatchSize,
		MigrationConfigurationKey + ".default_branch_attempts":    defaults.Migration.DefaultBranchAttempts,
		MigrationConfigurationKey + ".default_branch_retry_delay": defaults.Migration.DefaultBranchRetryDelay.String(),
		HTTPConfigurationKey + ".max_attempts":                    defaults.HTTP.MaximumAttempts,
		ReportConfigurationKey + ".output":                        defaults.Report.Output,
	}
}

// Sanitize trims textual values and drops blank project names.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.Source.Organization = strings.TrimSpace(configuration.Source.Organization)
	sanitized.Source.BaseURL = strings.TrimSpace(configuration.Source.BaseURL)
	sanitized.Target.Organization = strings.TrimSpace(configuration.Target.Organization)
	sanitized.Identity.MappingFile = strings.TrimSpace(configuration.Identity.MappingFile)
	sanitized.Migration.RepositoryPermission = strings.ToLower(strings.TrimSpace(configuration.Migration.RepositoryPermission))
	sanitized.Report.Output = strings.TrimSpace(configuration.Report.Output)

	projects := make([]string, 0, len(configuration.Source.Projects))
	for _, projectName := range configuration.Source.Projects {
		if trimmed := strings.TrimSpace(projectName); len(trimmed) > 0 {
			projects = append(projects, trimmed)
		}
	}
	sanitized.Source.Projects = projects
	return sanitized
}

// Validate reports every invalid value as a ConfigurationError joined into one error.
func (configuration Configuration) Validate() error {
	var problems []error
	requireValue := func(key string, value string) {
		if len(strings.TrimSpace(value)) == 0 {
			problems = append(problems, ConfigurationError{Key: key, Message: requiredValueMessageConstant})
		}
	}
	requirePositive := func(key string, value int) {
		if value <= 0 {
			problems = append(problems, ConfigurationError{Key: key, Message: positiveValueMessageConstant})
		}
	}

	requireValue(sourceOrganizationKeyConstant, configuration.Source.Organization)
	requireValue(targetOrganizationKeyConstant, configuration.Target.Organization)
	requireValue(identityMappingFileKeyConstant, configuration.Identity.MappingFile)
	requirePositive(namingMaximumLengthKeyConstant, configuration.Naming.MaximumLength)
	requirePositive(transferPushAttemptsKeyConstant, configuration.Transfer.PushAttempts)
	requirePositive(migrationConcurrencyKeyConstant, configuration.Migration.Concurrency)
	requirePositive(migrationMemberBatchSizeKeyConstant, configuration.Migration.MemberBatchSize)
	requirePositive(migrationDefaultBranchAttemptsKeyConstant, configuration.Migration.DefaultBranchAttempts)
	requirePositive(httpMaximumAttemptsKeyConstant, configuration.HTTP.MaximumAttempts)

	if configuration.Transfer.CommandTimeout < 0 {
		problems = append(problems, ConfigurationError{Key: transferCommandTimeoutKeyConstant, Message: nonNegativeValueMessageConstant})
	}
	if configuration.HTTP.RequestsPerSecond < 0 {
		problems = append(problems, ConfigurationError{Key: httpRequestsPerSecondKeyConstant, Message: nonNegativeValueMessageConstant})
	}
	if !githubapi.RepositoryPermission(configuration.Migration.RepositoryPermission).IsValid() {
		problems = append(problems, ConfigurationError{Key: migrationPermissionKeyConstant, Message: fmt.Sprintf(unsupportedPermissionTemplateConstant, configuration.Migration.RepositoryPermission)})
	}

	return errors.Join(problems...)
}
