package flags

import (
	"github.com/spf13/cobra"
)

// Shared migration flag names.
const (
	ProjectFlagName          = "project"
	AssessOnlyFlagName       = "assess-only"
	VerifyReferencesFlagName = "verify-references"
	ConcurrencyFlagName      = "concurrency"
	ReportFlagName           = "report"
)

const (
	projectFlagUsageConstant          = "Source project to migrate (repeatable, defaults to every configured project)"
	assessOnlyFlagUsageConstant       = "Only assess migration state without changing the target"
	verifyReferencesFlagUsageConstant = "Compare branch and tag references between source and target after each push"
	concurrencyFlagUsageConstant      = "Maximum number of concurrent repository transfers"
	reportFlagUsageConstant           = "Path of the Markdown report written after the run"
)

// MigrationFlagValues stores the values bound by BindMigrationFlags.
type MigrationFlagValues struct {
	Projects         []string
	AssessOnly       bool
	VerifyReferences bool
	Concurrency      int
	ReportPath       string
}

// MigrationFlagOverrides reports which migration flags were set explicitly.
type MigrationFlagOverrides struct {
	Projects         bool
	AssessOnly       bool
	VerifyReferences bool
	Concurrency      bool
	ReportPath       bool
}

// BindMigrationFlags attaches the migration flags to command. When
// includeTransferFlags is false the assess-only and verify-references toggles
// are omitted.
func BindMigrationFlags(command *cobra.Command, defaults MigrationFlagValues, includeTransferFlags bool) *MigrationFlagValues {
	values := MigrationFlagValues{
		Projects:         append([]string{}, defaults.Projects...),
		AssessOnly:       defaults.AssessOnly,
		VerifyReferences: defaults.VerifyReferences,
		Concurrency:      defaults.Concurrency,
		ReportPath:       defaults.ReportPath,
	}
	if command == nil {
		return &values
	}

	flagSet := command.Flags()
	flagSet.StringSliceVar(&values.Projects, ProjectFlagName, values.Projects, projectFlagUsageConstant)
	if includeTransferFlags {
		AddToggleFlag(flagSet, &values.AssessOnly, AssessOnlyFlagName, defaults.AssessOnly, assessOnlyFlagUsageConstant)
		AddToggleFlag(flagSet, &values.VerifyReferences, VerifyReferencesFlagName, defaults.VerifyReferences, verifyReferencesFlagUsageConstant)
	}
	flagSet.IntVar(&values.Concurrency, ConcurrencyFlagName, values.Concurrency, concurrencyFlagUsageConstant)
	flagSet.StringVar(&values.ReportPath, ReportFlagName, values.ReportPath, reportFlagUsageConstant)

	return &values
}

// ChangedMigrationFlags reports which migration flags were supplied on the command line.
func ChangedMigrationFlags(command *cobra.Command) MigrationFlagOverrides {
	if command == nil {
		return MigrationFlagOverrides{}
	}
	flagSet := command.Flags()
	return MigrationFlagOverrides{
		Projects:         flagSet.Changed(ProjectFlagName),
		AssessOnly:       flagSet.Changed(AssessOnlyFlagName),
		VerifyReferences: flagSet.Changed(VerifyReferencesFlagName),
		Concurrency:      flagSet.Changed(ConcurrencyFlagName),
		ReportPath:       flagSet.Changed(ReportFlagName),
	}
}
