package migrate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/orgmigrate/internal/githubapi"
	"github.com/temirov/orgmigrate/internal/identity"
	"github.com/temirov/orgmigrate/internal/migrate"
	"github.com/temirov/orgmigrate/internal/migrate/testsupport"
	"github.com/temirov/orgmigrate/internal/migration"
	"github.com/temirov/orgmigrate/internal/reconcile"
	clocksupport "github.com/temirov/orgmigrate/internal/testsupport"
	"github.com/temirov/orgmigrate/internal/transfer"
	"github.com/temirov/orgmigrate/internal/utils"
)

const (
	testSourceOrganizationConstant = "contoso-ado"
	testTargetOrganizationConstant = "contoso"
	testPaymentsProjectConstant    = "Payments"
	testLedgerProjectConstant      = "Ledger"
	testRunIdentifierConstant      = "run-0001"
)

var testEpoch = time.Unix(1_700_000_000, 0)

type serviceFixture struct {
	source       *testsupport.SourcePlatformStub
	target       *testsupport.TargetPlatformStub
	transferer   *testsupport.TransfererStub
	clock        *clocksupport.RecordingClock
	service      *migrate.Service
	observedLogs *observer.ObservedLogs
}

func paymentsProject() *migration.Project {
	return &migration.Project{
		Name: testPaymentsProjectConstant,
		Repositories: []*migration.Repository{
			{Name: "API", URL: "https://dev.azure.com/contoso-ado/Payments/_git/API", Kind: migration.RepositoryKindGit, DefaultBranch: "main", BranchCount: 3},
			{Name: "Docs", URL: "https://dev.azure.com/contoso-ado/Payments/_git/Docs", Kind: migration.RepositoryKindGit},
		},
		Teams: []*migration.Team{
			{
				Name: "Platform",
				Members: []*migration.TeamMember{
					{UniqueName: "alice@contoso.com", IsSourceAdmin: true},
					{UniqueName: "bob@contoso.com"},
				},
			},
		},
	}
}

func newServiceFixture(testInstance *testing.T, projects ...*migration.Project) *serviceFixture {
	testInstance.Helper()

	source := &testsupport.SourcePlatformStub{
		OrganizationName: testSourceOrganizationConstant,
		Collection:       "https://dev.azure.com/contoso-ado",
		Projects:         map[string]*migration.Project{},
	}
	for _, project := range projects {
		source.ProjectOrder = append(source.ProjectOrder, project.Name)
		source.Projects[project.Name] = project
	}
	target := testsupport.NewTargetPlatformStub(testTargetOrganizationConstant)
	transferer := &testsupport.TransfererStub{Target: target, Outcomes: map[string]transfer.Outcome{}}

	mapping, mappingError := identity.NewMapping(map[string]string{
		"alice@contoso.com": "alice-gh",
		"bob@contoso.com":   "bob-gh",
	})
	require.NoError(testInstance, mappingError)

	reconciler, reconcilerError := reconcile.NewReconciler(
		reconcile.ReconcilerDependencies{Target: target, Identities: mapping},
		reconcile.ReconcilerOptions{
			OrganizationName:  testTargetOrganizationConstant,
			RepositoryPattern: "{projectName}-{repoName}",
			TeamPattern:       "{projectName}-{teamName}",
		},
	)
	require.NoError(testInstance, reconcilerError)

	observerCore, observedLogs := observer.New(zapcore.DebugLevel)
	recordingClock := clocksupport.NewRecordingClock(testEpoch)
	service, serviceError := migrate.NewService(migrate.ServiceDependencies{
		Source:              source,
		Target:              target,
		Assessor:            reconciler,
		Transferer:          transferer,
		Logger:              zap.New(observerCore),
		Clock:               recordingClock,
		IdentifierGenerator: func() string { return testRunIdentifierConstant },
	})
	require.NoError(testInstance, serviceError)

	return &serviceFixture{source: source, target: target, transferer: transferer, clock: recordingClock, service: service, observedLogs: observedLogs}
}

func defaultOptions() migrate.Options {
	return migrate.Options{
		Concurrency:             2,
		MemberBatchSize:         10,
		RepositoryPermission:    githubapi.PermissionPush,
		DefaultBranchAttempts:   3,
		DefaultBranchRetryDelay: 5 * time.Second,
		SourceToken:             "source-token",
		TargetToken:             "target-token",
	}
}

func TestNewServiceValidatesDependencies(testInstance *testing.T) {
	target := testsupport.NewTargetPlatformStub(testTargetOrganizationConstant)
	source := &testsupport.SourcePlatformStub{}
	testCases := []struct {
		name          string
		dependencies  migrate.ServiceDependencies
		expectedError error
	}{
		{name: "source", dependencies: migrate.ServiceDependencies{}, expectedError: migrate.ErrSourceNotConfigured},
		{name: "target", dependencies: migrate.ServiceDependencies{Source: source}, expectedError: migrate.ErrTargetNotConfigured},
		{name: "assessor", dependencies: migrate.ServiceDependencies{Source: source, Target: target}, expectedError: migrate.ErrAssessorNotConfigured},
		{name: "transferer", dependencies: migrate.ServiceDependencies{Source: source, Target: target, Assessor: &reconcile.Reconciler{}}, expectedError: migrate.ErrTransfererNotConfigured},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			_, creationError := migrate.NewService(testCase.dependencies)
			require.ErrorIs(testInstance, creationError, testCase.expectedError)
		})
	}
}

func TestServiceMigratesFreshProject(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, paymentsProject())

	result, executionError := fixture.service.Execute(context.Background(), defaultOptions())
	require.NoError(testInstance, executionError)

	run := result.Run
	require.Equal(testInstance, testRunIdentifierConstant, run.ID)
	require.Equal(testInstance, testSourceOrganizationConstant, run.SourceOrganization)
	require.Equal(testInstance, testTargetOrganizationConstant, run.TargetOrganization)
	require.Len(testInstance, run.Projects, 1)

	project := run.Projects[0]
	require.Equal(testInstance, migration.StatusCompleted, project.Repositories[0].Status)
	require.Equal(testInstance, "payments-api", project.Repositories[0].TargetName)
	require.Equal(testInstance, "https://github.com/contoso/payments-api", project.Repositories[0].TargetURL)
	require.Equal(testInstance, migration.StatusSkipped, project.Repositories[1].Status)
	require.Equal(testInstance, migration.StatusCompleted, project.Teams[0].Status)
	require.Equal(testInstance, []migration.Status{migration.StatusCompleted, migration.StatusCompleted}, project.Teams[0].MemberStatuses())
	require.Equal(testInstance, migration.StatusCompleted, project.Status)
	require.Equal(testInstance, migration.StatusCompleted, run.Status)

	require.Equal(testInstance, []string{"API"}, fixture.transferer.RequestedRepositories())
	request := fixture.transferer.Requests[0]
	require.Equal(testInstance, "https://github.com/contoso/payments-api.git", request.TargetURL)
	require.Equal(testInstance, "https://dev.azure.com/contoso-ado", request.SourceCollection)
	require.Equal(testInstance, "source-token", request.SourceToken)

	require.Equal(testInstance, githubapi.TeamRoleMaintainer, fixture.target.MembershipRoles["payments-platform/alice-gh"])
	require.Equal(testInstance, githubapi.TeamRoleMember, fixture.target.MembershipRoles["payments-platform/bob-gh"])
	require.Equal(testInstance, githubapi.PermissionPush, fixture.target.Permissions["payments-platform/payments-api"])
	require.NotContains(testInstance, fixture.target.Permissions, "payments-platform/payments-docs")
	require.Equal(testInstance, "main", fixture.target.Repositories["payments-api"].DefaultBranch)
	require.Empty(testInstance, fixture.clock.Waits())
}

func TestServicePrefersContextRunIdentifier(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, paymentsProject())
	executionContext := utils.NewCommandContextAccessor().WithRunIdentifier(context.Background(), "run-from-context")

	result, executionError := fixture.service.Execute(executionContext, defaultOptions())
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "run-from-context", result.Run.ID)
}

func TestServiceSecondRunIsNoOp(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, paymentsProject())

	_, firstError := fixture.service.Execute(context.Background(), defaultOptions())
	require.NoError(testInstance, firstError)
	mutationsAfterFirstRun := fixture.target.MutationLog()

	result, secondError := fixture.service.Execute(context.Background(), defaultOptions())
	require.NoError(testInstance, secondError)

	require.Equal(testInstance, mutationsAfterFirstRun, fixture.target.MutationLog())
	require.Equal(testInstance, []string{"API"}, fixture.transferer.RequestedRepositories())
	require.Equal(testInstance, migration.StatusCompleted, result.Run.Status)
}

func TestServiceRecordsUnmappedMembers(testInstance *testing.T) {
	project := paymentsProject()
	project.Teams[0].Members = append(project.Teams[0].Members, &migration.TeamMember{UniqueName: "ghost@contoso.com"})
	fixture := newServiceFixture(testInstance, project)

	result, executionError := fixture.service.Execute(context.Background(), defaultOptions())
	require.NoError(testInstance, executionError)

	team := result.Run.Projects[0].Teams[0]
	require.Equal(testInstance, migration.StatusPartiallyCompleted, team.Status)
	require.Equal(testInstance, migration.StatusFailed, team.Members[2].Status)
	require.Equal(testInstance, "User not found in mapping file", team.Members[2].Error)
	require.Equal(testInstance, migration.StatusPartiallyCompleted, result.Run.Projects[0].Status)
}

func TestServiceRecordsPendingInvitations(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, paymentsProject())
	fixture.target.InvitedUsers["bob-gh"] = true

	result, executionError := fixture.service.Execute(context.Background(), defaultOptions())
	require.NoError(testInstance, executionError)

	team := result.Run.Projects[0].Teams[0]
	require.Equal(testInstance, []migration.Status{migration.StatusCompleted, migration.StatusPending}, team.MemberStatuses())
	require.Equal(testInstance, migration.StatusPartiallyCompleted, team.Status)
}

func TestServiceRecordsTransferFailure(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, paymentsProject())
	fixture.transferer.Outcomes["API"] = transfer.Outcome{Status: migration.StatusFailed, Error: errors.New("push failed after 3 attempts: remote hung up"), PushAttempts: 3}

	result, executionError := fixture.service.Execute(context.Background(), defaultOptions())
	require.NoError(testInstance, executionError)

	project := result.Run.Projects[0]
	require.Equal(testInstance, migration.StatusFailed, project.Repositories[0].Status)
	require.Contains(testInstance, project.Repositories[0].Error, "remote hung up")
	require.Equal(testInstance, migration.StatusCompleted, project.Teams[0].Status)
	require.Empty(testInstance, fixture.target.Permissions)
	require.Equal(testInstance, migration.StatusFailed, project.Status)
	require.Equal(testInstance, migration.StatusFailed, result.Run.Status)
	require.NotContains(testInstance, fixture.target.MutationLog(), "default-branch:payments-api")
}

func TestServiceRecordsRepositoryCreationFailure(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, paymentsProject())
	fixture.target.CreateRepositoryErrors["payments-api"] = errors.New("repository creation forbidden")

	result, executionError := fixture.service.Execute(context.Background(), defaultOptions())
	require.NoError(testInstance, executionError)

	repository := result.Run.Projects[0].Repositories[0]
	require.Equal(testInstance, migration.StatusFailed, repository.Status)
	require.Equal(testInstance, "target repository creation failed: repository creation forbidden", repository.Error)
	require.Empty(testInstance, fixture.transferer.Requests)
}

func TestServiceRetriesDefaultBranch(testInstance *testing.T) {
	testCases := []struct {
		name           string
		failures       int
		expectedStatus migration.Status
		expectedWaits  []time.Duration
	}{
		{name: "recovers", failures: 2, expectedStatus: migration.StatusCompleted, expectedWaits: []time.Duration{5 * time.Second, 5 * time.Second}},
		{name: "exhausted", failures: 5, expectedStatus: migration.StatusPartiallyCompleted, expectedWaits: []time.Duration{5 * time.Second, 5 * time.Second}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newServiceFixture(testInstance, paymentsProject())
			fixture.target.DefaultBranchFailures["payments-api"] = testCase.failures

			result, executionError := fixture.service.Execute(context.Background(), defaultOptions())
			require.NoError(testInstance, executionError)

			repository := result.Run.Projects[0].Repositories[0]
			require.Equal(testInstance, testCase.expectedStatus, repository.Status)
			require.Equal(testInstance, testCase.expectedWaits, fixture.clock.Waits())
			if testCase.expectedStatus == migration.StatusPartiallyCompleted {
				require.Equal(testInstance, `default branch "main" not applied: branch main not found`, repository.Error)
				require.Equal(testInstance, migration.StatusPartiallyCompleted, result.Run.Projects[0].Status)
			}
		})
	}
}

func TestServiceAssessOnlyDoesNotMutateTarget(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, paymentsProject())
	options := defaultOptions()
	options.AssessOnly = true

	result, executionError := fixture.service.Execute(context.Background(), options)
	require.NoError(testInstance, executionError)

	require.Empty(testInstance, fixture.target.MutationLog())
	require.Empty(testInstance, fixture.transferer.Requests)

	project := result.Run.Projects[0]
	require.Equal(testInstance, migration.StatusPending, project.Repositories[0].Status)
	require.Equal(testInstance, migration.StatusSkipped, project.Repositories[1].Status)
	require.Equal(testInstance, migration.StatusPending, project.Teams[0].Status)
	require.Equal(testInstance, migration.StatusPartiallyCompleted, project.Status)
}

func TestServiceContinuesAfterProjectLoadFailure(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, paymentsProject(), &migration.Project{Name: testLedgerProjectConstant})
	fixture.source.ProjectErrors = map[string]error{testLedgerProjectConstant: errors.New("project not readable")}
	options := defaultOptions()
	options.Projects = []string{testLedgerProjectConstant, testPaymentsProjectConstant, " payments "}

	result, executionError := fixture.service.Execute(context.Background(), options)
	require.NoError(testInstance, executionError)

	require.Equal(testInstance, []string{testLedgerProjectConstant, testPaymentsProjectConstant}, fixture.source.RequestedNames)
	require.Len(testInstance, result.Run.Projects, 2)
	require.Equal(testInstance, migration.StatusFailed, result.Run.Projects[0].Status)
	require.Equal(testInstance, "project not readable", result.Run.Projects[0].Error)
	require.Equal(testInstance, migration.StatusCompleted, result.Run.Projects[1].Status)
	require.Equal(testInstance, migration.StatusFailed, result.Run.Status)
}

func TestServiceRecordsMembershipFailuresPerMember(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, paymentsProject())
	fixture.target.MembershipErrors["bob-gh"] = errors.New("user is blocked")

	result, executionError := fixture.service.Execute(context.Background(), defaultOptions())
	require.NoError(testInstance, executionError)

	team := result.Run.Projects[0].Teams[0]
	require.Equal(testInstance, migration.StatusCompleted, team.Members[0].Status)
	require.Equal(testInstance, migration.StatusFailed, team.Members[1].Status)
	require.Equal(testInstance, "user is blocked", team.Members[1].Error)
	require.Equal(testInstance, migration.StatusPartiallyCompleted, team.Status)

	batchFailures := fixture.observedLogs.FilterMessage("team member batch finished with failures").All()
	require.Len(testInstance, batchFailures, 1)
	require.Equal(testInstance, "payments-platform", batchFailures[0].ContextMap()["team"])
	require.Contains(testInstance, batchFailures[0].ContextMap()["error"], "bob-gh: user is blocked")
}

func TestServiceFatalFailures(testInstance *testing.T) {
	testCases := []struct {
		name        string
		configure   func(fixture *serviceFixture, options *migrate.Options)
		assertError func(testInstance *testing.T, executionError error)
	}{
		{
			name: "organization_inaccessible",
			configure: func(fixture *serviceFixture, _ *migrate.Options) {
				fixture.target.AccessError = githubapi.ErrOrganizationInaccessible
			},
			assertError: func(testInstance *testing.T, executionError error) {
				require.ErrorIs(testInstance, executionError, githubapi.ErrOrganizationInaccessible)
			},
		},
		{
			name: "project_listing_failure",
			configure: func(fixture *serviceFixture, _ *migrate.Options) {
				fixture.source.ListError = errors.New("unauthorized")
			},
			assertError: func(testInstance *testing.T, executionError error) {
				require.ErrorContains(testInstance, executionError, "source project listing failed: unauthorized")
			},
		},
		{
			name: "invalid_permission",
			configure: func(_ *serviceFixture, options *migrate.Options) {
				options.RepositoryPermission = githubapi.RepositoryPermission("owner")
			},
			assertError: func(testInstance *testing.T, executionError error) {
				var configurationError migrate.ConfigurationError
				require.ErrorAs(testInstance, executionError, &configurationError)
				require.Equal(testInstance, "migration.repository_permission", configurationError.Key)
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newServiceFixture(testInstance, paymentsProject())
			options := defaultOptions()
			testCase.configure(fixture, &options)

			result, executionError := fixture.service.Execute(context.Background(), options)
			testCase.assertError(testInstance, executionError)
			require.Nil(testInstance, result.Run)
			require.Empty(testInstance, fixture.source.RequestedNames)
			require.Empty(testInstance, fixture.target.MutationLog())
		})
	}
}

func TestServiceBoundsConcurrentTransfers(testInstance *testing.T) {
	project := &migration.Project{Name: testPaymentsProjectConstant}
	for _, repositoryName := range []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot"} {
		project.Repositories = append(project.Repositories, &migration.Repository{Name: repositoryName, Kind: migration.RepositoryKindGit, DefaultBranch: "main", BranchCount: 1})
	}
	fixture := newServiceFixture(testInstance, project)
	fixture.transferer.Delay = 20 * time.Millisecond

	result, executionError := fixture.service.Execute(context.Background(), defaultOptions())
	require.NoError(testInstance, executionError)

	require.Len(testInstance, fixture.transferer.Requests, 6)
	require.LessOrEqual(testInstance, fixture.transferer.MaximumActive, 2)
	require.Equal(testInstance, migration.StatusCompleted, result.Run.Status)
}

func TestServiceStopsWhenContextCancelled(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, paymentsProject())
	executionContext, cancel := context.WithCancel(context.Background())
	cancel()

	result, executionError := fixture.service.Execute(executionContext, defaultOptions())
	require.ErrorIs(testInstance, executionError, context.Canceled)
	require.Empty(testInstance, fixture.transferer.Requests)
	require.NotNil(testInstance, result.Run)
	require.False(testInstance, result.Run.FinishedAt.IsZero())
}
