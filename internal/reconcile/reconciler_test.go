package reconcile_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/orgmigrate/internal/githubapi"
	"github.com/temirov/orgmigrate/internal/identity"
	"github.com/temirov/orgmigrate/internal/migration"
	"github.com/temirov/orgmigrate/internal/reconcile"
)

const (
	testOrganizationConstant      = "contoso"
	testProjectNameConstant       = "Payments"
	testRepositoryPatternConstant = "{projectName}-{repoName}"
	testTeamPatternConstant       = "{projectName}-{teamName}"
)

type stubTarget struct {
	mutex        sync.Mutex
	repositories map[string]githubapi.RepositoryState
	teams        map[string]githubapi.TeamState
	memberships  map[string]githubapi.MembershipState
	failures     map[string]error
	queries      []string
}

func newStubTarget() *stubTarget {
	return &stubTarget{
		repositories: map[string]githubapi.RepositoryState{},
		teams:        map[string]githubapi.TeamState{},
		memberships:  map[string]githubapi.MembershipState{},
		failures:     map[string]error{},
	}
}

func (target *stubTarget) record(query string) error {
	target.mutex.Lock()
	defer target.mutex.Unlock()
	target.queries = append(target.queries, query)
	return target.failures[query]
}

func (target *stubTarget) GetRepository(_ context.Context, repositoryName string) (githubapi.RepositoryState, error) {
	if failure := target.record("repository:" + repositoryName); failure != nil {
		return githubapi.RepositoryState{}, failure
	}
	return target.repositories[repositoryName], nil
}

func (target *stubTarget) GetTeam(_ context.Context, slug string) (githubapi.TeamState, error) {
	if failure := target.record("team:" + slug); failure != nil {
		return githubapi.TeamState{}, failure
	}
	return target.teams[slug], nil
}

func (target *stubTarget) GetTeamMembership(_ context.Context, teamSlug string, username string) (githubapi.MembershipState, error) {
	key := teamSlug + "/" + username
	if failure := target.record("membership:" + key); failure != nil {
		return "", failure
	}
	state, found := target.memberships[key]
	if !found {
		return githubapi.MembershipAbsent, nil
	}
	return state, nil
}

type recordingObserver struct {
	mutex   sync.Mutex
	changes []migration.StatusChange
}

func (recorder *recordingObserver) StatusChanged(change migration.StatusChange) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.changes = append(recorder.changes, change)
}

func newTestMapping(testInstance *testing.T) *identity.Mapping {
	testInstance.Helper()
	mapping, mappingError := identity.NewMapping(map[string]string{
		"alice@contoso.com": "alice-gh",
		"bob@contoso.com":   "bob-gh",
	})
	require.NoError(testInstance, mappingError)
	return mapping
}

func newTestReconciler(testInstance *testing.T, target *stubTarget, progress migration.ProgressObserver, logger *zap.Logger) *reconcile.Reconciler {
	testInstance.Helper()
	reconciler, creationError := reconcile.NewReconciler(
		reconcile.ReconcilerDependencies{
			Target:     target,
			Identities: newTestMapping(testInstance),
			Logger:     logger,
			Progress:   progress,
		},
		reconcile.ReconcilerOptions{
			OrganizationName:  testOrganizationConstant,
			RepositoryPattern: testRepositoryPatternConstant,
			TeamPattern:       testTeamPatternConstant,
		},
	)
	require.NoError(testInstance, creationError)
	return reconciler
}

func TestNewReconcilerValidatesDependencies(testInstance *testing.T) {
	_, creationError := reconcile.NewReconciler(reconcile.ReconcilerDependencies{}, reconcile.ReconcilerOptions{})
	require.ErrorIs(testInstance, creationError, reconcile.ErrTargetReaderNotConfigured)

	_, creationError = reconcile.NewReconciler(reconcile.ReconcilerDependencies{Target: newStubTarget()}, reconcile.ReconcilerOptions{})
	require.ErrorIs(testInstance, creationError, reconcile.ErrIdentitiesNotConfigured)
}

func TestReconcilerAssessesRepositories(testInstance *testing.T) {
	testCases := []struct {
		name           string
		projectName    string
		repository     migration.Repository
		targetState    githubapi.RepositoryState
		targetFailure  error
		expectedStatus migration.Status
		expectedError  string
		expectedTarget string
	}{
		{
			name:           "absent_with_branches_is_pending",
			repository:     migration.Repository{Name: "API", Kind: migration.RepositoryKindGit, DefaultBranch: "main", BranchCount: 3},
			expectedStatus: migration.StatusPending,
			expectedTarget: "payments-api",
		},
		{
			name:           "absent_without_branches_is_skipped",
			repository:     migration.Repository{Name: "Empty Repo", Kind: migration.RepositoryKindGit},
			expectedStatus: migration.StatusSkipped,
			expectedError:  "No branches to migrate",
			expectedTarget: "payments-empty-repo",
		},
		{
			name:           "absent_legacy_is_pending",
			repository:     migration.Repository{Name: "Payments", Kind: migration.RepositoryKindTFVC},
			expectedStatus: migration.StatusPending,
			expectedTarget: "payments",
		},
		{
			name:           "existing_with_matching_default_branch_is_completed",
			repository:     migration.Repository{Name: "API", Kind: migration.RepositoryKindGit, DefaultBranch: "main", BranchCount: 2},
			targetState:    githubapi.RepositoryState{Exists: true, DefaultBranch: "main", URL: "https://github.com/contoso/payments-api"},
			expectedStatus: migration.StatusCompleted,
			expectedTarget: "payments-api",
		},
		{
			name:           "existing_with_different_default_branch_is_partial",
			repository:     migration.Repository{Name: "API", Kind: migration.RepositoryKindGit, DefaultBranch: "develop", BranchCount: 2},
			targetState:    githubapi.RepositoryState{Exists: true, DefaultBranch: "main"},
			expectedStatus: migration.StatusPartiallyCompleted,
			expectedError:  `target default branch "main" differs from source default branch "develop"`,
			expectedTarget: "payments-api",
		},
		{
			name:           "existing_empty_is_partial",
			repository:     migration.Repository{Name: "API", Kind: migration.RepositoryKindGit, DefaultBranch: "main", BranchCount: 2},
			targetState:    githubapi.RepositoryState{Exists: true, Empty: true},
			expectedStatus: migration.StatusPartiallyCompleted,
			expectedError:  "target repository exists but contains no branches",
			expectedTarget: "payments-api",
		},
		{
			name:           "existing_legacy_without_source_default_is_completed",
			repository:     migration.Repository{Name: "Payments", Kind: migration.RepositoryKindTFVC},
			targetState:    githubapi.RepositoryState{Exists: true, DefaultBranch: "master"},
			expectedStatus: migration.StatusCompleted,
			expectedTarget: "payments",
		},
		{
			name:           "target_query_failure_is_failed",
			repository:     migration.Repository{Name: "API", Kind: migration.RepositoryKindGit, BranchCount: 1},
			targetFailure:  errors.New("service unavailable"),
			expectedStatus: migration.StatusFailed,
			expectedError:  "service unavailable",
			expectedTarget: "payments-api",
		},
		{
			name:           "unnameable_repository_is_skipped",
			projectName:    "***",
			repository:     migration.Repository{Name: "???", Kind: migration.RepositoryKindGit, BranchCount: 1},
			expectedStatus: migration.StatusSkipped,
			expectedError:  "name could not be generated",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			target := newStubTarget()
			if len(testCase.expectedTarget) > 0 {
				target.repositories[testCase.expectedTarget] = testCase.targetState
				if testCase.targetFailure != nil {
					target.failures["repository:"+testCase.expectedTarget] = testCase.targetFailure
				}
			}
			reconciler := newTestReconciler(testInstance, target, nil, nil)

			repository := testCase.repository
			projectName := testCase.projectName
			if len(projectName) == 0 {
				projectName = testProjectNameConstant
			}
			project := &migration.Project{Name: projectName, Repositories: []*migration.Repository{&repository}}

			require.NoError(testInstance, reconciler.Assess(context.Background(), project))
			require.Equal(testInstance, testCase.expectedStatus, repository.Status)
			require.Equal(testInstance, testCase.expectedTarget, repository.TargetName)
			if len(testCase.expectedError) == 0 {
				require.Empty(testInstance, repository.Error)
				return
			}
			require.Contains(testInstance, repository.Error, testCase.expectedError)
		})
	}
}

func TestReconcilerUnmappedMemberLeavesTeamPartial(testInstance *testing.T) {
	target := newStubTarget()
	target.teams["payments-platform"] = githubapi.TeamState{Exists: true, Slug: "payments-platform", URL: "https://github.com/orgs/contoso/teams/payments-platform"}
	target.memberships["payments-platform/alice-gh"] = githubapi.MembershipActive
	reconciler := newTestReconciler(testInstance, target, nil, nil)

	team := &migration.Team{
		Name: "Platform",
		Members: []*migration.TeamMember{
			{UniqueName: "Alice@Contoso.com"},
			{UniqueName: "ghost@contoso.com"},
		},
	}
	project := &migration.Project{Name: testProjectNameConstant, Teams: []*migration.Team{team}}

	require.NoError(testInstance, reconciler.Assess(context.Background(), project))
	require.Equal(testInstance, migration.StatusPartiallyCompleted, team.Status)
	require.Equal(testInstance, migration.StatusCompleted, team.Members[0].Status)
	require.Equal(testInstance, "alice-gh", team.Members[0].TargetUsername)
	require.Equal(testInstance, migration.StatusFailed, team.Members[1].Status)
	require.Equal(testInstance, "User not found in mapping file", team.Members[1].Error)
	require.Equal(testInstance, "https://github.com/orgs/contoso/teams/payments-platform", team.TargetURL)
	require.Equal(testInstance, migration.StatusPartiallyCompleted, project.Status)
}

func TestReconcilerClassifiesExistingTeams(testInstance *testing.T) {
	testCases := []struct {
		name                   string
		memberships            map[string]githubapi.MembershipState
		members                []*migration.TeamMember
		expectedTeamStatus     migration.Status
		expectedMemberStatuses []migration.Status
	}{
		{
			name:                   "all_members_active",
			memberships:            map[string]githubapi.MembershipState{"payments-platform/alice-gh": githubapi.MembershipActive, "payments-platform/bob-gh": githubapi.MembershipActive},
			members:                []*migration.TeamMember{{UniqueName: "alice@contoso.com"}, {UniqueName: "bob@contoso.com"}},
			expectedTeamStatus:     migration.StatusCompleted,
			expectedMemberStatuses: []migration.Status{migration.StatusCompleted, migration.StatusCompleted},
		},
		{
			name:                   "pending_invitation",
			memberships:            map[string]githubapi.MembershipState{"payments-platform/alice-gh": githubapi.MembershipActive, "payments-platform/bob-gh": githubapi.MembershipPending},
			members:                []*migration.TeamMember{{UniqueName: "alice@contoso.com"}, {UniqueName: "bob@contoso.com"}},
			expectedTeamStatus:     migration.StatusPartiallyCompleted,
			expectedMemberStatuses: []migration.Status{migration.StatusCompleted, migration.StatusPending},
		},
		{
			name:                   "absent_membership",
			memberships:            map[string]githubapi.MembershipState{},
			members:                []*migration.TeamMember{{UniqueName: "alice@contoso.com"}},
			expectedTeamStatus:     migration.StatusPartiallyCompleted,
			expectedMemberStatuses: []migration.Status{migration.StatusFailed},
		},
		{
			name:                   "group_members_are_skipped",
			memberships:            map[string]githubapi.MembershipState{"payments-platform/alice-gh": githubapi.MembershipActive},
			members:                []*migration.TeamMember{{UniqueName: "alice@contoso.com"}, {UniqueName: "[Payments]\\Readers", IsGroup: true}},
			expectedTeamStatus:     migration.StatusCompleted,
			expectedMemberStatuses: []migration.Status{migration.StatusCompleted, migration.StatusSkipped},
		},
		{
			name:                   "no_members",
			memberships:            map[string]githubapi.MembershipState{},
			expectedTeamStatus:     migration.StatusCompleted,
			expectedMemberStatuses: []migration.Status{},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			target := newStubTarget()
			target.teams["payments-platform"] = githubapi.TeamState{Exists: true, Slug: "payments-platform"}
			target.memberships = testCase.memberships
			reconciler := newTestReconciler(testInstance, target, nil, nil)

			team := &migration.Team{Name: "Platform", Members: testCase.members}
			project := &migration.Project{Name: testProjectNameConstant, Teams: []*migration.Team{team}}

			require.NoError(testInstance, reconciler.Assess(context.Background(), project))
			require.Equal(testInstance, testCase.expectedTeamStatus, team.Status)
			require.Equal(testInstance, testCase.expectedMemberStatuses, team.MemberStatuses())
		})
	}
}

func TestReconcilerAssessesMissingTeams(testInstance *testing.T) {
	target := newStubTarget()
	reconciler := newTestReconciler(testInstance, target, nil, nil)

	populatedTeam := &migration.Team{
		Name: "Platform",
		Members: []*migration.TeamMember{
			{UniqueName: "alice@contoso.com"},
			{UniqueName: "ghost@contoso.com"},
		},
	}
	emptyTeam := &migration.Team{Name: "Observers"}
	project := &migration.Project{Name: testProjectNameConstant, Teams: []*migration.Team{populatedTeam, emptyTeam}}

	require.NoError(testInstance, reconciler.Assess(context.Background(), project))

	require.Equal(testInstance, migration.StatusPending, populatedTeam.Status)
	require.Equal(testInstance, "payments-platform", populatedTeam.TargetName)
	require.Equal(testInstance, []migration.Status{migration.StatusPending, migration.StatusPending}, populatedTeam.MemberStatuses())
	require.Equal(testInstance, "alice-gh", populatedTeam.Members[0].TargetUsername)
	require.Empty(testInstance, populatedTeam.Members[1].TargetUsername)

	require.Equal(testInstance, migration.StatusSkipped, emptyTeam.Status)
	require.Equal(testInstance, "No members to migrate", emptyTeam.Error)

	for _, query := range target.queries {
		require.False(testInstance, strings.HasPrefix(query, "membership:"), query)
	}
}

func TestReconcilerFailsTeamWhenLookupFails(testInstance *testing.T) {
	observerCore, observedLogs := observer.New(zapcore.WarnLevel)
	target := newStubTarget()
	target.failures["team:payments-platform"] = errors.New("forbidden")
	reconciler := newTestReconciler(testInstance, target, nil, zap.New(observerCore))

	team := &migration.Team{Name: "Platform", Members: []*migration.TeamMember{{UniqueName: "alice@contoso.com"}}}
	project := &migration.Project{Name: testProjectNameConstant, Teams: []*migration.Team{team}}

	require.NoError(testInstance, reconciler.Assess(context.Background(), project))
	require.Equal(testInstance, migration.StatusFailed, team.Status)
	require.Equal(testInstance, "forbidden", team.Error)
	require.Equal(testInstance, migration.StatusFailed, project.Status)
	require.Equal(testInstance, 1, observedLogs.FilterMessage("target state query failed").Len())
}

func TestReconcilerAssessmentIsIdempotent(testInstance *testing.T) {
	target := newStubTarget()
	target.repositories["payments-api"] = githubapi.RepositoryState{Exists: true, DefaultBranch: "main"}
	target.teams["payments-platform"] = githubapi.TeamState{Exists: true, Slug: "payments-platform"}
	target.memberships["payments-platform/alice-gh"] = githubapi.MembershipPending
	reconciler := newTestReconciler(testInstance, target, nil, nil)

	project := &migration.Project{
		Name: testProjectNameConstant,
		Repositories: []*migration.Repository{
			{Name: "API", Kind: migration.RepositoryKindGit, DefaultBranch: "main", BranchCount: 2},
			{Name: "Web", Kind: migration.RepositoryKindGit, DefaultBranch: "main", BranchCount: 4},
			{Name: "Archive", Kind: migration.RepositoryKindGit},
		},
		Teams: []*migration.Team{
			{Name: "Platform", Members: []*migration.TeamMember{{UniqueName: "alice@contoso.com"}, {UniqueName: "ghost@contoso.com"}}},
		},
	}

	require.NoError(testInstance, reconciler.Assess(context.Background(), project))
	firstPass := snapshot(project)

	require.NoError(testInstance, reconciler.Assess(context.Background(), project))
	require.Equal(testInstance, firstPass, snapshot(project))
}

func TestReconcilerReportsEveryEntity(testInstance *testing.T) {
	target := newStubTarget()
	target.teams["payments-platform"] = githubapi.TeamState{Exists: true}
	target.memberships["payments-platform/alice-gh"] = githubapi.MembershipActive
	recorder := &recordingObserver{}
	reconciler := newTestReconciler(testInstance, target, recorder, nil)

	project := &migration.Project{
		Name:         testProjectNameConstant,
		Repositories: []*migration.Repository{{Name: "API", Kind: migration.RepositoryKindGit, BranchCount: 1}},
		Teams:        []*migration.Team{{Name: "Platform", Members: []*migration.TeamMember{{UniqueName: "alice@contoso.com"}}}},
	}

	require.NoError(testInstance, reconciler.Assess(context.Background(), project))

	kinds := make([]migration.EntityKind, 0, len(recorder.changes))
	for _, change := range recorder.changes {
		require.NotEqual(testInstance, migration.StatusInProgress, change.Status)
		kinds = append(kinds, change.Kind)
	}
	require.Equal(testInstance, []migration.EntityKind{
		migration.EntityKindRepository,
		migration.EntityKindMember,
		migration.EntityKindTeam,
		migration.EntityKindProject,
	}, kinds)
	require.Contains(testInstance, target.queries, "membership:payments-platform/alice-gh")
}

func TestReconcilerStopsWhenContextCancelled(testInstance *testing.T) {
	target := newStubTarget()
	reconciler := newTestReconciler(testInstance, target, nil, nil)

	executionContext, cancel := context.WithCancel(context.Background())
	cancel()

	project := &migration.Project{Name: testProjectNameConstant, Repositories: []*migration.Repository{{Name: "API", BranchCount: 1}}}
	require.ErrorIs(testInstance, reconciler.Assess(executionContext, project), context.Canceled)
	require.Empty(testInstance, target.queries)
}

func TestClassifyMembership(testInstance *testing.T) {
	testCases := []struct {
		state          githubapi.MembershipState
		expectedStatus migration.Status
	}{
		{state: githubapi.MembershipActive, expectedStatus: migration.StatusCompleted},
		{state: githubapi.MembershipPending, expectedStatus: migration.StatusPending},
		{state: githubapi.MembershipAbsent, expectedStatus: migration.StatusFailed},
	}

	for _, testCase := range testCases {
		testInstance.Run(string(testCase.state), func(testInstance *testing.T) {
			status, _ := reconcile.ClassifyMembership(testCase.state)
			require.Equal(testInstance, testCase.expectedStatus, status)
		})
	}
}

type entitySnapshot struct {
	target  string
	status  migration.Status
	failure string
}

func snapshot(project *migration.Project) []entitySnapshot {
	snapshots := []entitySnapshot{{status: project.Status}}
	for _, repository := range project.Repositories {
		snapshots = append(snapshots, entitySnapshot{target: repository.TargetName, status: repository.Status, failure: repository.Error})
	}
	for _, team := range project.Teams {
		snapshots = append(snapshots, entitySnapshot{target: team.TargetName, status: team.Status, failure: team.Error})
		for _, member := range team.Members {
			snapshots = append(snapshots, entitySnapshot{target: member.TargetUsername, status: member.Status, failure: member.Error})
		}
	}
	return snapshots
}
