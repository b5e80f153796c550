package migration_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/orgmigrate/internal/migration"
)

const (
	testAggregateEmptyCaseNameConstant            = "no_children"
	testAggregateAllCompletedCaseNameConstant     = "all_completed"
	testAggregateCompletedSkippedCaseNameConstant = "completed_and_skipped"
	testAggregateAllSkippedCaseNameConstant       = "all_skipped"
	testAggregateFailedCaseNameConstant           = "failed_with_completed"
	testAggregatePendingCaseNameConstant          = "pending_child"
	testAggregatePartialCaseNameConstant          = "partial_child"
	testAssociativitySubtestTemplateConstant      = "%v|%v"
)

func TestAggregate(testInstance *testing.T) {
	testCases := []struct {
		name     string
		children []migration.Status
		expected migration.Status
	}{
		{name: testAggregateEmptyCaseNameConstant, children: nil, expected: migration.StatusSkipped},
		{name: testAggregateAllCompletedCaseNameConstant, children: []migration.Status{migration.StatusCompleted, migration.StatusCompleted}, expected: migration.StatusCompleted},
		{name: testAggregateCompletedSkippedCaseNameConstant, children: []migration.Status{migration.StatusSkipped, migration.StatusCompleted}, expected: migration.StatusCompleted},
		{name: testAggregateAllSkippedCaseNameConstant, children: []migration.Status{migration.StatusSkipped, migration.StatusSkipped}, expected: migration.StatusSkipped},
		{name: testAggregateFailedCaseNameConstant, children: []migration.Status{migration.StatusCompleted, migration.StatusFailed}, expected: migration.StatusFailed},
		{name: testAggregatePendingCaseNameConstant, children: []migration.Status{migration.StatusCompleted, migration.StatusPending}, expected: migration.StatusPartiallyCompleted},
		{name: testAggregatePartialCaseNameConstant, children: []migration.Status{migration.StatusPartiallyCompleted}, expected: migration.StatusPartiallyCompleted},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expected, migration.Aggregate(testCase.children))
		})
	}
}

func TestAggregateIsAssociativeOverSmallCombinations(testInstance *testing.T) {
	statuses := migration.AllStatuses()

	sequences := [][]migration.Status{{}}
	for length := 1; length <= 3; length++ {
		sequences = append(sequences, enumerateSequences(statuses, length)...)
	}

	for _, leftChildren := range sequences {
		for _, rightChildren := range sequences {
			combined := append(append([]migration.Status{}, leftChildren...), rightChildren...)
			if len(combined) == 0 {
				continue
			}
			nested := []migration.Status{}
			if len(leftChildren) > 0 {
				nested = append(nested, migration.Aggregate(leftChildren))
			}
			if len(rightChildren) > 0 {
				nested = append(nested, migration.Aggregate(rightChildren))
			}
			require.Equal(
				testInstance,
				migration.Aggregate(combined),
				migration.Aggregate(nested),
				fmt.Sprintf(testAssociativitySubtestTemplateConstant, leftChildren, rightChildren),
			)
		}
	}
}

func TestStatusIsTerminal(testInstance *testing.T) {
	terminal := map[migration.Status]bool{
		migration.StatusCompleted: true,
		migration.StatusSkipped:   true,
	}
	for _, status := range migration.AllStatuses() {
		require.Equal(testInstance, terminal[status], status.IsTerminal(), status.String())
	}
}

func TestProjectRecomputeStatus(testInstance *testing.T) {
	project := &migration.Project{
		Repositories: []*migration.Repository{{Status: migration.StatusCompleted}},
		Teams:        []*migration.Team{{Status: migration.StatusSkipped}},
	}
	require.Equal(testInstance, migration.StatusCompleted, project.RecomputeStatus())

	project.Repositories[0].MarkStatus(migration.StatusFailed, errors.New("push rejected"))
	require.Equal(testInstance, migration.StatusFailed, project.RecomputeStatus())
	require.Equal(testInstance, "push rejected", project.Repositories[0].Error)

	unreadable := &migration.Project{Status: migration.StatusFailed, Error: "project lookup failed"}
	require.Equal(testInstance, migration.StatusFailed, unreadable.RecomputeStatus())

	run := &migration.Run{Projects: []*migration.Project{project, unreadable}}
	require.Equal(testInstance, migration.StatusFailed, run.RecomputeStatus())
}

func enumerateSequences(statuses []migration.Status, length int) [][]migration.Status {
	if length == 0 {
		return [][]migration.Status{{}}
	}
	shorter := enumerateSequences(statuses, length-1)
	sequences := make([][]migration.Status, 0, len(shorter)*len(statuses))
	for _, prefix := range shorter {
		for _, status := range statuses {
			sequence := append(append([]migration.Status{}, prefix...), status)
			sequences = append(sequences, sequence)
		}
	}
	return sequences
}
