package migration

import (
	"time"
)

const (
	repositoryKindGitStringConstant  = "git"
	repositoryKindTFVCStringConstant = "tfvc"
)

// RepositoryKind distinguishes distributed repositories from legacy centralized ones.
type RepositoryKind string

// Repository kinds.
const (
	RepositoryKindGit  RepositoryKind = RepositoryKind(repositoryKindGitStringConstant)
	RepositoryKindTFVC RepositoryKind = RepositoryKind(repositoryKindTFVCStringConstant)
)

// IsLegacy reports whether the repository requires conversion before transfer.
func (kind RepositoryKind) IsLegacy() bool {
	return kind == RepositoryKindTFVC
}

// Run is the root of a single migration pass.
type Run struct {
	ID                 string
	SourceOrganization string
	TargetOrganization string
	Projects           []*Project
	Status             Status
	StartedAt          time.Time
	FinishedAt         time.Time
}

// Project groups the repositories and teams of one source project.
type Project struct {
	ID           string
	Name         string
	Description  string
	Visibility   string
	Organization string
	Repositories []*Repository
	Teams        []*Team
	Status       Status
	Error        string
}

// Repository describes a source repository and its target counterpart.
type Repository struct {
	ID            string
	Name          string
	URL           string
	Kind          RepositoryKind
	DefaultBranch string
	BranchCount   int
	SizeBytes     int64
	TargetName    string
	TargetURL     string
	Status        Status
	Error         string
}

// Team describes a source team and its target counterpart.
type Team struct {
	ID          string
	Name        string
	Description string
	Members     []*TeamMember
	TargetName  string
	TargetURL   string
	Status      Status
	Error       string
}

// TeamMember describes one member of a source team.
type TeamMember struct {
	UniqueName     string
	DisplayName    string
	IsGroup        bool
	IsSourceAdmin  bool
	TargetUsername string
	Status         Status
	Error          string
}

// MarkStatus records a status together with an optional failure description.
func (repository *Repository) MarkStatus(status Status, failure error) {
	repository.Status = status
	repository.Error = describeFailure(failure)
}

// MarkStatus records a status together with an optional failure description.
func (team *Team) MarkStatus(status Status, failure error) {
	team.Status = status
	team.Error = describeFailure(failure)
}

// MarkStatus records a status together with an optional failure description.
func (member *TeamMember) MarkStatus(status Status, failure error) {
	member.Status = status
	member.Error = describeFailure(failure)
}

// MemberStatuses lists the member statuses in order.
func (team *Team) MemberStatuses() []Status {
	statuses := make([]Status, 0, len(team.Members))
	for _, member := range team.Members {
		statuses = append(statuses, member.Status)
	}
	return statuses
}

// ChildStatuses lists repository statuses followed by team statuses.
func (project *Project) ChildStatuses() []Status {
	statuses := make([]Status, 0, len(project.Repositories)+len(project.Teams))
	for _, repository := range project.Repositories {
		statuses = append(statuses, repository.Status)
	}
	for _, team := range project.Teams {
		statuses = append(statuses, team.Status)
	}
	return statuses
}

// RecomputeStatus re-derives the project status from its children.
func (project *Project) RecomputeStatus() Status {
	if project.Status == StatusFailed && len(project.Repositories) == 0 && len(project.Teams) == 0 && len(project.Error) > 0 {
		return project.Status
	}
	project.Status = Aggregate(project.ChildStatuses())
	return project.Status
}

// RecomputeStatus re-derives the run status from its projects.
func (run *Run) RecomputeStatus() Status {
	statuses := make([]Status, 0, len(run.Projects))
	for _, project := range run.Projects {
		statuses = append(statuses, project.RecomputeStatus())
	}
	run.Status = Aggregate(statuses)
	return run.Status
}

func describeFailure(failure error) string {
	if failure == nil {
		return ""
	}
	return failure.Error()
}
