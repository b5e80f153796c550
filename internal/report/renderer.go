package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/temirov/orgmigrate/internal/migration"
)

const (
	reportTitleConstant                = "# Migration report"
	runIdentifierTemplateConstant      = "- Run: `%s`"
	sourceOrganizationTemplateConstant = "- Source organization: %s"
	targetOrganizationTemplateConstant = "- Target organization: %s"
	startedAtTemplateConstant          = "- Started: %s"
	finishedAtTemplateConstant         = "- Finished: %s"
	durationTemplateConstant           = "- Duration: %s"
	runStatusTemplateConstant          = "- Status: **%s**"
	projectHeadingTemplateConstant     = "## %s (%s)"
	projectErrorTemplateConstant       = "> %s"
	repositoriesHeadingConstant        = "### Repositories"
	teamsHeadingConstant               = "### Teams"
	membersHeadingConstant             = "### Team members"
	noRepositoriesMessageConstant      = "_No repositories._"
	noTeamsMessageConstant             = "_No teams._"
	noProjectsMessageConstant          = "_No projects were processed._"
	completionRatioTemplateConstant    = "%d/%d"
	markdownPipeConstant               = "|"
	markdownEscapedPipeConstant        = `\|`
	markdownRowSeparatorConstant       = "-"
	emptyCellConstant                  = "-"
	timestampLayoutConstant            = time.RFC3339
	writeErrorTemplateConstant         = "report write failed: %w"
	summaryHeadlineTemplateConstant    = "Run %s finished with status %s\n"
)

var (
	repositoryColumns = []string{"Repository", "Kind", "Target", "Branches", "Size", "Status", "Details"}
	teamColumns       = []string{"Team", "Target", "Members", "Status", "Details"}
	memberColumns     = []string{"Team", "Member", "Target user", "Status", "Details"}
	summaryColumns    = []string{"Project", "Status", "Repositories", "Teams", "Failures"}
)

// Renderer formats migration runs.
type Renderer struct{}

// NewRenderer constructs a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderMarkdown writes the full per-entity report of run to writer.
func (renderer *Renderer) RenderMarkdown(writer io.Writer, run *migration.Run) error {
	if run == nil {
		return nil
	}

	var builder strings.Builder
	lines := []string{
		reportTitleConstant,
		"",
		fmt.Sprintf(runIdentifierTemplateConstant, run.ID),
		fmt.Sprintf(sourceOrganizationTemplateConstant, run.SourceOrganization),
		fmt.Sprintf(targetOrganizationTemplateConstant, run.TargetOrganization),
		fmt.Sprintf(startedAtTemplateConstant, formatTimestamp(run.StartedAt)),
		fmt.Sprintf(finishedAtTemplateConstant, formatTimestamp(run.FinishedAt)),
		fmt.Sprintf(durationTemplateConstant, formatDuration(run.StartedAt, run.FinishedAt)),
		fmt.Sprintf(runStatusTemplateConstant, run.Status),
		"",
	}
	writeLines(&builder, lines...)

	if len(run.Projects) == 0 {
		writeLines(&builder, noProjectsMessageConstant)
	}

	for _, project := range run.Projects {
		renderProject(&builder, project)
	}

	if _, writeError := io.WriteString(writer, builder.String()); writeError != nil {
		return fmt.Errorf(writeErrorTemplateConstant, writeError)
	}
	return nil
}

// RenderSummary writes one row per project with completion ratios.
func (renderer *Renderer) RenderSummary(writer io.Writer, run *migration.Run) error {
	if run == nil {
		return nil
	}

	rows := make([][]string, 0, len(run.Projects))
	for _, project := range run.Projects {
		completedRepositories := 0
		failures := 0
		for _, repository := range project.Repositories {
			if repository.Status.IsDone() {
				completedRepositories++
			}
			if repository.Status == migration.StatusFailed {
				failures++
			}
		}
		completedTeams := 0
		for _, team := range project.Teams {
			if team.Status.IsDone() {
				completedTeams++
			}
			if team.Status == migration.StatusFailed {
				failures++
			}
		}
		rows = append(rows, []string{
			project.Name,
			project.Status.String(),
			fmt.Sprintf(completionRatioTemplateConstant, completedRepositories, len(project.Repositories)),
			fmt.Sprintf(completionRatioTemplateConstant, completedTeams, len(project.Teams)),
			humanize.Comma(int64(failures)),
		})
	}

	if _, writeError := fmt.Fprintf(writer, summaryHeadlineTemplateConstant, run.ID, run.Status); writeError != nil {
		return fmt.Errorf(writeErrorTemplateConstant, writeError)
	}

	table := tablewriter.NewWriter(writer)
	table.SetHeader(summaryColumns)
	table.SetAutoFormatHeaders(false)
	table.AppendBulk(rows)
	table.Render()
	return nil
}

func renderProject(builder *strings.Builder, project *migration.Project) {
	writeLines(builder, fmt.Sprintf(projectHeadingTemplateConstant, project.Name, project.Status), "")
	if len(strings.TrimSpace(project.Error)) > 0 {
		writeLines(builder, fmt.Sprintf(projectErrorTemplateConstant, project.Error), "")
	}

	writeLines(builder, repositoriesHeadingConstant, "")
	if len(project.Repositories) == 0 {
		writeLines(builder, noRepositoriesMessageConstant, "")
	} else {
		rows := make([][]string, 0, len(project.Repositories))
		for _, repository := range project.Repositories {
			rows = append(rows, []string{
				repository.Name,
				string(repository.Kind),
				orPlaceholder(repository.TargetName),
				humanize.Comma(int64(repository.BranchCount)),
				humanize.IBytes(uint64(max(repository.SizeBytes, 0))),
				repository.Status.String(),
				orPlaceholder(repository.Error),
			})
		}
		renderMarkdownTable(builder, repositoryColumns, rows)
	}

	writeLines(builder, teamsHeadingConstant, "")
	if len(project.Teams) == 0 {
		writeLines(builder, noTeamsMessageConstant, "")
		return
	}

	teamRows := make([][]string, 0, len(project.Teams))
	memberRows := make([][]string, 0)
	for _, team := range project.Teams {
		teamRows = append(teamRows, []string{
			team.Name,
			orPlaceholder(team.TargetName),
			humanize.Comma(int64(len(team.Members))),
			team.Status.String(),
			orPlaceholder(team.Error),
		})
		for _, member := range team.Members {
			memberRows = append(memberRows, []string{
				team.Name,
				member.UniqueName,
				orPlaceholder(member.TargetUsername),
				member.Status.String(),
				orPlaceholder(member.Error),
			})
		}
	}
	renderMarkdownTable(builder, teamColumns, teamRows)

	if len(memberRows) == 0 {
		return
	}
	writeLines(builder, membersHeadingConstant, "")
	renderMarkdownTable(builder, memberColumns, memberRows)
}

func renderMarkdownTable(builder *strings.Builder, header []string, rows [][]string) {
	table := tablewriter.NewWriter(builder)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator(markdownPipeConstant)
	table.SetColumnSeparator(markdownPipeConstant)
	table.SetRowSeparator(markdownRowSeparatorConstant)
	for _, row := range rows {
		escaped := make([]string, len(row))
		for index, cell := range row {
			escaped[index] = escapeCell(cell)
		}
		table.Append(escaped)
	}
	table.Render()
	writeLines(builder, "")
}

func escapeCell(value string) string {
	singleLine := strings.Join(strings.Fields(value), " ")
	return strings.ReplaceAll(singleLine, markdownPipeConstant, markdownEscapedPipeConstant)
}

func orPlaceholder(value string) string {
	if len(strings.TrimSpace(value)) == 0 {
		return emptyCellConstant
	}
	return value
}

func formatTimestamp(moment time.Time) string {
	if moment.IsZero() {
		return emptyCellConstant
	}
	return moment.UTC().Format(timestampLayoutConstant)
}

func formatDuration(startedAt time.Time, finishedAt time.Time) string {
	if startedAt.IsZero() || finishedAt.IsZero() || finishedAt.Before(startedAt) {
		return emptyCellConstant
	}
	return finishedAt.Sub(startedAt).Round(time.Second).String()
}

func writeLines(builder *strings.Builder, lines ...string) {
	for _, line := range lines {
		builder.WriteString(line)
		builder.WriteString("\n")
	}
}
