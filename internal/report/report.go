// Package report renders update outcomes, run history and repository status
// for the terminal and as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/jayteealao/gitup/internal/orchestrator"
	"github.com/jayteealao/gitup/internal/state"
	"github.com/jayteealao/gitup/internal/tui"
	"github.com/jayteealao/gitup/internal/update"
)

// Printer writes human-readable output. Colors follow the capabilities of the
// destination: a pipe, a file or NO_COLOR all yield plain text.
type Printer struct {
	w        io.Writer
	renderer *lipgloss.Renderer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, renderer: lipgloss.NewRenderer(w)}
}

func (p *Printer) style(color lipgloss.TerminalColor) lipgloss.Style {
	return p.renderer.NewStyle().Foreground(color)
}

func (p *Printer) kindStyle(kind update.Kind) lipgloss.Style {
	switch tui.KindSeverity(kind) {
	case tui.SeveritySuccess:
		return p.style(tui.ColorSuccess).Bold(true)
	case tui.SeverityAttention:
		return p.style(tui.ColorWarning)
	case tui.SeverityFailure:
		return p.style(tui.ColorDanger).Bold(true)
	default:
		return p.style(tui.ColorMuted)
	}
}

func (p *Printer) runStatusStyle(status string) lipgloss.Style {
	switch status {
	case state.RunSucceeded:
		return p.style(tui.ColorSuccess)
	case state.RunPartial:
		return p.style(tui.ColorDanger)
	default:
		return p.style(tui.ColorMuted)
	}
}

// Banner prints the program header.
func (p *Printer) Banner() {
	fmt.Fprintf(p.w, "%s: the git-repo-updater\n\n", p.renderer.NewStyle().Bold(true).Render("gitup"))
}

// Outcome prints one report line: "<path>: <kind text> (<detail>)".
func (p *Printer) Outcome(o update.Outcome) {
	fmt.Fprintln(p.w, p.outcomeLine(o.Path, o.Kind, o.Detail))
}

func (p *Printer) outcomeLine(path string, kind update.Kind, detail string) string {
	line := fmt.Sprintf("%s: %s", p.renderer.NewStyle().Bold(true).Render(path), p.kindStyle(kind).Render(kind.Description()))
	if detail != "" {
		line += fmt.Sprintf(" (%s)", detail)
	}
	return line
}

// Summary prints the closing line of a batch.
func (p *Printer) Summary(r *orchestrator.Report) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.summaryLine(r))
}

func (p *Printer) summaryLine(r *orchestrator.Report) string {
	if len(r.Outcomes) == 0 {
		return p.style(tui.ColorMuted).Render("No repositories to update.")
	}

	counts := r.Counts()
	changed := counts[update.FastForwarded] + counts[update.Rebased] + counts[update.Merged]
	failed := r.Failed()

	parts := []string{
		fmt.Sprintf("%d updated", changed),
		fmt.Sprintf("%d up to date", counts[update.UpToDate]),
	}
	if failed > 0 {
		parts = append(parts, p.style(tui.ColorDanger).Render(fmt.Sprintf("%d need attention", failed)))
	}

	line := fmt.Sprintf("%s: %s", pluralize(len(r.Outcomes), "repository", "repositories"), strings.Join(parts, ", "))
	if r.Stopped {
		line += p.style(tui.ColorMuted).Render(" (stopped by user)")
	}
	return line + fmt.Sprintf(" in %s", r.FinishedAt.Sub(r.StartedAt).Round(10*time.Millisecond))
}

// Bookmarks prints the bookmark list.
func (p *Printer) Bookmarks(paths []string) {
	if len(paths) == 0 {
		fmt.Fprintln(p.w, "You have no bookmarks to display.")
		return
	}
	fmt.Fprintln(p.w, "Current bookmarks:")
	for _, path := range paths {
		fmt.Fprintf(p.w, "    %s\n", path)
	}
}

// Runs prints the run history as a table, newest first.
func (p *Printer) Runs(runs []*state.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(p.w, "No runs recorded yet.")
		return
	}

	t := p.newTable("RUN", "STARTED", "STATUS", "REPOS", "FAILED", "DURATION")
	for _, run := range runs {
		duration := "-"
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		t.Row(
			ShortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			p.runStatusStyle(run.Status).Render(run.Status),
			fmt.Sprintf("%d", run.Total),
			fmt.Sprintf("%d", run.Failed),
			duration,
		)
	}
	fmt.Fprintln(p.w, t.Render())
}

// RunOutcomes prints one stored run and the outcome of each repository.
func (p *Printer) RunOutcomes(run *state.Run, outcomes []state.OutcomeRecord) {
	fmt.Fprintf(p.w, "Run %s started %s: %s\n\n",
		run.ID,
		run.StartedAt.Local().Format("2006-01-02 15:04:05"),
		p.runStatusStyle(run.Status).Render(run.Status),
	)
	if len(outcomes) == 0 {
		fmt.Fprintln(p.w, "No repositories were part of this run.")
		return
	}
	for _, o := range outcomes {
		kind, err := update.ParseKind(o.Kind)
		if err != nil {
			kind = update.Unknown
		}
		fmt.Fprintln(p.w, p.outcomeLine(o.Path, kind, o.Detail))
	}
}

// RepoOutcomes prints the recorded outcomes of one repository, newest first.
func (p *Printer) RepoOutcomes(path string, outcomes []state.RepoOutcome) {
	if len(outcomes) == 0 {
		fmt.Fprintf(p.w, "No runs recorded for %s.\n", path)
		return
	}

	t := p.newTable("RUN", "STARTED", "OUTCOME", "DETAIL")
	for _, o := range outcomes {
		kind, err := update.ParseKind(o.Kind)
		if err != nil {
			kind = update.Unknown
		}
		t.Row(
			ShortID(o.RunID),
			o.StartedAt.Local().Format("2006-01-02 15:04:05"),
			p.kindStyle(kind).Render(kind.Description()),
			o.Detail,
		)
	}
	fmt.Fprintf(p.w, "History of %s:\n", path)
	fmt.Fprintln(p.w, t.Render())
}

// pluralize formats n with the singular or plural noun.
func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}

// ShortID returns the leading part of a run ID that `gitup history` accepts.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (p *Printer) newTable(headers ...string) *table.Table {
	header := p.renderer.NewStyle().Bold(true).Padding(0, 1)
	cell := p.renderer.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.style(tui.ColorMuted)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
}

// JSONReport is the machine-readable form of a batch run.
type JSONReport struct {
	RunID string `json:"run_id,omitempty"`
	*orchestrator.Report
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// WriteJSON writes the batch report as indented JSON.
func WriteJSON(w io.Writer, runID string, r *orchestrator.Report) error {
	return writeJSON(w, JSONReport{
		RunID:     runID,
		Report:    r,
		Succeeded: len(r.Outcomes) - r.Failed(),
		Failed:    r.Failed(),
	})
}

// WriteRunsJSON writes stored runs as indented JSON.
func WriteRunsJSON(w io.Writer, runs []*state.Run) error {
	out := make([]jsonRun, len(runs))
	for i, r := range runs {
		out[i] = newJSONRun(r)
	}
	return writeJSON(w, out)
}

// WriteRunOutcomesJSON writes one stored run and its outcomes as indented JSON.
func WriteRunOutcomesJSON(w io.Writer, run *state.Run, outcomes []state.OutcomeRecord) error {
	type jsonOutcome struct {
		Path   string `json:"path"`
		Kind   string `json:"kind"`
		Detail string `json:"detail,omitempty"`
	}
	out := struct {
		jsonRun
		Outcomes []jsonOutcome `json:"outcomes"`
	}{
		jsonRun:  newJSONRun(run),
		Outcomes: make([]jsonOutcome, len(outcomes)),
	}
	for i, o := range outcomes {
		out.Outcomes[i] = jsonOutcome{Path: o.Path, Kind: o.Kind, Detail: o.Detail}
	}
	return writeJSON(w, out)
}

// WriteRepoOutcomesJSON writes the recorded outcomes of one repository as indented JSON.
func WriteRepoOutcomesJSON(w io.Writer, outcomes []state.RepoOutcome) error {
	type jsonRepoOutcome struct {
		RunID     string    `json:"run_id"`
		StartedAt time.Time `json:"started_at"`
		Path      string    `json:"path"`
		Kind      string    `json:"kind"`
		Detail    string    `json:"detail,omitempty"`
	}
	out := make([]jsonRepoOutcome, len(outcomes))
	for i, o := range outcomes {
		out[i] = jsonRepoOutcome{RunID: o.RunID, StartedAt: o.StartedAt, Path: o.Path, Kind: o.Kind, Detail: o.Detail}
	}
	return writeJSON(w, out)
}

type jsonRun struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Failed      int        `json:"failed"`
	CurrentOnly bool       `json:"current_only"`
	Rebase      bool       `json:"rebase"`
	Merge       bool       `json:"merge"`
}

func newJSONRun(r *state.Run) jsonRun {
	return jsonRun{
		ID:          r.ID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Status:      r.Status,
		Total:       r.Total,
		Failed:      r.Failed,
		CurrentOnly: r.CurrentOnly,
		Rebase:      r.ForceRebase,
		Merge:       r.ForceMerge,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
