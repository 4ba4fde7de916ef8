package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jayteealao/gitup/internal/git"
	"github.com/jayteealao/gitup/internal/tui"
)

// RepoStatus is what `gitup status` knows about one repository without fetching.
type RepoStatus struct {
	Path  string
	State *git.RepoState
	// Ahead and Behind count commits against the last fetched upstream; they
	// are only meaningful when Compared is set.
	Ahead    int
	Behind   int
	Compared bool
	Err      error
}

// Statuses prints a table of repository states.
func (p *Printer) Statuses(statuses []RepoStatus) {
	if len(statuses) == 0 {
		fmt.Fprintln(p.w, "No repositories found.")
		return
	}

	t := p.newTable("REPOSITORY", "BRANCH", "STATE", "UPSTREAM", "REMOTES")
	for _, s := range statuses {
		if s.Err != nil {
			t.Row(s.Path, "-", p.style(tui.ColorDanger).Render(s.Err.Error()), "-", "-")
			continue
		}
		t.Row(s.Path, branchText(s.State), p.stateText(s), upstreamText(s), remotesText(s.State))
	}
	fmt.Fprintln(p.w, t.Render())
}

func branchText(st *git.RepoState) string {
	if st.Detached {
		return "(detached)"
	}
	return st.Branch
}

func (p *Printer) stateText(s RepoStatus) string {
	var parts []string
	if s.State.Dirty {
		parts = append(parts, p.style(tui.ColorWarning).Render("dirty"))
	}
	if s.Compared {
		if s.Ahead > 0 {
			parts = append(parts, fmt.Sprintf("ahead %d", s.Ahead))
		}
		if s.Behind > 0 {
			parts = append(parts, p.style(tui.ColorPrimary).Render(fmt.Sprintf("behind %d", s.Behind)))
		}
	}
	if len(parts) == 0 {
		return p.style(tui.ColorSuccess).Render("clean")
	}
	return strings.Join(parts, ", ")
}

func upstreamText(s RepoStatus) string {
	if s.State.Upstream == nil {
		return "-"
	}
	return s.State.Upstream.ShortName()
}

func remotesText(st *git.RepoState) string {
	if len(st.Remotes) == 0 {
		return "-"
	}
	return strings.Join(st.RemoteNames(), ", ")
}

// JSONStatus is the machine-readable form of a RepoStatus.
type JSONStatus struct {
	Path     string   `json:"path"`
	Branch   string   `json:"branch,omitempty"`
	Detached bool     `json:"detached"`
	Dirty    bool     `json:"dirty"`
	Upstream string   `json:"upstream,omitempty"`
	Remotes  []string `json:"remotes"`
	Ahead    *int     `json:"ahead,omitempty"`
	Behind   *int     `json:"behind,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// WriteStatusJSON writes repository states as indented JSON.
func WriteStatusJSON(w io.Writer, statuses []RepoStatus) error {
	out := make([]JSONStatus, len(statuses))
	for i, s := range statuses {
		js := JSONStatus{Path: s.Path, Remotes: []string{}}
		if s.Err != nil {
			js.Error = s.Err.Error()
			out[i] = js
			continue
		}
		js.Branch = s.State.Branch
		js.Detached = s.State.Detached
		js.Dirty = s.State.Dirty
		js.Remotes = s.State.RemoteNames()
		if s.State.Upstream != nil {
			js.Upstream = s.State.Upstream.ShortName()
		}
		if s.Compared {
			ahead, behind := s.Ahead, s.Behind
			js.Ahead, js.Behind = &ahead, &behind
		}
		out[i] = js
	}
	return writeJSON(w, out)
}
