// Package discover turns user-supplied directories into the repositories to update.
package discover

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jayteealao/gitup/internal/validate"
)

// Target is one repository to update, or an input path that yielded none.
type Target struct {
	Path string
	// Missing is set when the input path does not exist, is not a directory,
	// or contains no repositories.
	Missing bool
	Reason  string
}

// Locate resolves each path to the repositories it names.
// A path holding git metadata is itself a target; otherwise its immediate
// subdirectories are scanned, without recursing further. Duplicates are
// dropped and the first-seen order is kept.
func Locate(paths []string) []Target {
	var targets []Target
	seen := make(map[string]bool)

	add := func(t Target) {
		if seen[t.Path] {
			return
		}
		seen[t.Path] = true
		targets = append(targets, t)
	}

	for _, p := range paths {
		abs, err := validate.ResolvePath(p)
		if err != nil {
			add(Target{Path: p, Missing: true, Reason: err.Error()})
			continue
		}

		info, err := os.Stat(abs)
		if err != nil {
			add(Target{Path: abs, Missing: true, Reason: "path does not exist"})
			continue
		}
		if !info.IsDir() {
			add(Target{Path: abs, Missing: true, Reason: "not a directory"})
			continue
		}

		if IsRepo(abs) {
			add(Target{Path: abs})
			continue
		}

		children, err := scan(abs)
		if err != nil {
			add(Target{Path: abs, Missing: true, Reason: err.Error()})
			continue
		}
		if len(children) == 0 {
			add(Target{Path: abs, Missing: true, Reason: "no git repositories found"})
			continue
		}
		for _, child := range children {
			add(Target{Path: child})
		}
	}

	return targets
}

// IsRepo reports whether dir holds git metadata. A .git file counts, so
// linked worktrees and submodules are recognised.
func IsRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

func scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var repos []string
	for _, entry := range entries {
		child := filepath.Join(dir, entry.Name())
		if !entry.IsDir() {
			// Follow symlinks to directories.
			info, err := os.Stat(child)
			if err != nil || !info.IsDir() {
				continue
			}
		}
		if IsRepo(child) {
			repos = append(repos, child)
		}
	}
	return repos, nil
}
