// Package prompt provides interactive terminal prompts for collecting user input.
package prompt

import (
	"github.com/charmbracelet/huh"
)

// ConfirmAction prompts the user to confirm an action with yes/no.
// Returns true if the user confirmed, false otherwise.
func ConfirmAction(title, description string) (bool, error) {
	var confirmed bool

	if err := newConfirmForm(title, description, &confirmed).Run(); err != nil {
		return false, err
	}

	return confirmed, nil
}

// SelectPaths lets the user pick a subset of paths. Every path starts selected,
// so accepting the prompt as shown keeps the whole list.
func SelectPaths(title, description string, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	var selected []string

	if err := newSelectForm(title, description, paths, &selected).Run(); err != nil {
		return nil, err
	}

	return selected, nil
}

func newConfirmForm(title, description string, confirmed *bool) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Value(confirmed).
				Affirmative("Yes").
				Negative("No"),
		),
	)
}

func newSelectForm(title, description string, paths []string, selected *[]string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title(title).
				Description(description).
				Options(pathOptions(paths)...).
				Value(selected),
		),
	)
}

func pathOptions(paths []string) []huh.Option[string] {
	options := make([]huh.Option[string], len(paths))
	for i, p := range paths {
		options[i] = huh.NewOption(p, p).Selected(true)
	}
	return options
}
