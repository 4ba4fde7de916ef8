// Package update decides how each repository is synchronised with its
// upstream and carries out that decision.
package update

import (
	"fmt"
)

// Kind classifies the result of updating one repository.
type Kind int

const (
	UpToDate Kind = iota
	FastForwarded
	Rebased
	Merged
	DirtyWorkingTree
	Conflict
	DetachedHead
	NoUpstream
	NetworkError
	NotARepo
	Unknown
	// Stopped marks a repository that was never started because the batch was interrupted.
	Stopped
)

var kindNames = map[Kind]string{
	UpToDate:         "up_to_date",
	FastForwarded:    "fast_forwarded",
	Rebased:          "rebased",
	Merged:           "merged",
	DirtyWorkingTree: "dirty",
	Conflict:         "conflict",
	DetachedHead:     "detached_head",
	NoUpstream:       "no_upstream",
	NetworkError:     "network_error",
	NotARepo:         "not_a_repo",
	Unknown:          "unknown",
	Stopped:          "stopped",
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		UpToDate, FastForwarded, Rebased, Merged,
		DirtyWorkingTree, Conflict, DetachedHead, NoUpstream,
		NetworkError, NotARepo, Unknown, Stopped,
	}
}

// String returns the stable identifier used in JSON output and the history store.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return Unknown, fmt.Errorf("unknown outcome kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsSuccess reports whether the repository ended up synchronised.
func (k Kind) IsSuccess() bool {
	switch k {
	case UpToDate, FastForwarded, Rebased, Merged:
		return true
	default:
		return false
	}
}

// Description is the human-readable text for the kind.
func (k Kind) Description() string {
	switch k {
	case UpToDate:
		return "up to date"
	case FastForwarded:
		return "fast-forwarded"
	case Rebased:
		return "rebased"
	case Merged:
		return "merged"
	case DirtyWorkingTree:
		return "uncommitted changes"
	case Conflict:
		return "conflict; resolve manually"
	case DetachedHead:
		return "detached HEAD"
	case NoUpstream:
		return "no upstream"
	case NetworkError:
		return "fetch failed"
	case NotARepo:
		return "not a git repository"
	case Unknown:
		return "error"
	case Stopped:
		return "stopped by user"
	default:
		return k.String()
	}
}

// Outcome is the result of updating one repository.
type Outcome struct {
	Path   string `json:"path"`
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// String renders the outcome as a single report line.
func (o Outcome) String() string {
	if o.Detail == "" {
		return fmt.Sprintf("%s: %s", o.Path, o.Kind.Description())
	}
	return fmt.Sprintf("%s: %s (%s)", o.Path, o.Kind.Description(), o.Detail)
}
