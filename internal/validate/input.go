// Package validate provides input validation for gitup.
package validate

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jayteealao/gitup/internal/errors"
)

// ResolvePath expands ~ and returns the cleaned absolute form of path.
func ResolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: path cannot be empty", errors.ErrInvalidBookmarkPath)
	}

	expanded, err := expandPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path: %w", err)
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	return filepath.Clean(abs), nil
}

// BookmarkPath resolves a path for storing as a bookmark.
// The path must exist and be a directory; it does not need to be a repository
// because a bookmark may name a directory of repositories.
func BookmarkPath(path string) (string, error) {
	abs, err := ResolvePath(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: path does not exist: %s", errors.ErrInvalidBookmarkPath, path)
		}
		return "", fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: path is not a directory: %s", errors.ErrInvalidBookmarkPath, path)
	}

	return abs, nil
}

// Concurrency validates the number of repositories updated in parallel.
func Concurrency(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", errors.ErrInvalidConcurrency, n)
	}
	return nil
}

// WebhookURL validates a notification endpoint.
func WebhookURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("webhook URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (use http or https)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("URL missing host")
	}

	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
