package sync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitDestination keeps the snapshot as a tracked file in an existing local
// clone and pushes each change to origin. Unchanged snapshots make no
// commit, so the history shows only syncs that saw new records.
type GitDestination struct {
	repo   string
	file   string
	branch string
}

func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{repo: repo, file: file, branch: branch}
}

func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if err := d.prepare(ctx); err != nil {
		return err
	}

	path := filepath.Join(d.repo, d.file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", d.file, err)
	}

	if _, err := d.git(ctx, "add", "--", d.file); err != nil {
		return err
	}
	if changed, err := d.staged(ctx); err != nil || !changed {
		return err
	}
	msg := fmt.Sprintf("peerledger: snapshot %s (%d records)", d.file, countRecordLines(data))
	if _, err := d.git(ctx, "commit", "-m", msg, "--", d.file); err != nil {
		return err
	}
	_, err := d.git(ctx, "push", "origin", d.branch)
	return err
}

// prepare switches to the sync branch and fast-forwards it. A missing
// remote branch is fine; the first push creates it.
func (d *GitDestination) prepare(ctx context.Context) error {
	if _, err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	_, _ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)
	return nil
}

func (d *GitDestination) staged(ctx context.Context) (bool, error) {
	out, err := d.git(ctx, "status", "--porcelain", "--", d.file)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func (d *GitDestination) git(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// countRecordLines counts snapshot lines other than the header.
func countRecordLines(data []byte) int {
	n := bytes.Count(data, []byte("\n"))
	if n > 0 {
		n--
	}
	return n
}
