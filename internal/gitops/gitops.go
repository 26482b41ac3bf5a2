// Package gitops snapshots the project directory with git. Commits are
// best-effort from the session's point of view: a failed commit is logged
// and reported, never fatal to the analysis turn that triggered it.
package gitops

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// Controller wraps one project repository.
type Controller struct {
	dir string
	log *zap.Logger
}

func NewController(dir string, log *zap.Logger) *Controller {
	return &Controller{dir: dir, log: log}
}

// InitRepository creates the repository if it does not already exist.
func (c *Controller) InitRepository() error {
	_, err := git.PlainInit(c.dir, false)
	if err == git.ErrRepositoryAlreadyExists {
		return nil
	}
	if err != nil {
		return fmt.Errorf("git init %s: %w", c.dir, err)
	}
	c.log.Info("repository initialized", zap.String("dir", c.dir))
	return nil
}

// CommitAll stages everything and commits. A worktree with no changes is
// not an error; there is simply nothing to snapshot.
func (c *Controller) CommitAll(message string) error {
	repo, err := git.PlainOpen(c.dir)
	if err != nil {
		return fmt.Errorf("git open %s: %w", c.dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("git worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("git add: %w", err)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "quill",
			Email: "quill@localhost",
			When:  time.Now(),
		},
	})
	if err == git.ErrEmptyCommit {
		c.log.Debug("nothing to commit", zap.String("dir", c.dir))
		return nil
	}
	if err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	c.log.Info("committed", zap.String("hash", hash.String()), zap.String("message", message))
	return nil
}
