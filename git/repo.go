/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package git reads repository state for pin metadata and pin cleanup:
// the HEAD commit, the checked-out branch, the branches that still exist on
// a remote and commit ancestry. It also reads the user's author identity
// from their git config.
package git

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/cowdogmoo/dnpack/config"
	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/logging"
)

// DefaultRemote is the remote consulted for live branches.
const DefaultRemote = "origin"

// ErrDetachedHead is returned by CurrentBranch when HEAD is not a branch.
var ErrDetachedHead = errors.New("HEAD is detached")

// Repo is an opened git repository.
type Repo struct {
	repo *git.Repository
	path string
}

// State is the branch and commit a build was produced from.
type State struct {
	Branch string
	Commit string
}

// Open opens the repository containing dir, searching parent directories
// for the .git directory.
func Open(dir string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.Wrap("open git repository", dir, err)
	}
	return &Repo{repo: r, path: dir}, nil
}

// HeadCommit returns the full hash HEAD points at.
func (r *Repo) HeadCommit() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", errors.Wrap("resolve HEAD", r.path, err)
	}
	return head.Hash().String(), nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", errors.Wrap("resolve HEAD", r.path, err)
	}
	if !head.Name().IsBranch() {
		return "", ErrDetachedHead
	}
	return head.Name().Short(), nil
}

// State returns the current branch and commit. Non-empty values in
// overrides win over what the repository reports, which is how CI runs
// that check out a detached merge commit report the PR branch.
func (r *Repo) State(overrides config.GitConfig) (State, error) {
	s := State{Branch: overrides.Branch, Commit: overrides.Commit}

	if s.Commit == "" {
		commit, err := r.HeadCommit()
		if err != nil {
			return State{}, err
		}
		s.Commit = commit
	}
	if s.Branch == "" {
		branch, err := r.CurrentBranch()
		if err != nil {
			return State{}, err
		}
		s.Branch = branch
	}
	return s, nil
}

// ReadState opens the repository at dir and returns its State. When dir is
// not inside a repository only the overrides are returned.
func ReadState(ctx context.Context, dir string, overrides config.GitConfig) State {
	repo, err := Open(dir)
	if err != nil {
		logging.DebugContext(ctx, "No git repository at %s: %v", dir, err)
		return State{Branch: overrides.Branch, Commit: overrides.Commit}
	}
	s, err := repo.State(overrides)
	if err != nil {
		logging.WarnContext(ctx, "Could not read git state: %v", err)
		return State{Branch: overrides.Branch, Commit: overrides.Commit}
	}
	return s
}

// RemoteBranches lists the branch names that currently exist on remote.
// The remote is queried live, so branches deleted upstream are absent even
// when stale remote-tracking refs remain locally.
func (r *Repo) RemoteBranches(ctx context.Context, remote string) ([]string, error) {
	if remote == "" {
		remote = DefaultRemote
	}
	rem, err := r.repo.Remote(remote)
	if err != nil {
		return nil, errors.Wrap("find remote", remote, err)
	}

	refs, err := rem.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return nil, errors.Wrap("list remote branches", remote, err)
	}

	var branches []string
	for _, ref := range refs {
		if ref.Name().IsBranch() {
			branches = append(branches, ref.Name().Short())
		}
	}
	sort.Strings(branches)
	logging.DebugContext(ctx, "Remote %s has %d branches", remote, len(branches))
	return branches, nil
}

// IsAncestor reports whether ancestor is reachable from descendant. A commit
// counts as its own ancestor.
func (r *Repo) IsAncestor(ancestor, descendant string) (bool, error) {
	a, err := r.commit(ancestor)
	if err != nil {
		return false, err
	}
	d, err := r.commit(descendant)
	if err != nil {
		return false, err
	}
	if a.Hash == d.Hash {
		return true, nil
	}
	return a.IsAncestor(d)
}

func (r *Repo) commit(rev string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, errors.Wrap("resolve revision", rev, err)
	}
	c, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", rev, err)
	}
	return c, nil
}
