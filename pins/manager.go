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

// Package pins garbage-collects development uploads on a pinning service.
// Every upload carries branch and commit metadata; the manager keeps the
// latest pin per branch and reclaims pins for branches that were deleted,
// commits that were superseded, or pins past a retention age.
package pins

import (
	"context"
	"sort"
	"time"

	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/uploader"
)

// DefaultConcurrency is the number of unpin requests in flight at once.
const DefaultConcurrency = 4

// Backend lists and removes pins. *uploader.Pinata satisfies it.
type Backend interface {
	PinList(ctx context.Context, filter uploader.PinFilter) ([]uploader.Pin, error)
	Unpin(ctx context.Context, hash string) error
}

// Ancestry answers commit reachability questions. *git.Repo satisfies it.
type Ancestry interface {
	IsAncestor(ancestor, descendant string) (bool, error)
}

// Manager cleans up the pins of one package.
type Manager struct {
	backend     Backend
	name        string
	concurrency int
	ancestry    Ancestry
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithConcurrency bounds parallel unpin requests. Values below one use
// DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithAncestry makes CleanSuperseded unpin only commits that are ancestors
// of the current commit.
func WithAncestry(a Ancestry) Option {
	return func(m *Manager) {
		m.ancestry = a
	}
}

// WithClock replaces time.Now for age calculations.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager returns a manager for the pins named packageName.
func NewManager(backend Backend, packageName string, opts ...Option) *Manager {
	m := &Manager{
		backend:     backend,
		name:        packageName,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BranchPins are the pins recorded for one branch, oldest first.
type BranchPins struct {
	Branch string
	Pins   []uploader.Pin
}

// FetchPinsGroupedByBranch lists the package's pins grouped by the branch
// in their metadata, sorted by branch name. Pins without a branch, such as
// release uploads, form the group with an empty Branch.
func (m *Manager) FetchPinsGroupedByBranch(ctx context.Context) ([]BranchPins, error) {
	pins, err := m.backend.PinList(ctx, uploader.PinFilter{Name: m.name})
	if err != nil {
		return nil, errors.Wrap("fetch pins", m.name, err)
	}

	byBranch := make(map[string][]uploader.Pin)
	for _, p := range pins {
		byBranch[p.Metadata.Branch] = append(byBranch[p.Metadata.Branch], p)
	}

	groups := make([]BranchPins, 0, len(byBranch))
	for branch, list := range byBranch {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].DatePinned.Before(list[j].DatePinned)
		})
		groups = append(groups, BranchPins{Branch: branch, Pins: list})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Branch < groups[j].Branch })
	return groups, nil
}

// FetchPinsOlderThan lists the package's pins pinned more than days ago.
// The age filter runs locally so it does not depend on server clocks.
func (m *Manager) FetchPinsOlderThan(ctx context.Context, days int) ([]uploader.Pin, error) {
	pins, err := m.backend.PinList(ctx, uploader.PinFilter{Name: m.name})
	if err != nil {
		return nil, errors.Wrap("fetch pins", m.name, err)
	}

	cutoff := m.now().Add(-time.Duration(days) * 24 * time.Hour)
	var old []uploader.Pin
	for _, p := range pins {
		if p.DatePinned.Before(cutoff) {
			old = append(old, p)
		}
	}
	return old, nil
}

// CleanDeletedBranches unpins every pin whose branch is not in existing.
// Pins without a branch are never touched.
func (m *Manager) CleanDeletedBranches(ctx context.Context, existing []string) (Report, error) {
	groups, err := m.FetchPinsGroupedByBranch(ctx)
	if err != nil {
		return Report{}, err
	}

	live := make(map[string]bool, len(existing))
	for _, b := range existing {
		live[b] = true
	}

	var stale []uploader.Pin
	for _, g := range groups {
		if g.Branch == "" || live[g.Branch] {
			continue
		}
		logging.InfoContext(ctx, "Branch %s no longer exists, unpinning %d pins", g.Branch, len(g.Pins))
		stale = append(stale, g.Pins...)
	}
	return m.unpinAll(ctx, stale), nil
}

// CleanSuperseded unpins the pins on branch recorded for a commit other
// than commit. With an Ancestry configured, only pins whose commit is an
// ancestor of commit are removed; pins for unknown commits are kept.
func (m *Manager) CleanSuperseded(ctx context.Context, branch, commit string) (Report, error) {
	if branch == "" || commit == "" {
		return Report{}, errors.New("branch and commit are required to clean superseded pins")
	}

	groups, err := m.FetchPinsGroupedByBranch(ctx)
	if err != nil {
		return Report{}, err
	}

	var stale []uploader.Pin
	for _, g := range groups {
		if g.Branch != branch {
			continue
		}
		for _, p := range g.Pins {
			if p.Metadata.Commit == commit {
				continue
			}
			if m.ancestry != nil && !m.superseded(ctx, p, commit) {
				continue
			}
			stale = append(stale, p)
		}
	}
	return m.unpinAll(ctx, stale), nil
}

func (m *Manager) superseded(ctx context.Context, p uploader.Pin, commit string) bool {
	if p.Metadata.Commit == "" {
		return true
	}
	ok, err := m.ancestry.IsAncestor(p.Metadata.Commit, commit)
	if err != nil {
		logging.WarnContext(ctx, "Keeping pin %s: %v", p.Hash, err)
		return false
	}
	return ok
}

// CleanOlderThan unpins every pin of the package older than days.
func (m *Manager) CleanOlderThan(ctx context.Context, days int) (Report, error) {
	old, err := m.FetchPinsOlderThan(ctx, days)
	if err != nil {
		return Report{}, err
	}
	return m.unpinAll(ctx, old), nil
}
