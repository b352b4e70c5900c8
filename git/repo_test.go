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

package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/dnpack/config"
	"github.com/cowdogmoo/dnpack/errors"
)

type fixture struct {
	dir     string
	repo    *gogit.Repository
	commits []string
}

// newFixture creates a repository with n linear commits on master.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	f := &fixture{dir: dir, repo: repo}
	for i := range n {
		name := filepath.Join(dir, "file.txt")
		require.NoError(t, os.WriteFile(name, []byte{byte('a' + i)}, 0o644))
		_, err := wt.Add("file.txt")
		require.NoError(t, err)
		hash, err := wt.Commit("commit", &gogit.CommitOptions{
			Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Unix(int64(1700000000+i), 0)},
		})
		require.NoError(t, err)
		f.commits = append(f.commits, hash.String())
	}
	return f
}

func (f *fixture) branch(t *testing.T, name, commit string) {
	t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), plumbing.NewHash(commit))
	require.NoError(t, f.repo.Storer.SetReference(ref))
}

func TestOpen(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	sub := filepath.Join(f.dir, "packages", "app")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	repo, err := Open(sub)
	require.NoError(t, err)
	head, err := repo.HeadCommit()
	require.NoError(t, err)
	assert.Equal(t, f.commits[0], head)

	_, err = Open(t.TempDir())
	require.Error(t, err)
}

func TestRepo_CurrentBranch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	repo, err := Open(f.dir)
	require.NoError(t, err)

	branch, err := repo.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "master", branch)

	wt, err := f.repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&gogit.CheckoutOptions{Hash: plumbing.NewHash(f.commits[0])}))

	_, err = repo.CurrentBranch()
	assert.True(t, errors.Is(err, ErrDetachedHead))
}

func TestRepo_State(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	repo, err := Open(f.dir)
	require.NoError(t, err)

	tests := []struct {
		name      string
		overrides config.GitConfig
		want      State
	}{
		{"from repository", config.GitConfig{}, State{Branch: "master", Commit: f.commits[0]}},
		{"branch override", config.GitConfig{Branch: "feature/x"}, State{Branch: "feature/x", Commit: f.commits[0]}},
		{"both overrides", config.GitConfig{Branch: "b", Commit: "c"}, State{Branch: "b", Commit: "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.State(tt.overrides)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadState_NotARepository(t *testing.T) {
	t.Parallel()

	got := ReadState(context.Background(), t.TempDir(), config.GitConfig{Branch: "main", Commit: "abc"})
	assert.Equal(t, State{Branch: "main", Commit: "abc"}, got)

	assert.Equal(t, State{}, ReadState(context.Background(), t.TempDir(), config.GitConfig{}))
}

func TestRepo_RemoteBranches(t *testing.T) {
	t.Parallel()

	upstream := newFixture(t, 2)
	upstream.branch(t, "feature/b", upstream.commits[1])
	upstream.branch(t, "feature/a", upstream.commits[0])

	local := newFixture(t, 1)
	_, err := local.repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{upstream.dir}})
	require.NoError(t, err)

	repo, err := Open(local.dir)
	require.NoError(t, err)

	branches, err := repo.RemoteBranches(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"feature/a", "feature/b", "master"}, branches)

	_, err = repo.RemoteBranches(context.Background(), "missing")
	require.Error(t, err)
}

func TestRepo_IsAncestor(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	repo, err := Open(f.dir)
	require.NoError(t, err)

	tests := []struct {
		name       string
		ancestor   string
		descendant string
		want       bool
	}{
		{"parent of head", f.commits[0], f.commits[2], true},
		{"same commit", f.commits[1], f.commits[1], true},
		{"descendant is not ancestor", f.commits[2], f.commits[0], false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.IsAncestor(tt.ancestor, tt.descendant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = repo.IsAncestor("0000000000000000000000000000000000000000", f.commits[0])
	require.Error(t, err)
}
