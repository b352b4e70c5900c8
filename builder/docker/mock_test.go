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

package docker

import (
	"context"
	"fmt"
	"io"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	dockerimage "github.com/docker/docker/api/types/image"
	digest "github.com/opencontainers/go-digest"
)

// MockDockerClient is a mock implementation of DockerClient for testing
type MockDockerClient struct {
	ImageInspectFunc func(ctx context.Context, imageID string) (dockerimage.InspectResponse, error)
	ImageTagFunc     func(ctx context.Context, source, target string) error
	ImagePullFunc    func(ctx context.Context, ref string, options dockerimage.PullOptions) (io.ReadCloser, error)
	ImageSaveFunc    func(ctx context.Context, imageIDs []string) (io.ReadCloser, error)
	PingFunc         func(ctx context.Context) (types.Ping, error)

	Tagged map[string]string
	Pulled []string
	Saved  [][]string
	Closed int
}

func (m *MockDockerClient) ImageInspect(ctx context.Context, imageID string) (dockerimage.InspectResponse, error) {
	if m.ImageInspectFunc != nil {
		return m.ImageInspectFunc(ctx, imageID)
	}
	return dockerimage.InspectResponse{ID: fakeID(imageID)}, nil
}

func (m *MockDockerClient) ImageTag(ctx context.Context, source, target string) error {
	if m.Tagged == nil {
		m.Tagged = make(map[string]string)
	}
	m.Tagged[target] = source
	if m.ImageTagFunc != nil {
		return m.ImageTagFunc(ctx, source, target)
	}
	return nil
}

func (m *MockDockerClient) ImagePull(ctx context.Context, ref string, options dockerimage.PullOptions) (io.ReadCloser, error) {
	m.Pulled = append(m.Pulled, ref+"@"+options.Platform)
	if m.ImagePullFunc != nil {
		return m.ImagePullFunc(ctx, ref, options)
	}
	return io.NopCloser(strings.NewReader(`{"status":"Pulling"}` + "\n" + `{"status":"Downloaded newer image"}`)), nil
}

func (m *MockDockerClient) ImageSave(ctx context.Context, imageIDs []string) (io.ReadCloser, error) {
	m.Saved = append(m.Saved, imageIDs)
	if m.ImageSaveFunc != nil {
		return m.ImageSaveFunc(ctx, imageIDs)
	}
	return io.NopCloser(strings.NewReader("tarball:" + strings.Join(imageIDs, ","))), nil
}

func (m *MockDockerClient) Ping(ctx context.Context) (types.Ping, error) {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return types.Ping{}, nil
}

func (m *MockDockerClient) Close() error {
	m.Closed++
	return nil
}

// fakeID derives a stable sha256 digest from a tag.
func fakeID(tag string) string {
	return digest.FromString(tag).String()
}

func notFound(tag string) error {
	return fmt.Errorf("no such image %s: %w", tag, cerrdefs.ErrNotFound)
}

// fakeRunner records commands and answers them through respond.
type fakeRunner struct {
	commands []Command
	respond  func(cmd Command) (string, error)
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) (string, error) {
	f.commands = append(f.commands, cmd)
	if f.respond != nil {
		return f.respond(cmd)
	}
	return "", nil
}

func (f *fakeRunner) lines() []string {
	out := make([]string, 0, len(f.commands))
	for _, c := range f.commands {
		out = append(out, strings.Join(c.Args, " "))
	}
	return out
}
