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
	"io"

	"github.com/docker/docker/api/types"
	dockerimage "github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"
)

// DockerClient defines the Docker Engine API operations the builder needs.
// This interface allows for easier testing by enabling mock implementations.
type DockerClient interface {
	ImageInspect(ctx context.Context, imageID string) (dockerimage.InspectResponse, error)
	ImageTag(ctx context.Context, source, target string) error
	ImagePull(ctx context.Context, ref string, options dockerimage.PullOptions) (io.ReadCloser, error)
	ImageSave(ctx context.Context, imageIDs []string) (io.ReadCloser, error)
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// dockerClientAdapter wraps the real Docker client to match our interface.
// The Docker SDK uses variadic options for some methods, while our
// interface uses fixed parameters.
type dockerClientAdapter struct {
	*dockerclient.Client
}

// ImageInspect adapts the Docker SDK's variadic signature to our fixed interface.
func (a *dockerClientAdapter) ImageInspect(ctx context.Context, imageID string) (dockerimage.InspectResponse, error) {
	return a.Client.ImageInspect(ctx, imageID)
}

// ImageSave adapts the Docker SDK's variadic signature to our fixed interface.
func (a *dockerClientAdapter) ImageSave(ctx context.Context, imageIDs []string) (io.ReadCloser, error) {
	return a.Client.ImageSave(ctx, imageIDs)
}

// newDockerClientAdapter wraps a real Docker client to satisfy the DockerClient interface.
func newDockerClientAdapter(c *dockerclient.Client) DockerClient {
	return &dockerClientAdapter{Client: c}
}
