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

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/dnpack/builder"
	"github.com/cowdogmoo/dnpack/config"
	"github.com/cowdogmoo/dnpack/pins"
	"github.com/cowdogmoo/dnpack/uploader"
)

func testConfig() *config.Config {
	return &config.Config{
		Build: config.BuildConfig{
			Timeout:         "15min",
			VariantsDir:     "package_variants",
			ComposeFileName: "docker-compose.yml",
			Compression:     "xz",
		},
		Upload: config.UploadConfig{Target: "ipfs", Provider: "dappnode", ContentProvider: "node"},
		Pins:   config.PinsConfig{Concurrency: 2},
		Git:    config.GitConfig{Branch: "main", Commit: "abc123", UpstreamVersion: "v1.2.3"},
	}
}

func TestPipelineOptions(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Build.Compression = "zstd"

	opts, err := pipelineOptions(testContext(), cfg, dir, &buildOptions{
		variants:      "mainnet, holesky,",
		skipUpload:    true,
		deleteOldPins: true,
		output:        "record.json",
	})
	require.NoError(t, err)

	assert.Equal(t, dir, opts.Variants.RootDir)
	assert.Equal(t, []string{"mainnet", "holesky"}, opts.Variants.Variants)
	assert.Equal(t, "package_variants", opts.Variants.VariantsDir)
	assert.Equal(t, "v1.2.3", opts.Variants.UpstreamVersion)
	assert.Equal(t, 15*time.Minute, opts.Build.Timeout)
	assert.Equal(t, builder.CompressionZstd, opts.Build.Compression)
	assert.True(t, opts.SkipUpload)
	assert.True(t, opts.DeleteOldPins)
	assert.Equal(t, "record.json", opts.RecordPath)
	assert.Equal(t, "main", opts.Git.Branch)
	assert.Equal(t, "abc123", opts.Git.Commit)
}

func TestPipelineOptionsErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "bad timeout", mutate: func(c *config.Config) { c.Build.Timeout = "soon" }},
		{name: "bad compression", mutate: func(c *config.Config) { c.Build.Compression = "gzip" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := pipelineOptions(testContext(), cfg, t.TempDir(), &buildOptions{})
			assert.Error(t, err)
		})
	}
}

func TestNewUploader(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.Config)
		wantTarget string
		wantPinata bool
		wantErr    bool
	}{
		{name: "ipfs node", wantTarget: uploader.TargetIPFS},
		{
			name:       "swarm",
			mutate:     func(c *config.Config) { c.Upload.Target = "swarm"; c.Upload.ContentProvider = "" },
			wantTarget: uploader.TargetSwarm,
		},
		{
			name: "pinata",
			mutate: func(c *config.Config) {
				c.Upload.ContentProvider = "pinata"
				c.Pinata.APIKey = "key"
				c.Pinata.SecretAPIKey = "secret"
			},
			wantTarget: uploader.TargetIPFS,
			wantPinata: true,
		},
		{
			name:    "pinata without credentials",
			mutate:  func(c *config.Config) { c.Upload.ContentProvider = "pinata" },
			wantErr: true,
		},
		{
			name:    "unknown target",
			mutate:  func(c *config.Config) { c.Upload.Target = "ftp" },
			wantErr: true,
		},
		{
			name:       "upload timeout",
			mutate:     func(c *config.Config) { c.Upload.Timeout = "10min" },
			wantTarget: uploader.TargetIPFS,
		},
		{
			name:    "invalid upload timeout",
			mutate:  func(c *config.Config) { c.Upload.Timeout = "soon" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			u, p, err := newUploader(cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTarget, p.Target())
			_, isPinata := u.(*uploader.Pinata)
			assert.Equal(t, tt.wantPinata, isPinata)
		})
	}
}

func TestUploaderOptions(t *testing.T) {
	tests := []struct {
		name     string
		timeout  string
		wantOpts int
		wantErr  string
	}{
		{name: "no timeout", timeout: ""},
		{name: "minutes", timeout: "10min", wantOpts: 1},
		{name: "hours", timeout: "1h", wantOpts: 1},
		{name: "invalid", timeout: "soon", wantErr: "upload timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Upload.Timeout = tt.timeout
			opts, err := uploaderOptions(cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, opts, tt.wantOpts)
		})
	}
}

func TestNewOrchestrator(t *testing.T) {
	cfg := testConfig()

	o, err := newOrchestrator(testContext(), cfg, t.TempDir(), true, nil)
	require.NoError(t, err)
	assert.NotNil(t, o)

	o, err = newOrchestrator(testContext(), cfg, t.TempDir(), false, nil)
	require.NoError(t, err)
	assert.NotNil(t, o)

	cfg.Upload.ContentProvider = "pinata"
	_, err = newOrchestrator(testContext(), cfg, t.TempDir(), false, nil)
	assert.Error(t, err)
}

func TestPinCleaners(t *testing.T) {
	cfg := testConfig()
	cfg.Pins.StrictAncestry = true

	backend := uploader.NewPinata(uploader.PinataProvider{APIKey: "key", SecretAPIKey: "secret"})
	fn := pinCleaners(testContext(), cfg, t.TempDir(), backend)

	cleaner := fn("demo.public.dappnode.eth")
	_, ok := cleaner.(*pins.Manager)
	assert.True(t, ok)
}
