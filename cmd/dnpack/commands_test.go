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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/dnpack/release"
	"github.com/cowdogmoo/dnpack/templates"
)

func TestValidateCommand(t *testing.T) {
	isolateEnv(t)

	t.Run("valid package", func(t *testing.T) {
		dir := scaffoldPackage(t, templates.Options{})
		_, err := execute(t, "validate", dir)
		require.NoError(t, err)
	})

	t.Run("invalid manifest", func(t *testing.T) {
		dir := scaffoldPackage(t, templates.Options{})
		m, path, err := release.ReadManifest(dir)
		require.NoError(t, err)
		m.Name = "Demo.public.dappnode.eth"
		m.Version = "1.0.0-beta"
		require.NoError(t, release.WriteManifest(path, m))

		_, err = execute(t, "validate", dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "release validation failed")
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
	})
}

func TestIncreaseVersions(t *testing.T) {
	tests := []struct {
		name        string
		opts        templates.Options
		releaseType string
		want        map[string]string
		wantErr     string
	}{
		{
			name:        "root manifest",
			opts:        templates.Options{Version: "1.2.3"},
			releaseType: "minor",
			want:        map[string]string{".": "1.3.0"},
		},
		{
			name:        "variant manifests",
			opts:        templates.Options{Version: "0.1.9", Variants: []string{"mainnet", "testnet"}},
			releaseType: "patch",
			want: map[string]string{
				"package_variants/mainnet": "0.1.10",
				"package_variants/testnet": "0.1.10",
			},
		},
		{
			name:        "unknown release type",
			opts:        templates.Options{},
			releaseType: "huge",
			wantErr:     "unknown release type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := scaffoldPackage(t, tt.opts)
			bumps, err := increaseVersions(testContext(), dir, filepath.Join(dir, templates.DefaultVariantsDir), tt.releaseType)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, bumps, len(tt.want))

			for rel, version := range tt.want {
				m, _, err := release.ReadManifest(filepath.Join(dir, rel))
				require.NoError(t, err)
				assert.Equal(t, version, m.Version, rel)
			}
		})
	}
}

func TestIncreaseCommand(t *testing.T) {
	isolateEnv(t)
	dir := scaffoldPackage(t, templates.Options{Version: "2.0.0"})

	_, err := execute(t, "increase", "major", dir)
	require.NoError(t, err)

	m, _, err := release.ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "3.0.0", m.Version)
}

func TestIncreaseWithoutVersions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, release.ManifestFileName), []byte(`{"name": "demo.public.dappnode.eth", "version": ""}`), 0o644))

	_, err := increaseVersions(testContext(), dir, filepath.Join(dir, "package_variants"), "patch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no variants were found")
}

func TestInitCommand(t *testing.T) {
	isolateEnv(t)

	tests := []struct {
		name         string
		args         []string
		wantName     string
		wantVariants []string
	}{
		{
			name:     "single package",
			args:     []string{"--author", "Jane <jane@example.com>"},
			wantName: "demo.public.dappnode.eth",
		},
		{
			name:         "default variants",
			args:         []string{"--with-variants"},
			wantName:     "",
			wantVariants: []string{"mainnet", "testnet"},
		},
		{
			name:         "named variants",
			args:         []string{"--variants", "gnosis,holesky"},
			wantName:     "",
			wantVariants: []string{"gnosis", "holesky"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "demo")
			args := append([]string{"init", "demo", "--dir", dir}, tt.args...)
			_, err := execute(t, args...)
			require.NoError(t, err)

			m, _, err := release.ReadManifest(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, m.Name)

			for _, v := range tt.wantVariants {
				vm, _, err := release.ReadManifest(filepath.Join(dir, templates.DefaultVariantsDir, v))
				require.NoError(t, err)
				assert.True(t, strings.HasPrefix(vm.Name, v+"."), vm.Name)
			}
		})
	}
}

func TestInitCommandRefusesOverwrite(t *testing.T) {
	isolateEnv(t)
	dir := scaffoldPackage(t, templates.Options{})

	_, err := execute(t, "init", "demo", "--dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "init", "demo", "--dir", dir, "--force")
	require.NoError(t, err)
}

func TestVersionCommandOutput(t *testing.T) {
	buf := new(bytes.Buffer)
	cmd := &cobra.Command{Use: "dnpack"}
	cmd.AddCommand(versionCmd)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.RemoveCommand(versionCmd)
		rootCmd.AddCommand(versionCmd)
	})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "dnpack version "+version)
	assert.Contains(t, output, "commit:")
	assert.Contains(t, output, "built:")
}
