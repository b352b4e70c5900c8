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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/dnpack/config"
	"github.com/cowdogmoo/dnpack/templates"
)

func TestGetCommandPath(t *testing.T) {
	tests := []struct {
		name string
		cmd  *cobra.Command
		want string
	}{
		{name: "root", cmd: rootCmd, want: ""},
		{name: "top level", cmd: buildCmd, want: "build"},
		{name: "nested", cmd: pinsCleanOldCmd, want: "pins.clean-old"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getCommandPath(tt.cmd))
		})
	}
}

// newFlagTree returns a root with a log-level persistent flag and a build
// child with one annotated and one plain flag.
func newFlagTree() (*cobra.Command, *cobra.Command) {
	root := &cobra.Command{Use: "dnpack"}
	root.PersistentFlags().String("log-level", "", "")
	annotateConfigKey(root.PersistentFlags(), "log-level", "log.level")

	build := &cobra.Command{Use: "build", RunE: func(*cobra.Command, []string) error { return nil }}
	build.Flags().String("provider", "", "")
	build.Flags().String("timeout", "", "")
	annotateConfigKey(build.Flags(), "provider", "upload.provider")
	root.AddCommand(build)
	return root, build
}

func TestBindCommandFlagsToViper(t *testing.T) {
	tests := []struct {
		name         string
		env          map[string]string
		args         []string
		wantProvider string
		wantTimeout  string
		wantLevel    string
	}{
		{
			name:         "defaults",
			wantProvider: "dappnode",
			wantTimeout:  "60min",
			wantLevel:    "info",
		},
		{
			name:         "environment over defaults",
			env:          map[string]string{"DNPACK_UPLOAD_PROVIDER": "infura", "DNPACK_BUILD_TIMEOUT": "2h"},
			wantProvider: "infura",
			wantTimeout:  "2h",
			wantLevel:    "info",
		},
		{
			name:         "flags over environment",
			env:          map[string]string{"DNPACK_UPLOAD_PROVIDER": "infura"},
			args:         []string{"--provider", "remote", "--timeout", "15min", "--log-level", "debug"},
			wantProvider: "remote",
			wantTimeout:  "15min",
			wantLevel:    "debug",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, build := newFlagTree()
			build.SetContext(context.Background())
			require.NoError(t, build.ParseFlags(tt.args))

			v, err := config.NewViper("")
			require.ErrorIs(t, err, config.ErrConfigNotFound)
			BindCommandFlagsToViper(v, build)

			cfg, err := config.FromViper(v)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, cfg.Upload.Provider)
			assert.Equal(t, tt.wantTimeout, cfg.Build.Timeout)
			assert.Equal(t, tt.wantLevel, cfg.Log.Level)
		})
	}
}

func TestInitConfigReadsConfigFile(t *testing.T) {
	home := isolateEnv(t)
	dir := filepath.Join(home, ".config", "dnpack")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("build:\n  variants_dir: variants\n"), 0o644))

	var got *config.Config
	probe := &cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			got = configFromContext(cmd)
			return nil
		},
	}
	rootCmd.AddCommand(probe)
	t.Cleanup(func() { rootCmd.RemoveCommand(probe) })

	_, err := execute(t, "probe")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "variants", got.Build.VariantsDir)
	assert.Equal(t, "docker-compose.yml", got.Build.ComposeFileName)
}

func TestInitConfigMissingExplicitFile(t *testing.T) {
	home := isolateEnv(t)
	dir := scaffoldPackage(t, templates.Options{})

	_, err := execute(t, "--config", filepath.Join(home, "missing.yaml"), "validate", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPackageDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	got, err := packageDir([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	wd, err := os.Getwd()
	require.NoError(t, err)
	got, err = packageDir(nil)
	require.NoError(t, err)
	assert.Equal(t, wd, got)

	_, err = packageDir([]string{file})
	assert.Error(t, err)
	_, err = packageDir([]string{filepath.Join(dir, "nope")})
	assert.Error(t, err)
}
