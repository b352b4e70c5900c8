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

// Package main generates JSON schemas for the package manifest and compose
// files. The schemas enable editor autocompletion and validation of
// dappnode_package.json and docker-compose.yml.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/cowdogmoo/dnpack/config"
	"github.com/cowdogmoo/dnpack/release"
)

const schemaBaseURL = "https://dnpack.dev/schema/"

var (
	outputDir = flag.String("o", "schema", "Output directory for the JSON schemas")
)

// schemaFile is one generated schema.
type schemaFile struct {
	name    string
	schema  func() *jsonschema.Schema
	example map[string]any
}

var schemaFiles = []schemaFile{
	{
		name:   "dappnode-package.json",
		schema: release.ManifestSchema,
		example: map[string]any{
			"name":             "geth.dnp.dappnode.eth",
			"version":          "0.1.0",
			"upstreamVersion":  "v1.14.0",
			"shortDescription": "Ethereum execution client",
			"type":             "service",
			"architectures":    []string{"linux/amd64", "linux/arm64"},
			"author":           "DAppNode Association <admin@dappnode.io>",
			"license":          "GPL-3.0",
		},
	},
	{
		name:   "docker-compose.json",
		schema: release.ComposeSchema,
		example: map[string]any{
			"version": "3.5",
			"services": map[string]any{
				"geth": map[string]any{
					"build": map[string]any{
						"context": ".",
						"args":    map[string]string{"UPSTREAM_VERSION": "v1.14.0"},
					},
					"restart": "unless-stopped",
					"volumes": []string{"data:/data"},
				},
			},
			"volumes": map[string]any{"data": map[string]any{}},
		},
	},
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := os.MkdirAll(*outputDir, config.DirPermReadWriteExec); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, f := range schemaFiles {
		schema := f.schema()
		schema.ID = jsonschema.ID(schemaBaseURL + f.name)
		schema.Examples = []any{f.example}

		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", f.name, err)
		}
		// Trailing newline for end-of-file-fixer
		data = append(data, '\n')

		path := filepath.Join(*outputDir, f.name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write schema file: %w", err)
		}
		fmt.Printf("✓ Generated JSON schema: %s\n", path)
	}
	return nil
}
