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

package release

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/dnpack/errors"
)

// PackageType distinguishes regular packages from core packages, which are
// allowed elevated compose settings.
type PackageType string

// Package types accepted in the manifest "type" field.
const (
	TypeService PackageType = "service"
	TypeLibrary PackageType = "library"
	TypeDNCore  PackageType = "dncore"
)

// ManifestFileName is the canonical manifest name inside a release.
const ManifestFileName = "dappnode_package.json"

var (
	manifestNames = []string{"dappnode_package.json", "dappnode_package.yml", "dappnode_package.yaml"}

	// VersionPattern is the strict major.minor.patch form a manifest version
	// must take.
	VersionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// Manifest describes a package's identity and metadata. Keys not modeled
// here are kept in Extra and written back unchanged.
type Manifest struct {
	Name             string            `json:"name" yaml:"name" jsonschema:"minLength=1"`
	Version          string            `json:"version" yaml:"version" jsonschema:"minLength=1"`
	UpstreamVersion  string            `json:"upstreamVersion,omitempty" yaml:"upstreamVersion,omitempty"`
	UpstreamRepo     string            `json:"upstreamRepo,omitempty" yaml:"upstreamRepo,omitempty"`
	UpstreamArg      string            `json:"upstreamArg,omitempty" yaml:"upstreamArg,omitempty"`
	ShortDescription string            `json:"shortDescription,omitempty" yaml:"shortDescription,omitempty"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	Type             PackageType       `json:"type,omitempty" yaml:"type,omitempty" jsonschema:"enum=service,enum=library,enum=dncore"`
	Architectures    []string          `json:"architectures,omitempty" yaml:"architectures,omitempty"`
	MainService      string            `json:"mainService,omitempty" yaml:"mainService,omitempty"`
	Author           string            `json:"author,omitempty" yaml:"author,omitempty"`
	Contributors     []string          `json:"contributors,omitempty" yaml:"contributors,omitempty"`
	License          string            `json:"license,omitempty" yaml:"license,omitempty"`
	Categories       []string          `json:"categories,omitempty" yaml:"categories,omitempty"`
	Links            map[string]string `json:"links,omitempty" yaml:"links,omitempty"`
	// Image is the legacy build-only block. It never reaches a release.
	Image map[string]any `json:"image,omitempty" yaml:"image,omitempty"`

	Extra map[string]any `json:"-" yaml:",inline"`
}

// IsCore reports whether the package is a core package.
func (m *Manifest) IsCore() bool {
	return m.Type == TypeDNCore
}

// ShortName returns the first label of the package name.
func (m *Manifest) ShortName() string {
	name, _, _ := strings.Cut(m.Name, ".")
	return name
}

// Clone returns a deep copy of the manifest.
func (m *Manifest) Clone() (*Manifest, error) {
	raw, err := toMap(m)
	if err != nil {
		return nil, err
	}
	return DecodeManifest(raw)
}

// FindManifest returns the path of the manifest in dir, accepting the JSON
// and YAML spellings. More than one candidate is an error.
func FindManifest(dir string) (string, error) {
	var found []string
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			found = append(found, path)
		}
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("no dappnode_package.{json,yml,yaml} in %s: %w", dir, os.ErrNotExist)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("multiple manifests found in %s: %s", dir, strings.Join(found, ", "))
	}
}

// ReadRaw reads a JSON or YAML document into a generic map. JSON files are
// decoded with encoding/json since JSON written with tab indentation is not
// valid YAML.
func ReadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap("read file", path, err)
	}

	raw := map[string]any{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap("parse JSON", path, err)
		}
		return raw, nil
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap("parse YAML", path, err)
	}
	return raw, nil
}

// DecodeManifest converts a generic document into a Manifest.
func DecodeManifest(raw map[string]any) (*Manifest, error) {
	var m Manifest
	if err := fromMap(raw, &m); err != nil {
		return nil, errors.Wrap("decode manifest", "", err)
	}
	return &m, nil
}

// ReadManifest reads the manifest found in dir.
func ReadManifest(dir string) (*Manifest, string, error) {
	path, err := FindManifest(dir)
	if err != nil {
		return nil, "", err
	}
	raw, err := ReadRaw(path)
	if err != nil {
		return nil, "", err
	}
	m, err := DecodeManifest(raw)
	if err != nil {
		return nil, "", errors.Wrap("read manifest", path, err)
	}
	return m, path, nil
}

// WriteManifest writes m to path. Files with a .json extension are written as
// indented JSON preserving field order; anything else as YAML.
func WriteManifest(path string, m *Manifest) error {
	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = MarshalManifestJSON(m)
	} else {
		data, err = yaml.Marshal(m)
	}
	if err != nil {
		return errors.Wrap("encode manifest", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap("write manifest", path, err)
	}
	return nil
}

// MarshalManifestJSON renders m as indented JSON with fields in declaration
// order followed by any extra keys.
func MarshalManifestJSON(m *Manifest) ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(m); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeJSONNode(&buf, &node, ""); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// BumpVersion increments version by the given release type (major, minor or
// patch).
func BumpVersion(version, releaseType string) (string, error) {
	v, err := semver.StrictNewVersion(version)
	if err != nil {
		return "", errors.Wrap("parse version", version, err)
	}

	var next semver.Version
	switch releaseType {
	case "major":
		next = v.IncMajor()
	case "minor":
		next = v.IncMinor()
	case "patch":
		next = v.IncPatch()
	default:
		return "", fmt.Errorf("unknown release type %q: must be major, minor or patch", releaseType)
	}
	return next.String(), nil
}

// writeJSONNode converts an encoded YAML node tree into JSON, keeping the
// mapping order.
func writeJSONNode(buf *bytes.Buffer, n *yaml.Node, indent string) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeJSONNode(buf, n.Content[0], indent)
	case yaml.MappingNode:
		if len(n.Content) == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteString("{\n")
		inner := indent + "  "
		for i := 0; i < len(n.Content); i += 2 {
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.WriteString(inner)
			buf.Write(key)
			buf.WriteString(": ")
			if err := writeJSONNode(buf, n.Content[i+1], inner); err != nil {
				return err
			}
			if i+2 < len(n.Content) {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		buf.WriteString(indent + "}")
	case yaml.SequenceNode:
		if len(n.Content) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteString("[\n")
		inner := indent + "  "
		for i, item := range n.Content {
			buf.WriteString(inner)
			if err := writeJSONNode(buf, item, inner); err != nil {
				return err
			}
			if i+1 < len(n.Content) {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		buf.WriteString(indent + "]")
	case yaml.AliasNode:
		return writeJSONNode(buf, n.Alias, indent)
	default:
		return writeJSONScalar(buf, n)
	}
	return nil
}

func writeJSONScalar(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.ShortTag() {
	case "!!null":
		buf.WriteString("null")
		return nil
	case "!!bool", "!!int", "!!float":
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(data)
		return nil
	default:
		data, err := json.Marshal(n.Value)
		if err != nil {
			return err
		}
		buf.Write(data)
		return nil
	}
}

// toMap converts a typed value into a generic document via YAML.
func toMap(v any) (map[string]any, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromMap converts a generic document into a typed value via YAML.
func fromMap(raw map[string]any, out any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
