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
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/dnpack/errors"
)

// ComposeFileName is the canonical compose name inside a release.
const ComposeFileName = "docker-compose.yml"

// Compose is a docker compose document. Keys not modeled here are kept in
// Extra and written back unchanged.
type Compose struct {
	Version  string              `json:"version,omitempty" yaml:"version,omitempty"`
	Services map[string]*Service `json:"services" yaml:"services"`
	Volumes  map[string]Volume   `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	Networks map[string]Network  `json:"networks,omitempty" yaml:"networks,omitempty"`

	Extra map[string]any `json:"-" yaml:",inline"`
}

// Service is one compose service definition.
type Service struct {
	Image         string          `json:"image,omitempty" yaml:"image,omitempty"`
	Build         *Build          `json:"build,omitempty" yaml:"build,omitempty"`
	ContainerName string          `json:"container_name,omitempty" yaml:"container_name,omitempty"`
	Restart       string          `json:"restart,omitempty" yaml:"restart,omitempty"`
	Volumes       []ServiceVolume `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	Networks      ServiceNetworks `json:"networks,omitempty" yaml:"networks,omitempty"`
	Environment   StringMap       `json:"environment,omitempty" yaml:"environment,omitempty"`
	Labels        StringMap       `json:"labels,omitempty" yaml:"labels,omitempty"`
	DNS           StringList      `json:"dns,omitempty" yaml:"dns,omitempty"`
	Pid           string          `json:"pid,omitempty" yaml:"pid,omitempty"`
	Privileged    bool            `json:"privileged,omitempty" yaml:"privileged,omitempty"`
	NetworkMode   string          `json:"network_mode,omitempty" yaml:"network_mode,omitempty"`

	Extra map[string]any `json:"-" yaml:",inline"`
}

// Build is a service build section, written either as a context string or
// as an object.
type Build struct {
	Context    string    `json:"context,omitempty" yaml:"context,omitempty"`
	Dockerfile string    `json:"dockerfile,omitempty" yaml:"dockerfile,omitempty"`
	Args       StringMap `json:"args,omitempty" yaml:"args,omitempty"`
	Target     string    `json:"target,omitempty" yaml:"target,omitempty"`

	Extra map[string]any `json:"-" yaml:",inline"`
}

// Volume is a top-level volume declaration.
type Volume struct {
	External bool   `json:"external,omitempty" yaml:"external,omitempty"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`

	Extra map[string]any `json:"-" yaml:",inline"`
}

// Network is a top-level network declaration.
type Network struct {
	External bool   `json:"external,omitempty" yaml:"external,omitempty"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`

	Extra map[string]any `json:"-" yaml:",inline"`
}

// JSONSchema describes both accepted forms in the generated schema.
func (Volume) JSONSchema() *jsonschema.Schema {
	return nullableObject()
}

// JSONSchema describes both accepted forms in the generated schema.
func (Network) JSONSchema() *jsonschema.Schema {
	return nullableObject()
}

// nullableObject accepts a mapping or an empty declaration such as
// "data:".
func nullableObject() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "object"},
			{Type: "null"},
		},
	}
}

// ServiceNetwork is a service's attachment to a network.
type ServiceNetwork struct {
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	IPv4Address string   `json:"ipv4_address,omitempty" yaml:"ipv4_address,omitempty"`

	Extra map[string]any `json:"-" yaml:",inline"`
}

// ServiceNetworks accepts both the list and the map form.
type ServiceNetworks map[string]ServiceNetwork

// StringMap accepts both the "KEY=value" list form and the map form, as
// used by environment, labels and build args.
type StringMap map[string]string

// StringList accepts a single string or a list of strings.
type StringList []string

// ServiceVolume is a service volume in short ("src:dst[:mode]") or long
// syntax.
type ServiceVolume struct {
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
	Target   string `json:"target,omitempty" yaml:"target,omitempty"`
	ReadOnly bool   `json:"read_only,omitempty" yaml:"read_only,omitempty"`

	short string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *Build) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*b = Build{Context: node.Value}
		return nil
	}
	type plain Build
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*b = Build(p)
	return nil
}

// JSONSchema describes both accepted forms in the generated schema.
func (Build) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "object"},
		},
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *ServiceNetworks) UnmarshalYAML(node *yaml.Node) error {
	out := ServiceNetworks{}
	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			out[item.Value] = ServiceNetwork{}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			var sn ServiceNetwork
			if value := node.Content[i+1]; value.ShortTag() != "!!null" {
				if err := value.Decode(&sn); err != nil {
					return err
				}
			}
			out[node.Content[i].Value] = sn
		}
	default:
		return fmt.Errorf("line %d: networks must be a list or a map", node.Line)
	}
	*n = out
	return nil
}

// Names returns the attached network names, sorted.
func (n ServiceNetworks) Names() []string {
	names := make([]string, 0, len(n))
	for name := range n {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JSONSchema describes both accepted forms in the generated schema.
func (ServiceNetworks) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			{Type: "object"},
		},
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *StringMap) UnmarshalYAML(node *yaml.Node) error {
	out := StringMap{}
	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			key, value, _ := strings.Cut(item.Value, "=")
			out[key] = value
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			value := node.Content[i+1]
			if value.ShortTag() == "!!null" {
				out[node.Content[i].Value] = ""
				continue
			}
			out[node.Content[i].Value] = value.Value
		}
	default:
		return fmt.Errorf("line %d: expected a list or a map", node.Line)
	}
	*m = out
	return nil
}

// JSONSchema describes both accepted forms in the generated schema.
func (StringMap) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			{Type: "object"},
		},
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = StringList{node.Value}
		return nil
	}
	var items []string
	if err := node.Decode(&items); err != nil {
		return err
	}
	*l = items
	return nil
}

// JSONSchema describes both accepted forms in the generated schema.
func (StringList) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *ServiceVolume) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*v = ParseShortVolume(node.Value)
		return nil
	}
	type plain ServiceVolume
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*v = ServiceVolume(p)
	return nil
}

// MarshalYAML implements yaml.Marshaler, keeping the short syntax when the
// volume was written that way.
func (v ServiceVolume) MarshalYAML() (any, error) {
	if v.short != "" {
		return v.short, nil
	}
	type plain ServiceVolume
	return plain(v), nil
}

// JSONSchema describes both accepted forms in the generated schema.
func (ServiceVolume) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "object"},
		},
	}
}

// ParseShortVolume parses the "source:target[:mode]" form. A bare target
// declares an anonymous volume.
func ParseShortVolume(spec string) ServiceVolume {
	v := ServiceVolume{short: spec}
	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 1:
		v.Target = parts[0]
		v.Type = "volume"
		return v
	default:
		v.Source = parts[0]
		v.Target = parts[1]
		if len(parts) > 2 && strings.Contains(parts[2], "ro") {
			v.ReadOnly = true
		}
	}
	if IsHostPath(v.Source) {
		v.Type = "bind"
	} else {
		v.Type = "volume"
	}
	return v
}

// IsHostPath reports whether a volume source refers to a host path rather
// than a named volume.
func IsHostPath(source string) bool {
	return strings.HasPrefix(source, "/") || strings.HasPrefix(source, ".") || strings.HasPrefix(source, "~")
}

// ServiceNames returns the compose service names, sorted.
func (c *Compose) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the compose document.
func (c *Compose) Clone() (*Compose, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	var out Compose
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeCompose converts a generic document into a Compose.
func DecodeCompose(raw map[string]any) (*Compose, error) {
	var c Compose
	if err := fromMap(raw, &c); err != nil {
		return nil, errors.Wrap("decode compose", "", err)
	}
	return &c, nil
}

// ReadCompose reads a compose file.
func ReadCompose(path string) (*Compose, error) {
	raw, err := ReadRaw(path)
	if err != nil {
		return nil, err
	}
	c, err := DecodeCompose(raw)
	if err != nil {
		return nil, errors.Wrap("read compose", path, err)
	}
	return c, nil
}

// WriteCompose writes c to path as YAML.
func WriteCompose(path string, c *Compose) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap("encode compose", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap("write compose", path, err)
	}
	return nil
}
