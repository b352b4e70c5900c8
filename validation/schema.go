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

package validation

import (
	"bytes"
	"encoding/json"
	"strings"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/release"
)

// schemaGate evaluates documents against the schemas reflected from the
// release types.
type schemaGate struct {
	manifest *jsonschema.Schema
	compose  *jsonschema.Schema
}

func newSchemaGate() (*schemaGate, error) {
	manifest, err := compileSchema("mem:///manifest.schema.json", release.ManifestSchema())
	if err != nil {
		return nil, errors.Wrap("compile manifest schema", "", err)
	}
	compose, err := compileSchema("mem:///compose.schema.json", release.ComposeSchema())
	if err != nil {
		return nil, errors.Wrap("compile compose schema", "", err)
	}
	return &schemaGate{manifest: manifest, compose: compose}, nil
}

func compileSchema(url string, reflected *invopop.Schema) (*jsonschema.Schema, error) {
	data, err := json.Marshal(reflected)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// check returns one message per schema violation in doc.
func (g *schemaGate) check(schema *jsonschema.Schema, doc map[string]any) []string {
	data, err := json.Marshal(doc)
	if err != nil {
		return []string{"document is not representable as JSON: " + err.Error()}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return []string{"document is not valid JSON: " + err.Error()}
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}

	var msgs []string
	for _, line := range strings.Split(verr.Error(), "\n")[1:] {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			msgs = append(msgs, "schema: "+line)
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "schema: "+verr.Error())
	}
	return msgs
}

// documentOf returns the raw document for v, or a generic rendering of the
// typed value when no raw document was kept.
func documentOf(raw map[string]any, typed any) (map[string]any, error) {
	if raw != nil {
		return raw, nil
	}
	data, err := yaml.Marshal(typed)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
