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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/cowdogmoo/dnpack/logging"
)

// AuthorReader reads the user's identity from ~/.gitconfig, following one
// level of [include] path.
type AuthorReader struct {
	home string
}

// NewAuthorReader returns a reader for the current user's home directory.
func NewAuthorReader() *AuthorReader {
	home, _ := os.UserHomeDir()
	return &AuthorReader{home: home}
}

// NewAuthorReaderForHome reads the git config under home instead.
func NewAuthorReaderForHome(home string) *AuthorReader {
	return &AuthorReader{home: home}
}

// Author returns "Name <email>", "Name", "email" or "" depending on what
// the config declares.
func (r *AuthorReader) Author(ctx context.Context) string {
	if r.home == "" {
		return ""
	}
	cfg, err := ini.Load(filepath.Join(r.home, ".gitconfig"))
	if err != nil {
		logging.DebugContext(ctx, "Failed to load .gitconfig: %v", err)
		return ""
	}

	name, email := userInfo(cfg)
	if name == "" || email == "" {
		if included := r.included(ctx, cfg); included != nil {
			incName, incEmail := userInfo(included)
			if name == "" {
				name = incName
			}
			if email == "" {
				email = incEmail
			}
		}
	}
	return formatAuthor(name, email)
}

func (r *AuthorReader) included(ctx context.Context, cfg *ini.File) *ini.File {
	path := cfg.Section("include").Key("path").String()
	if path == "" {
		return nil
	}
	path = r.expand(path)
	inc, err := ini.Load(path)
	if err != nil {
		logging.DebugContext(ctx, "Failed to load included git config %s: %v", path, err)
		return nil
	}
	return inc
}

// expand resolves ~ and environment variables. Relative include paths are
// relative to the home directory, where .gitconfig lives.
func (r *AuthorReader) expand(path string) string {
	path = os.ExpandEnv(path)
	switch {
	case path == "~":
		return r.home
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(r.home, path[2:])
	case !filepath.IsAbs(path):
		return filepath.Join(r.home, path)
	}
	return path
}

func userInfo(cfg *ini.File) (name, email string) {
	user := cfg.Section("user")
	return user.Key("name").String(), user.Key("email").String()
}

func formatAuthor(name, email string) string {
	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s <%s>", name, email)
	case name != "":
		return name
	default:
		return email
	}
}
