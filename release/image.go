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
	"path/filepath"
	"strings"
)

// ExternalImageLabel records the original reference of a re-tagged external
// image.
const ExternalImageLabel = "dappnode.dnp.externalImage"

// Provenance labels added to every released service.
const (
	DnpNameLabel    = "dappnode.dnp.dnpName"
	DnpVersionLabel = "dappnode.dnp.version"
)

// PackageImage is an image a package ships. It is either a LocalImage built
// from source or an ExternalImage pulled from a registry.
type PackageImage interface {
	// Service returns the compose service the image belongs to.
	Service() string
	// ImageTag returns the canonical tag the image carries in the release.
	ImageTag() string
	isPackageImage()
}

// LocalImage is built from a compose build section.
type LocalImage struct {
	ServiceName string
	Tag         string
	Context     string
	Dockerfile  string
	Args        map[string]string
}

// ExternalImage is pulled from a registry and re-tagged.
type ExternalImage struct {
	ServiceName   string
	Tag           string
	OriginalImage string
}

// Service implements PackageImage.
func (i LocalImage) Service() string { return i.ServiceName }

// ImageTag implements PackageImage.
func (i LocalImage) ImageTag() string { return i.Tag }

func (LocalImage) isPackageImage() {}

// Service implements PackageImage.
func (i ExternalImage) Service() string { return i.ServiceName }

// ImageTag implements PackageImage.
func (i ExternalImage) ImageTag() string { return i.Tag }

func (ExternalImage) isPackageImage() {}

// ImageTag returns the canonical image tag for a service. When the package
// has a single service named like the package the tag is <name>:<version>,
// otherwise <service>.<name>:<version>.
func ImageTag(dnpName, serviceName, version string, serviceCount int) string {
	if serviceCount == 1 && serviceName == dnpName {
		return dnpName + ":" + version
	}
	return serviceName + "." + dnpName + ":" + version
}

// CanonicalTags maps every compose service to its canonical image tag.
func CanonicalTags(m *Manifest, c *Compose) map[string]string {
	tags := make(map[string]string, len(c.Services))
	for _, name := range c.ServiceNames() {
		tags[name] = ImageTag(m.Name, name, m.Version, len(c.Services))
	}
	return tags
}

// Images derives the package images from the compose services, in service
// name order. Services with neither build nor image are skipped; validation
// reports them.
func Images(m *Manifest, c *Compose) []PackageImage {
	tags := CanonicalTags(m, c)
	images := make([]PackageImage, 0, len(c.Services))
	for _, name := range c.ServiceNames() {
		svc := c.Services[name]
		if svc == nil {
			continue
		}
		switch {
		case svc.Build != nil:
			images = append(images, LocalImage{
				ServiceName: name,
				Tag:         tags[name],
				Context:     svc.Build.Context,
				Dockerfile:  svc.Build.Dockerfile,
				Args:        svc.Build.Args,
			})
		case svc.Image != "":
			images = append(images, ExternalImage{
				ServiceName:   name,
				Tag:           tags[name],
				OriginalImage: svc.Image,
			})
		}
	}
	return images
}

// ReleaseDirName returns the per-variant release directory name.
func ReleaseDirName(dnpName, version string) string {
	return fmt.Sprintf("build_%s_%s", dnpName, version)
}

// Image artifact extensions, one per compression codec and naming scheme.
const (
	ExtTxz   = "txz"
	ExtTarXz = "tar.xz"
	ExtZstd  = "tar.zst"
)

// ArtifactExtensions lists every extension an image artifact may carry.
var ArtifactExtensions = []string{ExtTxz, ExtTarXz, ExtZstd}

// ArtifactName returns the file name of an architecture's image artifact.
// Packages without declared architectures keep the legacy single-arch name.
func ArtifactName(dnpName, version, arch, ext string, multiArch bool) string {
	if !multiArch {
		return fmt.Sprintf("%s_%s.%s", dnpName, version, ext)
	}
	return fmt.Sprintf("%s_%s_%s.%s", dnpName, version, strings.ReplaceAll(arch, "/", "-"), ext)
}

// Variant is the resolved, read-only description of one build of a package.
type Variant struct {
	// Name is the variant key, DefaultVariant when no variants are used.
	Name string
	// RootDir holds the base manifest and compose.
	RootDir string
	// VariantDir holds the variant overlay; empty for the default variant.
	VariantDir string
	// ManifestPath is the manifest file that receives version bumps and
	// the releases record.
	ManifestPath string

	Manifest *Manifest
	Compose  *Compose
	// RawManifest and RawCompose are the merged documents the schema gate
	// evaluates.
	RawManifest map[string]any
	RawCompose  map[string]any

	UpstreamVersion string
	Architectures   []string
	// MultiArch is true when the manifest declares an architectures list.
	MultiArch bool
	Images    []PackageImage

	ReleaseDir       string
	BuildComposePath string
}

// DefaultVariant is the key used when a package has no variants.
const DefaultVariant = "default"

// DefaultArchitecture is built when the manifest declares none.
const DefaultArchitecture = "linux/amd64"

// SourceDirs returns the directories release files are taken from, the
// variant overlay first.
func (v *Variant) SourceDirs() []string {
	if v.VariantDir != "" {
		return []string{v.VariantDir, v.RootDir}
	}
	return []string{v.RootDir}
}

// ArtifactPath returns where the image artifact for arch is written.
func (v *Variant) ArtifactPath(arch, ext string) string {
	return filepath.Join(v.ReleaseDir, ArtifactName(v.Manifest.Name, v.Manifest.Version, arch, ext, v.MultiArch))
}

// ArtifactNames returns the file names every image artifact of v could
// have, across architectures and compression codecs.
func (v *Variant) ArtifactNames() map[string]bool {
	archs := v.Architectures
	if len(archs) == 0 {
		archs = []string{DefaultArchitecture}
	}
	names := make(map[string]bool, len(archs)*len(ArtifactExtensions))
	for _, arch := range archs {
		for _, ext := range ArtifactExtensions {
			names[ArtifactName(v.Manifest.Name, v.Manifest.Version, arch, ext, v.MultiArch)] = true
		}
	}
	return names
}

// LocalImages returns only the images built from source.
func (v *Variant) LocalImages() []LocalImage {
	var out []LocalImage
	for _, img := range v.Images {
		if local, ok := img.(LocalImage); ok {
			out = append(out, local)
		}
	}
	return out
}

// ExternalImages returns only the images pulled from a registry.
func (v *Variant) ExternalImages() []ExternalImage {
	var out []ExternalImage
	for _, img := range v.Images {
		if ext, ok := img.(ExternalImage); ok {
			out = append(out, ext)
		}
	}
	return out
}
