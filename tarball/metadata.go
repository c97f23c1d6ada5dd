package tarball

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/distribution/pkginstall/digest"
)

// defaultMain is the fallback "main" field for a package whose
// package.json doesn't declare one.
const defaultMain = "index.js"

// installScriptNames are the package.json "scripts" entries that mark
// a package as having install-time side effects.
var installScriptNames = map[string]bool{
	"install":     true,
	"preinstall":  true,
	"postinstall": true,
}

// Metadata is the package metadata emitted alongside a Manifest.
// name/version are taken from package.json when it declares them;
// integrity/resolved are left blank here, and the Orchestrator fills
// them in once it knows the dependency's identity.
type Metadata struct {
	Main              string        `json:"main"`
	HasInstallScripts bool          `json:"hasInstallScripts"`
	HasNativeBuild    bool          `json:"hasNativeBuild"`
	Files             Manifest      `json:"files"`
	Name              string        `json:"name,omitempty"`
	Version           string        `json:"version,omitempty"`
	Integrity         digest.Digest `json:"integrity,omitempty"`
	Resolved          string        `json:"resolved,omitempty"`

	Description          string            `json:"description,omitempty"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	DevDependencies      map[string]string `json:"devDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	Bin                  json.RawMessage   `json:"bin,omitempty"`
	Engines              map[string]string `json:"engines,omitempty"`
	OS                   []string          `json:"os,omitempty"`
	CPU                  []string          `json:"cpu,omitempty"`
}

// newMetadata returns a Metadata with spec-mandated defaults.
func newMetadata() *Metadata {
	return &Metadata{
		Main:  defaultMain,
		Files: Manifest{},
	}
}

// packageJSON is the subset of package.json fields this core reads.
// Unrecognised fields are ignored: the Unpacker is not a
// general-purpose npm manifest parser, it only extracts what the
// Metadata struct needs.
type packageJSON struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Description          string            `json:"description"`
	Main                 string            `json:"main"`
	Scripts              map[string]string `json:"scripts"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	Bin                  json.RawMessage   `json:"bin"`
	Engines              map[string]string `json:"engines"`
	OS                   []string          `json:"os"`
	CPU                  []string          `json:"cpu"`
}

// applyPackageJSON parses body as UTF-8 JSON (stripping a leading
// BOM) and folds the recognised fields into meta. A parse failure is
// returned so the caller can report it as an entry-level warning
// rather than aborting the whole unpack.
func applyPackageJSON(meta *Metadata, body []byte) error {
	body = stripBOM(body)

	var pj packageJSON
	if err := json.Unmarshal(body, &pj); err != nil {
		return err
	}

	if pj.Main != "" {
		meta.Main = pj.Main
	}
	for name := range pj.Scripts {
		if installScriptNames[name] {
			meta.HasInstallScripts = true
			break
		}
	}

	meta.Name = pj.Name
	meta.Version = pj.Version
	meta.Description = pj.Description
	meta.Dependencies = pj.Dependencies
	meta.DevDependencies = pj.DevDependencies
	meta.PeerDependencies = pj.PeerDependencies
	meta.OptionalDependencies = pj.OptionalDependencies
	meta.Bin = pj.Bin
	meta.Engines = pj.Engines
	meta.OS = pj.OS
	meta.CPU = pj.CPU

	return nil
}

// applyGypFile records that path is a node-gyp build file, which
// always implies both HasInstallScripts and HasNativeBuild,
// independent of anything package.json declares.
func applyGypFile(meta *Metadata, path string) {
	if strings.HasSuffix(path, ".gyp") {
		meta.HasInstallScripts = true
		meta.HasNativeBuild = true
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(body []byte) []byte {
	return bytes.TrimPrefix(body, utf8BOM)
}
