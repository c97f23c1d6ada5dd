// Package version holds pkginstall's build-time version metadata.
package version

import (
	"fmt"
	"io"
	"os"
)

// mainpkg is the canonical project import path under which the binary
// was built.
var mainpkg = "github.com/distribution/pkginstall"

// version is the version of the binary running. Replaced at build time
// via -ldflags; the value here is used for a go-install build.
var version = "v0.0.0+unknown"

// revision is the VCS revision the binary was built from, filled in at
// link time.
var revision = ""

// Package returns the canonical import path the binary was built under.
func Package() string { return mainpkg }

// Version returns the module version the running binary was built from.
func Version() string { return version }

// Revision returns the VCS revision used to build the binary.
func Revision() string { return revision }

// FprintVersion writes "<cmd> <project> <version>" followed by a
// newline.
func FprintVersion(w io.Writer) {
	fmt.Fprintln(w, os.Args[0], Package(), Version())
}

// PrintVersion writes the version information to stdout.
func PrintVersion() {
	FprintVersion(os.Stdout)
}
