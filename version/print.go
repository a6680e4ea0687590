package version

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// FprintVersion outputs the version string to the writer, in the following
// format, followed by a newline:
//
//	<cmd> <project> <version> <revision> (<go version>)
func FprintVersion(w io.Writer) {
	revision := Revision
	if revision == "" {
		revision = "unknown"
	}
	fmt.Fprintf(w, "%s %s %s %s (%s)\n", filepath.Base(os.Args[0]), Package, Version, revision, runtime.Version())
}

// PrintVersion outputs the version information, from Fprint, to stdout.
func PrintVersion() {
	FprintVersion(os.Stdout)
}
