package common

import (
	"fmt"
	"io"
	"strings"
	"time"

	units "github.com/docker/go-units"
	humanize "github.com/dustin/go-humanize"
	"github.com/moby/tapkit/api"
)

// PrintHeader prints a nice little header.
func PrintHeader(w io.Writer, columns ...string) {
	underline := make([]string, len(columns))
	for i := range underline {
		underline[i] = strings.Repeat("-", len(columns[i]))
	}
	fmt.Fprintf(w, "%s\n", strings.Join(columns, "\t"))
	fmt.Fprintf(w, "%s\n", strings.Join(underline, "\t"))
}

// FprintfIfNotEmpty prints only if `s` is not empty.
//
// NOTE: Not even remotely a printf function.. doesn't take args.
func FprintfIfNotEmpty(w io.Writer, format string, v interface{}) {
	if v != nil && v != "" {
		fmt.Fprintf(w, format, v)
	}
}

// Age renders how long ago t was, "-" for the zero time.
func Age(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return units.HumanDuration(time.Since(t)) + " ago"
}

// PrintMeta prints the bookkeeping fields of an object.
func PrintMeta(w io.Writer, meta api.Meta) {
	fmt.Fprintf(w, "Version:\t%d\n", meta.Version)
	if !meta.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:\t%s\n", humanize.Time(meta.CreatedAt))
	}
	if !meta.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated:\t%s\n", humanize.Time(meta.UpdatedAt))
	}
}
