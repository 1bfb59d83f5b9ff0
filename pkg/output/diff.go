package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/chazu/topoc/pkg/inventory"
)

var (
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
	changedColor = color.New(color.FgYellow)
)

// WriteDiff writes one line per added, removed or changed object and a
// summary line. Unchanged objects are only counted.
func WriteDiff(w io.Writer, d *inventory.Result) {
	for _, id := range d.Added {
		fmt.Fprintln(w, addedColor.Sprintf("+ %s", id))
	}
	for _, id := range d.Removed {
		fmt.Fprintln(w, removedColor.Sprintf("- %s", id))
	}
	for _, id := range d.Changed {
		fmt.Fprintln(w, changedColor.Sprintf("~ %s", id))
	}
	fmt.Fprintf(w, "%d added, %d removed, %d changed, %d unchanged\n",
		len(d.Added), len(d.Removed), len(d.Changed), len(d.Unchanged))
}
