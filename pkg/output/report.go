package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/chazu/topoc/pkg/validate"
)

// Report colors. fatih/color disables them when NO_COLOR is set or the
// output is not a terminal.
var (
	ErrorColor   = color.New(color.FgRed, color.Bold)
	WarningColor = color.New(color.FgYellow, color.Bold)
	SuccessColor = color.New(color.FgGreen, color.Bold)
	EntityColor  = color.New(color.FgCyan)
	PathColor    = color.New(color.FgHiBlack)
)

// WriteIssues writes a human-readable validation report followed by a summary line
func WriteIssues(w io.Writer, issues validate.Issues) {
	for _, issue := range issues {
		label := WarningColor.Sprint("warning")
		if issue.Severity == validate.SeverityError {
			label = ErrorColor.Sprint("error")
		}
		fmt.Fprintf(w, "%s %s %s: %s (%s)\n",
			label,
			EntityColor.Sprint(issue.Entity),
			PathColor.Sprint(issue.Path),
			issue.Message,
			issue.Code,
		)
	}

	errs, warns := len(issues.Errors()), len(issues.Warnings())
	switch {
	case errs > 0:
		fmt.Fprintln(w, ErrorColor.Sprintf("%s, %s", plural(errs, "error"), plural(warns, "warning")))
	case warns > 0:
		fmt.Fprintln(w, WarningColor.Sprintf("valid with %s", plural(warns, "warning")))
	default:
		fmt.Fprintln(w, SuccessColor.Sprint("valid"))
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// Indent prefixes every line of s
func Indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
