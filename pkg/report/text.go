package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/andrej220/secuaudit/pkg/audit"
)

const (
	green  = "\033[32m"
	red    = "\033[31m"
	yellow = "\033[33m"
	reset  = "\033[0m"
)

// Text renders a fixed-width table followed by a summary line.
type Text struct {
	Color bool
}

func (Text) Format() string { return FormatText }

func (t Text) Render(w io.Writer, r Report) error {
	bw := bufio.NewWriter(w)

	idW, nameW := utf8.RuneCountInString("RULE ID"), utf8.RuneCountInString("CHECK NAME")
	for _, res := range r.Results {
		idW = max(idW, utf8.RuneCountInString(res.RuleID))
		nameW = max(nameW, utf8.RuneCountInString(res.Name))
	}
	indent := strings.Repeat(" ", idW+nameW+4)

	fmt.Fprintln(bw, "Security Compliance Report")
	fmt.Fprintf(bw, "Target: %s  Run: %s  Generated: %s\n\n", r.Target, r.RunID, r.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "%-*s  %-*s  %s\n", idW, "RULE ID", nameW, "CHECK NAME", "STATUS")

	for _, res := range r.Results {
		fmt.Fprintf(bw, "%-*s  %-*s  %s\n", idW, res.RuleID, nameW, res.Name, t.status(res.Status))
		for _, line := range details(res) {
			fmt.Fprintf(bw, "%s%s\n", indent, line)
		}
	}

	s := r.Summary
	fmt.Fprintf(bw, "\nTotal: %d | Pass: %d | Fail: %d | Error: %d\n", s.Total, s.Passed, s.Failed, s.Errors)
	return bw.Flush()
}

func (t Text) status(s audit.Status) string {
	if !t.Color {
		return string(s)
	}
	color := yellow
	switch s {
	case audit.StatusPass:
		color = green
	case audit.StatusFail:
		color = red
	}
	return color + string(s) + reset
}

func details(res audit.Result) []string {
	switch res.Status {
	case audit.StatusError:
		return []string{"Error: " + oneLine(res.Error)}
	case audit.StatusFail:
		return []string{
			"Expected: " + oneLine(res.ExpectedOutput),
			"Found:    " + oneLine(res.ActualOutput),
		}
	}
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
