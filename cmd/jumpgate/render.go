package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	focusStyle   = lipgloss.NewStyle().Bold(true)
)

func renderText(env remotecall.Envelope) string {
	var b strings.Builder

	if env.Status == remotecall.StatusSuccess {
		b.WriteString(successStyle.Render("✓ success"))
	} else {
		b.WriteString(errorStyle.Render("✗ error"))
	}
	b.WriteString("\n")

	if env.Error != nil {
		fmt.Fprintf(&b, "%s %s\n", titleStyle.Render(string(env.Error.Code)), env.Error.Message)
		for _, key := range sortedKeys(env.Error.Detail) {
			fmt.Fprintf(&b, "  %s %v\n", mutedStyle.Render(key+":"), env.Error.Detail[key])
		}
	}

	if env.Data != nil {
		b.WriteString(renderOutcome(*env.Data))
	}

	if len(env.AllResults) > 0 {
		b.WriteString(titleStyle.Render("Steps"))
		b.WriteString("\n")
		for i, step := range env.AllResults {
			line := fmt.Sprintf("%d. %s", i+1, step.Task)
			if step.Focus {
				line = focusStyle.Render(line + " (focus)")
			}
			mark := successStyle.Render("ok")
			if step.Failed() {
				mark = errorStyle.Render("failed")
			}
			fmt.Fprintf(&b, "  %s %s\n", line, mark)
		}
	}

	return b.String()
}

func renderOutcome(out remotecall.HostOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", titleStyle.Render("Host"), out.Host, mutedStyle.Render(fmt.Sprintf("rc=%d changed=%t", out.RC, out.Changed)))
	if out.Msg != "" {
		fmt.Fprintf(&b, "%s %s\n", mutedStyle.Render("msg:"), out.Msg)
	}
	if s := strings.TrimRight(out.Stdout, "\n"); s != "" {
		b.WriteString(mutedStyle.Render("stdout:"))
		b.WriteString("\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	if s := strings.TrimRight(out.Stderr, "\n"); s != "" {
		b.WriteString(mutedStyle.Render("stderr:"))
		b.WriteString("\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
