package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// outputStyles holds the lipgloss styles used by every command
type outputStyles struct {
	title  lipgloss.Style
	header lipgloss.Style
	label  lipgloss.Style
	value  lipgloss.Style
	muted  lipgloss.Style
	bar    lipgloss.Style
	note   lipgloss.Style
}

var styles = newStyles(false)

func newStyles(noColor bool) outputStyles {
	if noColor {
		plain := lipgloss.NewStyle()
		return outputStyles{
			title:  plain,
			header: plain,
			label:  plain,
			value:  plain,
			muted:  plain,
			bar:    plain,
			note:   plain,
		}
	}

	return outputStyles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7B68EE")),
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00D4FF")),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7FFF00")),
		muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")),
		bar: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7B68EE")),
		note: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true),
	}
}

// barWidth is the width of a full probability bar
const barWidth = 30

// barFor renders fraction (0..1) as a horizontal bar
func (s outputStyles) barFor(fraction float64) string {
	n := int(fraction*barWidth + 0.5)
	n = min(max(n, 0), barWidth)
	return s.bar.Render(strings.Repeat("█", n)) + s.muted.Render(strings.Repeat("░", barWidth-n))
}

// kv renders a "label: value" line
func (s outputStyles) kv(label string, value any) string {
	return fmt.Sprintf("%s %s", s.label.Render(label+":"), s.value.Render(fmt.Sprint(value)))
}
