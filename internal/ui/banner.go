// Package ui renders the terminal startup banner.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
)

var colors = []string{
	"#7C3AED", //  Violet
	"#EC4899", //  Pink
	"#F59E0B", //  Amber
	"#10B981", //  Green
}

// EASEL ASCII art (filled block style)
var easelArt = []string{
	"    ███████╗ █████╗ ███████╗███████╗██╗     ",
	"    ██╔════╝██╔══██╗██╔════╝██╔════╝██║     ",
	"    █████╗  ███████║███████╗█████╗  ██║     ",
	"    ██╔══╝  ██╔══██║╚════██║██╔══╝  ██║     ",
	"    ███████╗██║  ██║███████║███████╗███████╗",
	"    ╚══════╝╚═╝  ╚═╝╚══════╝╚══════╝╚══════╝",
}

// Print displays the EASEL banner.
func Print() {
	PrintTo(os.Stdout)
}

// PrintTo displays the EASEL banner to a custom writer. Each line cycles
// through the palette, top to bottom.
func PrintTo(w io.Writer) {
	_, _ = fmt.Fprintln(w)

	for i, line := range easelArt {
		style := lipgloss.NewStyle().
			Foreground(lipgloss.Color(colors[i%len(colors)])).
			Bold(true)
		_, _ = fmt.Fprintln(w, style.Render(line))
	}

	_, _ = fmt.Fprintln(w)
}

// PrintWithInfo displays the banner with version and listen address.
func PrintWithInfo(version, addr string) {
	Print()

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#808080")).
		Italic(true)

	info := fmt.Sprintf("Version: %s | Listening on: %s", version, addr)
	fmt.Println(infoStyle.Render(info))
	fmt.Println()
}

// BannerString returns the banner as plain text.
func BannerString() string {
	var sb strings.Builder
	for _, line := range easelArt {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
