package ui

import (
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/printgate/internal/client"
)

// Output writes styled client output to a writer.
type Output struct {
	out   io.Writer
	width int
}

// NewOutput creates an Output for w, or os.Stdout if w is nil.
func NewOutput(w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{out: w, width: GetTerminalWidth()}
}

// SetWidth overrides the detected terminal width
func (o *Output) SetWidth(width int) *Output {
	o.width = clampWidth(width)
	return o
}

// Width returns the width used for rendering
func (o *Output) Width() int {
	return o.width
}

// Println writes content with a newline
func (o *Output) Println(content string) {
	_, _ = fmt.Fprintln(o.out, content)
}

// Newline prints an empty line
func (o *Output) Newline() {
	_, _ = fmt.Fprintln(o.out)
}

// PrintHeader prints a command header box
func (o *Output) PrintHeader(title, command string, params ...Field) {
	o.Println(NewHeader(title, command, params...).SetWidth(o.width).Render())
	o.Newline()
}

// PrintSuccess prints a success result box
func (o *Output) PrintSuccess(title string, details ...Field) {
	o.Println(NewSuccessResult(title, details...).SetWidth(o.width).Render())
}

// PrintWarning prints a warning result box
func (o *Output) PrintWarning(title string, details ...Field) {
	o.Println(NewWarningResult(title, details...).SetWidth(o.width).Render())
}

// PrintError prints a failure box using the client's troubleshooting hint.
func (o *Output) PrintError(title string, err error) {
	tips := TipsFromHint(client.GetTroubleshootingHint(err))
	o.Println(NewFailureResult(title, err, tips).SetWidth(o.width).Render())
}

// PrintProgress prints the current state of a progress display
func (o *Output) PrintProgress(p *Progress) {
	o.Println(p.SetWidth(o.width).Render())
}

// PrintPrinters prints the printer table
func (o *Output) PrintPrinters(printers []client.Printer) {
	o.Println(RenderPrinterTable(printers, o.width))
}

// RenderPrinterTable renders printers as aligned columns: local queues
// first, then network printers, each group sorted by name.
func RenderPrinterTable(printers []client.Printer, width int) string {
	if len(printers) == 0 {
		return StepPendingStyle.Render("  No printers found")
	}

	sorted := append([]client.Printer(nil), printers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsNetwork() != sorted[j].IsNetwork() {
			return !sorted[i].IsNetwork()
		}
		return sorted[i].Name < sorted[j].Name
	})

	headers := []string{"NAME", "TYPE", "ADDRESS", "STATE"}
	rows := make([][]string, 0, len(sorted))
	for _, p := range sorted {
		rows = append(rows, []string{p.Name, p.Type, printerAddress(p), p.State})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	// the address column absorbs any overflow
	if total := sum(widths) + 2*len(widths) + 2; total > width {
		widths[2] -= total - width
		if widths[2] < 10 {
			widths[2] = 10
		}
	}

	var lines []string
	var head []string
	for i, h := range headers {
		head = append(head, TableHeaderStyle.Render(pad(h, widths[i])))
	}
	lines = append(lines, "  "+strings.Join(head, "  "))

	for i, row := range rows {
		typeStyle := LocalTypeStyle
		if sorted[i].IsNetwork() {
			typeStyle = NetworkTypeStyle
		}
		cells := []string{
			TableCellStyle.Render(pad(row[0], widths[0])),
			typeStyle.Render(pad(row[1], widths[1])),
			TableCellStyle.Render(pad(truncate(row[2], widths[2]), widths[2])),
			StateStyle(row[3]).Render(pad(row[3], widths[3])),
		}
		lines = append(lines, "  "+strings.Join(cells, "  "))
	}

	return strings.Join(lines, "\n")
}

func printerAddress(p client.Printer) string {
	if p.IsNetwork() && p.Port > 0 {
		return net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
	}
	return p.Address
}

func pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width || width < 2 {
		return s
	}
	return string(r[:width-1]) + "…"
}

func sum(xs []int) int {
	n := 0
	for _, x := range xs {
		n += x
	}
	return n
}
