package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/moikas-code/script-sub002/asyncify"
	"github.com/moikas-code/script-sub002/ir"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	blockStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const defaultWidth = 80

// printer writes the non-interactive reports. Colour is used only when the
// output is a terminal.
type printer struct {
	w     io.Writer
	color bool
	width int
}

func newPrinter(f *os.File) *printer {
	fd := f.Fd()
	p := &printer{
		w:     f,
		color: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
		width: defaultWidth,
	}
	if w, _, err := term.GetSize(int(fd)); err == nil && w > 0 {
		p.width = w
	}
	return p
}

func (p *printer) paint(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *printer) clip(line string) string {
	r := []rune(line)
	if len(r) <= p.width || p.width < 2 {
		return line
	}
	return string(r[:p.width-1]) + "…"
}

func (p *printer) rule(title string) {
	head := "── " + title + " "
	if n := p.width - len([]rune(head)); n > 0 {
		head += strings.Repeat("─", n)
	}
	fmt.Fprintln(p.w, p.paint(titleStyle, p.clip(head)))
}

func (p *printer) module(m *ir.Module) {
	for _, fn := range m.Functions() {
		if fn.External {
			continue
		}
		p.rule(fn.Name)
		for _, line := range strings.Split(strings.TrimRight(fn.String(), "\n"), "\n") {
			line = p.clip(line)
			switch {
			case strings.HasPrefix(line, "fn "), strings.HasPrefix(line, "async fn "):
				line = p.paint(funcStyle, line)
			case strings.HasPrefix(line, "bb"):
				line = p.paint(blockStyle, line)
			}
			fmt.Fprintln(p.w, line)
		}
		fmt.Fprintln(p.w)
	}
}

func (p *printer) layout(m *ir.Module, info *asyncify.Info) {
	orig := m.Function(info.OriginalFn)
	poll := m.Function(info.PollFn)
	p.rule(orig.Name + " state record")
	fmt.Fprintf(p.w, "size %d bytes, %d suspend points, poll function %s\n\n",
		info.StateSize, len(info.SuspendPoints), p.paint(funcStyle, poll.Name))
	fmt.Fprintf(p.w, "%8s %6s  %s\n", "offset", "size", "slot")
	for _, s := range info.Slots {
		fmt.Fprintf(p.w, "%8d %6d  %s\n", s.Offset, s.Size, p.paint(typeStyle, s.Name))
	}
	if len(info.SuspendPoints) > 0 {
		fmt.Fprintln(p.w)
	}
	for _, sp := range info.SuspendPoints {
		name := sp.ResumeBlock.String()
		if b := poll.Block(sp.ResumeBlock); b != nil {
			name = b.Name
		}
		fmt.Fprintf(p.w, "state %d resumes at %s\n", sp.StateID, p.paint(blockStyle, name))
	}
	fmt.Fprintln(p.w)
}

func (p *printer) summary(m *ir.Module, infos []*asyncify.Info) {
	if len(infos) == 0 {
		fmt.Fprintln(p.w, "no async functions")
		return
	}
	for _, info := range infos {
		fmt.Fprintf(p.w, "lowered %s -> %s (%d bytes, %d suspend points)\n",
			p.paint(funcStyle, m.Function(info.OriginalFn).Name),
			p.paint(funcStyle, m.Function(info.PollFn).Name),
			info.StateSize, len(info.SuspendPoints))
	}
}

func (p *printer) result(name string, v any) {
	fmt.Fprintf(p.w, "%s = %s\n", p.paint(funcStyle, name), p.paint(resultStyle, formatValue(v)))
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "()"
	case string:
		return fmt.Sprintf("%q", x)
	}
	return fmt.Sprint(v)
}
