package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"mygpt-backend/internal/model"
	"mygpt-backend/internal/session"

	"github.com/charmbracelet/glamour"
)

// streamPrinter writes the pending answer to the terminal as it grows. It only
// ever appends; a replaced answer starts on a new line.
type streamPrinter struct {
	out      io.Writer
	assetURL func(string) string

	mu       sync.Mutex
	printed  string
	thinking bool
	image    string
}

func newStreamPrinter(out io.Writer, assetURL func(string) string) *streamPrinter {
	return &streamPrinter{out: out, assetURL: assetURL}
}

func (p *streamPrinter) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = ""
	p.thinking = false
	p.image = ""
}

// finish ends the current line if anything was printed.
func (p *streamPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed != "" || p.thinking {
		fmt.Fprintln(p.out)
	}
	p.printed = ""
	p.thinking = false
	p.image = ""
}

func (p *streamPrinter) observe(s session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.Generating() && s.Answer == "" && !p.thinking && p.printed == "" {
		fmt.Fprint(p.out, "… thinking\r")
		p.thinking = true
	}

	switch {
	case s.Answer == "" || s.Answer == p.printed:
	case p.printed != "" && strings.HasPrefix(s.Answer, p.printed):
		fmt.Fprint(p.out, s.Answer[len(p.printed):])
		p.printed = s.Answer
	default:
		if p.printed != "" {
			fmt.Fprintln(p.out)
		} else if p.thinking {
			fmt.Fprint(p.out, "\033[2K")
		}
		fmt.Fprint(p.out, s.Answer)
		p.printed = s.Answer
	}

	if s.GeneratedImage != "" && s.GeneratedImage != p.image {
		fmt.Fprintf(p.out, "\n🖼  %s", p.assetURL(s.GeneratedImage))
		p.image = s.GeneratedImage
	}
}

// markdown renders model answers for the terminal, falling back to plain text.
type markdown struct {
	r *glamour.TermRenderer
}

func newMarkdown() *markdown {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return &markdown{}
	}
	return &markdown{r: r}
}

func (m *markdown) render(text string) string {
	if m.r == nil {
		return text + "\n"
	}
	out, err := m.r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// printView writes the merged chat view: confirmed turns plus pending ones.
func printView(out io.Writer, v session.View, md *markdown, assetURL func(string) string) {
	for _, msg := range v.Messages {
		if msg.Role == model.RoleUser {
			fmt.Fprintf(out, "\nyou> %s\n", msg.Text)
			if msg.Img != "" {
				fmt.Fprintf(out, "     📎 %s\n", assetURL(msg.Img))
			}
			continue
		}

		fmt.Fprint(out, md.render(msg.Text))
		if msg.AIImg != "" {
			fmt.Fprintf(out, "🖼  %s\n", assetURL(msg.AIImg))
		}
	}
	if v.Thinking {
		fmt.Fprintln(out, "… thinking")
	}
}
