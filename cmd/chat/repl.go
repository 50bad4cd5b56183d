package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mygpt-backend/internal/config"
	"mygpt-backend/internal/model"
	"mygpt-backend/internal/session"

	"github.com/peterh/liner"
)

const helpText = `Commands:
  /new <text>       start a chat with an opening message
  /list             list your chats
  /open <id>        open a chat
  /mode text|image  pick the text or image model
  /attach <file>    attach an image to the next message (/attach alone clears it)
  /history          redraw the current chat
  /help             show this help
  /quit             leave
Anything else is sent to the open chat, or starts a new one.`

type backend interface {
	session.ChatStore
	session.TextSource
	session.ImageSource
	CreateChat(ctx context.Context, req model.CreateChatRequest) (string, error)
	ListChats(ctx context.Context) ([]model.ChatSummary, error)
	AttachFile(ctx context.Context, path string) (*session.Attachment, error)
	AssetURL(prefix, path string) string
}

type repl struct {
	api  backend
	cfg  *config.Config
	out  io.Writer
	md   *markdown
	line *liner.State

	historyFile string
	ctrl        *session.Controller
	printer     *streamPrinter
}

func newREPL(api backend, cfg *config.Config, out io.Writer) *repl {
	r := &repl{api: api, cfg: cfg, out: out, md: newMarkdown()}
	r.printer = newStreamPrinter(out, r.assetURL)
	return r
}

func (r *repl) assetURL(path string) string {
	return r.api.AssetURL(r.cfg.Assets.URLPrefix, path)
}

func (r *repl) prompt() string {
	if r.ctrl == nil {
		return "mygpt> "
	}
	if r.ctrl.Mode() == model.ModeImage {
		return "image> "
	}
	return "chat> "
}

func (r *repl) run(ctx context.Context) error {
	r.line = liner.NewLiner()
	r.line.SetCtrlCAborts(true)

	if dir, err := os.UserConfigDir(); err == nil {
		r.historyFile = filepath.Join(dir, "mygpt", "chat_history")
		if f, err := os.Open(r.historyFile); err == nil {
			r.line.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Fprintln(r.out, "MyGPT. Type /help for commands.")

	for {
		input, err := r.line.Prompt(r.prompt())
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if !r.handle(ctx, input) {
			return nil
		}
	}
}

// handle runs one line of input and reports whether the loop should continue.
func (r *repl) handle(ctx context.Context, input string) bool {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	if !strings.HasPrefix(cmd, "/") {
		r.send(ctx, input)
		return true
	}

	switch cmd {
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/new":
		if arg == "" {
			r.fail(errors.New("usage: /new <text>"))
			return true
		}
		r.create(ctx, arg)
	case "/list":
		r.list(ctx)
	case "/open":
		if arg == "" {
			r.fail(errors.New("usage: /open <id>"))
			return true
		}
		r.open(ctx, arg)
	case "/mode":
		r.setMode(arg)
	case "/attach":
		r.attach(ctx, arg)
	case "/history":
		if r.ctrl == nil {
			r.fail(errors.New("no chat open"))
			return true
		}
		printView(r.out, r.ctrl.View(), r.md, r.assetURL)
	default:
		r.fail(fmt.Errorf("unknown command %s", cmd))
	}
	return true
}

func (r *repl) fail(err error) {
	fmt.Fprintf(r.out, "error: %v\n", err)
}

func (r *repl) send(ctx context.Context, text string) {
	if r.ctrl == nil {
		r.create(ctx, text)
		return
	}

	r.printer.reset()
	err := r.ctrl.Submit(ctx, text, nil)
	r.printer.finish()
	if err != nil {
		r.fail(err)
	}
}

func (r *repl) create(ctx context.Context, text string) {
	id, err := r.api.CreateChat(ctx, model.CreateChatRequest{Text: text})
	if err != nil {
		r.fail(err)
		return
	}
	fmt.Fprintf(r.out, "chat %s\n", id)
	r.open(ctx, id)
}

func (r *repl) list(ctx context.Context) {
	chats, err := r.api.ListChats(ctx)
	if err != nil {
		r.fail(err)
		return
	}
	if len(chats) == 0 {
		fmt.Fprintln(r.out, "no chats yet")
		return
	}
	// the server returns summaries unordered
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	for _, c := range chats {
		fmt.Fprintf(r.out, "%s  %s  %s\n", c.ID, c.CreatedAt.Format("2006-01-02 15:04"), c.Title)
	}
}

// open switches the view to chatID. A fresh chat with only its opening message
// is answered straight away.
func (r *repl) open(ctx context.Context, chatID string) {
	r.closeView()

	ctrl := session.New(chatID, session.Deps{Text: r.api, Images: r.api, Store: r.api}, session.Options{
		PollInterval:   r.cfg.Client.PollInterval,
		ConfirmTimeout: r.cfg.Client.ConfirmTimeout,
		AutoRunDelay:   r.cfg.Client.AutoRunDelay,
	})

	r.printer.reset()
	ctrl.OnChange(r.printer.observe)

	if err := ctrl.Refresh(ctx); err != nil {
		ctrl.Close()
		r.errorScreen(err)
		return
	}
	r.ctrl = ctrl

	printView(r.out, ctrl.View(), r.md, r.assetURL)
	ctrl.Wait()
	r.printer.finish()
}

func (r *repl) errorScreen(err error) {
	bar := strings.Repeat("─", 60)
	fmt.Fprintf(r.out, "\n%s\n  Something went wrong loading this chat.\n  %v\n%s\n\n", bar, err, bar)
}

func (r *repl) setMode(arg string) {
	if r.ctrl == nil {
		r.fail(errors.New("no chat open"))
		return
	}

	var m model.Mode
	switch arg {
	case "text":
		m = model.ModeText
	case "image":
		m = model.ModeImage
	default:
		m = model.Mode(arg)
	}

	r.printer.reset()
	err := r.ctrl.SetMode(m)
	r.printer.finish()
	if err != nil {
		r.fail(err)
	}
}

func (r *repl) attach(ctx context.Context, path string) {
	if r.ctrl == nil {
		r.fail(errors.New("no chat open"))
		return
	}
	if path == "" {
		if err := r.ctrl.Attach(nil); err != nil {
			r.fail(err)
		}
		return
	}

	att, err := r.api.AttachFile(ctx, path)
	if err != nil {
		r.fail(err)
		return
	}
	if err := r.ctrl.Attach(att); err != nil {
		r.fail(err)
		return
	}
	fmt.Fprintf(r.out, "attached %s\n", r.assetURL(att.Path))
}

func (r *repl) closeView() {
	if r.ctrl != nil {
		r.ctrl.Close()
		r.ctrl = nil
	}
}

func (r *repl) close() {
	r.closeView()
	if r.line == nil {
		return
	}
	if r.historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(r.historyFile), 0o700); err == nil {
			if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
				r.line.WriteHistory(f)
				f.Close()
			}
		}
	}
	r.line.Close()
}
