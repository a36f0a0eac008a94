package main

import (
	"bufio"
	"context"
	"fmt"
	"html"
	"io"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/debemdeboas/draftsync/internal/cache"
	"github.com/debemdeboas/draftsync/internal/model"
	"github.com/debemdeboas/draftsync/internal/visibility"
	"github.com/debemdeboas/draftsync/internal/watcher"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	outputStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

const helpText = `Commands:
  open <key>                 switch to a conversation
  new                        switch to a fresh conversation
  close                      leave the active conversation
  type <text>                replace the reply with text
  append <text>              add a paragraph to the reply
  attach <filename> [size]   stage an attachment
  macro <type> <value> [display]
                             stage a macro action
  unstage                    drop staged attachments and macros
  hide | show                simulate the client being backgrounded or restored
  flush                      save and sync the active draft now
  clear                      discard the active draft (as after sending)
  status                     show the working reply
  drafts                     list drafts held locally
  logout                     sync everything and end the session
  quit                       exit`

// stagedMeta is the attachment and macro state of the reply being composed. The watcher reads
// it from its own goroutine.
type stagedMeta struct {
	mu          sync.Mutex
	nextID      int64
	attachments []model.AttachmentRef
	macros      []model.MacroAction
}

func newStagedMeta() *stagedMeta {
	return &stagedMeta{nextID: 1}
}

func (s *stagedMeta) Attachments() []model.AttachmentRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AttachmentRef(nil), s.attachments...)
}

func (s *stagedMeta) ReplyMacroActions() []model.MacroAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.MacroAction(nil), s.macros...)
}

func (s *stagedMeta) attach(filename string, size int64) model.AttachmentRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ref := model.AttachmentRef{
		ID:          s.nextID,
		Size:        size,
		UUID:        uuid.New().String(),
		Filename:    filename,
		ContentType: contentType,
	}
	s.nextID++
	s.attachments = append(s.attachments, ref)
	return ref
}

func (s *stagedMeta) addMacro(m model.MacroAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.macros = append(s.macros, m)
}

// reset replaces the staged state, e.g. with the meta of a draft that was just loaded.
func (s *stagedMeta) reset(meta model.DraftMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments = append([]model.AttachmentRef(nil), meta.Attachments...)
	s.macros = append([]model.MacroAction(nil), meta.MacroActions...)
	for _, a := range s.attachments {
		if a.ID >= s.nextID {
			s.nextID = a.ID + 1
		}
	}
}

type repl struct {
	in  io.Reader
	out io.Writer

	w       *watcher.Watcher
	trigger *visibility.Trigger
	drafts  *cache.DraftCache
	staged  *stagedMeta
}

func newREPL(in io.Reader, out io.Writer, w *watcher.Watcher, trigger *visibility.Trigger, drafts *cache.DraftCache, staged *stagedMeta) *repl {
	return &repl{in: in, out: out, w: w, trigger: trigger, drafts: drafts, staged: staged}
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, "Compose replies one line at a time. Type 'help' for commands, 'quit' to exit.")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(r.out, promptStyle.Render(r.prompt()+"> "))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			quit, err := r.exec(ctx, line)
			if err != nil {
				fmt.Fprintln(r.out, errorStyle.Render("Error: "+err.Error()))
			}
			if quit {
				return nil
			}
		}
	}
}

func (r *repl) prompt() string {
	if key := r.w.Snapshot().Key; key != "" {
		return string(key)
	}
	return "draftsync"
}

func (r *repl) exec(ctx context.Context, line string) (bool, error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(r.out, dimStyle.Render(helpText))
	case "open":
		if rest == "" {
			return false, fmt.Errorf("usage: open <key>")
		}
		return false, r.open(ctx, model.ConversationKey(rest))
	case "new":
		return false, r.open(ctx, model.ConversationKey(uuid.New().String()))
	case "close":
		return false, r.open(ctx, "")
	case "type":
		r.w.SetContent(paragraph(rest))
	case "append":
		r.w.SetContent(r.w.Snapshot().Content + paragraph(rest))
	case "attach":
		return false, r.attach(rest)
	case "macro":
		return false, r.macro(rest)
	case "unstage":
		r.staged.reset(model.DraftMeta{})
		r.w.MetaChanged()
	case "hide":
		return false, r.trigger.Handle(ctx, visibility.Hidden)
	case "show":
		return false, r.trigger.Handle(ctx, visibility.Visible)
	case "flush":
		if err := r.w.FlushAndSync(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, outputStyle.Render("Synced"))
	case "clear", "send":
		if err := r.w.Clear(ctx); err != nil {
			return false, err
		}
		r.staged.reset(model.DraftMeta{})
		fmt.Fprintln(r.out, outputStyle.Render("Draft cleared"))
	case "status":
		r.status()
	case "drafts":
		r.listDrafts()
	case "logout":
		err := r.w.Reset(ctx)
		r.staged.reset(model.DraftMeta{})
		return false, err
	default:
		return false, fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
	return false, nil
}

func (r *repl) open(ctx context.Context, key model.ConversationKey) error {
	if err := r.w.SetActiveKey(ctx, key); err != nil {
		return err
	}
	snap := r.w.Snapshot()
	r.staged.reset(snap.Meta)
	if key != "" {
		r.status()
	}
	return nil
}

func (r *repl) attach(args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return fmt.Errorf("usage: attach <filename> [size]")
	}

	var size int64
	if len(fields) > 1 {
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid size %q", fields[1])
		}
		size = n
	}

	ref := r.staged.attach(fields[0], size)
	r.w.MetaChanged()
	fmt.Fprintln(r.out, outputStyle.Render(fmt.Sprintf("Attached %s (%s)", ref.Filename, ref.ContentType)))
	return nil
}

func (r *repl) macro(args string) error {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return fmt.Errorf("usage: macro <type> <value> [display]")
	}

	display := fields[1]
	if len(fields) > 2 {
		display = strings.Join(fields[2:], " ")
	}
	r.staged.addMacro(model.MacroAction{
		Type:         fields[0],
		Value:        []string{fields[1]},
		DisplayValue: []string{display},
	})
	r.w.MetaChanged()
	return nil
}

func (r *repl) status() {
	snap := r.w.Snapshot()
	if snap.Key == "" {
		fmt.Fprintln(r.out, dimStyle.Render("No active conversation"))
		return
	}

	state := "synced"
	if snap.Dirty {
		state = "unsynced"
	}
	fmt.Fprintln(r.out, outputStyle.Render(fmt.Sprintf("%s [%s, %s]", snap.Key, snap.State, state)))

	text := strings.TrimSpace(model.VisibleText(snap.Content))
	if text == "" {
		text = "(empty)"
	}
	fmt.Fprintln(r.out, "  "+text)

	for _, a := range snap.Meta.Attachments {
		fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("  attachment %s (%d bytes)", a.Filename, a.Size)))
	}
	for _, m := range snap.Meta.MacroActions {
		fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("  macro %s: %s", m.Type, strings.Join(m.DisplayValue, ", "))))
	}
}

func (r *repl) listDrafts() {
	keys := r.drafts.Keys()
	if len(keys) == 0 {
		fmt.Fprintln(r.out, dimStyle.Render("No local drafts"))
		return
	}

	for _, key := range keys {
		e, ok := r.drafts.Entry(key)
		if !ok {
			continue
		}
		flag := " "
		if e.Dirty {
			flag = "*"
		}
		text := preview(strings.TrimSpace(model.VisibleText(e.Content)), 40)
		fmt.Fprintf(r.out, "%s %s  %s  %s\n", flag, key, dimStyle.Render(e.Timestamp.Format("15:04:05")), text)
	}
}

// preview cuts text to at most n runes.
func preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}

func paragraph(text string) string {
	return "<p>" + html.EscapeString(text) + "</p>"
}
