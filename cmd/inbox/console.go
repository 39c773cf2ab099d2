package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Vasu1712/scenyx-inbox/internal/inbox"
	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

const helpText = `commands:
  list                       show conversations (filtered by the current search)
  open N|ID                  select a conversation by list position or id
  show                       print the selected conversation
  send TEXT                  send text to the selected conversation
  attach FILE... [-- TEXT]   send files with an optional caption
  search [TERM]              filter by display name, empty clears
  quit`

// console is a line-oriented front end over the engine.
type console struct {
	engine *inbox.Engine

	mu         sync.Mutex
	out        io.Writer
	lastUnread int
}

func newConsole(e *inbox.Engine, out io.Writer) *console {
	c := &console{engine: e, out: out, lastUnread: e.TotalUnread()}
	e.OnChange(c.changed)
	return c
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// changed announces new unread messages in other conversations.
func (c *console) changed() {
	total := c.engine.TotalUnread()
	c.mu.Lock()
	prev := c.lastUnread
	c.lastUnread = total
	c.mu.Unlock()
	if total > prev {
		c.printf("* %d unread\n", total)
	}
}

// Run reads commands until quit, EOF or ctx is done.
func (c *console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printList()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) (quit bool) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "":
	case "quit", "exit":
		return true
	case "help":
		c.printf("%s\n", helpText)
	case "list", "ls":
		c.printList()
	case "open":
		c.open(rest)
	case "show":
		c.printMessages()
	case "send":
		c.send(ctx, inbox.Draft{Text: rest})
	case "attach":
		c.attach(ctx, rest)
	case "search":
		c.engine.Search(rest)
		c.printf("searching for %q\n", rest)
	default:
		c.printf("unknown command %q, try help\n", cmd)
	}
	return false
}

func (c *console) printList() {
	if err := c.engine.LoadError(); err != nil {
		c.printf("could not load conversations: %v\n", err)
		return
	}
	convs := c.engine.Visible()
	if len(convs) == 0 {
		c.printf("no conversations\n")
		return
	}
	selected := c.engine.Selected()
	for i, conv := range convs {
		marker := " "
		if conv.CounterpartID == selected {
			marker = ">"
		}
		unread := ""
		if conv.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d)", conv.UnreadCount)
		}
		c.printf("%s %2d. %s%s  %s\n", marker, i+1, conv.DisplayName, unread, conv.LastMessagePreview)
	}
}

func (c *console) open(arg string) {
	id := arg
	if n, err := strconv.Atoi(arg); err == nil {
		convs := c.engine.Visible()
		if n < 1 || n > len(convs) {
			c.printf("no conversation %d\n", n)
			return
		}
		id = convs[n-1].CounterpartID
	}
	if err := c.engine.SelectConversation(id); err != nil {
		c.printf("%v\n", err)
		return
	}
	c.printMessages()
}

func (c *console) printMessages() {
	id := c.engine.Selected()
	if id == "" {
		c.printf("no conversation selected\n")
		return
	}
	conv, _ := c.engine.Conversation(id)
	c.printf("-- %s [%s]\n", conv.DisplayName, c.engine.LogState(id))
	if err := c.engine.HistoryError(id); err != nil {
		c.printf("history unavailable: %v\n", err)
	}
	for _, m := range c.engine.Messages() {
		who := conv.DisplayName
		if m.SenderType == models.SenderSelf {
			who = "you"
		}
		status := ""
		if m.Pending() {
			status = " (sending)"
		}
		c.printf("%s %s: %s%s\n", m.CreatedAt.Local().Format("15:04"), who, inbox.FormatPreview(m), status)
	}
}

func (c *console) attach(ctx context.Context, arg string) {
	paths, caption, _ := strings.Cut(arg, "--")
	d := inbox.Draft{Text: strings.TrimSpace(caption)}
	for _, path := range strings.Fields(paths) {
		data, err := os.ReadFile(path)
		if err != nil {
			c.printf("cannot read %s: %v\n", path, err)
			return
		}
		d.Attachments = append(d.Attachments, inbox.LocalFile{Name: filepath.Base(path), Data: data})
	}
	c.send(ctx, d)
}

func (c *console) send(ctx context.Context, d inbox.Draft) {
	msg, err := c.engine.Send(ctx, d)
	if err != nil {
		c.printf("send failed [%s]: %v\n", inbox.KindOf(err), err)
		return
	}
	c.printf("sent %s\n", inbox.FormatPreview(msg))
}
