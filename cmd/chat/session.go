package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const (
	apology = "Sorry, something went wrong while processing your request."
	prompt  = "you> "
	help    = "Ask about a game bug. Commands: /history, /clear, /quit"
)

type message struct {
	role     string // "user" or "bot"
	content  string
	bugTitle string
}

type asker interface {
	Ask(ctx context.Context, question string) (reply, error)
}

type session struct {
	api     asker
	out     io.Writer
	history []message
}

func newSession(api asker, out io.Writer) *session {
	return &session{api: api, out: out}
}

// Run reads questions line by line until EOF, /quit or ctx is cancelled.
func (s *session) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.out, help)
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, prompt)
		if !sc.Scan() {
			fmt.Fprintln(s.out)
			return sc.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			s.history = nil
			fmt.Fprintln(s.out, "history cleared")
			continue
		case "/history":
			s.printHistory()
			continue
		}

		s.history = append(s.history, message{role: "user", content: line})
		s.show(s.answer(ctx, line))
	}
}

func (s *session) answer(ctx context.Context, question string) message {
	r, err := s.api.Ask(ctx, question)
	if err != nil {
		m := message{role: "bot", content: apology}
		s.history = append(s.history, m)
		return m
	}
	m := message{role: "bot", content: r.Response}
	if r.BugTitle != nil {
		m.bugTitle = *r.BugTitle
	}
	s.history = append(s.history, m)
	return m
}

func (s *session) show(m message) {
	fmt.Fprintf(s.out, "bot> %s\n", m.content)
	if m.bugTitle != "" {
		fmt.Fprintf(s.out, "     [bug: %s]\n", m.bugTitle)
	}
}

func (s *session) printHistory() {
	if len(s.history) == 0 {
		fmt.Fprintln(s.out, "(no messages)")
		return
	}
	for _, m := range s.history {
		if m.role == "user" {
			fmt.Fprintf(s.out, "you> %s\n", m.content)
			continue
		}
		s.show(m)
	}
}
