package cli

import (
	"fmt"
	"io"
	"net/url"
	"sync"
)

// TerminalNavigator stands in for the browser location. Navigations are
// recorded and announced on the terminal.
type TerminalNavigator struct {
	out io.Writer

	mu      sync.Mutex
	current *url.URL
	history []string
}

func NewTerminalNavigator(out io.Writer, start string) *TerminalNavigator {
	n := &TerminalNavigator{out: out}
	n.Set(start)
	return n
}

// Set moves to path silently, as if the user opened it.
func (n *TerminalNavigator) Set(path string) {
	u, err := url.Parse(path)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	n.mu.Lock()
	n.current = u
	n.mu.Unlock()
}

func (n *TerminalNavigator) Current() *url.URL {
	n.mu.Lock()
	defer n.mu.Unlock()
	u := *n.current
	return &u
}

func (n *TerminalNavigator) Go(target string) {
	n.Set(target)
	n.mu.Lock()
	n.history = append(n.history, target)
	n.mu.Unlock()
	if n.out != nil {
		fmt.Fprintf(n.out, "→ %s\n", target)
	}
}

// History lists the targets navigated to, oldest first.
func (n *TerminalNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.history...)
}
