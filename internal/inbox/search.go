package inbox

import (
	"strings"
	"sync"
	"time"
)

const defaultSearchDebounce = 300 * time.Millisecond

// Search holds the debounced filter term. The term only takes effect once
// input has been quiet for the debounce window.
type Search struct {
	delay    time.Duration
	onSettle func()

	mu      sync.Mutex
	term    string
	pending string
	timer   *time.Timer
}

func NewSearch(delay time.Duration, onSettle func()) *Search {
	if delay <= 0 {
		delay = defaultSearchDebounce
	}
	return &Search{delay: delay, onSettle: onSettle}
}

func (s *Search) Set(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = term
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.flush)
}

func (s *Search) flush() {
	s.mu.Lock()
	changed := s.term != s.pending
	s.term = s.pending
	s.timer = nil
	s.mu.Unlock()
	if changed && s.onSettle != nil {
		s.onSettle()
	}
}

// Term is the currently effective (settled) search term.
func (s *Search) Term() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term
}

// Filter keeps the conversations whose display name contains the settled
// term, case-insensitively. The input slice is not modified.
func (s *Search) Filter(convs []Conversation) []Conversation {
	term := strings.ToLower(strings.TrimSpace(s.Term()))
	if term == "" {
		return convs
	}
	out := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		if strings.Contains(strings.ToLower(c.DisplayName), term) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Search) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
