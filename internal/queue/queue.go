package queue

import "strings"

// Queue represents the FIFO of starting letters harvested from the index page
type Queue struct {
	letters []string
	seen    map[string]bool
}

// New creates a queue holding the given letters in order
func New(letters ...string) *Queue {
	q := &Queue{
		letters: make([]string, 0, len(letters)),
		seen:    make(map[string]bool),
	}
	for _, l := range letters {
		q.Add(l)
	}
	return q
}

// Add appends a letter unless it is blank or already queued once
func (q *Queue) Add(letter string) bool {
	letter = strings.TrimSpace(letter)
	if letter == "" || q.seen[letter] {
		return false
	}

	q.seen[letter] = true
	q.letters = append(q.letters, letter)
	return true
}

// Next removes and returns the next letter
func (q *Queue) Next() (string, bool) {
	if len(q.letters) == 0 {
		return "", false
	}

	letter := q.letters[0]
	q.letters = q.letters[1:]
	return letter, true
}

// Keep drops every queued letter not in allowed. An empty allowed set keeps everything.
func (q *Queue) Keep(allowed []string) {
	if len(allowed) == 0 {
		return
	}

	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[strings.ToUpper(strings.TrimSpace(a))] = true
	}

	kept := q.letters[:0]
	for _, l := range q.letters {
		if set[strings.ToUpper(l)] {
			kept = append(kept, l)
		}
	}
	q.letters = kept
}

// Len returns the number of letters still queued
func (q *Queue) Len() int {
	return len(q.letters)
}

// IsEmpty reports whether traversal is finished
func (q *Queue) IsEmpty() bool {
	return len(q.letters) == 0
}
