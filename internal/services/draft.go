package services

import "sync"

// InputBuffer is the unsent text of the message composer. It is deliberately
// independent of send attempts: a send clears it up front and a failed send
// does not put the text back.
type InputBuffer struct {
	mu   sync.Mutex
	text string
}

// Set replaces the buffer content.
func (b *InputBuffer) Set(text string) {
	b.mu.Lock()
	b.text = text
	b.mu.Unlock()
}

// Get returns the buffer content.
func (b *InputBuffer) Get() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Clear empties the buffer.
func (b *InputBuffer) Clear() {
	b.Set("")
}
