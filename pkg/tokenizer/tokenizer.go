// Package tokenizer counts model tokens. Chunk boundaries depend on these
// counts, so the encoding must stay fixed across releases.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the BPE encoding used for chunk budgeting.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens in a string.
type Counter interface {
	Count(text string) int
}

var loaderOnce sync.Once

// Tiktoken counts tokens with a named tiktoken encoding. BPE ranks are loaded
// from the embedded offline loader, never from the network.
type Tiktoken struct {
	mu       sync.Mutex
	enc      *tiktoken.Tiktoken
	encoding string
}

// NewTiktoken loads the named encoding.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load %s: %w", encoding, err)
	}
	return &Tiktoken{enc: enc, encoding: encoding}, nil
}

// Count implements Counter.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// Encoding returns the encoding name.
func (t *Tiktoken) Encoding() string { return t.encoding }

// Words approximates tokens as whitespace-separated words.
type Words struct{}

// Count implements Counter.
func (Words) Count(text string) int { return len(strings.Fields(text)) }

// Func adapts a plain function to Counter.
type Func func(string) int

// Count implements Counter.
func (f Func) Count(text string) int { return f(text) }
