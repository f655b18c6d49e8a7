package clip

import (
	"fmt"

	"github.com/daulet/tokenizers"

	"material-search/internal/embedding"
)

// Tokenizer encodes query text into fixed-length CLIP inputs.
type Tokenizer struct {
	tk     *tokenizers.Tokenizer
	maxLen int
	padID  int64
}

// NewTokenizer loads a HuggingFace tokenizer.json.
func NewTokenizer(path string, maxLen int, padID int64) (*Tokenizer, error) {
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &Tokenizer{tk: tk, maxLen: maxLen, padID: padID}, nil
}

// Encode returns input ids and the attention mask, both maxLen long.
func (t *Tokenizer) Encode(text string) ([]int64, []int64) {
	ids, _ := t.tk.Encode(text, true)
	return embedding.PadTokens(ids, t.maxLen, t.padID)
}

// Close releases the native tokenizer.
func (t *Tokenizer) Close() error {
	return t.tk.Close()
}
