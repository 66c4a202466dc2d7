//go:build hftokenizers

package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/daulet/tokenizers"
	"github.com/goccy/go-json"
)

// RustTokenizer wraps the Hugging Face tokenizers library through cgo. It
// handles every model type the library does, unlike HFTokenizer which is
// limited to byte-level BPE.
type RustTokenizer struct {
	tk         *tokenizers.Tokenizer
	specialIDs map[int]struct{}
	eosID      int
}

// Load opens the tokenizer stored in a model directory.
func Load(dir string) (Tokenizer, error) {
	tok, err := LoadRustTokenizer(filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// LoadRustTokenizer loads tokenizer.json. Special tokens are read from the
// file's added_tokens table since the library does not expose them.
func LoadRustTokenizer(path string) (*RustTokenizer, error) {
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		_ = tk.Close()
		return nil, err
	}
	var tj struct {
		AddedTokens []hfAddedToken `json:"added_tokens"`
	}
	if err := json.Unmarshal(raw, &tj); err != nil {
		_ = tk.Close()
		return nil, fmt.Errorf("parse tokenizer.json: %w", err)
	}
	r := &RustTokenizer{tk: tk, specialIDs: make(map[int]struct{}), eosID: -1}
	for _, at := range tj.AddedTokens {
		if !at.Special {
			continue
		}
		r.specialIDs[at.ID] = struct{}{}
		switch at.Content {
		case "</s>", "<|endoftext|>", "<|im_end|>", "<|eot_id|>":
			if r.eosID < 0 {
				r.eosID = at.ID
			}
		}
	}
	return r, nil
}

func (r *RustTokenizer) Encode(text string) ([]int, error) {
	raw, _ := r.tk.Encode(text, true)
	ids := make([]int, len(raw))
	for i, id := range raw {
		ids[i] = int(id)
	}
	return ids, nil
}

func (r *RustTokenizer) Decode(ids []int, skipSpecial bool) (string, error) {
	raw := make([]uint32, len(ids))
	for i, id := range ids {
		if id < 0 {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
		raw[i] = uint32(id)
	}
	return r.tk.Decode(raw, skipSpecial), nil
}

func (r *RustTokenizer) IsSpecial(id int) bool {
	_, ok := r.specialIDs[id]
	return ok
}

func (r *RustTokenizer) EOSID() int     { return r.eosID }
func (r *RustTokenizer) VocabSize() int { return int(r.tk.VocabSize()) }

func (r *RustTokenizer) Close() error { return r.tk.Close() }
