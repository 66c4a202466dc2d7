//go:build !hftokenizers

package tokenizer

import "path/filepath"

// Load opens the tokenizer stored in a model directory.
func Load(dir string) (Tokenizer, error) {
	tok, err := LoadHFTokenizer(filepath.Join(dir, "tokenizer.json"), filepath.Join(dir, "tokenizer_config.json"))
	if err != nil {
		return nil, err
	}
	return tok, nil
}
