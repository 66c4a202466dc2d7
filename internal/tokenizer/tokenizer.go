package tokenizer

// Tokenizer is the text <-> id mapping used by the server and the CLI.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int, skipSpecial bool) (string, error)
	IsSpecial(id int) bool
	EOSID() int
	VocabSize() int
}

// BatchDecode decodes every row independently.
func BatchDecode(t Tokenizer, rows [][]int, skipSpecial bool) ([]string, error) {
	out := make([]string, len(rows))
	for i, ids := range rows {
		s, err := t.Decode(ids, skipSpecial)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
