package tokenizer

import (
	"fmt"
	"slices"
	"sync"
	"testing"
)

var testTokenizerJSON = []byte(`{
	"model":{
		"type":"BPE",
		"vocab":{"h":0,"e":1,"l":2,"o":3,"Ġ":4,"he":5,"ll":6,"hell":7,"hello":8,"Ã":10,"©":11},
		"merges":["h e","l l","he ll",["hell","o"]]
	},
	"added_tokens":[{"id":9,"content":"<|endoftext|>","special":true}]
}`)

func loadTestTokenizer(t *testing.T) *HFTokenizer {
	t.Helper()
	tok, err := LoadHFTokenizerBytes(testTokenizerJSON, nil)
	if err != nil {
		t.Fatalf("load tokenizer: %v", err)
	}
	return tok
}

func TestHFTokenizerEncodeDecode(t *testing.T) {
	t.Parallel()
	tok := loadTestTokenizer(t)

	ids, err := tok.Encode("hello hello<|endoftext|>")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []int{8, 4, 8, 9}
	if len(ids) != len(want) {
		t.Fatalf("encode: got %v want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("encode: got %v want %v", ids, want)
		}
	}

	text, err := tok.Decode(ids, false)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if text != "hello hello<|endoftext|>" {
		t.Fatalf("decode with specials: %q", text)
	}
	text, err = tok.Decode(ids, true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if text != "hello hello" {
		t.Fatalf("decode skipping specials: %q", text)
	}
}

func TestHFTokenizerSpecialMembership(t *testing.T) {
	t.Parallel()
	tok := loadTestTokenizer(t)
	if !tok.IsSpecial(9) {
		t.Fatalf("expected id 9 to be special")
	}
	if tok.IsSpecial(8) {
		t.Fatalf("expected id 8 to be a regular token")
	}
	if tok.EOSID() != 9 {
		t.Fatalf("expected eos fallback to <|endoftext|>, got %d", tok.EOSID())
	}
	if tok.VocabSize() != 12 {
		t.Fatalf("unexpected vocab size %d", tok.VocabSize())
	}
}

func TestHFTokenizerPartialCharacter(t *testing.T) {
	t.Parallel()
	tok := loadTestTokenizer(t)

	half, err := tok.Decode([]int{10}, false)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if half != "\uFFFD" {
		t.Fatalf("expected replacement character for a partial byte sequence, got %q", half)
	}
	full, err := tok.Decode([]int{10, 11}, false)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if full != "é" {
		t.Fatalf("expected é, got %q", full)
	}
}

func TestHFTokenizerConfigTokens(t *testing.T) {
	t.Parallel()
	cfg := []byte(`{"add_bos_token":true,"bos_token":{"content":"h"},"eos_token":"o"}`)
	tok, err := LoadHFTokenizerBytes(testTokenizerJSON, cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tok.BOSID() != 0 || tok.EOSID() != 3 {
		t.Fatalf("unexpected bos/eos: %d/%d", tok.BOSID(), tok.EOSID())
	}
	ids, err := tok.Encode("hello")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 8 {
		t.Fatalf("expected bos prefix, got %v", ids)
	}
}

func TestHFTokenizerRejectsUnsupportedModel(t *testing.T) {
	t.Parallel()
	_, err := LoadHFTokenizerBytes([]byte(`{"model":{"type":"WordPiece","vocab":{},"merges":[]}}`), nil)
	if err == nil {
		t.Fatalf("expected unsupported tokenizer model error")
	}
}

func TestBatchDecode(t *testing.T) {
	t.Parallel()
	tok := loadTestTokenizer(t)
	out, err := BatchDecode(tok, [][]int{{8}, {4}, {9}}, false)
	if err != nil {
		t.Fatalf("batch decode: %v", err)
	}
	if out[0] != "hello" || out[1] != " " || out[2] != "<|endoftext|>" {
		t.Fatalf("unexpected batch decode: %q", out)
	}
}

func TestHFTokenizerConcurrentEncode(t *testing.T) {
	t.Parallel()
	tok := loadTestTokenizer(t)
	inputs := []string{"hello", "hell", "he ll o", "oh hello", "lol", "hole hello"}
	want := make([][]int, len(inputs))
	for i, in := range inputs {
		ids, err := loadTestTokenizer(t).Encode(in)
		if err != nil {
			t.Fatalf("encode %q: %v", in, err)
		}
		want[i] = ids
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for g := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := inputs[g%len(inputs)]
			ids, err := tok.Encode(in)
			if err != nil {
				errs <- err
				return
			}
			if !slices.Equal(ids, want[g%len(inputs)]) {
				errs <- fmt.Errorf("encode %q: got %v want %v", in, ids, want[g%len(inputs)])
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
