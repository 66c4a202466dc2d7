package main

import (
	"errors"
	"testing"

	"github.com/samcharles93/tgstep/internal/logits"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestResolveShards(t *testing.T) {
	got, err := resolveShards(false, 3, envOf(nil))
	if err != nil || got != (shardLayout{WorldSize: 3}) {
		t.Fatalf("num-shard layout: got %+v, %v", got, err)
	}
	if _, err := resolveShards(false, 0, envOf(nil)); err == nil {
		t.Fatal("expected error for zero shards")
	}

	got, err = resolveShards(true, 1, envOf(map[string]string{"RANK": "1", "WORLD_SIZE": "4"}))
	if err != nil || got != (shardLayout{Rank: 1, WorldSize: 4}) {
		t.Fatalf("env layout: got %+v, %v", got, err)
	}

	bad := []map[string]string{
		{},
		{"RANK": "0"},
		{"RANK": "x", "WORLD_SIZE": "2"},
		{"RANK": "2", "WORLD_SIZE": "2"},
		{"RANK": "-1", "WORLD_SIZE": "2"},
		{"RANK": "0", "WORLD_SIZE": "0"},
	}
	for _, env := range bad {
		if _, err := resolveShards(true, 1, envOf(env)); err == nil {
			t.Errorf("expected error for env %v", env)
		}
	}
}

func TestCheckPrecision(t *testing.T) {
	if err := checkPrecision("", ""); err != nil {
		t.Fatalf("empty precision: %v", err)
	}
	if err := checkPrecision("bfloat16", ""); err != nil {
		t.Fatalf("dtype only: %v", err)
	}
	if err := checkPrecision("", "gptq"); err != nil {
		t.Fatalf("quantize only: %v", err)
	}
	if err := checkPrecision("float16", "gptq"); !errors.Is(err, logits.ErrConfigurationConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := checkPrecision("float8", ""); err == nil {
		t.Fatal("expected error for unknown dtype")
	}
	if err := checkPrecision("", "fp4"); err == nil {
		t.Fatal("expected error for unknown quantization")
	}
}
