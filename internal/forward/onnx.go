//go:build onnx

package forward

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXModel runs a causal LM exported to ONNX with a single "input_ids"
// input and a "logits" output of shape [batch, seq, vocab]. The export has
// no key/value cache, so each call recomputes the full right-padded
// sequences. Its Cache only marks that the prefill call happened.
type ONNXModel struct {
	path    string
	vocab   int
	padID   int
	threads int
	// Prefill makes the first call for a batch return per-position rows.
	Prefill bool
}

type onnxStarted struct{}

// NewONNXModel initializes the runtime once per process and validates the
// configuration; sessions are created per call.
func NewONNXModel(path string, vocab, padID, threads int) (*ONNXModel, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}
	if vocab <= 0 {
		return nil, fmt.Errorf("onnx model: vocabulary size must be positive")
	}
	return &ONNXModel{path: path, vocab: vocab, padID: padID, threads: max(threads, 1)}, nil
}

func (m *ONNXModel) VocabSize() int { return m.vocab }
func (m *ONNXModel) Close() error   { return nil }

func (m *ONNXModel) Forward(ctx context.Context, ids [][]int, lengths []int, cache Cache) (*Output, error) {
	if err := CheckLengths(ids, lengths); err != nil {
		return nil, fmt.Errorf("onnx model: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	padded, rowLens := Pad(ids, m.padID)
	batch := len(padded)
	if batch == 0 {
		return nil, fmt.Errorf("onnx model: empty batch")
	}
	seq := len(padded[0])

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()
	if err := options.SetIntraOpNumThreads(m.threads); err != nil {
		return nil, fmt.Errorf("set threads: %w", err)
	}

	inputData := make([]int64, 0, batch*seq)
	for _, row := range padded {
		for _, id := range row {
			inputData = append(inputData, int64(id))
		}
	}
	input, err := ort.NewTensor(ort.NewShape(int64(batch), int64(seq)), inputData)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewTensor(ort.NewShape(int64(batch), int64(seq), int64(m.vocab)), make([]float32, batch*seq*m.vocab))
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	session, err := ort.NewAdvancedSession(m.path,
		[]string{"input_ids"}, []string{"logits"},
		[]ort.Value{input}, []ort.Value{output}, options)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer session.Destroy()

	if err := session.Run(); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}

	data := output.GetData()
	row := func(b, pos int) []float32 {
		start := (b*seq + pos) * m.vocab
		out := make([]float32, m.vocab)
		copy(out, data[start:start+m.vocab])
		return out
	}
	out := &Output{Logits: make([][]float32, batch), Cache: onnxStarted{}}
	if cache == nil && m.Prefill {
		out.PrefillLogits = make([][][]float32, batch)
	}
	for b := range batch {
		out.Logits[b] = row(b, rowLens[b]-1)
		if out.PrefillLogits != nil {
			for pos := range rowLens[b] {
				out.PrefillLogits[b] = append(out.PrefillLogits[b], row(b, pos))
			}
		}
	}
	return out, nil
}

func (m *ONNXModel) FilterCache(cache Cache, keep []int) (Cache, error) {
	if _, ok := cache.(onnxStarted); !ok {
		return nil, fmt.Errorf("onnx model: foreign cache %T", cache)
	}
	return cache, nil
}
