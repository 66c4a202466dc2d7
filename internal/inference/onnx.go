//go:build onnx

package inference

import "github.com/samcharles93/tgstep/internal/forward"

func openONNX(path string, vocab, padID, threads int) (forward.Model, error) {
	return forward.NewONNXModel(path, vocab, padID, threads)
}
