//go:build !onnx

package inference

import (
	"errors"

	"github.com/samcharles93/tgstep/internal/forward"
)

func openONNX(string, int, int, int) (forward.Model, error) {
	return nil, errors.New("onnx support not compiled in (build with -tags onnx)")
}
