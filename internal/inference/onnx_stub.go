//go:build !onnx || !cgo

package inference

import "errors"

func newONNXEngine(_ string, _ *WeightStore) (Engine, error) {
	return nil, errors.New("onnx engine is not available: rebuild with -tags onnx and cgo enabled")
}
