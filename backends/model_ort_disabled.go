//go:build !ORT && !ALL

package backends

import (
	"errors"

	"github.com/rowcast/rowcast/options"
)

// ORTModel is a placeholder when the ORT backend is not compiled in.
type ORTModel struct {
	Destroy func() error
}

func createORTModelBackend(_ *Model, _ *options.Options) error {
	return errors.New("ORT is not enabled")
}

func createVectorTensorsORT(_ *PipelineBatch, _ *Model, _ [][]float32) error {
	return errors.New("ORT is not enabled")
}

func runORTSessionOnBatch(_ *PipelineBatch, _ *BasePipeline) error {
	return errors.New("ORT is not enabled")
}
