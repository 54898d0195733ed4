package rowcast

import (
	"github.com/rowcast/rowcast/options"
)

// NewGoSession creates a session backed by the pure Go onnx runtime. It needs
// no shared library and is the default backend.
func NewGoSession(opts ...options.WithOption) (*Session, error) {
	return newSession("GO", opts...)
}
