//go:build !ORT && !ALL

package rowcast

import (
	"errors"

	"github.com/rowcast/rowcast/options"
)

func NewORTSession(_ ...options.WithOption) (*Session, error) {
	return nil, errors.New("to enable ORT, run `go build -tags ORT` or `go build -tags ALL`")
}
