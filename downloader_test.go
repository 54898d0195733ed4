package rowcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDownloadOptions(t *testing.T) {
	d := NewDownloadOptions()
	assert.Equal(t, "main", d.Branch)
	assert.Equal(t, 5, d.MaxRetries)
	assert.Equal(t, 5, d.RetryInterval)
	assert.Equal(t, 5, d.ConcurrentConnections)
	assert.False(t, d.Verbose)
}
