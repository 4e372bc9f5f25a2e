package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	restore := Version
	defer func() { Version = restore }()

	Version = "1.4.0"
	info := Get()
	assert.Equal(t, "jobwatch", info.Service)
	assert.Equal(t, "1.4.0", info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.String(), "jobwatch 1.4.0")
}
