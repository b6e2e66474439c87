package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	v, sha, bt := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = v, sha, bt })

	Version, GitSHA, BuildTime = "v0.3.0", "abc1234", "2025-03-01T09:00:00Z"
	assert.Equal(t, "pothole.report v0.3.0 (abc1234, built 2025-03-01T09:00:00Z)", String())
}
