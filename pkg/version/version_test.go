package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShort_ReturnsVersion(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestString_ContainsAllBuildFields(t *testing.T) {
	s := String()
	assert.Contains(t, s, Version)
	assert.Contains(t, s, Commit)
	assert.Contains(t, s, Date)
	assert.Contains(t, s, GoVersion)
}

func TestGetInfo_MatchesRuntimeAndPackageVars(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, Commit, info.Commit)
	assert.Equal(t, Date, info.Date)
	assert.Equal(t, GoVersion, info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}

func TestGoVersion_ReflectsRuntimeVersion(t *testing.T) {
	assert.True(t, strings.HasPrefix(GoVersion, "go"))
}
