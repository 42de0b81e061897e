package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPrivilegeInfoMatchesIsRoot(t *testing.T) {
	info := GetPrivilegeInfo()
	assert.Equal(t, info.EffectiveUID == 0, info.IsRoot)
}
