package dashboard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefreshReportsNoSupervisorWhenStateMissing(t *testing.T) {
	d := New(999999999, nil)
	text := d.refresh()
	assert.True(t, strings.Contains(text, "no supervisor running"))
}
