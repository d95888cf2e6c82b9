package cmdutils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFprintResponse(t *testing.T) {
	var buf bytes.Buffer
	FprintResponse(&buf, "Three worlds await.")
	assert.Equal(t, "\n🔭 guide\nThree worlds await.\n\n", buf.String())

	buf.Reset()
	FprintResponse(&buf, "")
	assert.Empty(t, buf.String())
}

func TestMark(t *testing.T) {
	assert.Equal(t, "✓", Mark(true))
	assert.Equal(t, "✗", Mark(false))
}
