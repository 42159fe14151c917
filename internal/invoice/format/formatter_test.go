package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	issued := time.Date(2024, time.March, 14, 12, 0, 0, 0, time.UTC)

	got, err := FormatNumber("INV-{YYYY}-{SEQ5}", issued, 42)
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-00042", got)

	got, err = FormatNumber("{YY}{MM}{DD}-{SEQ}", issued, 7)
	require.NoError(t, err)
	assert.Equal(t, "240314-7", got)
}

func TestFormatNumberRejectsBadInput(t *testing.T) {
	issued := time.Now()

	_, err := FormatNumber("", issued, 1)
	assert.Error(t, err)

	_, err = FormatNumber(DefaultNumberTemplate, issued, 0)
	assert.Error(t, err)

	_, err = FormatNumber(DefaultNumberTemplate, issued, -3)
	assert.Error(t, err)
}

func TestFormatNumberSequenceWiderThanPad(t *testing.T) {
	got, err := FormatNumber("R-{SEQ3}", time.Now(), 123456)
	require.NoError(t, err)
	assert.Equal(t, "R-123456", got)
}

func TestFormatNumberRejectsUnknownToken(t *testing.T) {
	issued := time.Now()

	_, err := FormatNumber("INV-{FOO}", issued, 1)
	assert.Error(t, err)

	_, err = FormatNumber("INV-{SEQ5", issued, 1)
	assert.Error(t, err)
}
