package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCurrency(t *testing.T) {
	s := New()
	assert.Equal(t, USD, s.SelectedCurrency())

	require.NoError(t, s.SetSelectedCurrency(GBP))
	assert.Equal(t, GBP, s.SelectedCurrency())

	err := s.SetSelectedCurrency("JPY")
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
	assert.Equal(t, GBP, s.SelectedCurrency())
}
