// Package store holds the playground shop state.
package store

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ServiceName is the name the store is registered under.
const ServiceName = "playground.store"

// Currency is a supported currency code.
type Currency string

// Supported currencies.
const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

// ErrUnsupportedCurrency is returned for a currency outside Currencies.
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// Currencies lists the supported currencies.
func Currencies() []Currency {
	return []Currency{USD, EUR, GBP}
}

// State holds the selected currency, USD until changed.
type State struct {
	mu       sync.RWMutex
	currency Currency
}

// New returns a State with USD selected.
func New() *State {
	return &State{currency: USD}
}

// SelectedCurrency returns the selected currency.
func (s *State) SelectedCurrency() Currency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currency
}

// SetSelectedCurrency selects c.
func (s *State) SetSelectedCurrency(c Currency) error {
	if !slices.Contains(Currencies(), c) {
		return fmt.Errorf("%w: %q", ErrUnsupportedCurrency, c)
	}
	s.mu.Lock()
	s.currency = c
	s.mu.Unlock()
	return nil
}
