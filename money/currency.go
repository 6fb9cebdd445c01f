package money

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownCurrency is returned when a currency code is not in the table.
var ErrUnknownCurrency = errors.New("unknown currency")

// Currency describes how amounts in one ISO 4217 currency are rounded and shown.
type Currency struct {
	Code       string `yaml:"code"`
	MinorUnits int32  `yaml:"minor_units"`
	Symbol     string `yaml:"symbol"`
}

// Table maps upper-case ISO codes to their currency definition.
type Table map[string]Currency

var defaultCurrencies = []Currency{
	{Code: "USD", MinorUnits: 2, Symbol: "$"},
	{Code: "EUR", MinorUnits: 2, Symbol: "€"},
	{Code: "GBP", MinorUnits: 2, Symbol: "£"},
	{Code: "CHF", MinorUnits: 2, Symbol: "CHF "},
	{Code: "CAD", MinorUnits: 2, Symbol: "CA$"},
	{Code: "AUD", MinorUnits: 2, Symbol: "A$"},
	{Code: "INR", MinorUnits: 2, Symbol: "₹"},
	{Code: "BRL", MinorUnits: 2, Symbol: "R$"},
	{Code: "JPY", MinorUnits: 0, Symbol: "¥"},
	{Code: "KRW", MinorUnits: 0, Symbol: "₩"},
	{Code: "CLP", MinorUnits: 0, Symbol: "CLP "},
	{Code: "BHD", MinorUnits: 3, Symbol: "BHD "},
	{Code: "KWD", MinorUnits: 3, Symbol: "KWD "},
	{Code: "JOD", MinorUnits: 3, Symbol: "JOD "},
}

// DefaultTable returns a fresh copy of the built-in currency table.
func DefaultTable() Table {
	t := make(Table, len(defaultCurrencies))
	for _, c := range defaultCurrencies {
		t[c.Code] = c
	}
	return t
}

// Lookup returns the currency for code, case-insensitively.
func (t Table) Lookup(code string) (Currency, error) {
	c, ok := t[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return c, nil
}

type tableFile struct {
	Currencies []Currency `yaml:"currencies"`
}

// LoadTable returns the default table merged with the currencies listed in the
// YAML file at path. An empty path yields the defaults.
func LoadTable(path string) (Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read currency table: %w", err)
	}
	if err := t.Merge(raw); err != nil {
		return nil, fmt.Errorf("currency table %s: %w", path, err)
	}
	return t, nil
}

// Merge adds or overrides currencies from a YAML document of the form
// `currencies: [{code, minor_units, symbol}]`.
func (t Table) Merge(doc []byte) error {
	var f tableFile
	if err := yaml.Unmarshal(doc, &f); err != nil {
		return err
	}
	for _, c := range f.Currencies {
		c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
		if len(c.Code) != 3 {
			return fmt.Errorf("invalid currency code %q", c.Code)
		}
		if c.MinorUnits < 0 || c.MinorUnits > 4 {
			return fmt.Errorf("currency %s: minor_units must be between 0 and 4", c.Code)
		}
		if c.Symbol == "" {
			c.Symbol = c.Code + " "
		}
		t[c.Code] = c
	}
	return nil
}
