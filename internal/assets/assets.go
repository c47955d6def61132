package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"justthetip/internal/store"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Descriptor is the static configuration for one supported asset. Assets
// with SettlementSupported=false are ledger-only: they can be tipped but
// never withdrawn to or deposited from a chain.
type Descriptor struct {
	Symbol              string `yaml:"symbol"`
	Chain               string `yaml:"chain"`
	Decimals            int32  `yaml:"decimals"`
	Mint                string `yaml:"mint,omitempty"`
	MinimumDeposit      string `yaml:"minimum_deposit"`
	MinimumWithdrawal   string `yaml:"minimum_withdrawal"`
	SettlementSupported bool   `yaml:"settlement_supported"`

	minDeposit    decimal.Decimal
	minWithdrawal decimal.Decimal
}

// MinDeposit returns the parsed minimum creditable deposit delta.
func (d *Descriptor) MinDeposit() decimal.Decimal { return d.minDeposit }

// MinWithdrawal returns the parsed minimum withdrawal amount.
func (d *Descriptor) MinWithdrawal() decimal.Decimal { return d.minWithdrawal }

type assetsFile struct {
	Assets []Descriptor `yaml:"assets"`
}

// Registry is the closed set of assets known to the engine, loaded once at
// startup. Adding or removing an asset is a data change, not a code change.
type Registry struct {
	bySymbol map[string]*Descriptor
	ordered  []string
}

// Load reads and validates the asset table from a YAML file.
func Load(path string) (*Registry, error) {
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}

	var f assetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}

	return NewRegistry(f.Assets)
}

// NewRegistry builds a registry from descriptors, validating each entry.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	r := &Registry{bySymbol: make(map[string]*Descriptor, len(descriptors))}

	for i := range descriptors {
		d := descriptors[i]
		if d.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
		if d.SettlementSupported && d.Chain == "" {
			return nil, fmt.Errorf("asset %s supports settlement but has no chain", d.Symbol)
		}
		if d.Decimals < 0 {
			return nil, fmt.Errorf("asset %s has negative decimals", d.Symbol)
		}

		var err error
		if d.minDeposit, err = parseAmount(d.MinimumDeposit); err != nil {
			return nil, fmt.Errorf("asset %s: invalid minimum_deposit: %w", d.Symbol, err)
		}
		if d.minWithdrawal, err = parseAmount(d.MinimumWithdrawal); err != nil {
			return nil, fmt.Errorf("asset %s: invalid minimum_withdrawal: %w", d.Symbol, err)
		}

		key := strings.ToUpper(d.Symbol)
		if _, dup := r.bySymbol[key]; dup {
			return nil, fmt.Errorf("duplicate asset symbol %s", d.Symbol)
		}
		r.bySymbol[key] = &d
		r.ordered = append(r.ordered, key)
	}

	return r, nil
}

// Lookup returns the descriptor for a symbol, or ErrAssetNotSupported.
func (r *Registry) Lookup(symbol string) (*Descriptor, error) {
	d, ok := r.bySymbol[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrAssetNotSupported, symbol)
	}
	return d, nil
}

// ForChain returns every asset settled on the given chain, in file order.
// This is the set a linked wallet on that chain is reconciled for.
func (r *Registry) ForChain(chain string) []*Descriptor {
	if chain == "" {
		return nil
	}
	var out []*Descriptor
	for _, key := range r.ordered {
		if d := r.bySymbol[key]; d.Chain == chain {
			out = append(out, d)
		}
	}
	return out
}

// Symbols lists all registered asset symbols in file order.
func (r *Registry) Symbols() []string {
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
