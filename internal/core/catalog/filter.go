package catalog

import (
	"sort"
	"strings"
)

// Filter narrows an offering list. Zero values leave a criterion unset,
// so the zero Filter keeps everything that has a monthly price.
type Filter struct {
	// Search matches against product name or provider name,
	// case-insensitively.
	Search string

	// Location matches the resolved location string exactly,
	// case-insensitively.
	Location string

	// MinMonthlyUSD / MaxMonthlyUSD bound the monthly price. Zero means
	// unbounded on that side.
	MinMonthlyUSD float64
	MaxMonthlyUSD float64

	// MinRAMGB / MinStorageGB set hardware floors.
	MinRAMGB     float64
	MinStorageGB float64

	// OnlyAvailable drops offerings with zero stock.
	OnlyAvailable bool

	// DedicatedOnly drops VPS offerings.
	DedicatedOnly bool
}

// Apply returns the offerings matching the filter, in input order.
// Offerings without a monthly price are always dropped: a missing or free
// price is not meant to be shown. The result is a fresh slice; the input
// is never mutated.
func (f Filter) Apply(offerings []Offering) []Offering {
	out := make([]Offering, 0, len(offerings))
	for _, o := range offerings {
		if f.matches(o) {
			out = append(out, o)
		}
	}
	return out
}

func (f Filter) matches(o Offering) bool {
	monthly, ok := o.MonthlyPrice()
	if !ok {
		return false
	}

	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(o.ProductName), needle) &&
			!strings.Contains(strings.ToLower(o.ProviderName), needle) {
			return false
		}
	}

	if f.Location != "" && !strings.EqualFold(f.Location, o.Location) {
		return false
	}

	if f.MinRAMGB > 0 && o.RAM.CapacityGB < f.MinRAMGB {
		return false
	}

	if f.MinStorageGB > 0 && o.TotalStorageGB() < f.MinStorageGB {
		return false
	}

	if f.MinMonthlyUSD > 0 && monthly < f.MinMonthlyUSD {
		return false
	}

	if f.MaxMonthlyUSD > 0 && monthly > f.MaxMonthlyUSD {
		return false
	}

	if f.OnlyAvailable && o.Available == 0 {
		return false
	}

	if f.DedicatedOnly && o.Type == TypeVPS {
		return false
	}

	return true
}

// SortByMonthlyPrice orders offerings by ascending monthly price, with
// unpriced offerings last. The sort is stable so equal prices keep their
// input order, making the transform deterministic for the same inputs.
func SortByMonthlyPrice(offerings []Offering) {
	sort.SliceStable(offerings, func(i, j int) bool {
		pi, iok := offerings[i].MonthlyPrice()
		pj, jok := offerings[j].MonthlyPrice()
		switch {
		case !iok && !jok:
			return false
		case !iok:
			return false
		case !jok:
			return true
		default:
			return pi < pj
		}
	})
}
