// Package strategy recognises composite option structures — covered
// calls, spreads, straddles, condors and the rest — from an account's
// raw position set. It is a pure function: it never mutates positions,
// only groups references to them.
package strategy

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/account"
	"github.com/scranton-trading/paperbroker/internal/asset"
)

// Kind enumerates the closed set of recognisable structures.
type Kind int

const (
	LongStock Kind = iota
	ShortStock
	LongCall
	ShortCall
	LongPut
	ShortPut
	CoveredCall
	CoveredPut
	ProtectivePut
	ProtectiveCall
	VerticalCallSpread
	VerticalPutSpread
	CalendarSpread
	DiagonalSpread
	Straddle
	Strangle
	Butterfly
	IronCondor
	IronButterfly
	Custom
)

func (k Kind) String() string {
	names := [...]string{
		"LongStock", "ShortStock", "LongCall", "ShortCall", "LongPut", "ShortPut",
		"CoveredCall", "CoveredPut", "ProtectivePut", "ProtectiveCall",
		"VerticalCallSpread", "VerticalPutSpread", "CalendarSpread", "DiagonalSpread",
		"Straddle", "Strangle", "Butterfly", "IronCondor", "IronButterfly", "Custom",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Strategy is a recognised structure: a kind, the positions that make
// it up (references, never copies), and the structural parameters a
// reader needs without re-deriving them from the legs.
type Strategy struct {
	Kind        Kind
	Underlying  string
	Positions   []*account.Position
	LongStrike  decimal.Decimal
	ShortStrike decimal.Decimal
	Width       decimal.Decimal
	Bullish     bool
}

// Recognise partitions positions into an ordered list of Strategy
// objects with no overlap, applying the detection order first-match-
// wins within each underlying's position group. Ties within a detection
// step resolve by lowest strike first, then earliest expiration, then
// alphabetic symbol — recognise is deterministic.
func Recognise(positions []*account.Position) []Strategy {
	groups := groupByUnderlying(positions)

	underlyings := make([]string, 0, len(groups))
	for u := range groups {
		underlyings = append(underlyings, u)
	}
	sort.Strings(underlyings)

	var out []Strategy
	for _, u := range underlyings {
		out = append(out, recogniseGroup(u, groups[u])...)
	}
	return out
}

func groupByUnderlying(positions []*account.Position) map[string][]*account.Position {
	groups := make(map[string][]*account.Position)
	for _, p := range positions {
		u := p.Asset.Underlying()
		groups[u] = append(groups[u], p)
	}
	return groups
}

// pool is the mutable working set for one underlying's recognition pass:
// positions not yet consumed by an earlier, higher-priority match.
type pool struct {
	remaining []*account.Position
}

func newPool(positions []*account.Position) *pool {
	sorted := append([]*account.Position(nil), positions...)
	sortDeterministic(sorted)
	return &pool{remaining: sorted}
}

// sortDeterministic orders positions by lowest strike, then earliest
// expiration, then alphabetic symbol — the recogniser's tie-break rule.
func sortDeterministic(positions []*account.Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		a, b := positions[i].Asset, positions[j].Asset
		if a.IsOption() && b.IsOption() {
			if !a.Strike().Equal(b.Strike()) {
				return a.Strike().LessThan(b.Strike())
			}
			if !a.Expiration().Equal(b.Expiration()) {
				return a.Expiration().Before(b.Expiration())
			}
		}
		return a.Symbol() < b.Symbol()
	})
}

func (p *pool) remove(toRemove map[*account.Position]bool) {
	kept := p.remaining[:0]
	for _, pos := range p.remaining {
		if !toRemove[pos] {
			kept = append(kept, pos)
		}
	}
	p.remaining = kept
}

func (p *pool) stockPosition() *account.Position {
	for _, pos := range p.remaining {
		if !pos.Asset.IsOption() {
			return pos
		}
	}
	return nil
}

func (p *pool) options() []*account.Position {
	var out []*account.Position
	for _, pos := range p.remaining {
		if pos.Asset.IsOption() {
			out = append(out, pos)
		}
	}
	return out
}

func recogniseGroup(underlying string, positions []*account.Position) []Strategy {
	p := newPool(positions)
	var out []Strategy

	out = append(out, matchCoveredPositions(underlying, p)...)
	out = append(out, matchVerticalSpreads(underlying, p)...)
	out = append(out, matchCalendarSpreads(underlying, p)...)
	out = append(out, matchStraddlesAndStrangles(underlying, p)...)
	out = append(out, matchButterflies(underlying, p)...)
	out = append(out, matchIronStructures(underlying, p)...)

	// Remaining stock, if any, is a plain directional position.
	if stock := p.stockPosition(); stock != nil {
		kind := LongStock
		if stock.Quantity < 0 {
			kind = ShortStock
		}
		out = append(out, Strategy{Kind: kind, Underlying: underlying, Positions: []*account.Position{stock}})
		p.remove(map[*account.Position]bool{stock: true})
	}

	// Remaining bare options each become their own single-leg strategy.
	for _, opt := range p.options() {
		out = append(out, Strategy{Kind: bareOptionKind(opt), Underlying: underlying, Positions: []*account.Position{opt}})
	}

	return out
}

func bareOptionKind(p *account.Position) Kind {
	isCall := p.Asset.OptionType() == asset.Call
	switch {
	case isCall && p.Quantity > 0:
		return LongCall
	case isCall && p.Quantity < 0:
		return ShortCall
	case !isCall && p.Quantity > 0:
		return LongPut
	default:
		return ShortPut
	}
}

// matchCoveredPositions handles covered call/put and protective
// put/call: a stock leg paired with exactly one option leg on the
// opposing side of risk.
func matchCoveredPositions(underlying string, p *pool) []Strategy {
	stock := p.stockPosition()
	if stock == nil {
		return nil
	}
	shares := abs64(stock.Quantity)
	contracts := shares / 100
	if contracts == 0 {
		return nil
	}

	for _, opt := range p.options() {
		n := abs64(opt.Quantity)
		if n != contracts {
			continue
		}
		isCall := opt.Asset.OptionType() == asset.Call

		switch {
		case stock.Quantity > 0 && isCall && opt.Quantity < 0:
			// Covered call: long stock + short call at strike >= spot is
			// the canonical shape; we accept any short call against long
			// stock of matching size since spot isn't always known here.
			consumed := map[*account.Position]bool{stock: true, opt: true}
			p.remove(consumed)
			return []Strategy{{Kind: CoveredCall, Underlying: underlying, Positions: []*account.Position{stock, opt}, ShortStrike: opt.Asset.Strike()}}
		case stock.Quantity < 0 && !isCall && opt.Quantity < 0:
			consumed := map[*account.Position]bool{stock: true, opt: true}
			p.remove(consumed)
			return []Strategy{{Kind: CoveredPut, Underlying: underlying, Positions: []*account.Position{stock, opt}, ShortStrike: opt.Asset.Strike()}}
		case stock.Quantity > 0 && !isCall && opt.Quantity > 0:
			consumed := map[*account.Position]bool{stock: true, opt: true}
			p.remove(consumed)
			return []Strategy{{Kind: ProtectivePut, Underlying: underlying, Positions: []*account.Position{stock, opt}, LongStrike: opt.Asset.Strike()}}
		case stock.Quantity < 0 && isCall && opt.Quantity > 0:
			consumed := map[*account.Position]bool{stock: true, opt: true}
			p.remove(consumed)
			return []Strategy{{Kind: ProtectiveCall, Underlying: underlying, Positions: []*account.Position{stock, opt}, LongStrike: opt.Asset.Strike()}}
		}
	}
	return nil
}

// matchVerticalSpreads pairs two same-type, same-expiration options of
// opposite sign and equal magnitude but different strikes.
func matchVerticalSpreads(underlying string, p *pool) []Strategy {
	var out []Strategy
	for {
		opts := p.options()
		found := false
		for i := 0; i < len(opts) && !found; i++ {
			for j := i + 1; j < len(opts); j++ {
				a, b := opts[i], opts[j]
				if !sameTypeExpiration(a, b) {
					continue
				}
				if a.Asset.Strike().Equal(b.Asset.Strike()) {
					continue
				}
				if abs64(a.Quantity) != abs64(b.Quantity) {
					continue
				}
				if !opposesSign(a.Quantity, b.Quantity) {
					continue
				}
				isCall := a.Asset.OptionType() == asset.Call
				kind := VerticalPutSpread
				if isCall {
					kind = VerticalCallSpread
				}
				low, high := a, b
				if low.Asset.Strike().GreaterThan(high.Asset.Strike()) {
					low, high = high, low
				}
				bullish := (isCall && low.Quantity > 0) || (!isCall && high.Quantity < 0)
				width := high.Asset.Strike().Sub(low.Asset.Strike())

				p.remove(map[*account.Position]bool{a: true, b: true})
				out = append(out, Strategy{
					Kind: kind, Underlying: underlying,
					Positions:   []*account.Position{low, high},
					LongStrike:  pickLongStrike(low, high),
					ShortStrike: pickShortStrike(low, high),
					Width:       width,
					Bullish:     bullish,
				})
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return out
}

func pickLongStrike(a, b *account.Position) decimal.Decimal {
	if a.Quantity > 0 {
		return a.Asset.Strike()
	}
	return b.Asset.Strike()
}

func pickShortStrike(a, b *account.Position) decimal.Decimal {
	if a.Quantity < 0 {
		return a.Asset.Strike()
	}
	return b.Asset.Strike()
}

// matchCalendarSpreads pairs two same-type options with different
// expirations, opposite sign, equal magnitude: same strike is a
// calendar, different strike a diagonal.
func matchCalendarSpreads(underlying string, p *pool) []Strategy {
	var out []Strategy
	for {
		opts := p.options()
		found := false
		for i := 0; i < len(opts) && !found; i++ {
			for j := i + 1; j < len(opts); j++ {
				a, b := opts[i], opts[j]
				if a.Asset.OptionType() != b.Asset.OptionType() {
					continue
				}
				if a.Asset.Expiration().Equal(b.Asset.Expiration()) {
					continue
				}
				if abs64(a.Quantity) != abs64(b.Quantity) || !opposesSign(a.Quantity, b.Quantity) {
					continue
				}
				kind := CalendarSpread
				if !a.Asset.Strike().Equal(b.Asset.Strike()) {
					kind = DiagonalSpread
				}
				p.remove(map[*account.Position]bool{a: true, b: true})
				out = append(out, Strategy{Kind: kind, Underlying: underlying, Positions: []*account.Position{a, b}})
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return out
}

// matchStraddlesAndStrangles pairs a call and a put, same expiration,
// same sign, equal magnitude: same strike is a straddle, different
// strikes (call strike > put strike) a strangle.
func matchStraddlesAndStrangles(underlying string, p *pool) []Strategy {
	var out []Strategy
	for {
		opts := p.options()
		found := false
		for i := 0; i < len(opts) && !found; i++ {
			for j := i + 1; j < len(opts); j++ {
				a, b := opts[i], opts[j]
				if a.Asset.OptionType() == b.Asset.OptionType() {
					continue
				}
				if !a.Asset.Expiration().Equal(b.Asset.Expiration()) {
					continue
				}
				if abs64(a.Quantity) != abs64(b.Quantity) {
					continue
				}
				if (a.Quantity > 0) != (b.Quantity > 0) {
					continue
				}
				call, put := a, b
				if call.Asset.OptionType() != asset.Call {
					call, put = b, a
				}
				if call.Asset.Strike().LessThan(put.Asset.Strike()) {
					continue // not a legal strangle/straddle shape
				}
				kind := Straddle
				if !call.Asset.Strike().Equal(put.Asset.Strike()) {
					kind = Strangle
				}
				p.remove(map[*account.Position]bool{a: true, b: true})
				out = append(out, Strategy{Kind: kind, Underlying: underlying, Positions: []*account.Position{call, put}})
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return out
}

// matchButterflies looks for three same-type, same-expiration options
// in ascending strike order with quantity pattern [+n,-2n,+n] or
// [-n,+2n,-n].
func matchButterflies(underlying string, p *pool) []Strategy {
	var out []Strategy
	for {
		opts := p.options()
		found := false
	outer:
		for i := 0; i < len(opts) && !found; i++ {
			for j := i + 1; j < len(opts) && !found; j++ {
				for k := j + 1; k < len(opts) && !found; k++ {
					legs := []*account.Position{opts[i], opts[j], opts[k]}
					if !sameTypeExpiration(legs[0], legs[1]) || !sameTypeExpiration(legs[1], legs[2]) {
						continue
					}
					sort.Slice(legs, func(a, b int) bool { return legs[a].Asset.Strike().LessThan(legs[b].Asset.Strike()) })
					n := abs64(legs[0].Quantity)
					if n == 0 || abs64(legs[2].Quantity) != n || abs64(legs[1].Quantity) != 2*n {
						continue
					}
					wingLong := legs[0].Quantity > 0 && legs[2].Quantity > 0 && legs[1].Quantity < 0
					wingShort := legs[0].Quantity < 0 && legs[2].Quantity < 0 && legs[1].Quantity > 0
					if !wingLong && !wingShort {
						continue
					}
					p.remove(map[*account.Position]bool{legs[0]: true, legs[1]: true, legs[2]: true})
					out = append(out, Strategy{Kind: Butterfly, Underlying: underlying, Positions: legs, Width: legs[1].Asset.Strike().Sub(legs[0].Asset.Strike())})
					found = true
					break outer
				}
			}
		}
		if !found {
			break
		}
	}
	return out
}

// matchIronStructures looks for the classic four-leg iron condor (long
// low put, short higher put, short lower call, long highest call, equal
// magnitude) and its degenerate iron butterfly (the two short strikes
// coincide).
func matchIronStructures(underlying string, p *pool) []Strategy {
	var out []Strategy
	for {
		opts := p.options()
		found := false
	outer:
		for i := 0; i < len(opts) && !found; i++ {
			for j := 0; j < len(opts) && !found; j++ {
				if j == i {
					continue
				}
				for k := 0; k < len(opts) && !found; k++ {
					if k == i || k == j {
						continue
					}
					for l := 0; l < len(opts) && !found; l++ {
						if l == i || l == j || l == k {
							continue
						}
						longPut, shortPut, shortCall, longCall := opts[i], opts[j], opts[k], opts[l]
						if !isLongPut(longPut) || !isShortPut(shortPut) || !isShortCall(shortCall) || !isLongCall(longCall) {
							continue
						}
						if !sameExpirationAll(longPut, shortPut, shortCall, longCall) {
							continue
						}
						n := abs64(longPut.Quantity)
						if n == 0 || abs64(shortPut.Quantity) != n || abs64(shortCall.Quantity) != n || abs64(longCall.Quantity) != n {
							continue
						}
						if !longPut.Asset.Strike().LessThan(shortPut.Asset.Strike()) {
							continue
						}
						if !shortCall.Asset.Strike().LessThan(longCall.Asset.Strike()) {
							continue
						}
						if !shortPut.Asset.Strike().LessThanOrEqual(shortCall.Asset.Strike()) {
							continue
						}
						kind := IronCondor
						if shortPut.Asset.Strike().Equal(shortCall.Asset.Strike()) {
							kind = IronButterfly
						}
						legs := []*account.Position{longPut, shortPut, shortCall, longCall}
						p.remove(map[*account.Position]bool{longPut: true, shortPut: true, shortCall: true, longCall: true})
						out = append(out, Strategy{Kind: kind, Underlying: underlying, Positions: legs})
						found = true
						break outer
					}
				}
			}
		}
		if !found {
			break
		}
	}
	return out
}

func isLongPut(p *account.Position) bool {
	return p.Asset.OptionType() == asset.Put && p.Quantity > 0
}
func isShortPut(p *account.Position) bool {
	return p.Asset.OptionType() == asset.Put && p.Quantity < 0
}
func isShortCall(p *account.Position) bool {
	return p.Asset.OptionType() == asset.Call && p.Quantity < 0
}
func isLongCall(p *account.Position) bool {
	return p.Asset.OptionType() == asset.Call && p.Quantity > 0
}

func sameTypeExpiration(a, b *account.Position) bool {
	return a.Asset.OptionType() == b.Asset.OptionType() && a.Asset.Expiration().Equal(b.Asset.Expiration())
}

func sameExpirationAll(positions ...*account.Position) bool {
	for i := 1; i < len(positions); i++ {
		if !positions[0].Asset.Expiration().Equal(positions[i].Asset.Expiration()) {
			return false
		}
	}
	return true
}

func opposesSign(a, b int64) bool {
	return (a > 0 && b < 0) || (a < 0 && b > 0)
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
