package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/reflex/internal/access"
	"github.com/rovshanmuradov/reflex/internal/events"
	"github.com/rovshanmuradov/reflex/internal/presale"
	"github.com/rovshanmuradov/reflex/internal/types"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func addr() types.Address {
	return solana.NewWallet().PublicKey()
}

type recorder struct {
	mu        sync.Mutex
	events    []events.Event
	onPublish func()
}

func (r *recorder) Publish(e events.Event) error {
	if r.onPublish != nil {
		r.onPublish()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	tok   *Token
	owner types.Address
	self  types.Address
	dex   types.Address
	grant access.Grant
	rec   *recorder
	sale  *presale.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{owner: addr(), self: addr(), rec: &recorder{}, sale: presale.NewRegistry()}
	tok, err := New(DefaultParams(f.owner, f.self),
		WithLogger(zaptest.NewLogger(t)),
		WithPublisher(f.rec),
		WithWhitelist(f.sale),
		WithClock(func() time.Time { return start }))
	require.NoError(t, err)
	f.tok = tok
	f.grant, err = tok.Authorize(f.owner)
	require.NoError(t, err)
	return f
}

// withDex moves the whole supply into an excluded, limitless DEX reserve and
// opens trading.
func (f *fixture) withDex(t *testing.T) *fixture {
	t.Helper()
	f.dex = addr()
	require.NoError(t, f.tok.SetIsExcluded(f.grant, f.dex, true))
	require.NoError(t, f.tok.SetIsFineFree(f.grant, f.dex, true))
	require.NoError(t, f.tok.SetIsLimitless(f.grant, f.dex, true))
	_, err := f.tok.Transfer(f.owner, f.dex, f.tok.TotalSupply(), start)
	require.NoError(t, err)
	require.NoError(t, f.tok.SetDexAddr(f.grant, f.dex))
	require.NoError(t, f.tok.OpenTrades(f.grant))
	return f
}

func (f *fixture) buy(t *testing.T, to types.Address, tokens uint64, at time.Time) *types.Receipt {
	t.Helper()
	r, err := f.tok.Transfer(f.dex, to, types.Units(tokens), at)
	require.NoError(t, err)
	return r
}

func assertConserved(t *testing.T, tok *Token) {
	t.Helper()
	state := tok.Snapshot()
	total := tok.TotalBurned()
	for _, e := range state.Ledger.Accounts {
		total.Add(total, tok.BalanceOf(e.Address))
	}
	supply := tok.TotalSupply()
	require.False(t, total.Gt(supply), "balances %s exceed supply", total.Dec())
	loss := new(uint256.Int).Sub(supply, total)
	assert.False(t, loss.Gt(uint256.NewInt(uint64(len(state.Ledger.Accounts)))),
		"rounding loss %s", loss.Dec())
}

func assertUnchanged(t *testing.T, before State, tok *Token) {
	t.Helper()
	after := tok.Snapshot()
	assert.Equal(t, before.Ledger, after.Ledger)
	assert.Equal(t, before.TreasuryPending, after.TreasuryPending)
	assert.Equal(t, before.Allowances, after.Allowances)
}

func TestNewDefaults(t *testing.T) {
	f := newFixture(t)
	tok := f.tok

	assert.Equal(t, DefaultName, tok.Name())
	assert.Equal(t, DefaultSymbol, tok.Symbol())
	assert.Equal(t, uint8(18), tok.Decimals())
	assert.Equal(t, f.self, tok.Address())
	assert.Equal(t, f.owner, tok.Owner())
	assert.Equal(t, types.MustAmount("10000000000000000000000000000000"), tok.TotalSupply())
	assert.Equal(t, tok.TotalSupply(), tok.BalanceOf(f.owner))
	assert.Equal(t, f.owner, tok.DexAddr())
	assert.Equal(t, f.owner, tok.TreasuryAddr())
	assert.True(t, tok.Circulation().IsZero())
	assert.Equal(t, types.MustAmount("100000000000000000000000000000"), tok.MaxBalance())
	assert.Equal(t, uint64(5), tok.BaseTaxPercentage())
	assert.Equal(t, uint64(50), tok.InvestPercentage())
	assert.False(t, tok.IsTradingOpen())
	assert.True(t, tok.IsExcluded(f.self))
}

func TestNewValidation(t *testing.T) {
	owner, self := addr(), addr()

	p := DefaultParams(owner, owner)
	_, err := New(p)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	p = DefaultParams(owner, self)
	p.BaseTaxPercent = 60
	_, err = New(p)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	p = DefaultParams(owner, self)
	p.FineCurve = nil
	_, err = New(p)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	p = DefaultParams(types.ZeroAddress, self)
	_, err = New(p)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestTradingClosed(t *testing.T) {
	f := newFixture(t)
	tok := f.tok
	alice, bob, sale := addr(), addr(), addr()

	_, err := tok.Transfer(f.owner, alice, types.Units(1000), start)
	require.NoError(t, err)

	before := tok.Snapshot()
	_, err = tok.Transfer(alice, bob, types.Units(10), start)
	require.ErrorIs(t, err, ErrTradingClosed)
	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StageValidateOpen, te.Stage)
	assertUnchanged(t, before, tok)
	assert.Len(t, f.rec.ofType(events.TransferRejected), 1)

	f.sale.Add(sale, alice)
	_, err = tok.Transfer(alice, bob, types.Units(10), start)
	assert.ErrorIs(t, err, ErrTradingClosed, "no presale selected yet")

	require.NoError(t, tok.SetPresaleContractAddr(f.grant, sale))
	assert.True(t, tok.IsWhitelisted(alice))
	_, err = tok.Transfer(alice, bob, types.Units(10), start)
	require.NoError(t, err)
	_, err = tok.Transfer(bob, alice, types.Units(1), start)
	assert.ErrorIs(t, err, ErrTradingClosed)

	require.NoError(t, tok.OpenTrades(f.grant))
	require.NoError(t, tok.OpenTrades(f.grant))
	assert.Len(t, f.rec.ofType(events.TradingOpened), 1)
	_, err = tok.Transfer(bob, alice, types.Units(1), start)
	assert.NoError(t, err)
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(t).withDex(t)
	tok := f.tok
	alice := addr()
	f.buy(t, alice, 100, start)
	before := tok.Snapshot()

	_, err := tok.Transfer(alice, types.ZeroAddress, types.Units(1), start)
	assert.ErrorIs(t, err, ErrInvalidRecipient)
	_, err = tok.Transfer(alice, f.self, types.Units(1), start)
	assert.ErrorIs(t, err, ErrInvalidRecipient)
	_, err = tok.Transfer(alice, addr(), types.Units(101), start)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StageValidateBalance, te.Stage)

	assertUnchanged(t, before, tok)
}

func TestDexTransferIsUntaxedButBurns(t *testing.T) {
	f := newFixture(t).withDex(t)
	alice := addr()
	dexBefore := f.tok.BalanceOf(f.dex)

	r := f.buy(t, alice, 10_000_000, start)

	assert.Equal(t, uint64(0), r.TaxPercent)
	assert.True(t, r.Tax.IsZero())
	assert.Equal(t, types.Units(100_000), r.Burned)
	assert.Equal(t, types.Units(9_900_000), f.tok.BalanceOf(alice))
	assert.Equal(t, new(uint256.Int).Sub(dexBefore, types.Units(10_000_000)), f.tok.BalanceOf(f.dex))
	assert.Equal(t, start.Unix(), f.tok.Snapshot().Ledger.Accounts[indexOf(t, f.tok, alice)].Account.LastWeighted)
}

func indexOf(t *testing.T, tok *Token, a types.Address) int {
	t.Helper()
	for i, e := range tok.Snapshot().Ledger.Accounts {
		if e.Address == a {
			return i
		}
	}
	t.Fatalf("account %s not found", a)
	return -1
}

func TestTransferSplit(t *testing.T) {
	f := newFixture(t).withDex(t)
	alice, bob := addr(), addr()
	f.buy(t, alice, 10_000_000, start)
	ownerBefore := f.tok.BalanceOf(f.owner)

	r, err := f.tok.Transfer(alice, bob, types.Units(1_000_000), start)
	require.NoError(t, err)

	assert.Equal(t, uint64(45), r.TaxPercent)
	assert.Equal(t, types.Units(450_000), r.Tax)
	assert.Equal(t, types.Units(10_000), r.Burned)
	assert.Equal(t, types.Units(225_000), r.Treasury)
	assert.Equal(t, types.Units(225_000), r.Reflection)
	assert.Equal(t, types.Units(540_000), r.Net)
	assert.Equal(t, r.Treasury, r.Flushed)

	sum := new(uint256.Int).Add(r.Net, r.Tax)
	sum.Add(sum, r.Burned)
	assert.Equal(t, r.Amount, sum)

	// bob and the treasury both share in the reflection
	assert.True(t, f.tok.BalanceOf(bob).Gt(r.Net))
	gain := new(uint256.Int).Sub(f.tok.BalanceOf(f.owner), ownerBefore)
	assert.True(t, gain.Gt(r.Treasury))
	assertConserved(t, f.tok)

	completed := f.rec.ofType(events.TransferCompleted)
	require.NotEmpty(t, completed)
	last := completed[len(completed)-1].(events.TransferCompletedEvent)
	assert.Equal(t, r.ID, last.Receipt.ID)
}

func TestFineDecaysWithHoldingTime(t *testing.T) {
	f := newFixture(t).withDex(t)
	b, c := addr(), addr()
	f.buy(t, b, 10_000_000, start)

	early, err := f.tok.Transfer(b, c, types.Units(1_000_000), start.Add(day))
	require.NoError(t, err)
	assert.Equal(t, uint64(44), early.TaxPercent)

	late, err := f.tok.Transfer(b, c, types.Units(1_000_000), start.Add(31*day))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), late.TaxPercent)
	assert.Equal(t, uint64(5), f.tok.TaxPercentageAt(b, start.Add(31*day)))

	prev := f.tok.TaxPercentageAt(b, start)
	for d := 1; d <= 35; d++ {
		cur := f.tok.TaxPercentageAt(b, start.Add(time.Duration(d)*day))
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestWeightedTimestampFavorsLargePurchases(t *testing.T) {
	f := newFixture(t).withDex(t)
	alice := addr()
	f.buy(t, alice, 9_000_000, start)
	f.buy(t, alice, 1_000, start.Add(20*day))

	// the small top-up barely moves the clock
	assert.Equal(t, uint64(5+15), f.tok.TaxPercentageAt(alice, start.Add(20*day)))

	bob := addr()
	f.buy(t, bob, 1_000, start)
	f.buy(t, bob, 9_000_000, start.Add(20*day))
	assert.Equal(t, uint64(45), f.tok.TaxPercentageAt(bob, start.Add(20*day)))
}

func TestFlagsAffectTax(t *testing.T) {
	f := newFixture(t).withDex(t)
	alice, bob, sink := addr(), addr(), addr()
	f.buy(t, alice, 1_000_000, start)
	f.buy(t, bob, 1_000_000, start)

	require.NoError(t, f.tok.SetIsFineFree(f.grant, alice, true))
	assert.Equal(t, uint64(5), f.tok.TaxPercentageAt(alice, start))

	require.NoError(t, f.tok.SetIsTaxless(f.grant, sink, true))
	r, err := f.tok.Transfer(bob, sink, types.Units(1_000), start)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.TaxPercent)
	assert.Equal(t, types.Units(10), r.Burned)

	require.NoError(t, f.tok.SetIsTaxless(f.grant, bob, true))
	assert.Equal(t, uint64(0), f.tok.TaxPercentageAt(bob, start))
	assert.True(t, f.tok.Flags(bob).Taxless)
}

func TestMaxBalance(t *testing.T) {
	f := newFixture(t).withDex(t)
	tok := f.tok
	whale := addr()

	limit := tok.MaxBalance()
	before := tok.Snapshot()
	tooMuch := new(uint256.Int).Mul(limit, uint256.NewInt(2))
	_, err := tok.Transfer(f.dex, whale, tooMuch, start)
	require.ErrorIs(t, err, ErrMaxBalanceExceeded)
	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StageValidateMaxBalance, te.Stage)
	assertUnchanged(t, before, tok)

	require.NoError(t, tok.SetIsLimitless(f.grant, whale, true))
	_, err = tok.Transfer(f.dex, whale, tooMuch, start)
	require.NoError(t, err)

	prev := tok.MaxBalance()
	assert.True(t, prev.Gt(limit))
	for i := 0; i < 5; i++ {
		f.buy(t, addr(), 50_000_000, start)
		cur := tok.MaxBalance()
		assert.True(t, cur.Gt(prev))
		prev = cur
	}
}

func TestReflectionFairness(t *testing.T) {
	f := newFixture(t).withDex(t)
	a, b, c, d := addr(), addr(), addr(), addr()
	f.buy(t, a, 1_000_000, start)
	f.buy(t, b, 1_000_000, start)
	f.buy(t, c, 5_000_000, start)
	f.buy(t, d, 5_000_000, start)
	equalAt := f.tok.BalanceOf(a)
	require.Equal(t, equalAt, f.tok.BalanceOf(b))

	for i := 1; i <= 10; i++ {
		at := start.Add(time.Duration(i) * day)
		_, err := f.tok.Transfer(c, d, types.Units(100_000), at)
		require.NoError(t, err)
		_, err = f.tok.Transfer(d, c, types.Units(90_000), at)
		require.NoError(t, err)
	}

	assert.Equal(t, f.tok.BalanceOf(a), f.tok.BalanceOf(b))
	assert.True(t, f.tok.BalanceOf(a).Gt(equalAt))
	assertConserved(t, f.tok)
}

func TestExclusionNeutrality(t *testing.T) {
	f := newFixture(t).withDex(t)
	alice, bob, carol := addr(), addr(), addr()
	f.buy(t, alice, 3_000_000, start)
	f.buy(t, bob, 2_000_000, start)
	_, err := f.tok.Transfer(bob, carol, types.Units(500_000), start.Add(day))
	require.NoError(t, err)

	watch := []types.Address{bob, carol, f.owner, f.dex, f.self}
	balances := func() []*uint256.Int {
		out := make([]*uint256.Int, len(watch))
		for i, a := range watch {
			out[i] = f.tok.BalanceOf(a)
		}
		return out
	}
	before := balances()
	aliceBefore := f.tok.BalanceOf(alice)

	require.NoError(t, f.tok.SetIsExcluded(f.grant, alice, true))
	assert.Equal(t, aliceBefore, f.tok.BalanceOf(alice))
	assert.True(t, f.tok.IsExcluded(alice))
	assertClose(t, before, balances(), 2)

	require.NoError(t, f.tok.SetIsExcluded(f.grant, alice, false))
	assertClose(t, before, balances(), 2)
	assertClose(t, []*uint256.Int{aliceBefore}, []*uint256.Int{f.tok.BalanceOf(alice)}, 2)

	assert.ErrorIs(t, f.tok.SetIsExcluded(f.grant, f.self, false), ErrInvalidParameter)
}

func assertClose(t *testing.T, want, got []*uint256.Int, delta uint64) {
	t.Helper()
	for i := range want {
		var diff uint256.Int
		if want[i].Gt(got[i]) {
			diff.Sub(want[i], got[i])
		} else {
			diff.Sub(got[i], want[i])
		}
		assert.False(t, diff.Gt(uint256.NewInt(delta)), "balance %d: %s vs %s", i, want[i].Dec(), got[i].Dec())
	}
}

func TestDeliver(t *testing.T) {
	f := newFixture(t).withDex(t)
	holders := []types.Address{addr(), addr(), addr(), addr()}
	for _, h := range holders {
		f.buy(t, h, 10_000_000, start)
	}
	donor := holders[3]
	share := f.tok.BalanceOf(holders[0])

	require.NoError(t, f.tok.Deliver(donor, f.tok.BalanceOf(donor), start))

	assert.True(t, f.tok.BalanceOf(donor).IsZero())
	for _, h := range holders[:3] {
		assert.Equal(t, f.tok.BalanceOf(holders[0]), f.tok.BalanceOf(h))
	}
	// the three remaining holders split the donation
	expected := new(uint256.Int).Div(new(uint256.Int).Mul(share, uint256.NewInt(4)), uint256.NewInt(3))
	assertClose(t, []*uint256.Int{expected}, []*uint256.Int{f.tok.BalanceOf(holders[0])}, 1)
	assertConserved(t, f.tok)
	assert.Len(t, f.rec.ofType(events.Delivered), 1)
}

func TestDeliverPartialIsProportional(t *testing.T) {
	f := newFixture(t).withDex(t)
	small, large, donor := addr(), addr(), addr()
	f.buy(t, small, 1_000_000, start)
	f.buy(t, large, 3_000_000, start)
	f.buy(t, donor, 4_000_000, start)
	smallBefore, largeBefore := f.tok.BalanceOf(small), f.tok.BalanceOf(large)

	require.NoError(t, f.tok.Deliver(donor, types.Units(1_000_000), start))

	smallGain := new(uint256.Int).Sub(f.tok.BalanceOf(small), smallBefore)
	largeGain := new(uint256.Int).Sub(f.tok.BalanceOf(large), largeBefore)
	assert.False(t, smallGain.IsZero())
	assertClose(t, []*uint256.Int{new(uint256.Int).Mul(smallGain, uint256.NewInt(3))}, []*uint256.Int{largeGain}, 3)
	assert.True(t, f.tok.BalanceOf(donor).Lt(types.Units(4_000_000)))
	assertConserved(t, f.tok)
}

func TestDeliverRejections(t *testing.T) {
	f := newFixture(t).withDex(t)
	alice := addr()
	f.buy(t, alice, 100, start)

	assert.ErrorIs(t, f.tok.Deliver(alice, types.Units(101), start), ErrInsufficientBalance)
	assert.ErrorIs(t, f.tok.Deliver(f.dex, types.Units(1), start), ErrExcludedDeliver)
	assert.Equal(t, types.Units(99), f.tok.BalanceOf(alice))
}

func TestBurnStopsAtThreshold(t *testing.T) {
	f := newFixture(t).withDex(t)
	alice := addr()
	burned := f.tok.TotalBurned()
	require.NoError(t, f.tok.SetBurnThreshold(f.grant, new(uint256.Int).Add(burned, uint256.NewInt(100))))

	r := f.buy(t, alice, 10_000_000, start)
	assert.Equal(t, uint64(100), r.Burned.Uint64())
	r = f.buy(t, alice, 10_000_000, start)
	assert.True(t, r.Burned.IsZero())
	assert.Equal(t, new(uint256.Int).Add(burned, uint256.NewInt(100)), f.tok.TotalBurned())
	assertConserved(t, f.tok)

	err := f.tok.SetBurnThreshold(f.grant, new(uint256.Int).Add(f.tok.TotalSupply(), uint256.NewInt(1)))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestTreasuryThreshold(t *testing.T) {
	f := newFixture(t).withDex(t)
	treasury, alice, bob := addr(), addr(), addr()
	require.NoError(t, f.tok.SetIsExcluded(f.grant, treasury, true))
	require.NoError(t, f.tok.SetTreasuryAddr(f.grant, treasury))
	require.NoError(t, f.tok.SetTreasuryThreshold(f.grant, types.Units(30_000)))
	f.buy(t, alice, 10_000_000, start)

	// 100k at 45% tax sends 22.5k to the treasury
	r, err := f.tok.Transfer(alice, bob, types.Units(100_000), start)
	require.NoError(t, err)
	assert.True(t, r.Flushed.IsZero())
	assert.True(t, f.tok.BalanceOf(treasury).IsZero())
	assert.Equal(t, types.Units(22_500), f.tok.TreasuryPending())
	assert.Equal(t, types.Units(22_500), f.tok.BalanceOf(f.self))

	r, err = f.tok.Transfer(alice, bob, types.Units(100_000), start)
	require.NoError(t, err)
	assert.Equal(t, types.Units(45_000), r.Flushed)
	assert.Equal(t, types.Units(45_000), f.tok.BalanceOf(treasury))
	assert.True(t, f.tok.TreasuryPending().IsZero())
	assert.True(t, f.tok.BalanceOf(f.self).IsZero())
	assertConserved(t, f.tok)
}

func TestTransferFrom(t *testing.T) {
	f := newFixture(t).withDex(t)
	alice, spender, bob := addr(), addr(), addr()
	f.buy(t, alice, 1_000, start)

	_, err := f.tok.TransferFrom(spender, alice, bob, types.Units(10), start)
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, f.tok.Approve(alice, spender, types.Units(50)))
	require.NoError(t, f.tok.IncreaseAllowance(alice, spender, types.Units(50)))
	require.NoError(t, f.tok.DecreaseAllowance(alice, spender, types.Units(20)))
	assert.Equal(t, types.Units(80), f.tok.Allowance(alice, spender))
	assert.ErrorIs(t, f.tok.DecreaseAllowance(alice, spender, types.Units(81)), ErrInsufficientAllowance)
	assert.ErrorIs(t, f.tok.Approve(alice, types.ZeroAddress, types.Units(1)), ErrInvalidRecipient)

	_, err = f.tok.TransferFrom(spender, alice, bob, types.Units(30), start)
	require.NoError(t, err)
	assert.Equal(t, types.Units(50), f.tok.Allowance(alice, spender))

	// a failed transfer keeps the allowance
	_, err = f.tok.TransferFrom(spender, alice, types.ZeroAddress, types.Units(30), start)
	require.ErrorIs(t, err, ErrInvalidRecipient)
	assert.Equal(t, types.Units(50), f.tok.Allowance(alice, spender))

	assert.Len(t, f.rec.ofType(events.ApprovalChanged), 3)
}

func TestAdminRequiresCurrentOwner(t *testing.T) {
	f := newFixture(t)
	tok := f.tok
	alice, next := addr(), addr()

	_, err := tok.Authorize(alice)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, tok.SetInvestPercentage(access.Grant{}, 10), ErrUnauthorized)

	assert.ErrorIs(t, tok.TransferOwnership(f.grant, types.ZeroAddress), ErrInvalidRecipient)
	require.NoError(t, tok.TransferOwnership(f.grant, next))
	assert.Equal(t, next, tok.Owner())

	stale := f.grant
	calls := []error{
		tok.OpenTrades(stale),
		tok.SetDexAddr(stale, alice),
		tok.SetDexRouterAddr(stale, alice),
		tok.SetTreasuryAddr(stale, alice),
		tok.SetPresaleContractAddr(stale, alice),
		tok.SetBaseTaxPercentage(stale, 1),
		tok.SetInvestPercentage(stale, 1),
		tok.SetBurnPercentage(stale, 0),
		tok.SetMaxBalanceBps(stale, 1),
		tok.SetBurnThreshold(stale, types.Zero()),
		tok.SetTreasuryThreshold(stale, types.Zero()),
		tok.SetIsExcluded(stale, alice, true),
		tok.SetIsFineFree(stale, alice, true),
		tok.SetIsTaxless(stale, alice, true),
		tok.SetIsLimitless(stale, alice, true),
		tok.RenounceOwnership(stale),
	}
	for i, err := range calls {
		assert.ErrorIs(t, err, ErrUnauthorized, "call %d", i)
	}

	g, err := tok.Authorize(next)
	require.NoError(t, err)
	require.NoError(t, tok.SetInvestPercentage(g, 10))
	assert.Equal(t, uint64(10), tok.InvestPercentage())

	require.NoError(t, tok.RenounceOwnership(g))
	assert.True(t, tok.Owner().IsZero())
	assert.ErrorIs(t, tok.SetInvestPercentage(g, 20), ErrUnauthorized)
	assert.Len(t, f.rec.ofType(events.OwnershipTransferred), 2)
}

func TestSetterValidation(t *testing.T) {
	f := newFixture(t)
	tok, g := f.tok, f.grant

	require.NoError(t, tok.SetBaseTaxPercentage(g, 59))
	assert.Equal(t, uint64(59), tok.BaseTaxPercentage())
	assert.ErrorIs(t, tok.SetBaseTaxPercentage(g, 60), ErrInvalidParameter)
	assert.ErrorIs(t, tok.SetBurnPercentage(g, 2), ErrInvalidParameter)
	assert.ErrorIs(t, tok.SetInvestPercentage(g, 101), ErrInvalidParameter)
	assert.ErrorIs(t, tok.SetMaxBalanceBps(g, 10001), ErrInvalidParameter)
	assert.ErrorIs(t, tok.SetDexAddr(g, types.ZeroAddress), ErrInvalidParameter)
	assert.ErrorIs(t, tok.SetTreasuryAddr(g, f.self), ErrInvalidParameter)

	router := addr()
	require.NoError(t, tok.SetDexRouterAddr(g, router))
	assert.Equal(t, router, tok.DexRouterAddr())
	require.NoError(t, tok.SetTreasuryThreshold(g, types.Units(5)))
	assert.Equal(t, types.Units(5), tok.TreasuryThreshold())

	changed := f.rec.ofType(events.ParameterChanged)
	require.Len(t, changed, 3)
	assert.Equal(t, "base_tax_percent", changed[0].(events.ParameterChangedEvent).Name)
	assert.Equal(t, start, changed[0].Timestamp())
}

func TestRouterTransfersAreUntaxed(t *testing.T) {
	f := newFixture(t).withDex(t)
	router, alice := addr(), addr()
	require.NoError(t, f.tok.SetDexRouterAddr(f.grant, router))
	f.buy(t, alice, 1_000, start)

	r, err := f.tok.Transfer(alice, router, types.Units(100), start)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.TaxPercent)
}

type foreignToken struct {
	address types.Address
	moved   []types.Address
	err     error
}

func (ft *foreignToken) Address() types.Address { return ft.address }

func (ft *foreignToken) Transfer(_ context.Context, from, to types.Address, _ *uint256.Int) error {
	ft.moved = append(ft.moved, from, to)
	return ft.err
}

func TestRecoverToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	to := addr()

	self := &foreignToken{address: f.self}
	assert.ErrorIs(t, f.tok.RecoverToken(ctx, f.grant, self, to, types.Units(1)), ErrSelfRecoveryForbidden)
	assert.Empty(t, self.moved)

	other := &foreignToken{address: addr()}
	assert.ErrorIs(t, f.tok.RecoverToken(ctx, access.Grant{}, other, to, types.Units(1)), ErrUnauthorized)
	require.NoError(t, f.tok.RecoverToken(ctx, f.grant, other, to, types.Units(1)))
	assert.Equal(t, []types.Address{f.self, to}, other.moved)
	assert.Len(t, f.rec.ofType(events.TokenRecovered), 1)

	boom := errors.New("boom")
	failing := &foreignToken{address: addr(), err: boom}
	assert.ErrorIs(t, f.tok.RecoverToken(ctx, f.grant, failing, to, types.Units(1)), boom)
}

func TestReceiveNativeAlwaysFails(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.tok.ReceiveNative(f.owner, uint256.NewInt(1)), ErrNativeTransferRejected)
	assert.ErrorIs(t, f.tok.ReceiveNative(addr(), types.Zero()), ErrNativeTransferRejected)
}

func TestEventsArePublishedWithoutLock(t *testing.T) {
	f := newFixture(t).withDex(t)
	calls := 0
	// reading the token from the publisher would deadlock if the lock were held
	f.rec.onPublish = func() {
		calls++
		_ = f.tok.BalanceOf(f.dex)
	}
	f.buy(t, addr(), 10, start)
	require.NoError(t, f.tok.SetInvestPercentage(f.grant, 40))
	assert.Equal(t, 2, calls)
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t).withDex(t)
	alice, bob := addr(), addr()
	f.buy(t, alice, 1_000_000, start)
	_, err := f.tok.Transfer(alice, bob, types.Units(10_000), start.Add(2*day))
	require.NoError(t, err)
	require.NoError(t, f.tok.Approve(alice, bob, types.Units(7)))

	restored, err := Restore(f.tok.Snapshot())
	require.NoError(t, err)

	assert.Equal(t, f.tok.Snapshot(), restored.Snapshot())
	assert.Equal(t, f.tok.BalanceOf(bob), restored.BalanceOf(bob))
	assert.Equal(t, types.Units(7), restored.Allowance(alice, bob))
	assert.Equal(t, f.tok.MaxBalance(), restored.MaxBalance())
	assert.True(t, restored.IsTradingOpen())

	g, err := restored.Authorize(f.owner)
	require.NoError(t, err)
	assert.NoError(t, restored.SetInvestPercentage(g, 10))

	_, err = Restore(State{})
	assert.Error(t, err)
}

func TestConservationUnderChurn(t *testing.T) {
	f := newFixture(t).withDex(t)
	treasury := addr()
	require.NoError(t, f.tok.SetTreasuryAddr(f.grant, treasury))
	require.NoError(t, f.tok.SetTreasuryThreshold(f.grant, types.Units(5_000)))

	holders := make([]types.Address, 6)
	for i := range holders {
		holders[i] = addr()
		f.buy(t, holders[i], uint64(1_000_000*(i+1)), start)
	}
	require.NoError(t, f.tok.SetIsExcluded(f.grant, holders[2], true))

	for round := 0; round < 15; round++ {
		at := start.Add(time.Duration(round) * 3 * day)
		for i, from := range holders {
			to := holders[(i+round+1)%len(holders)]
			if to == from {
				continue
			}
			_, err := f.tok.Transfer(from, to, types.Units(10_000), at)
			require.NoError(t, err)
		}
		if round%5 == 4 {
			require.NoError(t, f.tok.Deliver(holders[0], types.Units(1_000), at))
		}
		_, err := f.tok.Transfer(holders[round%len(holders)], f.dex, types.Units(5_000), at)
		require.NoError(t, err)
	}
	assertConserved(t, f.tok)
}
