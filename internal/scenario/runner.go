package scenario

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/reflex/internal/access"
	"github.com/rovshanmuradov/reflex/internal/presale"
	"github.com/rovshanmuradov/reflex/internal/token"
	"github.com/rovshanmuradov/reflex/internal/types"
	"github.com/rovshanmuradov/reflex/internal/wallet"
)

// Runner replays scenarios against a token on a virtual clock.
type Runner struct {
	tok     *token.Token
	book    *wallet.Book
	clock   *Clock
	presale *presale.Registry
	logger  *zap.Logger

	owner string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPresale lets whitelist steps add accounts to reg.
func WithPresale(reg *presale.Registry) RunnerOption {
	return func(r *Runner) { r.presale = reg }
}

// NewRunner creates a runner. The token should read time from clock.
func NewRunner(tok *token.Token, book *wallet.Book, clock *Clock, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		tok:    tok,
		book:   book,
		clock:  clock,
		logger: logger.Named("scenario"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every step in order. Step failures are recorded in the
// report; the returned error is only set when ctx ends the run early.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Report, error) {
	if !s.Start.IsZero() {
		r.clock.Set(s.Start)
	}
	r.owner = s.Owner
	if r.owner == "" {
		r.owner = "owner"
	}

	report := &Report{Name: s.Name, StartedAt: r.clock.Now()}
	log := r.logger.With(zap.String("scenario", s.Name))
	log.Info("Running scenario", zap.Int("steps", len(s.Steps)))

	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			report.EndedAt = r.clock.Now()
			return report, fmt.Errorf("scenario %s stopped at step %d: %w", s.Name, i+1, err)
		}

		res := r.runStep(i+1, st)
		report.add(res)
		if res.Passed {
			log.Debug("Step passed",
				zap.Int("step", res.Index),
				zap.String("action", string(res.Action)),
				zap.String("detail", res.Detail))
		} else {
			log.Warn("Step failed",
				zap.Int("step", res.Index),
				zap.String("action", string(res.Action)),
				zap.String("error", res.Error))
		}
	}

	report.EndedAt = r.clock.Now()
	log.Info("Scenario finished",
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (r *Runner) runStep(index int, st Step) StepResult {
	res := StepResult{Index: index, Action: st.Action, At: r.clock.Now()}
	detail, receipt, err := r.exec(st)
	res.Detail = detail
	res.Receipt = receipt

	switch {
	case st.ExpectError != "" && err == nil:
		res.Error = fmt.Sprintf("expected error containing %q, step succeeded", st.ExpectError)
	case st.ExpectError != "" && !strings.Contains(err.Error(), st.ExpectError):
		res.Error = fmt.Sprintf("expected error containing %q, got %q", st.ExpectError, err.Error())
	case st.ExpectError != "":
		res.Passed = true
		res.Detail = "failed as expected: " + err.Error()
	case err != nil:
		res.Error = err.Error()
	default:
		res.Passed = true
	}
	return res
}

func (r *Runner) exec(st Step) (string, *types.Receipt, error) {
	now := r.clock.Now()

	switch st.Action {
	case ActionAdvance:
		d, err := advanceBy(st)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("clock at %s", r.clock.Advance(d).Format(time.RFC3339)), nil, nil

	case ActionTransfer:
		from, to, err := r.pair(st.From, st.To)
		if err != nil {
			return "", nil, err
		}
		amount, err := r.amountOf(st.Amount, from)
		if err != nil {
			return "", nil, err
		}
		receipt, err := r.tok.Transfer(from, to, amount, now)
		return describeReceipt(receipt), receipt, err

	case ActionTransferFrom:
		spender, err := r.address(st.Spender)
		if err != nil {
			return "", nil, err
		}
		from, to, err := r.pair(st.From, st.To)
		if err != nil {
			return "", nil, err
		}
		amount, err := r.amountOf(st.Amount, from)
		if err != nil {
			return "", nil, err
		}
		receipt, err := r.tok.TransferFrom(spender, from, to, amount, now)
		return describeReceipt(receipt), receipt, err

	case ActionApprove:
		owner, spender, err := r.pair(st.From, st.Spender)
		if err != nil {
			return "", nil, err
		}
		amount, err := types.ParseUnits(st.Amount)
		if err != nil {
			return "", nil, err
		}
		return "", nil, r.tok.Approve(owner, spender, amount)

	case ActionDeliver:
		from, err := r.address(st.From)
		if err != nil {
			return "", nil, err
		}
		amount, err := r.amountOf(st.Amount, from)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("delivered %s", types.FormatUnits(amount)), nil, r.tok.Deliver(from, amount, now)

	case ActionWhitelist:
		if r.presale == nil {
			return "", nil, fmt.Errorf("no presale registry configured")
		}
		account, err := r.address(st.Account)
		if err != nil {
			return "", nil, err
		}
		r.presale.Add(r.tok.Settings().Presale, account)
		return "", nil, nil

	case ActionExpectBalance:
		account, err := r.address(st.Account)
		if err != nil {
			return "", nil, err
		}
		return r.expectAmount("balance of "+st.Account, r.tok.BalanceOf(account), st)

	case ActionExpectBurned:
		return r.expectAmount("total burned", r.tok.TotalBurned(), st)

	case ActionExpectTax:
		account, err := r.address(st.Account)
		if err != nil {
			return "", nil, err
		}
		want, err := strconv.ParseUint(st.Value, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid tax percentage %q: %w", st.Value, err)
		}
		got := r.tok.TaxPercentageAt(account, now)
		if got != want {
			return "", nil, fmt.Errorf("tax of %s is %d%%, want %d%%", st.Account, got, want)
		}
		return fmt.Sprintf("tax %d%%", got), nil, nil
	}

	return "", nil, r.admin(st)
}

// admin runs the owner-gated steps.
func (r *Runner) admin(st Step) error {
	callerName := st.Caller
	if callerName == "" {
		callerName = r.owner
	}
	caller, err := r.address(callerName)
	if err != nil {
		return err
	}
	g, err := r.tok.Authorize(caller)
	if err != nil {
		return err
	}

	switch st.Action {
	case ActionOpenTrades:
		return r.tok.OpenTrades(g)
	case ActionRenounce:
		return r.tok.RenounceOwnership(g)
	case ActionSetBaseTax:
		return r.withUint(st.Value, func(v uint64) error { return r.tok.SetBaseTaxPercentage(g, v) })
	case ActionSetInvest:
		return r.withUint(st.Value, func(v uint64) error { return r.tok.SetInvestPercentage(g, v) })
	case ActionSetBurn:
		return r.withUint(st.Value, func(v uint64) error { return r.tok.SetBurnPercentage(g, v) })
	case ActionSetMaxBalanceBps:
		return r.withUint(st.Value, func(v uint64) error { return r.tok.SetMaxBalanceBps(g, v) })
	case ActionSetBurnThreshold, ActionSetTreasuryThreshold:
		amount, err := types.ParseUnits(st.Amount)
		if err != nil {
			return err
		}
		if st.Action == ActionSetBurnThreshold {
			return r.tok.SetBurnThreshold(g, amount)
		}
		return r.tok.SetTreasuryThreshold(g, amount)
	}

	account, err := r.address(st.Account)
	if err != nil {
		return err
	}
	switch st.Action {
	case ActionTransferOwnership:
		return r.tok.TransferOwnership(g, account)
	case ActionSetDex:
		return r.tok.SetDexAddr(g, account)
	case ActionSetDexRouter:
		return r.tok.SetDexRouterAddr(g, account)
	case ActionSetTreasury:
		return r.tok.SetTreasuryAddr(g, account)
	case ActionSetPresale:
		return r.tok.SetPresaleContractAddr(g, account)
	}

	flag, err := strconv.ParseBool(st.Value)
	if err != nil {
		return fmt.Errorf("invalid flag value %q: %w", st.Value, err)
	}
	setters := map[Action]func(access.Grant, types.Address, bool) error{
		ActionSetExcluded:  r.tok.SetIsExcluded,
		ActionSetFineFree:  r.tok.SetIsFineFree,
		ActionSetTaxless:   r.tok.SetIsTaxless,
		ActionSetLimitless: r.tok.SetIsLimitless,
	}
	set, ok := setters[st.Action]
	if !ok {
		return fmt.Errorf("unsupported action %q", st.Action)
	}
	return set(g, account, flag)
}

func (r *Runner) withUint(s string, fn func(uint64) error) error {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", s, err)
	}
	return fn(v)
}

// address resolves a wallet name or base58 address. Unknown names get a
// fresh wallet so scenarios can introduce holders on first use.
func (r *Runner) address(ref string) (types.Address, error) {
	if addr, err := r.book.Resolve(ref); err == nil {
		return addr, nil
	}
	w, err := r.book.Ensure(ref)
	if err != nil {
		return types.ZeroAddress, err
	}
	r.logger.Debug("Generated wallet", zap.String("name", ref), zap.Stringer("address", w.PublicKey))
	return w.PublicKey, nil
}

func (r *Runner) pair(a, b string) (types.Address, types.Address, error) {
	first, err := r.address(a)
	if err != nil {
		return types.ZeroAddress, types.ZeroAddress, err
	}
	second, err := r.address(b)
	if err != nil {
		return types.ZeroAddress, types.ZeroAddress, err
	}
	return first, second, nil
}

func (r *Runner) amountOf(s string, holder types.Address) (*uint256.Int, error) {
	if s == "all" {
		return r.tok.BalanceOf(holder), nil
	}
	return types.ParseUnits(s)
}

func (r *Runner) expectAmount(what string, got *uint256.Int, st Step) (string, *types.Receipt, error) {
	want, err := types.ParseUnits(st.Amount)
	if err != nil {
		return "", nil, err
	}
	tolerance := types.Zero()
	if st.Tolerance != "" {
		if tolerance, err = types.ParseUnits(st.Tolerance); err != nil {
			return "", nil, err
		}
	}
	diff := types.SaturatingSub(got, want)
	if want.Gt(got) {
		diff = new(uint256.Int).Sub(want, got)
	}
	if diff.Gt(tolerance) {
		return "", nil, fmt.Errorf("%s is %s, want %s", what, types.FormatUnits(got), types.FormatUnits(want))
	}
	return fmt.Sprintf("%s is %s", what, types.FormatUnits(got)), nil, nil
}

func advanceBy(st Step) (time.Duration, error) {
	d := time.Duration(st.Days) * 24 * time.Hour
	if st.Duration != "" {
		parsed, err := time.ParseDuration(st.Duration)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", st.Duration, err)
		}
		d += parsed
	}
	return d, nil
}

func describeReceipt(rc *types.Receipt) string {
	if rc == nil {
		return ""
	}
	return fmt.Sprintf("net %s, tax %d%% (%s), burned %s",
		types.FormatUnits(rc.Net), rc.TaxPercent, types.FormatUnits(rc.Tax), types.FormatUnits(rc.Burned))
}
