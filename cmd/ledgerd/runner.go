// runner.go - Replays a script against the ledger and collects a report
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"

	"confidential-ledger/internal/cve"
	"confidential-ledger/internal/ledger"
	"confidential-ledger/internal/wallet"
)

const (
	codeRateLimited  = "RATE_LIMITED"
	codeInvalidStep  = "INVALID_STEP"
	codeDenied       = "PERMISSION_DENIED"
	codeOutOfRange   = "OUT_OF_RANGE"
	codeWallet       = "WALLET_ERROR"
	codeTimeout      = "TIMEOUT"
	codeUnclassified = "ERROR"
)

var errInvalidStep = errors.New("invalid step")

// StepResult is the outcome of one submitted step.
type StepResult struct {
	Index     int
	Op        string
	Principal string
	Code      string
	Err       error
	OK        bool
	Detail    string
}

// DecryptResult is the outcome of one asynchronous decryption.
type DecryptResult struct {
	Index     int
	Principal string
	Owner     string
	Target    string
	AssetID   uint64
	Plaintext uint64
	Code      string
	Err       error
	OK        bool
}

// Report collects everything a run produced.
type Report struct {
	RunID       string
	Steps       []StepResult
	Decryptions []DecryptResult
	Assets      []ledger.Asset
	Stats       ledger.Stats
}

// Failures counts steps and decryptions whose outcome did not match the script.
func (r *Report) Failures() int {
	n := 0
	for _, s := range r.Steps {
		if !s.OK {
			n++
		}
	}
	for _, d := range r.Decryptions {
		if !d.OK {
			n++
		}
	}
	return n
}

type pendingDecrypt struct {
	index  int
	step   Step
	owner  string
	result <-chan cve.Decryption
}

// Runner submits steps to one ledger instance.
type Runner struct {
	engine     *cve.Engine
	contractID string
	book       *wallet.Book
	ledger     *ledger.Coordinator
	admin      ledger.AdminCap
	adminID    string

	limiter     *PrincipalRateLimiter
	metrics     *MetricsCollector
	log         *Logger
	concurrency int
	timeout     time.Duration
	runID       string
}

// NewRunner wires a runner around an existing ledger.
func NewRunner(cfg *Config, log *Logger, engine *cve.Engine, book *wallet.Book, l *ledger.Coordinator, admin ledger.AdminCap, metrics *MetricsCollector) *Runner {
	return &Runner{
		engine:      engine,
		contractID:  cfg.ContractID,
		book:        book,
		ledger:      l,
		admin:       admin,
		adminID:     cfg.Admin,
		limiter:     NewPrincipalRateLimiter(cfg.RateBurst, cfg.RateRefill, time.Duration(cfg.RatePeriodMillis)*time.Millisecond),
		metrics:     metrics,
		log:         log,
		concurrency: cfg.MaxConcurrency,
		timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		runID:       uuid.NewString(),
	}
}

// Run submits steps in order, then waits for every requested decryption.
func (r *Runner) Run(ctx context.Context, steps []Step) (*Report, error) {
	rep := &Report{RunID: r.runID}
	r.log.Info().Str("run_id", r.runID).Int("steps", len(steps)).Msg("run started")

	var pending []pendingDecrypt
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, p := r.submit(ctx, i, s)
		rep.Steps = append(rep.Steps, res)
		if p != nil {
			pending = append(pending, *p)
		}
	}

	rep.Decryptions = r.await(ctx, pending)
	rep.Assets = r.ledger.Assets()
	rep.Stats = r.ledger.Stats()
	r.metrics.RecordLedgerStats(rep.Stats)

	r.log.Info().
		Str("run_id", r.runID).
		Int("failures", rep.Failures()).
		Int("decryptions", len(rep.Decryptions)).
		Msg("run finished")
	return rep, nil
}

func (r *Runner) submit(ctx context.Context, i int, s Step) (StepResult, *pendingDecrypt) {
	caller := s.Principal
	if caller == "" {
		caller = r.adminID
	}
	res := StepResult{Index: i, Op: s.Op, Principal: caller}

	if s.Op != opFund && !r.limiter.Allow(caller) {
		r.metrics.RecordRateLimited(caller)
		r.log.Warn().Str("principal", caller).Str("op", s.Op).Msg("submission rate limited")
		res.Code = codeRateLimited
		res.OK = s.Expect == codeRateLimited
		return res, nil
	}

	start := time.Now()
	var (
		err     error
		pending *pendingDecrypt
	)
	switch s.Op {
	case opFund:
		err = r.book.Credit(s.Principal, s.Amount)
		res.Detail = "+" + strconv.FormatUint(s.Amount, 10)
	case opRegister:
		err = r.ledger.Register(ctx, ledger.Principal(caller))
	case opList:
		var id uint64
		id, err = r.ledger.List(ctx, r.capabilityFor(caller), ledger.Listing{
			Name:           s.Name,
			Issuer:         s.Issuer,
			ContentRef:     s.ContentRef,
			TotalValuation: ledger.Amount(s.Valuation),
			TotalUnits:     s.Units,
			UnitPrice:      ledger.Amount(s.UnitPrice),
		})
		if err == nil {
			res.Detail = "asset " + strconv.FormatUint(id, 10)
		}
	case opCommit:
		var rec ledger.Receipt
		rec, err = r.commit(ctx, caller, s)
		if err == nil {
			res.Detail = fmt.Sprintf("cost %d, refund %d", rec.Cost, rec.Refund)
		}
	case opClose:
		err = r.ledger.Close(ctx, r.capabilityFor(caller), s.Asset, ledger.Amount(s.FinalPrice))
	case opDrain:
		var amount ledger.Amount
		amount, err = r.ledger.Drain(ctx, r.capabilityFor(caller))
		if err == nil {
			res.Detail = "drained " + strconv.FormatUint(uint64(amount), 10)
		}
	case opDecrypt:
		pending, err = r.requestDecryption(i, s)
		if err == nil {
			res.Detail = "requested"
		}
	default:
		err = fmt.Errorf("%w: unknown op %q", errInvalidStep, s.Op)
	}

	res.Err = err
	res.Code = codeOf(err)
	// A requested decryption is judged when its result arrives.
	res.OK = pending != nil || res.Code == s.Expect
	r.metrics.RecordOp(s.Op, ledger.Code(res.Code), time.Since(start))

	if err != nil {
		r.log.Debug().Err(err).Int("step", i).Str("op", s.Op).Str("code", res.Code).Msg("step rejected")
	} else if s.Op != opDecrypt {
		r.log.Audit(s.Op, map[string]interface{}{
			"run_id":    r.runID,
			"principal": caller,
			"asset":     s.Asset,
			"units":     s.Units,
		})
	}
	if !res.OK {
		r.log.Warn().Int("step", i).Str("op", s.Op).Str("expected", s.Expect).Str("got", res.Code).Msg("unexpected outcome")
	}
	return res, pending
}

// capabilityFor returns the admin capability only to the admin principal.
func (r *Runner) capabilityFor(caller string) ledger.AdminCap {
	if caller == r.adminID {
		return r.admin
	}
	return ledger.AdminCap{}
}

func (r *Runner) requestDecryption(i int, s Step) (*pendingDecrypt, error) {
	owner := s.Owner
	if owner == "" {
		owner = s.Principal
	}
	h, err := r.handleFor(ledger.Principal(owner), s)
	if err != nil {
		return nil, err
	}
	ch, err := r.engine.RequestDecryption(h, s.Principal)
	if err != nil {
		r.metrics.RecordDecryption("denied")
		return nil, err
	}
	return &pendingDecrypt{index: i, step: s, owner: owner, result: ch}, nil
}

func (r *Runner) handleFor(owner ledger.Principal, s Step) (cve.Handle, error) {
	switch s.Target {
	case "units", "value":
		pos := r.ledger.Position(owner, s.Asset)
		if !pos.Exists {
			return cve.Handle{}, fmt.Errorf("%w: %s holds no position in asset %d", errInvalidStep, owner, s.Asset)
		}
		if s.Target == "units" {
			return pos.Units, nil
		}
		return pos.Value, nil
	case "total", "count":
		prof, err := r.ledger.Profile(owner)
		if err != nil {
			return cve.Handle{}, err
		}
		if s.Target == "total" {
			return prof.TotalCommitted, nil
		}
		return prof.PositionCount, nil
	}
	return cve.Handle{}, fmt.Errorf("%w: unknown decrypt target %q", errInvalidStep, s.Target)
}

// await collects pending decryptions concurrently, bounded by the runner's
// concurrency and timeout.
func (r *Runner) await(ctx context.Context, pending []pendingDecrypt) []DecryptResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results := make([]DecryptResult, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, p := range pending {
		i, p := i, p
		g.Go(func() error {
			res := DecryptResult{
				Index:     p.index,
				Principal: p.step.Principal,
				Owner:     p.owner,
				Target:    p.step.Target,
				AssetID:   p.step.Asset,
			}
			select {
			case <-gctx.Done():
				res.Err = gctx.Err()
			case d := <-p.result:
				res.Plaintext, res.Err = d.Plaintext, d.Err
			}
			res.Code = codeOf(res.Err)
			res.OK = res.Code == p.step.Expect
			if res.OK && res.Err == nil && p.step.Want != nil {
				res.OK = *p.step.Want == res.Plaintext
			}
			if res.Err != nil {
				r.metrics.RecordDecryption("failed")
			} else {
				r.metrics.RecordDecryption("served")
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// commit submits the unit count as a client-encrypted input, as a wallet
// would. InputUnits lets a step encrypt a different count than it declares.
func (r *Runner) commit(ctx context.Context, caller string, s Step) (ledger.Receipt, error) {
	encrypted := s.Units
	if s.InputUnits != nil {
		encrypted = *s.InputUnits
	}
	input, err := cve.EncryptInput(r.engine.PublicKey(), r.contractID, caller, encrypted)
	if err != nil {
		return ledger.Receipt{}, err
	}
	return r.ledger.CommitInput(ctx, ledger.Principal(caller), s.Asset, s.Units, ledger.Amount(s.Paid), input)
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	if code := ledger.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, cve.ErrPermissionDenied):
		return codeDenied
	case errors.Is(err, cve.ErrPlaintextOutOfRange):
		return codeOutOfRange
	case errors.Is(err, errInvalidStep):
		return codeInvalidStep
	case errors.Is(err, wallet.ErrOverflow), errors.Is(err, wallet.ErrInsufficientBalance):
		return codeWallet
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return codeTimeout
	}
	return codeUnclassified
}

// Render writes the step, decryption and asset tables.
func (r *Report) Render(w io.Writer) error {
	fmt.Fprintf(w, "run %s\n", r.RunID)

	steps := tablewriter.NewWriter(w)
	steps.Header("#", "Op", "Principal", "Result", "Detail")
	for _, s := range r.Steps {
		if err := steps.Append([]string{strconv.Itoa(s.Index), s.Op, s.Principal, outcome(s.Code, s.OK), s.Detail}); err != nil {
			return err
		}
	}
	if err := steps.Render(); err != nil {
		return err
	}

	if len(r.Decryptions) > 0 {
		decs := tablewriter.NewWriter(w)
		decs.Header("#", "Requester", "Owner", "Target", "Asset", "Plaintext", "Result")
		for _, d := range r.Decryptions {
			plaintext := ""
			if d.Err == nil {
				plaintext = strconv.FormatUint(d.Plaintext, 10)
			}
			row := []string{strconv.Itoa(d.Index), d.Principal, d.Owner, d.Target, strconv.FormatUint(d.AssetID, 10), plaintext, outcome(d.Code, d.OK)}
			if err := decs.Append(row); err != nil {
				return err
			}
		}
		if err := decs.Render(); err != nil {
			return err
		}
	}

	assets := tablewriter.NewWriter(w)
	assets.Header("ID", "Name", "Units", "Available", "Unit Price", "Investors", "Active", "Final Price")
	for _, a := range r.Assets {
		row := []string{
			strconv.FormatUint(a.ID, 10),
			a.Name,
			strconv.FormatUint(a.TotalUnits, 10),
			strconv.FormatUint(a.AvailableUnits, 10),
			strconv.FormatUint(uint64(a.UnitPrice), 10),
			strconv.FormatUint(a.Investors, 10),
			strconv.FormatBool(a.Active),
			strconv.FormatUint(uint64(a.FinalPrice), 10),
		}
		if err := assets.Append(row); err != nil {
			return err
		}
	}
	if err := assets.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "participants %d, positions %d, escrow %d, failures %d\n",
		r.Stats.Participants, r.Stats.Positions, r.Stats.Escrow, r.Failures())
	return nil
}

func outcome(code string, ok bool) string {
	s := "ok"
	if code != "" {
		s = code
	}
	if !ok {
		s += " (unexpected)"
	}
	return s
}
