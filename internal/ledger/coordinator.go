package ledger

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"confidential-ledger/internal/journal"
)

const tracerName = "confidential-ledger/internal/ledger"

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used for recorded timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithJournal records every accepted operation. Journal failures are logged
// and never reject a call.
func WithJournal(j Journal) Option {
	return func(c *Coordinator) {
		c.journal = j
	}
}

// Coordinator is the single entry point of the ledger. Calls are serialized.
type Coordinator struct {
	mu sync.RWMutex

	engine Engine
	funds  Funds
	scale  uint64
	admin  *adminKey

	registry  *registry
	catalog   *catalog
	positions *positionBook
	escrow    Amount

	journal Journal
	now     func() time.Time
	log     zerolog.Logger
	tracer  trace.Tracer
}

// New creates a ledger and issues its administrator capability.
func New(cfg Config, engine Engine, funds Funds, opts ...Option) (*Coordinator, AdminCap, error) {
	if cfg.Admin == "" {
		return nil, AdminCap{}, errors.New("ledger: admin principal required")
	}
	if engine == nil || funds == nil {
		return nil, AdminCap{}, errors.New("ledger: engine and funds required")
	}
	scale := cfg.ValueScale
	if scale == 0 {
		scale = 1
	}
	c := &Coordinator{
		engine:    engine,
		funds:     funds,
		scale:     scale,
		admin:     &adminKey{holder: cfg.Admin},
		registry:  newRegistry(),
		catalog:   &catalog{scale: scale},
		positions: newPositionBook(),
		now:       time.Now,
		log:       zerolog.Nop(),
		tracer:    otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, AdminCap{key: c.admin}, nil
}

// Register enrolls the caller with encrypted zero aggregates.
func (c *Coordinator) Register(ctx context.Context, caller Principal) error {
	ctx, span := c.tracer.Start(ctx, "ledger.Register",
		trace.WithAttributes(attribute.String("ledger.principal", string(caller))))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.engine.Settle()

	part, err := c.registry.enroll(ctx, c.engine, caller, c.now())
	if err != nil {
		return c.fail(span, "register", err)
	}
	c.log.Info().Str("principal", string(caller)).Msg("participant registered")
	c.record(ctx, journal.Entry{
		Op:        "register",
		Principal: string(caller),
		Handles: []string{
			part.profile.totalCommitted.Handle().String(),
			part.profile.positionCount.Handle().String(),
		},
		At: part.registeredAt,
	})
	return nil
}

// List adds an asset to the catalog and returns its id.
func (c *Coordinator) List(ctx context.Context, capability AdminCap, l Listing) (uint64, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.List",
		trace.WithAttributes(
			attribute.String("ledger.asset.name", l.Name),
			attribute.Int64("ledger.asset.total_units", int64(l.TotalUnits)),
		))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.authorize(capability); err != nil {
		return 0, c.fail(span, "list", err)
	}
	a, err := c.catalog.list(l, c.now())
	if err != nil {
		return 0, c.fail(span, "list", err)
	}
	span.SetAttributes(attribute.Int64("ledger.asset.id", int64(a.ID)))
	c.log.Info().Uint64("asset_id", a.ID).Str("name", a.Name).Uint64("units", a.TotalUnits).Msg("asset listed")
	c.record(ctx, journal.Entry{
		Op:        "list",
		Principal: string(c.admin.holder),
		AssetID:   a.ID,
		Units:     a.TotalUnits,
		At:        a.CreatedAt,
	})
	return a.ID, nil
}

// Commit takes a confidential position of units in asset assetID for paid.
// The ledger encrypts units itself. Excess payment above units*unitPrice is
// refunded in the same call.
func (c *Coordinator) Commit(ctx context.Context, caller Principal, assetID, units uint64, paid Amount) (Receipt, error) {
	return c.commitSpan(ctx, caller, assetID, units, paid, nil)
}

// CommitInput is Commit with the unit count encrypted by the caller.
// unitsInput must be a cve.EncryptInput payload produced by caller for this
// ledger's contract and must encrypt exactly units; otherwise the call fails
// with ErrInvalidInput.
func (c *Coordinator) CommitInput(ctx context.Context, caller Principal, assetID, units uint64, paid Amount, unitsInput []byte) (Receipt, error) {
	if len(unitsInput) == 0 {
		return Receipt{}, reject(ErrInvalidInput, map[string]string{"principal": string(caller)})
	}
	return c.commitSpan(ctx, caller, assetID, units, paid, unitsInput)
}

func (c *Coordinator) commitSpan(ctx context.Context, caller Principal, assetID, units uint64, paid Amount, unitsInput []byte) (Receipt, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.Commit",
		trace.WithAttributes(
			attribute.String("ledger.principal", string(caller)),
			attribute.Int64("ledger.asset.id", int64(assetID)),
			attribute.Int64("ledger.units", int64(units)),
			attribute.Bool("ledger.client_input", unitsInput != nil),
		))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.engine.Settle()

	r, err := c.commit(ctx, caller, assetID, units, paid, unitsInput)
	if err != nil {
		return Receipt{}, c.fail(span, "commit", err)
	}
	return r, nil
}

func (c *Coordinator) commit(ctx context.Context, caller Principal, assetID, units uint64, paid Amount, unitsInput []byte) (Receipt, error) {
	if _, ok := c.registry.lookup(caller); !ok {
		return Receipt{}, reject(ErrNotRegistered, map[string]string{"principal": string(caller)})
	}
	a, err := c.catalog.reservable(assetID, units)
	if err != nil {
		return Receipt{}, err
	}
	if c.positions.exists(caller, assetID) {
		return Receipt{}, reject(ErrDuplicatePosition, map[string]string{
			"principal": string(caller),
			"asset_id":  strconv.FormatUint(assetID, 10),
		})
	}
	// units <= TotalUnits and TotalUnits*UnitPrice fit at listing, so this cannot overflow.
	cost, _ := mulAmount(units, a.UnitPrice)
	if paid < cost {
		return Receipt{}, reject(ErrInsufficientPayment, map[string]string{
			"required": strconv.FormatUint(uint64(cost), 10),
			"paid":     strconv.FormatUint(uint64(paid), 10),
		})
	}

	// Engine work. Nothing in ledger state changes before the payment below.
	encUnits, err := c.sealUnits(ctx, caller, units, unitsInput)
	if err != nil {
		return Receipt{}, engineError(err)
	}
	// Listing only accepts unit prices that are multiples of the scale.
	encValue, err := encryptSealed(ctx, c.engine, uint64(cost)/c.scale, caller)
	if err != nil {
		return Receipt{}, engineError(err)
	}
	one, err := c.engine.Encrypt(ctx, 1)
	if err != nil {
		return Receipt{}, engineError(err)
	}
	next, err := c.registry.accumulate(ctx, c.engine, caller, encValue.Handle(), one)
	if err != nil {
		return Receipt{}, err
	}

	if err := c.funds.Debit(string(caller), uint64(paid)); err != nil {
		return Receipt{}, wrap(ErrInsufficientFunds, err)
	}

	now := c.now()
	c.catalog.reserve(a, units)
	c.positions.insert(caller, assetID, &position{units: encUnits, value: encValue, createdAt: now})
	c.registry.replace(caller, next)
	c.escrow += cost

	refund := paid - cost
	if refund > 0 {
		if err := c.funds.Credit(string(caller), uint64(refund)); err != nil {
			// The debit above freed at least refund, so this only fails if the
			// balance was credited elsewhere in between. Keep it in escrow.
			c.escrow += refund
			c.log.Error().Err(err).Str("principal", string(caller)).Uint64("refund", uint64(refund)).Msg("refund failed, held in escrow")
			refund = 0
		}
	}

	c.log.Info().
		Str("principal", string(caller)).
		Uint64("asset_id", assetID).
		Uint64("units", units).
		Uint64("cost", uint64(cost)).
		Uint64("refund", uint64(refund)).
		Msg("position committed")

	pos := c.positions.view(caller, assetID)
	c.record(ctx, journal.Entry{
		Op:        "commit",
		Principal: string(caller),
		AssetID:   assetID,
		Units:     units,
		Amount:    uint64(cost),
		Handles:   []string{pos.Units.String(), pos.Value.String()},
		At:        now,
	})
	return Receipt{
		AssetID:   assetID,
		Units:     units,
		Cost:      cost,
		Refund:    refund,
		CreatedAt: now,
		Position:  pos,
	}, nil
}

// sealUnits encrypts units, or admits the caller's encrypted input after the
// engine has checked its proof and that it encrypts units.
func (c *Coordinator) sealUnits(ctx context.Context, caller Principal, units uint64, unitsInput []byte) (sealed, error) {
	if unitsInput == nil {
		return encryptSealed(ctx, c.engine, units, caller)
	}
	h, err := c.engine.FromInputEquals(ctx, string(caller), unitsInput, units)
	if err != nil {
		return sealed{}, err
	}
	return seal(ctx, c.engine, h, caller)
}

// Close deactivates an asset and records its final price.
func (c *Coordinator) Close(ctx context.Context, capability AdminCap, assetID uint64, finalPrice Amount) error {
	ctx, span := c.tracer.Start(ctx, "ledger.Close",
		trace.WithAttributes(attribute.Int64("ledger.asset.id", int64(assetID))))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.authorize(capability); err != nil {
		return c.fail(span, "close", err)
	}
	a, err := c.catalog.close(assetID, finalPrice, c.now())
	if err != nil {
		return c.fail(span, "close", err)
	}
	c.log.Info().Uint64("asset_id", assetID).Uint64("final_price", uint64(finalPrice)).Msg("asset closed")
	c.record(ctx, journal.Entry{
		Op:        "close",
		Principal: string(c.admin.holder),
		AssetID:   assetID,
		At:        a.ClosedAt,
	})
	return nil
}

// Drain moves the whole escrow balance to the administrator.
func (c *Coordinator) Drain(ctx context.Context, capability AdminCap) (Amount, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.Drain")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.authorize(capability); err != nil {
		return 0, c.fail(span, "drain", err)
	}
	amount := c.escrow
	if amount > 0 {
		if err := c.funds.Credit(string(c.admin.holder), uint64(amount)); err != nil {
			return 0, c.fail(span, "drain", wrap(ErrTransferFailed, err))
		}
		c.escrow = 0
	}
	span.SetAttributes(attribute.Int64("ledger.escrow.drained", int64(amount)))
	c.log.Info().Uint64("amount", uint64(amount)).Msg("escrow drained")
	c.record(ctx, journal.Entry{
		Op:        "drain",
		Principal: string(c.admin.holder),
		Amount:    uint64(amount),
		At:        c.now(),
	})
	return amount, nil
}

// IsRegistered reports whether p has enrolled.
func (c *Coordinator) IsRegistered(p Principal) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.registry.lookup(p)
	return ok
}

// Participant returns the public registration record of p.
func (c *Coordinator) Participant(p Principal) Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	part, ok := c.registry.lookup(p)
	if !ok {
		return Participant{Principal: p}
	}
	return Participant{Principal: p, Registered: true, RegisteredAt: part.registeredAt}
}

// Profile returns the encrypted aggregate handles of p.
func (c *Coordinator) Profile(p Principal) (Profile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	part, ok := c.registry.lookup(p)
	if !ok {
		return Profile{}, reject(ErrNotRegistered, map[string]string{"principal": string(p)})
	}
	return Profile{
		TotalCommitted: part.profile.totalCommitted.Handle(),
		PositionCount:  part.profile.positionCount.Handle(),
	}, nil
}

// Asset returns a copy of the asset record.
func (c *Coordinator) Asset(id uint64) (Asset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, err := c.catalog.get(id)
	if err != nil {
		return Asset{}, err
	}
	return *a, nil
}

// Assets returns every asset ordered by id.
func (c *Coordinator) Assets() []Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog.snapshot()
}

// Position returns the (p, assetID) position; Exists is false when absent.
func (c *Coordinator) Position(p Principal, assetID uint64) Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positions.view(p, assetID)
}

// Positions returns all positions of p ordered by asset id.
func (c *Coordinator) Positions(p Principal) []Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positions.of(p)
}

// Escrow returns the value currently held by the ledger.
func (c *Coordinator) Escrow() Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.escrow
}

// Stats returns public counters.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Assets:       len(c.catalog.assets),
		ActiveAssets: c.catalog.active(),
		Participants: c.registry.len(),
		Positions:    c.positions.len(),
		Escrow:       c.escrow,
	}
}

// ValueScale returns the divisor applied to position values before encryption.
func (c *Coordinator) ValueScale() uint64 {
	return c.scale
}

func (c *Coordinator) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if code := CodeOf(err); code != "" {
		span.SetAttributes(attribute.String("ledger.error.code", string(code)))
	}
	c.log.Debug().Err(err).Str("op", op).Str("code", string(CodeOf(err))).Msg("call rejected")
	return err
}

func (c *Coordinator) record(ctx context.Context, e journal.Entry) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Append(ctx, e); err != nil {
		c.log.Warn().Err(err).Str("op", e.Op).Msg("journal append failed")
	}
}
