package cve

import (
	"context"
	"errors"
	"fmt"
	"sync"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/rs/zerolog"
)

// DefaultPlaintextBound is the exclusive upper bound on decryptable plaintexts.
const DefaultPlaintextBound uint64 = 1 << 32

var (
	ErrPermissionDenied    = errors.New("cve: permission denied")
	ErrUnknownHandle       = errors.New("cve: unknown handle")
	ErrInvalidInput        = errors.New("cve: invalid input")
	ErrPlaintextOutOfRange = errors.New("cve: plaintext outside decryption bound")
)

// Option configures an Engine.
type Option func(*Engine)

// WithPlaintextBound sets the exclusive bound used by decryption.
func WithPlaintextBound(bound uint64) Option {
	return func(e *Engine) {
		if bound > 0 {
			e.bound = bound
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine stores ciphertexts behind handles and enforces the capability table.
type Engine struct {
	mu    sync.RWMutex
	key   *keyPair
	store map[Handle]Ciphertext
	acl   acl
	seq   uint64

	bound     uint64
	tableOnce sync.Once
	table     *dlogTable

	log zerolog.Logger
}

// New creates an engine with a freshly generated key pair.
func New(opts ...Option) (*Engine, error) {
	key, err := generateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("cve: %w", err)
	}
	e := &Engine{
		key:   key,
		store: make(map[Handle]Ciphertext),
		acl:   newACL(),
		bound: DefaultPlaintextBound,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// PublicKey returns the encryption key clients use with EncryptInput.
func (e *Engine) PublicKey() bls12377.G1Affine {
	return e.key.pk
}

// Ciphertext returns the stored ciphertext for h.
func (e *Engine) Ciphertext(h Handle) (Ciphertext, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ct, ok := e.store[h]
	if !ok {
		return Ciphertext{}, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	return ct, nil
}

// IsAllowed reports whether principal may decrypt h.
func (e *Engine) IsAllowed(h Handle, principal string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.acl.userAllowed(h, principal)
}

// IsContractAllowed reports whether contract holds a persistent grant on h.
func (e *Engine) IsContractAllowed(h Handle, contract string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.acl.contractAllowed(h, contract)
}

// Len returns the number of stored handles.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.store)
}

// Ping performs an encrypt/strip round trip without touching the store.
func (e *Engine) Ping() error {
	r, err := randomScalar()
	if err != nil {
		return err
	}
	ct := encryptWith(&e.key.pk, 1, &r)
	expected := generator()
	if got := e.key.decryptPoint(ct); !got.Equal(&expected) {
		return errors.New("cve: key round trip mismatch")
	}
	return nil
}

// Contract returns the view through which contract id computes on handles.
func (e *Engine) Contract(id string) *Contract {
	return &Contract{
		engine:    e,
		id:        id,
		transient: make(map[Handle]struct{}),
	}
}

func (e *Engine) put(ct Ciphertext) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	h := deriveHandle(e.seq, ct)
	e.store[h] = ct
	return h
}

func (e *Engine) lookup(h Handle) (Ciphertext, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ct, ok := e.store[h]
	return ct, ok
}

func (e *Engine) dlog() *dlogTable {
	e.tableOnce.Do(func() {
		e.table = newDlogTable(e.bound)
		e.log.Debug().Uint64("bound", e.bound).Int("baby_steps", len(e.table.baby)).Msg("decryption table ready")
	})
	return e.table
}

// Contract is a contract-scoped view of the engine.
type Contract struct {
	engine *Engine
	id     string

	mu        sync.Mutex
	transient map[Handle]struct{}
}

// ID returns the contract identity.
func (c *Contract) ID() string {
	return c.id
}

// Encrypt stores a trivially-known plaintext as a new handle.
func (c *Contract) Encrypt(ctx context.Context, m uint64) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	r, err := randomScalar()
	if err != nil {
		return Handle{}, fmt.Errorf("cve: sample randomness: %w", err)
	}
	h := c.engine.put(encryptWith(&c.engine.key.pk, m, &r))
	c.markTransient(h)
	return h, nil
}

// Add returns a fresh handle for a + b.
func (c *Contract) Add(ctx context.Context, a, b Handle) (Handle, error) {
	return c.combine(ctx, a, b, Ciphertext.add)
}

// Sub returns a fresh handle for a - b. Results below zero wrap in the
// group and fall outside the decryption bound.
func (c *Contract) Sub(ctx context.Context, a, b Handle) (Handle, error) {
	return c.combine(ctx, a, b, Ciphertext.sub)
}

func (c *Contract) combine(ctx context.Context, a, b Handle, op func(Ciphertext, Ciphertext) Ciphertext) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	ca, err := c.operand(a)
	if err != nil {
		return Handle{}, err
	}
	cb, err := c.operand(b)
	if err != nil {
		return Handle{}, err
	}
	h := c.engine.put(op(ca, cb))
	c.markTransient(h)
	return h, nil
}

// GrantContract persists this contract's right to compute on h.
func (c *Contract) GrantContract(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.operand(h); err != nil {
		return err
	}
	c.engine.mu.Lock()
	c.engine.acl.allowContract(h, c.id)
	c.engine.mu.Unlock()
	return nil
}

// GrantUser lets principal decrypt h.
func (c *Contract) GrantUser(ctx context.Context, h Handle, principal string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if principal == "" {
		return fmt.Errorf("%w: empty principal", ErrPermissionDenied)
	}
	if _, err := c.operand(h); err != nil {
		return err
	}
	c.engine.mu.Lock()
	c.engine.acl.allowUser(h, principal)
	c.engine.mu.Unlock()
	return nil
}

// Settle ends the current call: transient rights are dropped.
func (c *Contract) Settle() {
	c.mu.Lock()
	clear(c.transient)
	c.mu.Unlock()
}

func (c *Contract) operand(h Handle) (Ciphertext, error) {
	ct, ok := c.engine.lookup(h)
	if !ok {
		return Ciphertext{}, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	if !c.canUse(h) {
		return Ciphertext{}, fmt.Errorf("%w: contract %q on handle %s", ErrPermissionDenied, c.id, h)
	}
	return ct, nil
}

func (c *Contract) canUse(h Handle) bool {
	c.mu.Lock()
	_, ok := c.transient[h]
	c.mu.Unlock()
	return ok || c.engine.IsContractAllowed(h, c.id)
}

func (c *Contract) markTransient(h Handle) {
	c.mu.Lock()
	c.transient[h] = struct{}{}
	c.mu.Unlock()
}
