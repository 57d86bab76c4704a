package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"confidential-ledger/internal/cve"
	"confidential-ledger/internal/journal"
	"confidential-ledger/internal/wallet"
)

const contractID = "confidential-ledger"

type fixture struct {
	engine *cve.Engine
	book   *wallet.Book
	ledger *Coordinator
	admin  AdminCap
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	eng, err := cve.New(cve.WithPlaintextBound(1 << 16))
	if err != nil {
		t.Fatalf("cve.New failed: %v", err)
	}
	book := wallet.NewBook()
	l, admin, err := New(Config{Admin: "admin", ValueScale: 1000}, eng.Contract(contractID), book, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &fixture{engine: eng, book: book, ledger: l, admin: admin}
}

func (f *fixture) fund(t *testing.T, p Principal, amount uint64) {
	t.Helper()
	if err := f.book.Credit(string(p), amount); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
}

func (f *fixture) decrypt(t *testing.T, h cve.Handle, p Principal) uint64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m, err := f.engine.Decrypt(ctx, h, string(p))
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	return m
}

func tenUnitListing() Listing {
	return Listing{Name: "Share", Issuer: "issuer", ContentRef: "ipfs://share", TotalValuation: 10_000, TotalUnits: 10, UnitPrice: 1_000}
}

func mustList(t *testing.T, f *fixture, l Listing) uint64 {
	t.Helper()
	id, err := f.ledger.List(context.Background(), f.admin, l)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	return id
}

func mustRegister(t *testing.T, f *fixture, p Principal) {
	t.Helper()
	if err := f.ledger.Register(context.Background(), p); err != nil {
		t.Fatalf("Register(%s) failed: %v", p, err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	eng, err := cve.New(cve.WithPlaintextBound(1 << 8))
	if err != nil {
		t.Fatalf("cve.New failed: %v", err)
	}
	if _, _, err := New(Config{}, eng.Contract(contractID), wallet.NewBook()); err == nil {
		t.Error("expected error for empty admin")
	}
	if _, _, err := New(Config{Admin: "admin"}, nil, wallet.NewBook()); err == nil {
		t.Error("expected error for nil engine")
	}
	l, admin, err := New(Config{Admin: "admin"}, eng.Contract(contractID), wallet.NewBook())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if l.ValueScale() != 1 {
		t.Errorf("expected default scale 1, got %d", l.ValueScale())
	}
	if admin.Holder() != "admin" {
		t.Errorf("expected holder admin, got %q", admin.Holder())
	}
}

func TestRegisterTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustRegister(t, f, "alice")
	err := f.ledger.Register(ctx, "alice")
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if got := f.ledger.Stats().Participants; got != 1 {
		t.Errorf("expected 1 participant, got %d", got)
	}
	if !f.ledger.IsRegistered("alice") || f.ledger.IsRegistered("bob") {
		t.Error("unexpected registration status")
	}
	if p := f.ledger.Participant("alice"); !p.Registered || p.RegisteredAt.IsZero() {
		t.Errorf("unexpected participant record: %+v", p)
	}
}

func TestRegisterGrantsProfile(t *testing.T) {
	f := newFixture(t)
	mustRegister(t, f, "alice")

	prof, err := f.ledger.Profile("alice")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	for _, h := range []cve.Handle{prof.TotalCommitted, prof.PositionCount} {
		if !f.engine.IsContractAllowed(h, contractID) {
			t.Errorf("contract not granted on %s", h)
		}
		if !f.engine.IsAllowed(h, "alice") {
			t.Errorf("alice not granted on %s", h)
		}
		if f.engine.IsAllowed(h, "bob") {
			t.Errorf("bob granted on %s", h)
		}
		if got := f.decrypt(t, h, "alice"); got != 0 {
			t.Errorf("expected encrypted zero, got %d", got)
		}
	}
	if _, err := f.ledger.Profile("bob"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}

func TestListValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		listing Listing
		want    error
	}{
		{"mismatch", Listing{Name: "x", TotalValuation: 99, TotalUnits: 10, UnitPrice: 10}, ErrValueMismatch},
		{"overflow", Listing{Name: "x", TotalValuation: 0, TotalUnits: 1 << 40, UnitPrice: 1 << 40}, ErrValueMismatch},
		{"zero units", Listing{Name: "x", TotalValuation: 0, TotalUnits: 0, UnitPrice: 10}, ErrInvalidUnitAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.ledger.List(ctx, f.admin, tt.listing); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if got := f.ledger.Stats().Assets; got != 0 {
		t.Errorf("expected empty catalog, got %d", got)
	}

	id := mustList(t, f, tenUnitListing())
	if id != 1 {
		t.Errorf("expected first asset id 1, got %d", id)
	}
	a, err := f.ledger.Asset(id)
	if err != nil {
		t.Fatalf("Asset failed: %v", err)
	}
	if !a.Active || a.AvailableUnits != 10 || a.Investors != 0 {
		t.Errorf("unexpected asset: %+v", a)
	}
	if _, err := f.ledger.Asset(0); !errors.Is(err, ErrInvalidAssetID) {
		t.Errorf("expected ErrInvalidAssetID, got %v", err)
	}
}

func TestAdminCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustList(t, f, tenUnitListing())

	other := newFixture(t)
	for name, capability := range map[string]AdminCap{"zero": {}, "foreign": other.admin} {
		t.Run(name, func(t *testing.T) {
			if _, err := f.ledger.List(ctx, capability, tenUnitListing()); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("List: expected ErrUnauthorized, got %v", err)
			}
			if err := f.ledger.Close(ctx, capability, id, 0); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Close: expected ErrUnauthorized, got %v", err)
			}
			if _, err := f.ledger.Drain(ctx, capability); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Drain: expected ErrUnauthorized, got %v", err)
			}
		})
	}
	if a, _ := f.ledger.Asset(id); !a.Active {
		t.Error("asset closed without capability")
	}
}

func TestCommitPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustList(t, f, tenUnitListing())
	mustRegister(t, f, "alice")
	f.fund(t, "alice", 1_000_000)

	tests := []struct {
		name   string
		caller Principal
		asset  uint64
		units  uint64
		paid   Amount
		want   error
	}{
		{"unregistered", "bob", id, 1, 1_000, ErrNotRegistered},
		{"unknown asset", "alice", 7, 1, 1_000, ErrInvalidAssetID},
		{"zero units", "alice", id, 0, 1_000, ErrInvalidUnitAmount},
		{"too many units", "alice", id, 11, 11_000, ErrInsufficientUnits},
		{"underpaid", "alice", id, 2, 1_999, ErrInsufficientPayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Commit(ctx, tt.caller, tt.asset, tt.units, tt.paid)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	a, _ := f.ledger.Asset(id)
	if a.AvailableUnits != 10 {
		t.Errorf("units changed on rejected commits: %d", a.AvailableUnits)
	}
	if f.book.Balance("alice") != 1_000_000 || f.ledger.Escrow() != 0 {
		t.Error("funds moved on rejected commits")
	}
}

func TestCommitRecordsPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustList(t, f, tenUnitListing())
	mustRegister(t, f, "alice")
	f.fund(t, "alice", 1_000_000)

	r, err := f.ledger.Commit(ctx, "alice", id, 4, 4_000)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if r.Cost != 4_000 || r.Refund != 0 {
		t.Errorf("unexpected receipt: %+v", r)
	}
	a, _ := f.ledger.Asset(id)
	if a.AvailableUnits != 6 || a.Investors != 1 {
		t.Errorf("unexpected asset after commit: %+v", a)
	}

	pos := f.ledger.Position("alice", id)
	if !pos.Exists || pos.CreatedAt.IsZero() {
		t.Fatalf("position missing: %+v", pos)
	}
	if got := f.decrypt(t, pos.Units, "alice"); got != 4 {
		t.Errorf("expected 4 units, got %d", got)
	}
	if got := f.decrypt(t, pos.Value, "alice"); got != 4 {
		t.Errorf("expected scaled value 4, got %d", got)
	}
	if !f.engine.IsContractAllowed(pos.Units, contractID) || !f.engine.IsContractAllowed(pos.Value, contractID) {
		t.Error("contract grant missing on position handles")
	}
	if _, err := f.engine.Decrypt(ctx, pos.Value, "bob"); !errors.Is(err, cve.ErrPermissionDenied) {
		t.Errorf("expected bob to be denied, got %v", err)
	}

	_, err = f.ledger.Commit(ctx, "alice", id, 1, 1_000)
	if !errors.Is(err, ErrDuplicatePosition) {
		t.Fatalf("expected ErrDuplicatePosition, got %v", err)
	}
	if f.ledger.Position("bob", id).Exists {
		t.Error("unexpected position for bob")
	}
}

func TestOverpaymentIsRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustList(t, f, tenUnitListing())
	mustRegister(t, f, "alice")
	f.fund(t, "alice", 50_000)

	r, err := f.ledger.Commit(ctx, "alice", id, 3, 3_000+777)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if r.Refund != 777 {
		t.Errorf("expected refund 777, got %d", r.Refund)
	}
	if got := f.book.Balance("alice"); got != 50_000-3_000 {
		t.Errorf("expected balance %d, got %d", 50_000-3_000, got)
	}
	if got := f.ledger.Escrow(); got != 3_000 {
		t.Errorf("expected escrow 3000, got %d", got)
	}
}

func TestProfileAccumulates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := mustList(t, f, tenUnitListing())
	second := mustList(t, f, Listing{Name: "Bond", TotalValuation: 25_000, TotalUnits: 5, UnitPrice: 5_000})
	mustRegister(t, f, "alice")
	f.fund(t, "alice", 1_000_000)

	before, _ := f.ledger.Profile("alice")
	if _, err := f.ledger.Commit(ctx, "alice", first, 2, 2_000); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := f.ledger.Commit(ctx, "alice", second, 3, 15_000); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	after, _ := f.ledger.Profile("alice")

	if after.PositionCount == before.PositionCount || after.TotalCommitted == before.TotalCommitted {
		t.Error("profile handles were not replaced")
	}
	if got := f.decrypt(t, after.PositionCount, "alice"); got != 2 {
		t.Errorf("expected position count 2, got %d", got)
	}
	if got := f.decrypt(t, after.TotalCommitted, "alice"); got != 17 {
		t.Errorf("expected scaled total 17, got %d", got)
	}
	if got := len(f.ledger.Positions("alice")); got != 2 {
		t.Errorf("expected 2 positions, got %d", got)
	}
}

func TestCommitInsufficientFundsLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustList(t, f, tenUnitListing())
	mustRegister(t, f, "alice")
	f.fund(t, "alice", 500)
	before, _ := f.ledger.Profile("alice")

	_, err := f.ledger.Commit(ctx, "alice", id, 1, 1_000)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Errorf("expected wallet cause, got %v", err)
	}
	after, _ := f.ledger.Profile("alice")
	if after != before {
		t.Error("profile changed on failed commit")
	}
	if f.ledger.Position("alice", id).Exists {
		t.Error("position recorded on failed commit")
	}
	if a, _ := f.ledger.Asset(id); a.AvailableUnits != 10 || a.Investors != 0 {
		t.Errorf("asset changed on failed commit: %+v", a)
	}
}

func TestListRejectsPriceOffScale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.List(ctx, f.admin, Listing{Name: "Half", TotalValuation: 5_000, TotalUnits: 10, UnitPrice: 500})
	if !errors.Is(err, ErrValueMismatch) {
		t.Fatalf("expected ErrValueMismatch, got %v", err)
	}
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Metadata["value_scale"] != "1000" {
		t.Errorf("expected value_scale metadata, got %v", err)
	}
	if got := f.ledger.Stats().Assets; got != 0 {
		t.Errorf("expected empty catalog, got %d", got)
	}
}

func TestEncryptedTotalIsExact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := mustList(t, f, Listing{Name: "A", TotalValuation: 30_000, TotalUnits: 10, UnitPrice: 3_000})
	second := mustList(t, f, Listing{Name: "B", TotalValuation: 70_000, TotalUnits: 10, UnitPrice: 7_000})
	mustRegister(t, f, "alice")
	f.fund(t, "alice", 1_000_000)

	if _, err := f.ledger.Commit(ctx, "alice", first, 1, 3_000); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := f.ledger.Commit(ctx, "alice", second, 3, 21_000); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	prof, _ := f.ledger.Profile("alice")
	paid := uint64(3_000 + 21_000)
	if got := f.decrypt(t, prof.TotalCommitted, "alice"); got*f.ledger.ValueScale() != paid {
		t.Errorf("encrypted total %d * scale != paid %d", got, paid)
	}
}

func TestCommitLargeValuation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	price := Amount(1_000 << 30)
	units := uint64(1 << 20)
	valuation := price * Amount(units)
	id := mustList(t, f, Listing{Name: "Tower", TotalValuation: valuation, TotalUnits: units, UnitPrice: price})
	mustRegister(t, f, "alice")
	f.fund(t, "alice", uint64(valuation))

	r, err := f.ledger.Commit(ctx, "alice", id, units, valuation)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if r.Cost != valuation || r.Refund != 0 {
		t.Errorf("unexpected receipt: %+v", r)
	}
	if got := f.ledger.Escrow(); got != valuation {
		t.Errorf("expected escrow %d, got %d", valuation, got)
	}
	if a, _ := f.ledger.Asset(id); a.AvailableUnits != 0 {
		t.Errorf("expected sold out asset, got %d units", a.AvailableUnits)
	}
}

func TestCommitWithClientInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustList(t, f, tenUnitListing())
	mustRegister(t, f, "alice")
	f.fund(t, "alice", 100_000)

	input := func(t *testing.T, p Principal, units uint64) []byte {
		t.Helper()
		payload, err := cve.EncryptInput(f.engine.PublicKey(), contractID, string(p), units)
		if err != nil {
			t.Fatalf("EncryptInput failed: %v", err)
		}
		return payload
	}

	tests := []struct {
		name    string
		payload []byte
	}{
		{"units differ", input(t, "alice", 4)},
		{"built for bob", input(t, "bob", 3)},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.CommitInput(ctx, "alice", id, 3, 3_000, tt.payload)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if f.book.Balance("alice") != 100_000 || f.ledger.Escrow() != 0 {
		t.Error("funds moved on rejected inputs")
	}
	if f.ledger.Position("alice", id).Exists {
		t.Error("position recorded on rejected input")
	}

	r, err := f.ledger.CommitInput(ctx, "alice", id, 3, 3_000, input(t, "alice", 3))
	if err != nil {
		t.Fatalf("CommitInput failed: %v", err)
	}
	if got := f.decrypt(t, r.Position.Units, "alice"); got != 3 {
		t.Errorf("expected 3 units, got %d", got)
	}
	if !f.engine.IsContractAllowed(r.Position.Units, contractID) {
		t.Error("contract grant missing on client input")
	}
	if a, _ := f.ledger.Asset(id); a.AvailableUnits != 7 {
		t.Errorf("expected 7 units left, got %d", a.AvailableUnits)
	}
}

// failingEngine rejects the nth Encrypt call.
type failingEngine struct {
	*cve.Contract
	failAt int
	calls  int
}

func (e *failingEngine) Encrypt(ctx context.Context, m uint64) (cve.Handle, error) {
	e.calls++
	if e.calls == e.failAt {
		return cve.Handle{}, errors.New("engine offline")
	}
	return e.Contract.Encrypt(ctx, m)
}

func TestEngineFaultLeavesNoTrace(t *testing.T) {
	eng, err := cve.New(cve.WithPlaintextBound(1 << 8))
	if err != nil {
		t.Fatalf("cve.New failed: %v", err)
	}
	fe := &failingEngine{Contract: eng.Contract(contractID)}
	book := wallet.NewBook()
	l, admin, err := New(Config{Admin: "admin"}, fe, book)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	id, err := l.List(ctx, admin, tenUnitListing())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if err := l.Register(ctx, "alice"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := book.Credit("alice", 10_000); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	// Register used two encryptions; fail the value encryption of the commit.
	fe.failAt = fe.calls + 2
	_, err = l.Commit(ctx, "alice", id, 1, 1_000)
	if !errors.Is(err, ErrEngineFault) {
		t.Fatalf("expected ErrEngineFault, got %v", err)
	}
	if book.Balance("alice") != 10_000 || l.Escrow() != 0 {
		t.Error("funds moved on engine fault")
	}
	if l.Position("alice", id).Exists {
		t.Error("position recorded on engine fault")
	}

	fe.failAt = fe.calls + 1
	if err := l.Register(ctx, "bob"); !errors.Is(err, ErrEngineFault) {
		t.Fatalf("expected ErrEngineFault, got %v", err)
	}
	if l.IsRegistered("bob") {
		t.Error("bob registered despite engine fault")
	}
}

func TestCloseAndDrain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustList(t, f, tenUnitListing())
	mustRegister(t, f, "alice")
	f.fund(t, "alice", 10_000)

	if amount, err := f.ledger.Drain(ctx, f.admin); err != nil || amount != 0 {
		t.Fatalf("empty drain: amount=%d err=%v", amount, err)
	}
	if _, err := f.ledger.Commit(ctx, "alice", id, 5, 5_000); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := f.ledger.Close(ctx, f.admin, id, 1_200); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	a, _ := f.ledger.Asset(id)
	if a.Active || a.FinalPrice != 1_200 || a.ClosedAt.IsZero() {
		t.Errorf("unexpected closed asset: %+v", a)
	}
	if err := f.ledger.Close(ctx, f.admin, id, 0); !errors.Is(err, ErrAssetNotActive) {
		t.Errorf("expected ErrAssetNotActive on second close, got %v", err)
	}

	amount, err := f.ledger.Drain(ctx, f.admin)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if amount != 5_000 {
		t.Errorf("expected 5000 drained, got %d", amount)
	}
	if f.book.Balance("admin") != 5_000 || f.ledger.Escrow() != 0 {
		t.Error("escrow not moved to admin")
	}
	if s := f.ledger.Stats(); s.Assets != 1 || s.ActiveAssets != 0 || s.Positions != 1 || s.Participants != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

type memJournal struct {
	entries []journal.Entry
	err     error
}

func (m *memJournal) Append(_ context.Context, e journal.Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func TestJournalRecordsAcceptedCalls(t *testing.T) {
	j := &memJournal{}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := newFixture(t, WithJournal(j), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	id := mustList(t, f, tenUnitListing())
	mustRegister(t, f, "alice")
	_ = f.ledger.Register(ctx, "alice")
	f.fund(t, "alice", 10_000)
	if _, err := f.ledger.Commit(ctx, "alice", id, 1, 1_000); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	want := []string{"list", "register", "commit"}
	if len(j.entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(j.entries))
	}
	for i, op := range want {
		if j.entries[i].Op != op {
			t.Errorf("entry %d: expected %s, got %s", i, op, j.entries[i].Op)
		}
		if !j.entries[i].At.Equal(now) {
			t.Errorf("entry %d: unexpected time %v", i, j.entries[i].At)
		}
	}
	if len(j.entries[2].Handles) != 2 {
		t.Errorf("commit entry should carry two handles, got %v", j.entries[2].Handles)
	}
	if e := j.entries[2]; e.Units != 1 || e.Amount != 1_000 {
		t.Errorf("commit entry: expected units 1 amount 1000, got %d/%d", e.Units, e.Amount)
	}
	if _, err := f.ledger.Drain(ctx, f.admin); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if e := j.entries[len(j.entries)-1]; e.Op != "drain" || e.Amount != 1_000 || e.Units != 0 {
		t.Errorf("unexpected drain entry: %+v", e)
	}

	j.err = errors.New("disk full")
	if err := f.ledger.Register(ctx, "bob"); err != nil {
		t.Fatalf("journal failure must not reject the call: %v", err)
	}
}

func TestSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	f := newFixture(t, WithTracerProvider(tp))
	ctx := context.Background()

	mustRegister(t, f, "alice")
	_ = f.ledger.Register(ctx, "alice")

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "ledger.Register" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("accepted call marked as error")
	}
	if spans[1].Status().Code != codes.Error {
		t.Error("rejected call not marked as error")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(reject(ErrDuplicatePosition, nil)) != CodeDuplicatePosition {
		t.Error("unexpected code")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("foreign errors carry no code")
	}
	err := engineError(cve.ErrPermissionDenied)
	if !errors.Is(err, ErrPermissionDenied) || !errors.Is(err, cve.ErrPermissionDenied) {
		t.Errorf("unexpected classification: %v", err)
	}
}
