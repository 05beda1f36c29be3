package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mwork/payin-api/internal/domain/payin"
	"github.com/mwork/payin-api/internal/middleware"
	"github.com/mwork/payin-api/internal/pkg/jwt"
)

type fakeRepo struct {
	wallets   map[uuid.UUID]*Wallet
	audits    map[uuid.UUID]*Audit
	settleErr error
	settled   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{wallets: map[uuid.UUID]*Wallet{}, audits: map[uuid.UUID]*Audit{}}
}

func (f *fakeRepo) Settle(ctx context.Context, p *payin.PayinRequest) (*Settlement, error) {
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	f.settled++
	return &Settlement{WalletID: uuid.New(), LedgerEntryID: uuid.New(), Balance: p.Amount}, nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	return f.wallets[id], nil
}

func (f *fakeRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Wallet, error) {
	var out []*Wallet
	for _, w := range f.wallets {
		if w.OwnerID == ownerID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*LedgerEntry, error) {
	return nil, nil
}

func (f *fakeRepo) Audit(ctx context.Context, walletID uuid.UUID) (*Audit, error) {
	return f.audits[walletID], nil
}

func (f *fakeRepo) AuditAll(ctx context.Context) ([]*Audit, error) {
	var out []*Audit
	for _, a := range f.audits {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeRepo) addWallet(owner uuid.UUID, balance, ledgerSum string) *Wallet {
	w := &Wallet{ID: uuid.New(), OwnerID: owner, Currency: "USD", Balance: decimal.RequireFromString(balance), IsActive: true}
	f.wallets[w.ID] = w
	f.audits[w.ID] = &Audit{WalletID: w.ID, OwnerID: owner, Currency: "USD", Balance: w.Balance, LedgerSum: decimal.RequireFromString(ledgerSum), Entries: 1}
	return w
}

func performWalletRequest(t *testing.T, handler http.Handler, userID uuid.UUID, role, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(middleware.WithIdentity(context.Background(), userID, role))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func newWalletRouter(repo Repository) chi.Router {
	r := chi.NewRouter()
	r.Mount("/wallets", NewHandler(NewService(repo)).Routes())
	return r
}

func TestSettleSurfacesInconsistency(t *testing.T) {
	repo := newFakeRepo()
	repo.settleErr = errors.Join(ErrSettlementInconsistency, errors.New("ledger insert failed"))
	svc := NewService(repo)

	p := &payin.PayinRequest{ID: uuid.New(), UserID: uuid.New(), Amount: decimal.NewFromInt(10), Currency: "USD"}
	if _, err := svc.Settle(context.Background(), p); !errors.Is(err, ErrSettlementInconsistency) {
		t.Fatalf("expected ErrSettlementInconsistency, got %v", err)
	}
}

func TestSettleWrapsOtherErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.settleErr = errors.New("connection refused")
	svc := NewService(repo)

	_, err := svc.Settle(context.Background(), &payin.PayinRequest{ID: uuid.New()})
	if err == nil || errors.Is(err, ErrAlreadySettled) || errors.Is(err, ErrSettlementInconsistency) {
		t.Fatalf("expected plain wrapped error, got %v", err)
	}
}

func TestVerifyAllReportsBrokenWallets(t *testing.T) {
	repo := newFakeRepo()
	repo.addWallet(uuid.New(), "100", "100")
	broken := repo.addWallet(uuid.New(), "100", "90")

	checked, bad, err := NewService(repo).VerifyAll(context.Background())
	if err != nil {
		t.Fatalf("verify all: %v", err)
	}
	if checked != 2 || len(bad) != 1 || bad[0].WalletID != broken.ID {
		t.Fatalf("expected one broken wallet of two, got checked=%d bad=%v", checked, bad)
	}
}

func TestHandlerVerify(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	ok := repo.addWallet(owner, "250.5", "250.50")
	bad := repo.addWallet(owner, "100", "90")
	r := newWalletRouter(repo)

	resp := performWalletRequest(t, r, owner, jwt.RoleUser, "/wallets/"+ok.ID.String()+"/verify")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = performWalletRequest(t, r, owner, jwt.RoleUser, "/wallets/"+bad.ID.String()+"/verify")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	var body struct {
		Error struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "LEDGER_MISMATCH" || body.Error.Details["ledgerSum"] != "90" {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}
}

func TestHandlerWalletVisibility(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	w := repo.addWallet(owner, "10", "10")
	r := newWalletRouter(repo)

	if resp := performWalletRequest(t, r, uuid.New(), jwt.RoleUser, "/wallets/"+w.ID.String()); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for stranger, got %d", resp.Code)
	}
	if resp := performWalletRequest(t, r, uuid.New(), jwt.RoleAdmin, "/wallets/"+w.ID.String()); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", resp.Code)
	}

	resp := performWalletRequest(t, r, owner, jwt.RoleUser, "/wallets")
	var body struct {
		Data []Wallet `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].ID != w.ID {
		t.Fatalf("expected owner's wallet, got %+v", body.Data)
	}
}
