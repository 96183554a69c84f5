package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"pawnchain/core"
	"pawnchain/core/state"
	"pawnchain/native/origination"
	"pawnchain/native/terms"
	"pawnchain/storage"
)

type fixture struct {
	dep      *core.Deployment
	server   *Server
	borrower common.Address
	lender   common.Address
	bundleID uint64
	loanID   uint64
}

func newFixture(t *testing.T, limit RateLimit) *fixture {
	t.Helper()
	ctx := context.Background()
	dep, err := core.Deploy(ctx, state.NewStore(storage.NewMemDB()), core.DeployConfig{
		Deployer: common.HexToAddress("0x00000000000000000000000000000000000000d0"),
		ChainID:  big.NewInt(31337),
	})
	require.NoError(t, err)

	borrowerKey, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	lenderKey, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	f := &fixture{
		dep:      dep,
		borrower: ethcrypto.PubkeyToAddress(borrowerKey.PublicKey),
		lender:   ethcrypto.PubkeyToAddress(lenderKey.PublicKey),
	}
	cur := dep.Currency
	require.NoError(t, dep.Store.Update(ctx, func(st *state.Manager) error {
		require.NoError(t, dep.Assets.Mint(st, dep.Minter, cur, f.borrower, big.NewInt(250)))
		require.NoError(t, dep.Assets.Mint(st, dep.Minter, cur, f.lender, big.NewInt(1_000)))
		require.NoError(t, dep.Assets.Approve(st, cur, f.borrower, dep.Bundles.Address(), big.NewInt(200)))
		require.NoError(t, dep.Assets.Approve(st, cur, f.lender, dep.Legacy.Ledger.Address(), big.NewInt(500)))
		var err error
		f.bundleID, err = dep.Bundles.Create(st, f.borrower)
		require.NoError(t, err)
		return dep.Bundles.DepositFungible(st, f.borrower, f.bundleID, cur, big.NewInt(200))
	}))

	lt := terms.LoanTerms{
		DurationSecs: 3600,
		Principal:    big.NewInt(500),
		Interest:     big.NewInt(50),
		CollateralID: f.bundleID,
		Currency:     cur,
		Nonce:        big.NewInt(1),
	}
	sig, err := terms.Sign(dep.Legacy.Ledger.Domain(), lt, borrowerKey)
	require.NoError(t, err)
	require.NoError(t, dep.Store.Update(ctx, func(st *state.Manager) error {
		var err error
		f.loanID, err = dep.Legacy.Controller.Originate(st, f.lender, origination.Request{
			Terms: lt, Borrower: f.borrower, Lender: f.lender, Signature: sig,
		})
		return err
	}))

	f.server, err = NewServer(Config{
		Deployment: dep,
		RateLimit:  limit,
		Metrics:    http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:4242"
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, RateLimit{})
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# metrics")
}

func TestGetLoan(t *testing.T) {
	f := newFixture(t, RateLimit{})

	var view LoanView
	require.Equal(t, http.StatusOK, f.get(t, "/loans/legacy/1", &view))
	require.Equal(t, "active", view.Status)
	require.Equal(t, "legacy", view.Ledger)
	require.Equal(t, f.borrower.Hex(), view.Borrower)
	require.Equal(t, f.lender.Hex(), view.Lender)
	require.Equal(t, "550", view.Payoff)
	require.Equal(t, view.StartTime+3600, view.DueTime)

	var byAddress LoanView
	require.Equal(t, http.StatusOK, f.get(t, "/loans/"+f.dep.Legacy.Ledger.Address().Hex()+"/1", &byAddress))
	require.Equal(t, view, byAddress)

	var failure ErrorResponse
	require.Equal(t, http.StatusNotFound, f.get(t, "/loans/current/1", &failure))
	require.Equal(t, "not_found", failure.Error.Code)
	require.Equal(t, http.StatusNotFound, f.get(t, "/loans/shadow/1", &failure))
	require.Equal(t, "unknown_ledger", failure.Error.Code)
	require.Equal(t, http.StatusBadRequest, f.get(t, "/loans/legacy/-1", &failure))
	require.Equal(t, "invalid_id", failure.Error.Code)
}

func TestGetBundleAndBalance(t *testing.T) {
	f := newFixture(t, RateLimit{})

	var b BundleView
	require.Equal(t, http.StatusOK, f.get(t, "/bundles/1", &b))
	require.True(t, b.Locked)
	require.Equal(t, f.borrower.Hex(), b.Owner)
	require.Len(t, b.Fungible, 1)
	require.Equal(t, "200", b.Fungible[0].Quantity)
	require.Empty(t, b.Unique)

	var failure ErrorResponse
	require.Equal(t, http.StatusNotFound, f.get(t, "/bundles/9", &failure))

	var bal BalanceView
	require.Equal(t, http.StatusOK, f.get(t, "/balances/"+f.dep.Currency.Hex()+"/"+f.borrower.Hex(), &bal))
	// 250 minted, 200 pledged, 500 principal received.
	require.Equal(t, "550", bal.Balance)
	require.Equal(t, "PUSD", bal.Symbol)

	require.Equal(t, http.StatusBadRequest, f.get(t, "/balances/nope/"+f.borrower.Hex(), &failure))
	require.Equal(t, "invalid_address", failure.Error.Code)
	require.Equal(t, http.StatusNotFound, f.get(t, "/balances/"+f.borrower.Hex()+"/"+f.borrower.Hex(), &failure))
}

func TestRateLimitPerClient(t *testing.T) {
	f := newFixture(t, RateLimit{RequestsPerSecond: 1, Burst: 2})
	frozen := time.Unix(1_700_000_000, 0)
	f.server.limiter.now = func() time.Time { return frozen }

	require.Equal(t, http.StatusOK, f.get(t, "/bundles/1", nil))
	require.Equal(t, http.StatusOK, f.get(t, "/bundles/1", nil))
	var failure ErrorResponse
	require.Equal(t, http.StatusTooManyRequests, f.get(t, "/bundles/1", &failure))
	require.Equal(t, "rate_limited", failure.Error.Code)

	other := httptest.NewRequest(http.MethodGet, "/bundles/1", nil)
	other.RemoteAddr = "198.51.100.7:1000"
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, other)
	require.Equal(t, http.StatusOK, rec.Code)

	// Health checks bypass the limiter.
	rec = httptest.NewRecorder()
	health := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	health.RemoteAddr = "192.0.2.10:4242"
	f.server.Handler().ServeHTTP(rec, health)
	require.Equal(t, http.StatusOK, rec.Code)

	frozen = frozen.Add(time.Second)
	require.Equal(t, http.StatusOK, f.get(t, "/bundles/1", nil))
}

func TestClientIDHonoursProxyHeadersOnlyWhenTrusted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	require.Equal(t, "10.0.0.1", NewRateLimiter(RateLimit{}, nil).clientID(req))
	require.Equal(t, "203.0.113.9", NewRateLimiter(RateLimit{TrustProxyHeaders: true}, nil).clientID(req))
}
