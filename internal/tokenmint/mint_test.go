package tokenmint

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

var (
	mintAuthority = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	mintStranger  = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	holder        = common.HexToAddress("0x0000000000000000000000000000000000000a03")
)

func goodParams() InitParams {
	return InitParams{
		Name:     domain.TokenName,
		Symbol:   domain.TokenSymbol,
		URI:      domain.TokenURI,
		Decimals: domain.TokenDecimals,
	}
}

func TestInitValidatesEveryField(t *testing.T) {
	tests := []struct {
		name    string
		signer  common.Address
		mutate  func(*InitParams)
		wantErr error
	}{
		{"wrong signer", mintStranger, func(p *InitParams) {}, domain.ErrWrongSigner},
		{"wrong name", mintAuthority, func(p *InitParams) { p.Name = "SomeToken" }, domain.ErrWrongName},
		{"wrong symbol", mintAuthority, func(p *InitParams) { p.Symbol = "SOME" }, domain.ErrWrongSymbol},
		{"wrong uri", mintAuthority, func(p *InitParams) { p.URI = "https://example.com/meta.json" }, domain.ErrWrongURI},
		{"wrong decimals", mintAuthority, func(p *InitParams) { p.Decimals = 6 }, domain.ErrWrongDecimals},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(mintAuthority)
			params := goodParams()
			tt.mutate(&params)
			if _, err := svc.Init(tt.signer, params); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Signer is checked before metadata, so a stranger with bad params
	// still sees the signer error.
	svc := New(mintAuthority)
	bad := goodParams()
	bad.Name = "SomeToken"
	if _, err := svc.Init(mintStranger, bad); !errors.Is(err, domain.ErrWrongSigner) {
		t.Errorf("err = %v, want ErrWrongSigner", err)
	}
}

func TestInitOnce(t *testing.T) {
	svc := New(mintAuthority)

	mint, err := svc.Init(mintAuthority, goodParams())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if mint.Address != domain.MintAddress() {
		t.Errorf("mint address = %s, want singleton address", mint.Address)
	}
	if mint.Authority != mintAuthority {
		t.Errorf("mint authority = %s", mint.Authority)
	}
	if mint.Supply != 0 {
		t.Errorf("fresh mint supply = %d", mint.Supply)
	}

	if _, err := svc.Init(mintAuthority, goodParams()); !errors.Is(err, domain.ErrMintAlreadyInitialised) {
		t.Fatalf("second init err = %v, want ErrMintAlreadyInitialised", err)
	}
}

func TestMintTokens(t *testing.T) {
	svc := New(mintAuthority)

	if _, err := svc.MintTokens(holder, 100); !errors.Is(err, domain.ErrMintNotInitialised) {
		t.Fatalf("mint before init err = %v, want ErrMintNotInitialised", err)
	}

	if _, err := svc.Init(mintAuthority, goodParams()); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := svc.MintTokens(holder, 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("zero mint err = %v, want ErrInvalidAmount", err)
	}

	h, err := svc.MintTokens(holder, 250)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if h.Balance != 250 {
		t.Errorf("balance = %d, want 250", h.Balance)
	}

	h, err = svc.MintTokens(holder, 750)
	if err != nil {
		t.Fatalf("second mint: %v", err)
	}
	if h.Balance != 1000 {
		t.Errorf("balance = %d, want 1000", h.Balance)
	}

	mint, err := svc.Mint()
	if err != nil {
		t.Fatalf("mint record: %v", err)
	}
	if mint.Supply != 1000 {
		t.Errorf("supply = %d, want 1000", mint.Supply)
	}
}

func TestHolding(t *testing.T) {
	svc := New(mintAuthority)
	if _, err := svc.Init(mintAuthority, goodParams()); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := svc.Holding(holder); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown holder err = %v, want ErrNotFound", err)
	}

	if _, err := svc.MintTokens(holder, 42); err != nil {
		t.Fatalf("mint: %v", err)
	}
	h, err := svc.Holding(holder)
	if err != nil {
		t.Fatalf("holding: %v", err)
	}
	if h.Owner != holder || h.Balance != 42 {
		t.Errorf("holding = %+v", h)
	}
}
