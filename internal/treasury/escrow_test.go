package treasury

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/crypto"
	"github.com/authensus/marketd/internal/domain"
)

const (
	authorityKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
	copartyKey   = "6cbed15c793ce57650b9877cf6fa156fbef513c4e6134f022a85b1ffdd59b2a1"
	strangerKey  = "6370fd033278c143179d81c5526140625662b8daa446c22ee2d73db3707e620c"
)

type fixture struct {
	escrow    *Escrow
	authority *crypto.Signer
	coparty   *crypto.Signer
	stranger  *crypto.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	authority, err := crypto.NewSigner(authorityKey)
	if err != nil {
		t.Fatalf("authority signer: %v", err)
	}
	coparty, err := crypto.NewSigner(copartyKey)
	if err != nil {
		t.Fatalf("coparty signer: %v", err)
	}
	stranger, err := crypto.NewSigner(strangerKey)
	if err != nil {
		t.Fatalf("stranger signer: %v", err)
	}

	e := New()
	if _, err := e.Initialise(authority.Address()); err != nil {
		t.Fatalf("initialise: %v", err)
	}

	return &fixture{escrow: e, authority: authority, coparty: coparty, stranger: stranger}
}

// proofs signs the transaction digest for the escrow's next nonce with the
// two given signers.
func (f *fixture) proofs(t *testing.T, op string, amount uint64, a, b *crypto.Signer) ([]byte, []byte) {
	t.Helper()
	rec, err := f.escrow.Treasury()
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}
	digest := crypto.TransactDigest(op, rec.Address, f.coparty.Address(), amount, rec.Nonce+1)
	pa, err := a.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pb, err := b.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return pa, pb
}

func TestInitialiseOnce(t *testing.T) {
	f := newFixture(t)

	if _, err := f.escrow.Initialise(f.authority.Address()); !errors.Is(err, domain.ErrAlreadyInitialised) {
		t.Fatalf("second initialise err = %v, want ErrAlreadyInitialised", err)
	}

	rec, err := f.escrow.Treasury()
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}
	if rec.Authority != f.authority.Address() {
		t.Errorf("authority = %s", rec.Authority)
	}
	if rec.Address != domain.TreasuryAddress() {
		t.Errorf("address = %s, want singleton address", rec.Address)
	}
}

func TestUninitialisedOperationsFail(t *testing.T) {
	e := New()
	if _, err := e.Treasury(); !errors.Is(err, domain.ErrTreasuryNotInitialised) {
		t.Errorf("treasury err = %v", err)
	}
	if _, err := e.Credit(common.Address{}, 1); !errors.Is(err, domain.ErrTreasuryNotInitialised) {
		t.Errorf("credit err = %v", err)
	}
	if _, err := e.Deposit(common.Address{1}, 1, nil, nil); !errors.Is(err, domain.ErrTreasuryNotInitialised) {
		t.Errorf("deposit err = %v", err)
	}
}

func TestDepositAndReimburseRoundtrip(t *testing.T) {
	f := newFixture(t)

	if _, err := f.escrow.Credit(f.coparty.Address(), 1000); err != nil {
		t.Fatalf("credit: %v", err)
	}

	pa, pc := f.proofs(t, "deposit", 600, f.authority, f.coparty)
	rec, err := f.escrow.Deposit(f.coparty.Address(), 600, pa, pc)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if rec.Balance != 600 || rec.Nonce != 1 {
		t.Errorf("after deposit: balance=%d nonce=%d", rec.Balance, rec.Nonce)
	}

	acct, _ := f.escrow.Account(f.coparty.Address())
	if acct.Balance != 400 {
		t.Errorf("coparty balance = %d, want 400", acct.Balance)
	}

	pa, pc = f.proofs(t, "reimburse", 200, f.authority, f.coparty)
	rec, err = f.escrow.Reimburse(f.coparty.Address(), 200, pa, pc)
	if err != nil {
		t.Fatalf("reimburse: %v", err)
	}
	if rec.Balance != 400 {
		t.Errorf("after reimburse: balance = %d, want 400", rec.Balance)
	}

	acct, _ = f.escrow.Account(f.coparty.Address())
	if acct.Balance != 600 {
		t.Errorf("coparty balance = %d, want 600", acct.Balance)
	}
}

func TestTransactRequiresBothProofs(t *testing.T) {
	f := newFixture(t)
	if _, err := f.escrow.Credit(f.coparty.Address(), 1000); err != nil {
		t.Fatalf("credit: %v", err)
	}

	pa, pc := f.proofs(t, "deposit", 100, f.authority, f.coparty)
	_, pStranger := f.proofs(t, "deposit", 100, f.authority, f.stranger)

	tests := []struct {
		name           string
		authorityProof []byte
		copartyProof   []byte
		wantErr        error
	}{
		{"missing authority proof", nil, pc, domain.ErrSignerNotAuthority},
		{"missing coparty proof", pa, nil, domain.ErrInvalidProof},
		{"wrong authority signer", pc, pc, domain.ErrSignerNotAuthority},
		{"wrong coparty signer", pa, pStranger, domain.ErrInvalidProof},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.escrow.Deposit(f.coparty.Address(), 100, tt.authorityProof, tt.copartyProof)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// No failed attempt may have moved a balance or burned the nonce.
	rec, _ := f.escrow.Treasury()
	if rec.Balance != 0 || rec.Nonce != 0 {
		t.Errorf("failed transactions mutated state: %+v", rec)
	}
	acct, _ := f.escrow.Account(f.coparty.Address())
	if acct.Balance != 1000 {
		t.Errorf("coparty balance = %d, want 1000", acct.Balance)
	}
}

func TestProofIsSingleUse(t *testing.T) {
	f := newFixture(t)
	if _, err := f.escrow.Credit(f.coparty.Address(), 1000); err != nil {
		t.Fatalf("credit: %v", err)
	}

	pa, pc := f.proofs(t, "deposit", 100, f.authority, f.coparty)
	if _, err := f.escrow.Deposit(f.coparty.Address(), 100, pa, pc); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// The nonce advanced, so replaying the same proofs must fail.
	if _, err := f.escrow.Deposit(f.coparty.Address(), 100, pa, pc); !errors.Is(err, domain.ErrSignerNotAuthority) {
		t.Fatalf("replay err = %v, want ErrSignerNotAuthority", err)
	}
}

func TestInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	if _, err := f.escrow.Credit(f.coparty.Address(), 50); err != nil {
		t.Fatalf("credit: %v", err)
	}

	pa, pc := f.proofs(t, "deposit", 100, f.authority, f.coparty)
	if _, err := f.escrow.Deposit(f.coparty.Address(), 100, pa, pc); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("overdraw deposit err = %v, want ErrInsufficientBalance", err)
	}

	pa, pc = f.proofs(t, "reimburse", 100, f.authority, f.coparty)
	if _, err := f.escrow.Reimburse(f.coparty.Address(), 100, pa, pc); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("overdraw reimburse err = %v, want ErrInsufficientBalance", err)
	}
}

func TestReceiveVotingTokens(t *testing.T) {
	f := newFixture(t)

	sign := func(amount uint64) []byte {
		rec, _ := f.escrow.Treasury()
		digest := crypto.TransactDigest("receive_voting_tokens", rec.Address, rec.Authority, amount, rec.Nonce+1)
		proof, err := f.authority.Sign(digest)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return proof
	}

	// Holding balance must equal counter + amount.
	if _, err := f.escrow.ReceiveVotingTokens(100, 99, sign(100)); !errors.Is(err, domain.ErrBalancesDisagree) {
		t.Fatalf("mismatched balance err = %v, want ErrBalancesDisagree", err)
	}

	rec, err := f.escrow.ReceiveVotingTokens(100, 100, sign(100))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if rec.VotingTokens != 100 {
		t.Errorf("voting tokens = %d, want 100", rec.VotingTokens)
	}

	rec, err = f.escrow.ReceiveVotingTokens(50, 150, sign(50))
	if err != nil {
		t.Fatalf("second receive: %v", err)
	}
	if rec.VotingTokens != 150 {
		t.Errorf("voting tokens = %d, want 150 (counter only increases)", rec.VotingTokens)
	}
}
