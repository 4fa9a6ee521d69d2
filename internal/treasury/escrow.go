// Package treasury implements the singleton escrow: a dual-signed
// deposit/reimburse ledger plus an account book of counterparty balances.
// Both authorization proofs are verified before any mutation, and either
// the whole transaction commits or none of it does.
package treasury

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/crypto"
	"github.com/authensus/marketd/internal/domain"
)

// Escrow is the in-process treasury state. All operations serialize on a
// single mutex; the treasury is one record, not a hot path.
type Escrow struct {
	mu          sync.Mutex
	now         func() time.Time
	initialised bool
	record      domain.Treasury
	accounts    map[common.Address]uint64
}

// Option configures an Escrow.
type Option func(*Escrow)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Escrow) { e.now = now }
}

// New creates an uninitialised Escrow.
func New(opts ...Option) *Escrow {
	e := &Escrow{
		now:      time.Now,
		accounts: make(map[common.Address]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialise creates the treasury singleton with the given authority. A
// second call fails with ErrAlreadyInitialised.
func (e *Escrow) Initialise(authority common.Address) (domain.Treasury, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialised {
		return domain.Treasury{}, domain.ErrAlreadyInitialised
	}

	now := e.now().UTC()
	e.record = domain.Treasury{
		Address:   domain.TreasuryAddress(),
		Authority: authority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.initialised = true
	return e.record, nil
}

// Restore installs a previously persisted treasury record and account book,
// bypassing the initialise guard. It is used to rebuild the in-process
// state from durable storage at startup.
func (e *Escrow) Restore(rec domain.Treasury, accounts []domain.TreasuryAccount) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialised {
		return domain.ErrAlreadyInitialised
	}

	e.record = rec
	for _, a := range accounts {
		e.accounts[a.Owner] = a.Balance
	}
	e.initialised = true
	return nil
}

// Treasury returns the current treasury record.
func (e *Escrow) Treasury() (domain.Treasury, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialised {
		return domain.Treasury{}, domain.ErrTreasuryNotInitialised
	}
	return e.record, nil
}

// Credit adds amount to a counterparty's available balance. Settlement
// payouts land here; deposits later draw the balance down.
func (e *Escrow) Credit(owner common.Address, amount uint64) (domain.TreasuryAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialised {
		return domain.TreasuryAccount{}, domain.ErrTreasuryNotInitialised
	}
	e.accounts[owner] += amount
	return domain.TreasuryAccount{Owner: owner, Balance: e.accounts[owner]}, nil
}

// Account returns a counterparty's available balance. An account that has
// never been credited reads as zero.
func (e *Escrow) Account(owner common.Address) (domain.TreasuryAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialised {
		return domain.TreasuryAccount{}, domain.ErrTreasuryNotInitialised
	}
	return domain.TreasuryAccount{Owner: owner, Balance: e.accounts[owner]}, nil
}

// Deposit moves amount from the counterparty's available balance into the
// treasury. It requires proofs from both the authority and the
// counterparty over the transaction digest for the next nonce.
func (e *Escrow) Deposit(coparty common.Address, amount uint64, authorityProof, copartyProof []byte) (domain.Treasury, error) {
	return e.transact("deposit", coparty, amount, authorityProof, copartyProof)
}

// Reimburse is the symmetric reverse of Deposit: it moves amount from the
// treasury back to the counterparty's available balance, under the same
// dual-proof requirement.
func (e *Escrow) Reimburse(coparty common.Address, amount uint64, authorityProof, copartyProof []byte) (domain.Treasury, error) {
	return e.transact("reimburse", coparty, amount, authorityProof, copartyProof)
}

func (e *Escrow) transact(op string, coparty common.Address, amount uint64, authorityProof, copartyProof []byte) (domain.Treasury, error) {
	if amount == 0 {
		return domain.Treasury{}, domain.ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialised {
		return domain.Treasury{}, domain.ErrTreasuryNotInitialised
	}
	if coparty == e.record.Authority {
		return domain.Treasury{}, domain.ErrCounterpartyNotDistinct
	}

	// Verify both proofs before touching any balance.
	digest := crypto.TransactDigest(op, e.record.Address, coparty, amount, e.record.Nonce+1)
	if err := crypto.VerifyProof(e.record.Authority, digest, authorityProof); err != nil {
		return domain.Treasury{}, domain.ErrSignerNotAuthority
	}
	if err := crypto.VerifyProof(coparty, digest, copartyProof); err != nil {
		return domain.Treasury{}, err
	}

	switch op {
	case "deposit":
		if e.accounts[coparty] < amount {
			return domain.Treasury{}, domain.ErrInsufficientBalance
		}
		e.accounts[coparty] -= amount
		e.record.Balance += amount
	case "reimburse":
		if e.record.Balance < amount {
			return domain.Treasury{}, domain.ErrInsufficientBalance
		}
		e.record.Balance -= amount
		e.accounts[coparty] += amount
	}

	e.record.Nonce++
	e.record.UpdatedAt = e.now().UTC()
	return e.record, nil
}

// ReceiveVotingTokens records voting tokens arriving at the treasury's
// holding account. The counter only ever increases, and the reported
// holding balance must agree with it exactly.
func (e *Escrow) ReceiveVotingTokens(amount, holdingBalance uint64, authorityProof []byte) (domain.Treasury, error) {
	if amount == 0 {
		return domain.Treasury{}, domain.ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialised {
		return domain.Treasury{}, domain.ErrTreasuryNotInitialised
	}

	digest := crypto.TransactDigest("receive_voting_tokens", e.record.Address, e.record.Authority, amount, e.record.Nonce+1)
	if err := crypto.VerifyProof(e.record.Authority, digest, authorityProof); err != nil {
		return domain.Treasury{}, domain.ErrSignerNotAuthority
	}

	if holdingBalance != e.record.VotingTokens+amount {
		return domain.Treasury{}, domain.ErrBalancesDisagree
	}

	e.record.VotingTokens += amount
	e.record.Nonce++
	e.record.UpdatedAt = e.now().UTC()
	return e.record, nil
}
