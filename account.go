package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
)

type (
	AccountStore interface {
		GetAccountById(ctx context.Context, accountId uuid.UUID) (*Account, error)
		ListAccountsByPubkey(ctx context.Context, groupId uuid.UUID, pubkey string) ([]*Account, error)
		CreateAccount(ctx context.Context, account *Account) error
		UpsertAccount(ctx context.Context, account *Account) error
	}

	// Account is the aggregate under risk evaluation: an ordered collection
	// of token positions plus externally supplied auxiliary health
	// contributions. Position order is irrelevant for health and only kept
	// stable for iteration. Ownership metadata plays no part in any health
	// computation.
	Account struct {
		Id           uuid.UUID    `json:"id" gorm:"primaryKey;type:text"`
		GroupId      uuid.UUID    `json:"groupId" gorm:"type:text;index"`
		PubKey       string       `json:"pubKey" gorm:"index"`
		AccountFlags AccountFlags `json:"accountFlags"`

		Positions []*TokenPosition  `json:"positions" gorm:"-"`
		Aux       []AuxContribution `json:"aux" gorm:"-"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}

	// AuxContribution is an opaque health term from an external margining
	// surface (spot open orders, perp positions), already denominated in the
	// common quote unit and attributed to one asset's weight class. The
	// engine sums these by sign without interpreting their structure.
	AuxContribution struct {
		TokenIndex uint16 `json:"tokenIndex"`
		Value      Fixed  `json:"value"`
	}

	// AuxHealthProvider supplies the auxiliary contributions for an account
	// as of a caller-chosen instant.
	AuxHealthProvider interface {
		Contributions(ctx context.Context, accountId uuid.UUID) ([]AuxContribution, error)
	}
)

type AccountFlags uint8

const (
	DisabledFlag        AccountFlags = 1 << 0
	BeingLiquidatedFlag AccountFlags = 1 << 1
	BankruptFlag        AccountFlags = 1 << 2
)

func (a *Account) SetFlag(flag AccountFlags) {
	a.AccountFlags |= flag
}

func (a *Account) UnsetFlag(flag AccountFlags) {
	a.AccountFlags &= ^flag
}

func (a *Account) GetFlag(flag AccountFlags) bool {
	return a.AccountFlags&flag != 0
}

func NewAccount(clk clock.Clock, groupId uuid.UUID, pubKey string) *Account {
	return &Account{
		Id:        uuid.Must(uuid.NewV4()),
		GroupId:   groupId,
		PubKey:    pubKey,
		CreatedAt: clk.Now().Unix(),
		UpdatedAt: clk.Now().Unix(),
	}
}

// FindToken returns the active position for tokenIndex. The boolean result
// is the only sanctioned absence signal; arithmetic never proceeds on an
// absent position.
func (a *Account) FindToken(tokenIndex uint16) (*TokenPosition, bool) {
	for _, p := range a.Positions {
		if p.Active && p.TokenIndex == tokenIndex {
			return p, true
		}
	}
	return nil, false
}

// EnsureToken returns the active position for tokenIndex, creating an empty
// one on first interaction. At most one active position exists per token
// index.
func (a *Account) EnsureToken(tokenIndex uint16) *TokenPosition {
	if p, ok := a.FindToken(tokenIndex); ok {
		return p
	}
	p := &TokenPosition{
		AccountId:  a.Id,
		TokenIndex: tokenIndex,
		Active:     true,
	}
	a.Positions = append(a.Positions, p)
	return p
}

// ClosePosition reclaims the slot for tokenIndex. Fails unless the position
// is empty and unreferenced.
func (a *Account) ClosePosition(clk clock.Clock, tokenIndex uint16) error {
	p, ok := a.FindToken(tokenIndex)
	if !ok {
		return NoPositionFound
	}
	return p.Close(clk)
}

// Clone returns a deep copy for scratch simulation. The engine mutates only
// clones, never the evaluated account.
func (a *Account) Clone() *Account {
	clone := *a
	clone.Positions = make([]*TokenPosition, len(a.Positions))
	for i, p := range a.Positions {
		clone.Positions[i] = p.Clone()
	}
	clone.Aux = append([]AuxContribution(nil), a.Aux...)
	return &clone
}

// ApplyNativeDelta adjusts the position for bank's token by a native amount,
// converting back to indexed units through the index matching the resulting
// side. A zero accrual index surfaces ErrDivisionByZero rather than
// corrupting the balance.
func (a *Account) ApplyNativeDelta(bank *Bank, nativeDelta Fixed) error {
	p := a.EnsureToken(bank.TokenIndex)

	native, err := p.NativeValue(bank)
	if err != nil {
		return err
	}
	newNative, err := native.Add(nativeDelta)
	if err != nil {
		return err
	}

	if newNative.IsZero() {
		p.IndexedValue = Fixed{}
		return nil
	}

	index := bank.DepositIndex
	if newNative.IsNegative() {
		index = bank.BorrowIndex
	}
	indexed, err := newNative.Div(index)
	if err != nil {
		return err
	}
	p.IndexedValue = indexed
	return nil
}
