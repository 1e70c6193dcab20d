package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

type (
	GroupStore interface {
		CreateGroup(ctx context.Context, group *Group) error
		GetGroupById(ctx context.Context, id uuid.UUID) (*Group, error)
		GetGroupByName(ctx context.Context, name string) (*Group, error)
		UpdateGroup(ctx context.Context, name string, group *Group) error
		GetAllGroups(ctx context.Context) ([]*Group, error)
	}

	// Group is the registry snapshot the engine reads banks from. The bank
	// set for a health query is fixed at snapshot time; the engine performs
	// lookups only and never fetches or refreshes state.
	Group struct {
		Id       uuid.UUID `json:"id" gorm:"primaryKey;type:text"`
		AdminKey string    `json:"adminKey"`

		Name        string `json:"name" gorm:"uniqueIndex"`
		Description string `json:"description"`

		Banks map[uint16]*Bank `json:"banks" gorm:"-"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}
)

func NewGroup(clk clock.Clock, adminKey string, name string, description string) *Group {
	return &Group{
		Id:          uuid.Must(uuid.NewV4()),
		AdminKey:    adminKey,
		Name:        name,
		Description: description,
		Banks:       make(map[uint16]*Bank),
		CreatedAt:   clk.Now().Unix(),
		UpdatedAt:   clk.Now().Unix(),
	}
}

// AddBank registers a bank under its token index after validating its
// config. A token index may be registered once.
func (g *Group) AddBank(bank *Bank) error {
	if err := bank.BankConfig.Validate(); err != nil {
		return err
	}
	if g.Banks == nil {
		g.Banks = make(map[uint16]*Bank)
	}
	if _, ok := g.Banks[bank.TokenIndex]; ok {
		return errors.Wrapf(DuplicateBank, "token index %d", bank.TokenIndex)
	}
	g.Banks[bank.TokenIndex] = bank
	return nil
}

// GetBank resolves a token index to its bank, failing with UnknownAsset for
// anything not registered in this snapshot.
func (g *Group) GetBank(tokenIndex uint16) (*Bank, error) {
	bank, ok := g.Banks[tokenIndex]
	if !ok {
		return nil, errors.Wrapf(UnknownAsset, "token index %d", tokenIndex)
	}
	return bank, nil
}

// MarginService groups the persistence seams the loaders read through.
type MarginService struct {
	PositionStore
	BankStore
	AccountStore
}

// LoadAccountWithPositions fetches an account and attaches its stored
// positions for evaluation.
func LoadAccountWithPositions(ctx context.Context, svc MarginService, accountId uuid.UUID) (*Account, error) {
	account, err := svc.GetAccountById(ctx, accountId)
	if err != nil {
		return nil, err
	}
	positions, err := svc.ListPositions(ctx, accountId)
	if err != nil {
		return nil, err
	}
	account.Positions = positions
	return account, nil
}

// LoadRiskEngine builds a risk engine for a stored account: positions from
// the position store, auxiliary contributions from the provider when one is
// configured, banks and prices from the supplied snapshot.
func LoadRiskEngine(ctx context.Context, svc MarginService, group *Group, prices PriceSource, auxProvider AuxHealthProvider, accountId uuid.UUID) (*RiskEngine, error) {
	account, err := LoadAccountWithPositions(ctx, svc, accountId)
	if err != nil {
		return nil, err
	}
	if auxProvider != nil {
		aux, err := auxProvider.Contributions(ctx, accountId)
		if err != nil {
			return nil, err
		}
		account.Aux = aux
	}
	return NewRiskEngine(account, group, prices)
}
