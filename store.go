package core

import (
	"context"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SqlStore backs the persistence seams with a gorm database. Positions,
// banks, accounts and groups are flat rows; the in-memory aggregates
// (account positions, group bank map) are reassembled by the loaders.
type SqlStore struct {
	db *gorm.DB
}

func NewSqlStore(db *gorm.DB) *SqlStore {
	return &SqlStore{db: db}
}

// AutoMigrate creates or updates the backing tables.
func (s *SqlStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Group{}, &Bank{}, &Account{}, &TokenPosition{})
}

// ------------ PositionStore

func (s *SqlStore) FindPosition(ctx context.Context, accountId uuid.UUID, tokenIndex uint16) (*TokenPosition, error) {
	var position TokenPosition
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND token_index = ?", accountId, tokenIndex).
		First(&position).Error
	if err != nil {
		return nil, err
	}
	return &position, nil
}

func (s *SqlStore) UpsertPosition(ctx context.Context, position *TokenPosition) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "token_index"}},
			UpdateAll: true,
		}).
		Create(position).Error
}

func (s *SqlStore) ListPositions(ctx context.Context, accountId uuid.UUID) ([]*TokenPosition, error) {
	var positions []*TokenPosition
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND active = ?", accountId, true).
		Order("token_index").
		Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// ------------ BankStore

func (s *SqlStore) CreateBank(ctx context.Context, bank *Bank) error {
	return s.db.WithContext(ctx).Create(bank).Error
}

func (s *SqlStore) UpsertBank(ctx context.Context, bank *Bank) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "token_index"}},
			UpdateAll: true,
		}).
		Create(bank).Error
}

func (s *SqlStore) GetBankByTokenIndex(ctx context.Context, groupId uuid.UUID, tokenIndex uint16) (*Bank, error) {
	var bank Bank
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND token_index = ?", groupId, tokenIndex).
		First(&bank).Error
	if err != nil {
		return nil, err
	}
	return &bank, nil
}

func (s *SqlStore) ListBanksByGroupId(ctx context.Context, groupId uuid.UUID) ([]*Bank, error) {
	var banks []*Bank
	err := s.db.WithContext(ctx).
		Where("group_id = ?", groupId).
		Order("token_index").
		Find(&banks).Error
	if err != nil {
		return nil, err
	}
	return banks, nil
}

func (s *SqlStore) UpdateBankConfig(ctx context.Context, groupId uuid.UUID, tokenIndex uint16, bankConfig *BankConfig) error {
	if err := bankConfig.Validate(); err != nil {
		return err
	}
	bank, err := s.GetBankByTokenIndex(ctx, groupId, tokenIndex)
	if err != nil {
		return err
	}
	bank.BankConfig = *bankConfig
	return s.UpsertBank(ctx, bank)
}

// ------------ AccountStore

func (s *SqlStore) GetAccountById(ctx context.Context, accountId uuid.UUID) (*Account, error) {
	var account Account
	err := s.db.WithContext(ctx).
		Where("id = ?", accountId).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *SqlStore) ListAccountsByPubkey(ctx context.Context, groupId uuid.UUID, pubkey string) ([]*Account, error) {
	var accounts []*Account
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND pub_key = ?", groupId, pubkey).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *SqlStore) CreateAccount(ctx context.Context, account *Account) error {
	return s.db.WithContext(ctx).Create(account).Error
}

func (s *SqlStore) UpsertAccount(ctx context.Context, account *Account) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(account).Error
}

// ------------ GroupStore

func (s *SqlStore) CreateGroup(ctx context.Context, group *Group) error {
	if err := s.db.WithContext(ctx).Create(group).Error; err != nil {
		return err
	}
	for _, bank := range group.Banks {
		if err := s.UpsertBank(ctx, bank); err != nil {
			return err
		}
	}
	return nil
}

func (s *SqlStore) GetGroupById(ctx context.Context, id uuid.UUID) (*Group, error) {
	var group Group
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return s.attachBanks(ctx, &group)
}

func (s *SqlStore) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	var group Group
	err := s.db.WithContext(ctx).
		Where("name = ?", name).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return s.attachBanks(ctx, &group)
}

func (s *SqlStore) UpdateGroup(ctx context.Context, name string, group *Group) error {
	return s.db.WithContext(ctx).
		Model(&Group{}).
		Where("name = ?", name).
		Updates(map[string]any{
			"admin_key":   group.AdminKey,
			"description": group.Description,
			"updated_at":  group.UpdatedAt,
		}).Error
}

func (s *SqlStore) GetAllGroups(ctx context.Context) ([]*Group, error) {
	var groups []*Group
	if err := s.db.WithContext(ctx).Find(&groups).Error; err != nil {
		return nil, err
	}
	for _, group := range groups {
		if _, err := s.attachBanks(ctx, group); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (s *SqlStore) attachBanks(ctx context.Context, group *Group) (*Group, error) {
	banks, err := s.ListBanksByGroupId(ctx, group.Id)
	if err != nil {
		return nil, err
	}
	group.Banks = make(map[uint16]*Bank, len(banks))
	for _, bank := range banks {
		group.Banks[bank.TokenIndex] = bank
	}
	return group, nil
}
