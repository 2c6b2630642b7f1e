package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/Tavern/internal/model"
)

// FolderRepository implements IFolderRepository interface
type FolderRepository struct {
	db *gorm.DB
}

// NewFolderRepository creates a new IFolderRepository instance
func NewFolderRepository(db *gorm.DB) IFolderRepository {
	return &FolderRepository{db: db}
}

func (r *FolderRepository) Create(ctx context.Context, folder *model.Folder) error {
	return r.db.WithContext(ctx).Create(folder).Error
}

func (r *FolderRepository) FindByID(ctx context.Context, id string) (*model.Folder, error) {
	var folder model.Folder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&folder).Error; err != nil {
		return nil, err
	}
	return &folder, nil
}

func (r *FolderRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.Folder, error) {
	var folder model.Folder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&folder).Error
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

func (r *FolderRepository) FindByName(ctx context.Context, membershipID, name string) (*model.Folder, error) {
	var folder model.Folder
	err := r.db.WithContext(ctx).
		Where("membership_id = ? AND name = ?", membershipID, name).
		First(&folder).Error
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

func (r *FolderRepository) ListByMembership(ctx context.Context, membershipID string) ([]*model.Folder, error) {
	var folders []*model.Folder
	err := r.db.WithContext(ctx).
		Where("membership_id = ?", membershipID).
		Order("name ASC").
		Find(&folders).Error
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// ItemRepository implements IItemRepository interface
type ItemRepository struct {
	db *gorm.DB
}

// NewItemRepository creates a new IItemRepository instance
func NewItemRepository(db *gorm.DB) IItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) Create(ctx context.Context, item *model.Item) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *ItemRepository) FindByID(ctx context.Context, id string) (*model.Item, error) {
	var item model.Item
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *ItemRepository) FindByName(ctx context.Context, folderID, name, extension string) (*model.Item, error) {
	var item model.Item
	err := r.db.WithContext(ctx).
		Where("folder_id = ? AND name = ? AND extension = ?", folderID, name, extension).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *ItemRepository) ListByFolder(ctx context.Context, folderID string) ([]*model.Item, error) {
	var items []*model.Item
	err := r.db.WithContext(ctx).
		Where("folder_id = ?", folderID).
		Order("name ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ItemRepository) Delete(ctx context.Context, item *model.Item) error {
	return r.db.WithContext(ctx).Delete(item).Error
}
