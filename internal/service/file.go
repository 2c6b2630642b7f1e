package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/permission"
	"github.com/Gopher0727/Tavern/internal/repository"
	"github.com/Gopher0727/Tavern/internal/storage"
)

type CreateFolderRequest struct {
	TavernID string `json:"tavern_id"`
	// AssigneeMembershipID defaults to the caller's own membership.
	AssigneeMembershipID string `json:"assignee_membership_id"`
	Name                 string `json:"name" binding:"required"`
}

type FolderView struct {
	Folder *model.Folder `json:"folder"`
	Items  []*model.Item `json:"items"`
}

// Download carries an item's bytes back to the transport.
type Download struct {
	Item *model.Item `json:"item"`
	Data []byte      `json:"-"`
}

type IFileService interface {
	CreateFolder(ctx context.Context, callerID string, req *CreateFolderRequest) Result[*model.Folder]
	ListFolder(ctx context.Context, callerID, folderID string) Result[*FolderView]
	CreateFile(ctx context.Context, callerID, folderID string, upload *Upload, note *string) Result[*model.Item]
	Download(ctx context.Context, callerID, itemID string) Result[*Download]
	DeleteFile(ctx context.Context, callerID, itemID string) Result[*model.Item]
}

type FileService struct {
	Deps
	blobs        storage.BlobStore
	ids          IDGenerator
	maxFileBytes int64
}

func NewFileService(deps Deps, blobs storage.BlobStore, ids IDGenerator, maxFileBytes int64) IFileService {
	return &FileService{Deps: deps.withDefaults(), blobs: blobs, ids: ids, maxFileBytes: maxFileBytes}
}

// CreateFolder creates a folder owned by the assignee membership. Assigning
// a folder to someone else requires elevation.
func (s *FileService) CreateFolder(ctx context.Context, callerID string, req *CreateFolderRequest) Result[*model.Folder] {
	const op = "CreateFolder"

	if _, err := s.findTavern(ctx, s.Store, req.TavernID); err != nil {
		return fail[*model.Folder](ctx, s.Logger, op, err)
	}
	caller, err := s.requireMembership(ctx, s.Store, req.TavernID, callerID)
	if err != nil {
		return fail[*model.Folder](ctx, s.Logger, op, err)
	}

	assignee := caller
	if req.AssigneeMembershipID != "" && req.AssigneeMembershipID != caller.ID {
		m, err := s.Store.Memberships().FindByID(ctx, req.AssigneeMembershipID)
		if m, err = found("membership", m, err); err != nil {
			return fail[*model.Folder](ctx, s.Logger, op, err)
		}
		if m.TavernID != req.TavernID || !m.Active() {
			return fail[*model.Folder](ctx, s.Logger, op, notFound("membership"))
		}
		if err := permission.Authorize(caller, permission.AssignFolder); err != nil {
			return fail[*model.Folder](ctx, s.Logger, op, err)
		}
		assignee = m
	}

	folder, err := model.NewFolder(assignee, req.Name)
	if err != nil {
		return fail[*model.Folder](ctx, s.Logger, op, err)
	}
	// The tavern row lock serializes folder creation, so the name check
	// holds until the insert.
	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		locked, err := tx.Taverns().FindByIDForUpdate(ctx, req.TavernID)
		if _, err := found("tavern", locked, err); err != nil {
			return err
		}
		_, err = tx.Folders().FindByName(ctx, assignee.ID, folder.Name)
		switch {
		case err == nil:
			return model.Conflict("a folder named %q already exists", folder.Name)
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("failed to check folder name: %w", err)
		}
		if err := tx.Folders().Create(ctx, folder); err != nil {
			return fmt.Errorf("failed to create folder: %w", err)
		}
		return nil
	})
	if err != nil {
		return fail[*model.Folder](ctx, s.Logger, op, err)
	}
	return created("folder created", folder)
}

func (s *FileService) ListFolder(ctx context.Context, callerID, folderID string) Result[*FolderView] {
	const op = "ListFolder"

	folder, _, err := s.folderAccess(ctx, callerID, folderID)
	if err != nil {
		return fail[*FolderView](ctx, s.Logger, op, err)
	}
	items, err := s.Store.Items().ListByFolder(ctx, folder.ID)
	if err != nil {
		return fail[*FolderView](ctx, s.Logger, op, fmt.Errorf("failed to list items: %w", err))
	}
	return ok("folder found", &FolderView{Folder: folder, Items: items})
}

// CreateFile rejects a name collision before any bytes are stored, then
// stores the bytes and only afterwards writes the item row.
func (s *FileService) CreateFile(ctx context.Context, callerID, folderID string, upload *Upload, note *string) Result[*model.Item] {
	const op = "CreateFile"

	folder, _, err := s.folderAccess(ctx, callerID, folderID)
	if err != nil {
		return fail[*model.Item](ctx, s.Logger, op, err)
	}
	if upload == nil || len(upload.Data) == 0 {
		return fail[*model.Item](ctx, s.Logger, op, model.Invalid("file is required"))
	}
	if int64(len(upload.Data)) > s.maxFileBytes {
		return fail[*model.Item](ctx, s.Logger, op, model.Invalid("file exceeds the %d byte limit", s.maxFileBytes))
	}

	name, ext, err := model.SplitFileName(upload.Filename)
	if err != nil {
		return fail[*model.Item](ctx, s.Logger, op, err)
	}
	_, err = s.Store.Items().FindByName(ctx, folder.ID, name, ext)
	switch {
	case err == nil:
		return fail[*model.Item](ctx, s.Logger, op, model.Conflict("a file named %s already exists in this folder", name+ext))
	case !errors.Is(err, repository.ErrNotFound):
		return fail[*model.Item](ctx, s.Logger, op, fmt.Errorf("failed to check file name: %w", err))
	}

	id, err := s.ids.NextString()
	if err != nil {
		return fail[*model.Item](ctx, s.Logger, op, fmt.Errorf("failed to mint item id: %w", err))
	}
	item, err := model.NewItem(id, folder, upload.Filename, int64(len(upload.Data)), note)
	if err != nil {
		return fail[*model.Item](ctx, s.Logger, op, err)
	}

	ref, err := s.blobs.Put(ctx, item.BlobKey, upload.Data)
	if err != nil {
		return fail[*model.Item](ctx, s.Logger, op, fmt.Errorf("failed to store file: %w", err))
	}
	item.URL = ref

	// Another upload may have taken the name while the bytes were stored.
	// The folder row lock makes the second check and the insert atomic.
	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		locked, err := tx.Folders().FindByIDForUpdate(ctx, folder.ID)
		if _, err := found("folder", locked, err); err != nil {
			return err
		}
		_, err = tx.Items().FindByName(ctx, folder.ID, name, ext)
		switch {
		case err == nil:
			return model.Conflict("a file named %s already exists in this folder", item.FileName())
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("failed to check file name: %w", err)
		}
		if err := tx.Items().Create(ctx, item); err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}
		return nil
	})
	if err != nil {
		s.discardBlobFrom(ctx, s.blobs, item.BlobKey)
		return fail[*model.Item](ctx, s.Logger, op, err)
	}
	return created("file uploaded", item)
}

func (s *FileService) Download(ctx context.Context, callerID, itemID string) Result[*Download] {
	const op = "Download"

	item, err := s.findItem(ctx, itemID)
	if err != nil {
		return fail[*Download](ctx, s.Logger, op, err)
	}
	if _, _, err := s.folderAccess(ctx, callerID, item.FolderID); err != nil {
		return fail[*Download](ctx, s.Logger, op, err)
	}
	data, err := s.blobs.Get(ctx, item.BlobKey)
	if errors.Is(err, storage.ErrBlobNotFound) {
		s.Logger.WarnContext(ctx, "item has no stored bytes", zap.String("item_id", item.ID))
		return fail[*Download](ctx, s.Logger, op, notFound("file"))
	}
	if err != nil {
		return fail[*Download](ctx, s.Logger, op, fmt.Errorf("failed to read file: %w", err))
	}
	return ok("file found", &Download{Item: item, Data: data})
}

// DeleteFile soft-deletes the item and then removes its bytes. A failed
// byte delete is logged and does not fail the call.
func (s *FileService) DeleteFile(ctx context.Context, callerID, itemID string) Result[*model.Item] {
	const op = "DeleteFile"

	item, err := s.findItem(ctx, itemID)
	if err != nil {
		return fail[*model.Item](ctx, s.Logger, op, err)
	}
	if _, _, err := s.folderAccess(ctx, callerID, item.FolderID); err != nil {
		return fail[*model.Item](ctx, s.Logger, op, err)
	}
	if err := s.Store.Items().Delete(ctx, item); err != nil {
		return fail[*model.Item](ctx, s.Logger, op, fmt.Errorf("failed to delete item: %w", err))
	}
	if err := s.blobs.Delete(ctx, item.BlobKey); err != nil {
		s.Logger.ErrorContext(ctx, "failed to delete file bytes",
			zap.String("item_id", item.ID),
			zap.String("key", item.BlobKey),
			zap.Error(err),
		)
	}
	return ok("file deleted", item)
}

func (s *FileService) findItem(ctx context.Context, id string) (*model.Item, error) {
	item, err := s.Store.Items().FindByID(ctx, id)
	return found("item", item, err)
}

// folderAccess loads the folder and checks that the caller owns it or holds
// elevation in the owner's tavern.
func (s *FileService) folderAccess(ctx context.Context, callerID, folderID string) (*model.Folder, *model.Membership, error) {
	folder, err := s.Store.Folders().FindByID(ctx, folderID)
	if folder, err = found("folder", folder, err); err != nil {
		return nil, nil, err
	}
	owner, err := s.Store.Memberships().FindByID(ctx, folder.MembershipID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, notFound("folder")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find folder owner: %w", err)
	}

	caller, err := s.requireMembership(ctx, s.Store, owner.TavernID, callerID)
	if err != nil {
		return nil, nil, err
	}
	if caller.ID != owner.ID {
		if err := permission.Authorize(caller, permission.AssignFolder); err != nil {
			return nil, nil, model.Forbidden("this folder belongs to another member")
		}
	}
	return folder, caller, nil
}
