package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/filevault/internal/model"
)

// FileRepo encapsulates all database queries related to file metadata.
// Every read and mutation is filtered by (id, owner_id); a row owned by
// someone else is indistinguishable from a missing one.
type FileRepo struct {
	db *sql.DB
}

// NewFileRepo constructs a FileRepo with the provided DB handle.
func NewFileRepo(db *sql.DB) *FileRepo {
	return &FileRepo{db: db}
}

const fileColumns = "id, owner_id, original_name, storage_name, extension, mime_type, size, uploaded_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(s rowScanner) (model.FileRecord, error) {
	var f model.FileRecord
	err := s.Scan(&f.ID, &f.OwnerID, &f.OriginalName, &f.StorageName, &f.Extension, &f.MimeType, &f.Size, &f.UploadedAt)
	return f, err
}

// Insert stores a new record and fills f.ID. A storage-name clash yields ErrDuplicate.
func (r *FileRepo) Insert(ctx context.Context, f *model.FileRecord) error {
	const q = "INSERT INTO files (owner_id, original_name, storage_name, extension, mime_type, size, uploaded_at) VALUES (?,?,?,?,?,?,?)"
	res, err := r.db.ExecContext(ctx, q, f.OwnerID, f.OriginalName, f.StorageName, f.Extension, f.MimeType, f.Size, f.UploadedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = uint64(id)
	return nil
}

// GetByIDAndOwner fetches a record only if it belongs to ownerID.
func (r *FileRepo) GetByIDAndOwner(ctx context.Context, id uint64, ownerID string) (*model.FileRecord, error) {
	const q = "SELECT " + fileColumns + " FROM files WHERE id = ? AND owner_id = ?"
	f, err := scanFile(r.db.QueryRowContext(ctx, q, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return &f, nil
}

// ListByOwner returns one page of ownerID's records, newest upload first,
// together with the owner's total record count.
func (r *FileRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.FileRecord, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE owner_id = ?", ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const q = "SELECT " + fileColumns + " FROM files WHERE owner_id = ? ORDER BY uploaded_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, q, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateContent overwrites the content-describing columns of a record.
// UploadedAt is left untouched. It returns ErrFileNotFound when no row
// matches (id, owner).
func (r *FileRepo) UpdateContent(ctx context.Context, f *model.FileRecord) error {
	const q = `UPDATE files SET original_name = ?, storage_name = ?, extension = ?, mime_type = ?, size = ?
	           WHERE id = ? AND owner_id = ?`
	res, err := r.db.ExecContext(ctx, q, f.OriginalName, f.StorageName, f.Extension, f.MimeType, f.Size, f.ID, f.OwnerID)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFileNotFound
	}
	return nil
}

// DeleteByIDAndOwner removes a record. It returns ErrFileNotFound when no
// row matches (id, owner).
func (r *FileRepo) DeleteByIDAndOwner(ctx context.Context, id uint64, ownerID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM files WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFileNotFound
	}
	return nil
}
