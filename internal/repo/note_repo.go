package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/notegraph/internal/model"
	"github.com/xxxsen/notegraph/internal/pkg/dbutil"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
)

const (
	NoteStateNormal  = 1
	NoteStateDeleted = 2
)

var noteColumns = []string{"id", "user_id", "title", "content", "tags", "parent_id", "state", "ctime", "mtime"}

type NoteRepo struct {
	db *sql.DB
}

func NewNoteRepo(db *sql.DB) *NoteRepo {
	return &NoteRepo{db: db}
}

func (r *NoteRepo) Create(ctx context.Context, note *model.Note) error {
	tags, err := encodeTags(note.Tags)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":        note.ID,
		"user_id":   note.UserID,
		"title":     note.Title,
		"content":   note.Content,
		"tags":      tags,
		"parent_id": note.ParentID,
		"state":     note.State,
		"ctime":     note.Ctime,
		"mtime":     note.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("notes", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// Update applies the non-nil fields of upd and bumps mtime.
func (r *NoteRepo) Update(ctx context.Context, userID, noteID string, upd model.NoteUpdate, mtime int64) error {
	where := map[string]interface{}{
		"id":      noteID,
		"user_id": userID,
		"state":   NoteStateNormal,
	}
	update := map[string]interface{}{
		"mtime": mtime,
	}
	if upd.Title != nil {
		update["title"] = *upd.Title
	}
	if upd.Content != nil {
		update["content"] = *upd.Content
	}
	if upd.ParentID != nil {
		update["parent_id"] = *upd.ParentID
	}
	if upd.Tags != nil {
		tags, err := encodeTags(*upd.Tags)
		if err != nil {
			return err
		}
		update["tags"] = tags
	}
	sqlStr, args, err := builder.BuildUpdate("notes", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return execAffectingOne(ctx, r.db, sqlStr, args)
}

func (r *NoteRepo) GetByID(ctx context.Context, userID, noteID string) (*model.Note, error) {
	where := map[string]interface{}{
		"id":      noteID,
		"user_id": userID,
		"state":   NoteStateNormal,
	}
	notes, err := r.query(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &notes[0], nil
}

// List returns every live note of the user, oldest first.
func (r *NoteRepo) List(ctx context.Context, userID string) ([]model.Note, error) {
	return r.query(ctx, map[string]interface{}{
		"user_id":  userID,
		"state":    NoteStateNormal,
		"_orderby": "ctime asc, id asc",
	})
}

func (r *NoteRepo) ListChildren(ctx context.Context, userID, parentID string) ([]model.Note, error) {
	return r.query(ctx, map[string]interface{}{
		"user_id":   userID,
		"parent_id": parentID,
		"state":     NoteStateNormal,
		"_orderby":  "ctime asc, id asc",
	})
}

// ListUsers returns the ids of users owning at least one live note.
func (r *NoteRepo) ListUsers(ctx context.Context) ([]string, error) {
	sqlStr, args := dbutil.Finalize("SELECT DISTINCT user_id FROM notes WHERE state = ? ORDER BY user_id", []interface{}{NoteStateNormal})
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// Delete soft-deletes a note. Children are detached to the root so the
// forest stays consistent.
func (r *NoteRepo) Delete(ctx context.Context, userID, noteID string, mtime int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	sqlStr, args, err := builder.BuildUpdate("notes", map[string]interface{}{
		"id":      noteID,
		"user_id": userID,
		"state":   NoteStateNormal,
	}, map[string]interface{}{
		"state": NoteStateDeleted,
		"mtime": mtime,
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if err := execAffectingOne(ctx, tx, sqlStr, args); err != nil {
		return err
	}
	sqlStr, args, err = builder.BuildUpdate("notes", map[string]interface{}{
		"user_id":   userID,
		"parent_id": noteID,
	}, map[string]interface{}{
		"parent_id": "",
		"mtime":     mtime,
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *NoteRepo) query(ctx context.Context, where map[string]interface{}) ([]model.Note, error) {
	sqlStr, args, err := builder.BuildSelect("notes", where, noteColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	notes := make([]model.Note, 0)
	for rows.Next() {
		var note model.Note
		var tags string
		if err := rows.Scan(&note.ID, &note.UserID, &note.Title, &note.Content, &tags, &note.ParentID, &note.State, &note.Ctime, &note.Mtime); err != nil {
			return nil, err
		}
		if note.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func execAffectingOne(ctx context.Context, db execer, sqlStr string, args []interface{}) error {
	result, err := db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeTags(raw string) ([]string, error) {
	tags := make([]string, 0)
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}
