package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-voicechat/internal/chat"
	"go-voicechat/internal/user"
)

const messageColumns = `id, sender_id, receiver_id, date_sent, audio_file_id, text, confidence`

// PostgresColdStore implements ColdStore on the messages and users tables
// created by db.AutoMigrate.
type PostgresColdStore struct {
	db *sql.DB
}

func NewPostgresColdStore(db *sql.DB) *PostgresColdStore {
	return &PostgresColdStore{db: db}
}

// InsertMany writes all messages in one transaction. Rows whose id already
// exists are skipped and not counted.
func (r *PostgresColdStore) InsertMany(ctx context.Context, msgs []chat.Message) (int64, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, m := range msgs {
		var confidence sql.NullFloat64
		if m.Confidence != nil {
			confidence = sql.NullFloat64{Float64: *m.Confidence, Valid: true}
		}
		res, err := stmt.ExecContext(ctx, m.ID, m.SenderID, m.ReceiverID, m.DateSent.UTC(), m.AudioFileID, m.Text, confidence)
		if err != nil {
			return 0, fmt.Errorf("insert message %s: %w", m.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *PostgresColdStore) FindBefore(ctx context.Context, q PageQuery) ([]chat.Message, error) {
	args := []any{q.Before.UTC()}
	where := "date_sent < $1"
	if q.UserA != "" && q.UserB != "" {
		where += " AND ((sender_id = $2 AND receiver_id = $3) OR (sender_id = $3 AND receiver_id = $2))"
		args = append(args, q.UserA, q.UserB)
	}
	args = append(args, q.limit(), q.offset())

	query := fmt.Sprintf(`
		SELECT %[1]s FROM (
			SELECT %[1]s FROM messages
			WHERE %[2]s
			ORDER BY date_sent DESC, id DESC
			LIMIT $%[3]d OFFSET $%[4]d
		) page
		ORDER BY date_sent ASC, id ASC`, messageColumns, where, len(args)-1, len(args))

	return r.queryMessages(ctx, query, args...)
}

func (r *PostgresColdStore) FindSince(ctx context.Context, since time.Time) ([]chat.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE date_sent >= $1 ORDER BY date_sent ASC, id ASC`
	return r.queryMessages(ctx, query, since.UTC())
}

func (r *PostgresColdStore) FindAllMessages(ctx context.Context) ([]chat.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages ORDER BY date_sent ASC, id ASC`
	return r.queryMessages(ctx, query)
}

func (r *PostgresColdStore) queryMessages(ctx context.Context, query string, args ...any) ([]chat.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []chat.Message{}
	for rows.Next() {
		var (
			m          chat.Message
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.DateSent, &m.AudioFileID, &m.Text, &confidence); err != nil {
			return nil, err
		}
		m.DateSent = m.DateSent.UTC()
		if confidence.Valid {
			c := confidence.Float64
			m.Confidence = &c
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *PostgresColdStore) ListAllUsers(ctx context.Context) ([]user.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, email, username, bio FROM users ORDER BY username, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []user.User{}
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.Bio); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *PostgresColdStore) FindUser(ctx context.Context, id string) (*user.User, error) {
	u := &user.User{}
	err := r.db.QueryRowContext(ctx, `SELECT id, email, username, bio FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Username, &u.Bio)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// UpsertUsers seeds or refreshes roster rows. Used by the seed command and
// integration tests.
func (r *PostgresColdStore) UpsertUsers(ctx context.Context, users []user.User) error {
	for _, u := range users {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO users (id, email, username, bio) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, username = EXCLUDED.username, bio = EXCLUDED.bio`,
			u.ID, u.Email, u.Username, u.Bio)
		if err != nil {
			return fmt.Errorf("upsert user %s: %w", u.ID, err)
		}
	}
	return nil
}
