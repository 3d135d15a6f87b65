package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"nobat/internal/domain"
	"nobat/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the local SQLite journal of submitted appointments.
type DB struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	// Создаем директорию для БД, если её нет
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS appointments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            conversation_id INTEGER NOT NULL,
            full_name TEXT NOT NULL,
            phone TEXT NOT NULL,
            brand TEXT NOT NULL DEFAULT '',
            service_type TEXT NOT NULL DEFAULT '',
            plate TEXT NOT NULL DEFAULT '',
            issue_text TEXT NOT NULL DEFAULT '',
            preferred_date TEXT NOT NULL DEFAULT '',
            preferred_time TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'requested',
            remote_reference TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_conversation ON appointments(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_date ON appointments(preferred_date)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// AppendAppointment inserts the appointment and returns the row id as the reference.
func (db *DB) AppendAppointment(ctx context.Context, a *models.Appointment) (string, error) {
	id, err := db.insert(ctx, a, "")
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func (db *DB) insert(ctx context.Context, a *models.Appointment, remoteRef string) (int64, error) {
	query := `
        INSERT INTO appointments (conversation_id, full_name, phone, brand, service_type, plate, issue_text,
            preferred_date, preferred_time, status, remote_reference, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	result, err := db.db.ExecContext(ctx, query,
		a.ConversationID,
		a.FullName,
		a.Phone,
		a.Brand,
		a.ServiceType,
		a.Plate,
		a.IssueText,
		a.PreferredDate,
		a.PreferredTime,
		a.Status,
		remoteRef,
		a.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert appointment: %w", err)
	}
	return result.LastInsertId()
}

// JournalEntry is one stored appointment with its local id and the remote reference, if any.
type JournalEntry struct {
	ID              int64
	RemoteReference string
	Appointment     models.Appointment
}

// ListAppointments returns journaled appointments for a conversation, oldest first.
func (db *DB) ListAppointments(ctx context.Context, conversationID int64) ([]JournalEntry, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, conversation_id, full_name, phone, brand, service_type, plate, issue_text,
            preferred_date, preferred_time, status, remote_reference, created_at
        FROM appointments WHERE conversation_id = ? ORDER BY id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		a := &e.Appointment
		if err := rows.Scan(&e.ID, &a.ConversationID, &a.FullName, &a.Phone, &a.Brand, &a.ServiceType,
			&a.Plate, &a.IssueText, &a.PreferredDate, &a.PreferredTime, &a.Status, &e.RemoteReference,
			&a.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (db *DB) PingContext(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.db.Close()
}

// JournaledLedger forwards to a remote ledger and keeps a local copy of every appointment.
// The remote reference is returned; the journal never fails a submission.
type JournaledLedger struct {
	remote  domain.Ledger
	journal *DB
	timeout time.Duration
}

func NewJournaledLedger(remote domain.Ledger, journal *DB) *JournaledLedger {
	return &JournaledLedger{remote: remote, journal: journal, timeout: 5 * time.Second}
}

func (l *JournaledLedger) AppendAppointment(ctx context.Context, a *models.Appointment) (string, error) {
	ref, remoteErr := l.remote.AppendAppointment(ctx, a)

	// пишем локально даже если удалённый вызов упал или контекст истёк
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()
	if _, err := l.journal.insert(jctx, a, ref); err != nil {
		l.journal.logger.Error().Err(err).Int64("conversation_id", a.ConversationID).Msg("Failed to journal appointment")
	}

	return ref, remoteErr
}
