package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/jymapp/jym/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the permissions for created database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a file-backed Store suitable for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is
// a file path; its directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore: failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("SQLiteStore: failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore: ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore: initialized", "dsn", dsn)
	return &SQLiteStore{db: db}, nil
}

// SaveConversation inserts or updates a conversation context.
func (s *SQLiteStore) SaveConversation(ctx models.ConversationContext) error {
	if err := ctx.Validate(); err != nil {
		return err
	}
	sessionData, llmData, userData, err := encodeConversationColumns(ctx)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO conversations (id, owner_id, chat_id, channel, type, status, session_data, llm_data, user_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_id = excluded.chat_id,
			status = excluded.status,
			session_data = excluded.session_data,
			llm_data = excluded.llm_data,
			user_data = excluded.user_data,
			updated_at = excluded.updated_at`,
		ctx.ID, ctx.OwnerID, ctx.ChatID, string(ctx.Channel), string(ctx.Type), string(ctx.Status),
		sessionData, llmData, userData, ctx.CreatedAt, ctx.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore.SaveConversation failed", "error", err, "id", ctx.ID)
		return fmt.Errorf("failed to save conversation %s: %w", ctx.ID, err)
	}
	return nil
}

const conversationColumns = `id, owner_id, chat_id, channel, type, status, session_data, llm_data, user_data, created_at, updated_at`

// GetConversation returns the context with the given id, or nil.
func (s *SQLiteStore) GetConversation(id string) (*models.ConversationContext, error) {
	row := s.db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// GetActiveConversation returns the most recently updated active
// conversation for the owner and type, optionally narrowed by chat id.
func (s *SQLiteStore) GetActiveConversation(ownerID string, convType models.ConversationType, chatID string) (*models.ConversationContext, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE owner_id = ? AND type = ? AND status = ?`
	args := []interface{}{ownerID, string(convType), string(models.ConversationStatusActive)}
	if chatID != "" {
		query += ` AND chat_id = ?`
		args = append(args, chatID)
	}
	query += ` ORDER BY updated_at DESC LIMIT 1`
	row := s.db.QueryRow(query, args...)
	return scanConversation(row)
}

// ListIdleConversations returns active conversations not updated since the
// given time.
func (s *SQLiteStore) ListIdleConversations(idleSince time.Time) ([]models.ConversationContext, error) {
	rows, err := s.db.Query(`SELECT `+conversationColumns+` FROM conversations
		WHERE status = ? AND updated_at < ?`, string(models.ConversationStatusActive), idleSince)
	if err != nil {
		return nil, fmt.Errorf("failed to list idle conversations: %w", err)
	}
	defer rows.Close()
	var out []models.ConversationContext
	for rows.Next() {
		c, err := scanConversationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SaveUserProfile inserts or updates a profile.
func (s *SQLiteStore) SaveUserProfile(profile models.UserProfile) error {
	if profile.OwnerID == "" {
		return models.ErrEmptyOwnerID
	}
	_, err := s.db.Exec(`INSERT INTO user_profiles (owner_id, fitness_level, goals, equipment, injuries, onboarded, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			fitness_level = excluded.fitness_level,
			goals = excluded.goals,
			equipment = excluded.equipment,
			injuries = excluded.injuries,
			onboarded = excluded.onboarded,
			updated_at = excluded.updated_at`,
		profile.OwnerID, profile.FitnessLevel, profile.Goals, profile.Equipment, profile.Injuries,
		profile.Onboarded, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore.SaveUserProfile failed", "error", err, "ownerID", profile.OwnerID)
		return fmt.Errorf("failed to save profile for %s: %w", profile.OwnerID, err)
	}
	return nil
}

// GetUserProfile returns the profile for the owner, or nil.
func (s *SQLiteStore) GetUserProfile(ownerID string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := s.db.QueryRow(`SELECT owner_id, fitness_level, goals, equipment, injuries, onboarded, created_at, updated_at
		FROM user_profiles WHERE owner_id = ?`, ownerID).
		Scan(&p.OwnerID, &p.FitnessLevel, &p.Goals, &p.Equipment, &p.Injuries, &p.Onboarded, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile for %s: %w", ownerID, err)
	}
	return &p, nil
}

// SaveTrigger inserts or updates a trigger.
func (s *SQLiteStore) SaveTrigger(trigger models.Trigger) error {
	metadata, err := encodeTriggerMetadata(trigger.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO triggers (id, owner_id, recipient, channel, instruction, scheduled_at, status, thread_id, metadata, timer_id, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			timer_id = excluded.timer_id,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		trigger.ID, trigger.OwnerID, trigger.Recipient, string(trigger.Channel), trigger.Instruction,
		trigger.ScheduledAt, string(trigger.Status), trigger.ThreadID, metadata, trigger.TimerID,
		trigger.LastError, trigger.CreatedAt, trigger.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore.SaveTrigger failed", "error", err, "id", trigger.ID)
		return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
	}
	return nil
}

const triggerColumns = `id, owner_id, recipient, channel, instruction, scheduled_at, status, thread_id, metadata, timer_id, last_error, created_at, updated_at`

// GetTrigger returns the trigger with the given id, or nil.
func (s *SQLiteStore) GetTrigger(id string) (*models.Trigger, error) {
	row := s.db.QueryRow(`SELECT `+triggerColumns+` FROM triggers WHERE id = ?`, id)
	t, err := scanTrigger(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListTriggersByOwner returns all triggers created for the owner.
func (s *SQLiteStore) ListTriggersByOwner(ownerID string) ([]models.Trigger, error) {
	return s.listTriggers(`SELECT `+triggerColumns+` FROM triggers WHERE owner_id = ? ORDER BY scheduled_at`, ownerID)
}

// ListTriggersByStatus returns all triggers in the given status.
func (s *SQLiteStore) ListTriggersByStatus(status models.TriggerStatus) ([]models.Trigger, error) {
	return s.listTriggers(`SELECT `+triggerColumns+` FROM triggers WHERE status = ? ORDER BY scheduled_at`, string(status))
}

func (s *SQLiteStore) listTriggers(query string, arg interface{}) ([]models.Trigger, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer rows.Close()
	var out []models.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// SaveFlowState inserts or updates flow state for a participant and flow.
func (s *SQLiteStore) SaveFlowState(state models.FlowState) error {
	stateData, err := json.Marshal(state.StateData)
	if err != nil {
		return fmt.Errorf("failed to encode state data: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO flow_states (participant_id, flow_type, current_state, state_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(participant_id, flow_type) DO UPDATE SET
			current_state = excluded.current_state,
			state_data = excluded.state_data,
			updated_at = excluded.updated_at`,
		state.ParticipantID, string(state.FlowType), string(state.CurrentState), string(stateData),
		state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore.SaveFlowState failed", "error", err, "participantID", state.ParticipantID, "flowType", state.FlowType)
		return fmt.Errorf("failed to save flow state: %w", err)
	}
	return nil
}

// GetFlowState returns the flow state for a participant and flow, or nil.
func (s *SQLiteStore) GetFlowState(participantID string, flowType models.FlowType) (*models.FlowState, error) {
	var st models.FlowState
	var stateData string
	err := s.db.QueryRow(`SELECT participant_id, flow_type, current_state, state_data, created_at, updated_at
		FROM flow_states WHERE participant_id = ? AND flow_type = ?`, participantID, string(flowType)).
		Scan(&st.ParticipantID, &st.FlowType, &st.CurrentState, &stateData, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flow state: %w", err)
	}
	if err := json.Unmarshal([]byte(stateData), &st.StateData); err != nil {
		return nil, fmt.Errorf("failed to decode state data: %w", err)
	}
	return &st, nil
}

// DeleteFlowState removes the flow state for a participant and flow.
func (s *SQLiteStore) DeleteFlowState(participantID string, flowType models.FlowType) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE participant_id = ? AND flow_type = ?`, participantID, string(flowType))
	if err != nil {
		return fmt.Errorf("failed to delete flow state: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }
