package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/jymapp/jym/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Postgres-backed Store for multi-node deployments.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("PostgresStore: failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore: ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore: initialized")
	return &PostgresStore{db: db}, nil
}

// SaveConversation inserts or updates a conversation context.
func (s *PostgresStore) SaveConversation(ctx models.ConversationContext) error {
	if err := ctx.Validate(); err != nil {
		return err
	}
	sessionData, llmData, userData, err := encodeConversationColumns(ctx)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO conversations (id, owner_id, chat_id, channel, type, status, session_data, llm_data, user_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			chat_id = EXCLUDED.chat_id,
			status = EXCLUDED.status,
			session_data = EXCLUDED.session_data,
			llm_data = EXCLUDED.llm_data,
			user_data = EXCLUDED.user_data,
			updated_at = EXCLUDED.updated_at`,
		ctx.ID, ctx.OwnerID, ctx.ChatID, string(ctx.Channel), string(ctx.Type), string(ctx.Status),
		sessionData, llmData, userData, ctx.CreatedAt, ctx.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore.SaveConversation failed", "error", err, "id", ctx.ID)
		return fmt.Errorf("failed to save conversation %s: %w", ctx.ID, err)
	}
	return nil
}

// GetConversation returns the context with the given id, or nil.
func (s *PostgresStore) GetConversation(id string) (*models.ConversationContext, error) {
	row := s.db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

// GetActiveConversation returns the most recently updated active
// conversation for the owner and type, optionally narrowed by chat id.
func (s *PostgresStore) GetActiveConversation(ownerID string, convType models.ConversationType, chatID string) (*models.ConversationContext, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE owner_id = $1 AND type = $2 AND status = $3`
	args := []interface{}{ownerID, string(convType), string(models.ConversationStatusActive)}
	if chatID != "" {
		query += ` AND chat_id = $4`
		args = append(args, chatID)
	}
	query += ` ORDER BY updated_at DESC LIMIT 1`
	row := s.db.QueryRow(query, args...)
	return scanConversation(row)
}

// ListIdleConversations returns active conversations not updated since the
// given time.
func (s *PostgresStore) ListIdleConversations(idleSince time.Time) ([]models.ConversationContext, error) {
	rows, err := s.db.Query(`SELECT `+conversationColumns+` FROM conversations
		WHERE status = $1 AND updated_at < $2`, string(models.ConversationStatusActive), idleSince)
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
func (s *PostgresStore) SaveUserProfile(profile models.UserProfile) error {
	if profile.OwnerID == "" {
		return models.ErrEmptyOwnerID
	}
	_, err := s.db.Exec(`INSERT INTO user_profiles (owner_id, fitness_level, goals, equipment, injuries, onboarded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_id) DO UPDATE SET
			fitness_level = EXCLUDED.fitness_level,
			goals = EXCLUDED.goals,
			equipment = EXCLUDED.equipment,
			injuries = EXCLUDED.injuries,
			onboarded = EXCLUDED.onboarded,
			updated_at = EXCLUDED.updated_at`,
		profile.OwnerID, profile.FitnessLevel, profile.Goals, profile.Equipment, profile.Injuries,
		profile.Onboarded, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore.SaveUserProfile failed", "error", err, "ownerID", profile.OwnerID)
		return fmt.Errorf("failed to save profile for %s: %w", profile.OwnerID, err)
	}
	return nil
}

// GetUserProfile returns the profile for the owner, or nil.
func (s *PostgresStore) GetUserProfile(ownerID string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := s.db.QueryRow(`SELECT owner_id, fitness_level, goals, equipment, injuries, onboarded, created_at, updated_at
		FROM user_profiles WHERE owner_id = $1`, ownerID).
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
func (s *PostgresStore) SaveTrigger(trigger models.Trigger) error {
	metadata, err := encodeTriggerMetadata(trigger.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO triggers (id, owner_id, recipient, channel, instruction, scheduled_at, status, thread_id, metadata, timer_id, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			timer_id = EXCLUDED.timer_id,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		trigger.ID, trigger.OwnerID, trigger.Recipient, string(trigger.Channel), trigger.Instruction,
		trigger.ScheduledAt, string(trigger.Status), trigger.ThreadID, metadata, trigger.TimerID,
		trigger.LastError, trigger.CreatedAt, trigger.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore.SaveTrigger failed", "error", err, "id", trigger.ID)
		return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
	}
	return nil
}

// GetTrigger returns the trigger with the given id, or nil.
func (s *PostgresStore) GetTrigger(id string) (*models.Trigger, error) {
	row := s.db.QueryRow(`SELECT `+triggerColumns+` FROM triggers WHERE id = $1`, id)
	t, err := scanTrigger(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListTriggersByOwner returns all triggers created for the owner.
func (s *PostgresStore) ListTriggersByOwner(ownerID string) ([]models.Trigger, error) {
	return s.listTriggers(`SELECT `+triggerColumns+` FROM triggers WHERE owner_id = $1 ORDER BY scheduled_at`, ownerID)
}

// ListTriggersByStatus returns all triggers in the given status.
func (s *PostgresStore) ListTriggersByStatus(status models.TriggerStatus) ([]models.Trigger, error) {
	return s.listTriggers(`SELECT `+triggerColumns+` FROM triggers WHERE status = $1 ORDER BY scheduled_at`, string(status))
}

func (s *PostgresStore) listTriggers(query string, arg interface{}) ([]models.Trigger, error) {
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
func (s *PostgresStore) SaveFlowState(state models.FlowState) error {
	stateData, err := json.Marshal(state.StateData)
	if err != nil {
		return fmt.Errorf("failed to encode state data: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO flow_states (participant_id, flow_type, current_state, state_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (participant_id, flow_type) DO UPDATE SET
			current_state = EXCLUDED.current_state,
			state_data = EXCLUDED.state_data,
			updated_at = EXCLUDED.updated_at`,
		state.ParticipantID, string(state.FlowType), string(state.CurrentState), string(stateData),
		state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore.SaveFlowState failed", "error", err, "participantID", state.ParticipantID, "flowType", state.FlowType)
		return fmt.Errorf("failed to save flow state: %w", err)
	}
	return nil
}

// GetFlowState returns the flow state for a participant and flow, or nil.
func (s *PostgresStore) GetFlowState(participantID string, flowType models.FlowType) (*models.FlowState, error) {
	var st models.FlowState
	var stateData string
	err := s.db.QueryRow(`SELECT participant_id, flow_type, current_state, state_data, created_at, updated_at
		FROM flow_states WHERE participant_id = $1 AND flow_type = $2`, participantID, string(flowType)).
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
func (s *PostgresStore) DeleteFlowState(participantID string, flowType models.FlowType) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE participant_id = $1 AND flow_type = $2`, participantID, string(flowType))
	if err != nil {
		return fmt.Errorf("failed to delete flow state: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error { return s.db.Close() }
