package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jymapp/jym/internal/models"
)

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func encodeConversationColumns(ctx models.ConversationContext) (session, llm, user string, err error) {
	sessionBytes, err := json.Marshal(ctx.Session)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode session data: %w", err)
	}
	llmBytes, err := json.Marshal(ctx.LLM)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode llm data: %w", err)
	}
	userBytes, err := json.Marshal(ctx.User)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode user data: %w", err)
	}
	return string(sessionBytes), string(llmBytes), string(userBytes), nil
}

func decodeConversationColumns(c *models.ConversationContext, session, llm, user string) error {
	if err := json.Unmarshal([]byte(session), &c.Session); err != nil {
		return fmt.Errorf("failed to decode session data: %w", err)
	}
	if err := json.Unmarshal([]byte(llm), &c.LLM); err != nil {
		return fmt.Errorf("failed to decode llm data: %w", err)
	}
	if err := json.Unmarshal([]byte(user), &c.User); err != nil {
		return fmt.Errorf("failed to decode user data: %w", err)
	}
	return nil
}

func scanConversation(row *sql.Row) (*models.ConversationContext, error) {
	c, err := scanConversationRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func scanConversationRows(row rowScanner) (*models.ConversationContext, error) {
	var c models.ConversationContext
	var sessionData, llmData, userData string
	err := row.Scan(&c.ID, &c.OwnerID, &c.ChatID, &c.Channel, &c.Type, &c.Status,
		&sessionData, &llmData, &userData, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeConversationColumns(&c, sessionData, llmData, userData); err != nil {
		return nil, err
	}
	return &c, nil
}

func encodeTriggerMetadata(m *models.TriggerMetadata) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode trigger metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func scanTrigger(row rowScanner) (*models.Trigger, error) {
	var t models.Trigger
	var metadata sql.NullString
	err := row.Scan(&t.ID, &t.OwnerID, &t.Recipient, &t.Channel, &t.Instruction, &t.ScheduledAt,
		&t.Status, &t.ThreadID, &metadata, &t.TimerID, &t.LastError, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if metadata.Valid && metadata.String != "" {
		var m models.TriggerMetadata
		if err := json.Unmarshal([]byte(metadata.String), &m); err != nil {
			return nil, fmt.Errorf("failed to decode trigger metadata: %w", err)
		}
		t.Metadata = &m
	}
	return &t, nil
}
