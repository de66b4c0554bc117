package models

import (
	"errors"
	"testing"
	"time"
)

func TestChannelValid(t *testing.T) {
	for _, ch := range []Channel{ChannelTelegram, ChannelWhatsApp, ChannelIMessage} {
		if !ch.Valid() {
			t.Errorf("expected %q valid", ch)
		}
	}
	for _, ch := range []Channel{"", "sms", "TELEGRAM"} {
		if ch.Valid() {
			t.Errorf("expected %q invalid", ch)
		}
	}
}

func TestInboundMessageValidate(t *testing.T) {
	valid := InboundMessage{Channel: ChannelTelegram, From: "12345", ChatID: "12345", Text: "hey", Time: time.Now()}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		msg  InboundMessage
		want error
	}{
		{"missing sender", InboundMessage{Channel: ChannelTelegram, Text: "hey"}, ErrEmptyRecipient},
		{"missing text", InboundMessage{Channel: ChannelTelegram, From: "12345"}, ErrEmptyMessageText},
		{"bad channel", InboundMessage{Channel: "sms", From: "12345", Text: "hey"}, ErrInvalidChannel},
	}
	for _, tt := range tests {
		if err := tt.msg.Validate(); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestTriggerValidate(t *testing.T) {
	valid := Trigger{
		OwnerID:     "telegram:12345",
		Recipient:   "12345",
		Channel:     ChannelTelegram,
		Instruction: "check in",
		ScheduledAt: time.Now().Add(time.Hour),
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	past := valid
	past.ScheduledAt = time.Now().Add(-time.Minute)
	if err := past.Validate(); !errors.Is(err, ErrScheduledTimeInPast) {
		t.Errorf("expected ErrScheduledTimeInPast, got %v", err)
	}

	noOwner := valid
	noOwner.OwnerID = ""
	if err := noOwner.Validate(); !errors.Is(err, ErrEmptyOwnerID) {
		t.Errorf("expected ErrEmptyOwnerID, got %v", err)
	}

	noInstruction := valid
	noInstruction.Instruction = ""
	if err := noInstruction.Validate(); !errors.Is(err, ErrEmptyInstruction) {
		t.Errorf("expected ErrEmptyInstruction, got %v", err)
	}
}

func TestConversationContextValidate(t *testing.T) {
	valid := ConversationContext{ID: "c1", OwnerID: "telegram:1", Channel: ChannelTelegram, Type: ConversationTypeFitnessChat, Status: ConversationStatusActive}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	bad := valid
	bad.Channel = "carrier_pigeon"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("expected ErrInvalidChannel, got %v", err)
	}
}

func TestConversationEnumValues(t *testing.T) {
	statuses := map[ConversationStatus]string{
		ConversationStatusActive:    "active",
		ConversationStatusCompleted: "completed",
		ConversationStatusCancelled: "cancelled",
	}
	for status, want := range statuses {
		if string(status) != want {
			t.Errorf("expected status %q, got %q", want, status)
		}
	}

	types := map[ConversationType]string{
		ConversationTypeOnboarding:     "onboarding",
		ConversationTypeFitnessChat:    "fitness_chat",
		ConversationTypeQuickChallenge: "quick_challenge",
		ConversationTypeReengagement:   "reengagement",
	}
	for convType, want := range types {
		if string(convType) != want {
			t.Errorf("expected type %q, got %q", want, convType)
		}
	}
}
