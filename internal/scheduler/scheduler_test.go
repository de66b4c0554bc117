package scheduler

import (
	"testing"
)

func TestAddJobRejectsInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("not a cron expression", func() {}); err == nil {
		t.Error("expected error for invalid expression")
	}
	if err := s.AddJob("0 * * * * *", func() {}); err == nil {
		t.Error("expected error for 6-field expression")
	}
}

func TestAddJobAcceptsStandardExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("0 * * * *", func() {}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStopIsSafeWithoutJobs(t *testing.T) {
	s := NewScheduler()
	s.Stop()
}
