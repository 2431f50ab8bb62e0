package scheduler

import "testing"

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	// Should add a valid cron job without error
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}

	if err := s.AddJob("not a cron expression", func() {}); err == nil {
		t.Error("Expected error adding job with invalid expression")
	}
}
