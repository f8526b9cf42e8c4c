package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopcast/social-publisher/internal/domain"
)

func TestPost_ValidateNew(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	valid := domain.Post{
		ProductID: "42",
		Platforms: []domain.Platform{domain.PlatformFacebook},
		Message:   "Check out X",
		CreatedAt: created,
	}

	t.Run("valid post passes", func(t *testing.T) {
		if err := valid.ValidateNew(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty platforms", func(t *testing.T) {
		p := valid
		p.Platforms = nil
		if err := p.ValidateNew(); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("blank message", func(t *testing.T) {
		p := valid
		p.Message = "   "
		if err := p.ValidateNew(); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("schedule equal to creation instant", func(t *testing.T) {
		p := valid
		at := created
		p.ScheduledAt = &at
		if err := p.ValidateNew(); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("schedule in the past", func(t *testing.T) {
		p := valid
		at := created.Add(-time.Minute)
		p.ScheduledAt = &at
		if err := p.ValidateNew(); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("schedule in the future passes", func(t *testing.T) {
		p := valid
		at := created.Add(time.Hour)
		p.ScheduledAt = &at
		if err := p.ValidateNew(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}

func TestPost_ActionAndDue(t *testing.T) {
	now := time.Now().UTC()
	p := domain.Post{}
	if p.Action() != domain.ActionPublishNow {
		t.Fatalf("expected publish_now, got %s", p.Action())
	}
	if !p.Due(now) {
		t.Fatal("unscheduled post must always be due")
	}

	later := now.Add(time.Hour)
	p.ScheduledAt = &later
	if p.Action() != domain.ActionSchedule {
		t.Fatalf("expected schedule, got %s", p.Action())
	}
	if p.Due(now) {
		t.Fatal("post scheduled an hour ahead must not be due")
	}
	if !p.Due(later) {
		t.Fatal("post must be due at its scheduled instant")
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   domain.Status
		terminal bool
	}{
		{domain.StatusPending, false},
		{domain.StatusPublished, true},
		{domain.StatusFailed, true},
	}
	for _, tc := range tests {
		if got := tc.status.IsTerminal(); got != tc.terminal {
			t.Fatalf("%s: expected terminal=%v, got %v", tc.status, tc.terminal, got)
		}
	}
}

func TestPublishResult(t *testing.T) {
	remote := &domain.RemoteError{Platform: domain.PlatformInstagram, StatusCode: 400, Body: "bad"}
	r := domain.PublishResult{Outcomes: []domain.PlatformOutcome{
		{Platform: domain.PlatformFacebook},
		{Platform: domain.PlatformInstagram, Err: remote},
	}}

	if r.OK() {
		t.Fatal("expected partial failure to be reported as not OK")
	}
	if got := r.Failed(); len(got) != 1 || got[0] != domain.PlatformInstagram {
		t.Fatalf("unexpected failed platforms: %v", got)
	}
	if got := r.Succeeded(); len(got) != 1 || got[0] != domain.PlatformFacebook {
		t.Fatalf("unexpected succeeded platforms: %v", got)
	}
	if !errors.Is(r.Err(), domain.ErrRemote) {
		t.Fatalf("expected joined error to wrap ErrRemote, got %v", r.Err())
	}
	var re *domain.RemoteError
	if !errors.As(r.Err(), &re) || re.StatusCode != 400 {
		t.Fatalf("expected RemoteError with status 400, got %v", r.Err())
	}

	if (domain.PublishResult{}).OK() {
		t.Fatal("empty result must not count as success")
	}
	ok := domain.PublishResult{Outcomes: []domain.PlatformOutcome{{Platform: domain.PlatformFacebook}}}
	if !ok.OK() || ok.Err() != nil {
		t.Fatal("expected full success")
	}
}
