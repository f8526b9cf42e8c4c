package domain

import (
	"errors"
	"strings"
	"time"
)

// Platform identifies a social network a post can be published to.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
)

// Status tracks the lifecycle of a post.
//
//	pending → published (terminal)
//	pending → failed    (terminal)
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPublished, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusPublished || s == StatusFailed
}

// Action tells the worker how to treat a queued post.
type Action string

const (
	ActionPublishNow Action = "publish_now"
	ActionSchedule   Action = "schedule"
)

func (a Action) IsValid() bool {
	return a == ActionPublishNow || a == ActionSchedule
}

// Post is the core domain entity: one request to publish a message about a
// product to one or more platforms.
type Post struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"product_id"`
	UserID      string     `json:"user_id"`
	Platforms   []Platform `json:"platforms"`
	Message     string     `json:"message"`
	ImageRef    *string    `json:"image_ref,omitempty"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ValidateNew checks the creation invariants. CreatedAt is the creation
// instant the schedule is compared against.
func (p *Post) ValidateNew() error {
	if len(p.Platforms) == 0 {
		return Validationf("at least one platform is required")
	}
	if strings.TrimSpace(p.Message) == "" {
		return Validationf("message must not be empty")
	}
	if p.ScheduledAt != nil && !p.ScheduledAt.After(p.CreatedAt) {
		return Validationf("scheduled time must be in the future")
	}
	return nil
}

// Action returns the queue action a freshly created post is submitted with.
func (p *Post) Action() Action {
	if p.ScheduledAt != nil {
		return ActionSchedule
	}
	return ActionPublishNow
}

// Due reports whether the post may be delivered at now.
func (p *Post) Due(now time.Time) bool {
	return p.ScheduledAt == nil || !p.ScheduledAt.After(now)
}

// PlatformOutcome is the result of one adapter invocation. Err is nil on success.
type PlatformOutcome struct {
	Platform Platform
	Err      error
}

// PublishResult aggregates per-platform outcomes in the order they were requested.
type PublishResult struct {
	Outcomes []PlatformOutcome
}

// OK is true only when every platform succeeded.
func (r PublishResult) OK() bool {
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return false
		}
	}
	return len(r.Outcomes) > 0
}

func (r PublishResult) Failed() []Platform {
	var out []Platform
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o.Platform)
		}
	}
	return out
}

func (r PublishResult) Succeeded() []Platform {
	var out []Platform
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o.Platform)
		}
	}
	return out
}

// Outcome returns the recorded outcome for p.
func (r PublishResult) Outcome(p Platform) (PlatformOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Platform == p {
			return o, true
		}
	}
	return PlatformOutcome{}, false
}

// Err joins every platform failure, or returns nil on full success.
func (r PublishResult) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, &platformError{platform: o.Platform, err: o.Err})
		}
	}
	return errors.Join(errs...)
}

type platformError struct {
	platform Platform
	err      error
}

func (e *platformError) Error() string { return string(e.platform) + ": " + e.err.Error() }
func (e *platformError) Unwrap() error { return e.err }

// SubmitRequest is the inbound payload collected by the share form.
type SubmitRequest struct {
	ProductID   string     `json:"-"`
	UserID      string     `json:"-"`
	Platforms   []Platform `json:"platforms"`
	Message     string     `json:"message"`
	ImageRef    *string    `json:"image_ref,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// PostFilter holds query parameters for paginated post listing.
type PostFilter struct {
	Status    *Status
	ProductID *string
	Page      int
	Limit     int
}
