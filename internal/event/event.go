// Package event provides the shared Event model for metarelay.
// This package is used by cloud, store, handler, dispatch, journal, and daemon.
package event

import (
	"encoding/json"
	"time"
)

// Event type constants for the kinds the relay understands.
const (
	TypeCheckRun                 = "check_run"
	TypeCheckSuite               = "check_suite"
	TypeWorkflowRun              = "workflow_run"
	TypeWorkflowJob              = "workflow_job"
	TypePullRequest              = "pull_request"
	TypePullRequestReview        = "pull_request_review"
	TypePullRequestReviewComment = "pull_request_review_comment"
	TypeIssueComment             = "issue_comment"
	TypePush                     = "push"
	TypeStatus                   = "status"
	TypeDeploymentStatus         = "deployment_status"
	TypeRelease                  = "release"
)

// KnownTypes is the set of event types accepted in handler configuration.
var KnownTypes = map[string]bool{
	TypeCheckRun:                 true,
	TypeCheckSuite:               true,
	TypeWorkflowRun:              true,
	TypeWorkflowJob:              true,
	TypePullRequest:              true,
	TypePullRequestReview:        true,
	TypePullRequestReviewComment: true,
	TypeIssueComment:             true,
	TypePush:                     true,
	TypeStatus:                   true,
	TypeDeploymentStatus:         true,
	TypeRelease:                  true,
}

// Event represents one observed occurrence from the remote event stream.
// This is the domain model shared across packages, independent of transport
// and storage. RemoteID is assigned by the remote store and is strictly
// increasing within the global stream; DeliveryID is unique per ingestion
// attempt.
type Event struct {
	RemoteID   int64           `json:"id"`
	Repo       string          `json:"repo"`
	Type       string          `json:"event_type"`
	Action     string          `json:"action"`
	Ref        string          `json:"ref,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	Summary    string          `json:"summary"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	DeliveryID string          `json:"delivery_id"`
	CreatedAt  time.Time       `json:"created_at"`
}
