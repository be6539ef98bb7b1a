package stores

import (
	"context"
	"time"
)

// ResolutionStatus is the outcome of a resolution.
type ResolutionStatus string

const (
	ResolutionSucceeded ResolutionStatus = "succeeded"
	ResolutionFailed    ResolutionStatus = "failed"
)

// Resolution is one journal entry: a package profile resolved against a
// configuration file, and what came out of it.
type Resolution struct {
	ID         string `json:"id" yaml:"id"`
	Package    string `json:"package" yaml:"package"`
	Profile    string `json:"profile" yaml:"profile"`
	ConfigPath string `json:"config_path,omitempty" yaml:"config_path,omitempty"`

	// Fingerprint identifies the configuration sources that were read.
	Fingerprint string           `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Status      ResolutionStatus `json:"status" yaml:"status"`
	Error       *string          `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorClass  *string          `json:"error_class,omitempty" yaml:"error_class,omitempty"`

	InjectedTypes int `json:"injected_types" yaml:"injected_types"`

	// Region is the merged region as produced by col.Region.Data. It is
	// stored compressed and only loaded by GetResolution.
	Region map[string]interface{} `json:"region,omitempty" yaml:"region,omitempty"`

	// SnapshotDigest identifies the stored region. Equal digests mean
	// equal merged regions.
	SnapshotDigest string `json:"snapshot_digest,omitempty" yaml:"snapshot_digest,omitempty"`

	// ProgramDigest identifies the rewritten program document.
	ProgramDigest string `json:"program_digest,omitempty" yaml:"program_digest,omitempty"`

	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
}

// Filter selects journal entries. Zero fields match everything.
type Filter struct {
	Package string
	Profile string
	Status  ResolutionStatus
	Limit   int
	Offset  int
}

// Journal records resolutions.
type Journal interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	RecordResolution(ctx context.Context, r *Resolution) error
	GetResolution(ctx context.Context, id string) (*Resolution, error)
	ListResolutions(ctx context.Context, filter Filter) ([]*Resolution, error)
	LatestResolution(ctx context.Context, pkg, profile string) (*Resolution, error)
	PruneResolutions(ctx context.Context, before time.Time) (int64, error)

	HealthCheck(ctx context.Context) error
}
