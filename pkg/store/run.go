// Package store defines the launch-run persistence model and the RunStore
// interface, with in-memory, file, and PostgreSQL backends in subpackages.
package store

import "time"

// Stage identifies how far a launch run has progressed.
type Stage string

const (
	StageInitializing     Stage = "INITIALIZING"
	StageCreatingWallets  Stage = "CREATING_WALLETS"
	StageFundingWallets   Stage = "FUNDING_WALLETS"
	StageCreatingLUT      Stage = "CREATING_LUT"
	StageBuildingBundle   Stage = "BUILDING_BUNDLE"
	StageSubmittingBundle Stage = "SUBMITTING_BUNDLE"
	StageConfirming       Stage = "CONFIRMING"
)

// Percent maps a stage to its fixed progress percentage. Progress depends
// only on the stage, never on time spent inside it.
func (s Stage) Percent() int {
	switch s {
	case StageInitializing:
		return 0
	case StageCreatingWallets:
		return 10
	case StageFundingWallets:
		return 30
	case StageCreatingLUT:
		return 50
	case StageBuildingBundle:
		return 65
	case StageSubmittingBundle:
		return 80
	case StageConfirming:
		return 90
	default:
		return 0
	}
}

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunPending RunStatus = "PENDING"
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
	RunAborted RunStatus = "ABORTED"
)

// Terminal reports whether the status can no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunFailed || s == RunAborted
}

// KeyRecord is one generated wallet's exported keypair. Persisted so that
// generated wallets survive a crash between generation and funding.
type KeyRecord struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
	Role       string `json:"role"`
}

// Run is the persistent record of one launch attempt.
type Run struct {
	ID            string      `json:"id"`
	Status        RunStatus   `json:"status"`
	Stage         Stage       `json:"stage"`
	Mint          string      `json:"mint,omitempty"`
	BundleID      string      `json:"bundle_id,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
	Keys          []KeyRecord `json:"keys,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Progress returns the run's progress percentage.
func (r *Run) Progress() int {
	if r.Status == RunSuccess {
		return 100
	}
	return r.Stage.Percent()
}
