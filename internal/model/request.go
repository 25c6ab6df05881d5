// Package model defines the shared types of the localization engine.
package model

import (
	"time"
)

// RequestStatus is the lifecycle state of a localization request.
type RequestStatus string

const (
	RequestStatusPending RequestStatus = "PENDING"
	RequestStatusRunning RequestStatus = "RUNNING"
	RequestStatusDone    RequestStatus = "DONE"
	RequestStatusFailed  RequestStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusDone || s == RequestStatusFailed
}

// CanTransition reports whether moving from s to next is a legal step.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	switch s {
	case RequestStatusPending:
		return next == RequestStatusRunning || next == RequestStatusFailed
	case RequestStatusRunning:
		return next == RequestStatusDone || next == RequestStatusFailed
	default:
		return false
	}
}

// Mode selects the candidate generation strategy.
type Mode string

const (
	// ModeAuto picks parcel-scan when photos are supplied, address otherwise.
	ModeAuto       Mode = ""
	ModeAddress    Mode = "address"
	ModeParcelScan Mode = "parcel-scan"
)

// Valid reports whether m is a known mode (auto included).
func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeAddress, ModeParcelScan:
		return true
	}
	return false
}

// Input is the caller-supplied evidence for a localization.
type Input struct {
	Text       string    `json:"text,omitempty"`
	ListingURL string    `json:"listingUrl,omitempty"`
	ImageRefs  []string  `json:"imageRefs,omitempty"`
	Hints      UserHints `json:"hints"`
	Mode       Mode      `json:"mode"`
}

// ResolveMode returns the concrete strategy for this input.
func (in Input) ResolveMode() Mode {
	if in.Mode != ModeAuto {
		return in.Mode
	}
	if len(in.ImageRefs) > 0 {
		return ModeParcelScan
	}
	return ModeAddress
}

// HasPhotos reports whether at least one reference photo was supplied.
func (in Input) HasPhotos() bool {
	return len(in.ImageRefs) > 0
}

// LocalizationRequest is a submitted localization and its lifecycle state.
type LocalizationRequest struct {
	ID        string        `json:"id"`
	Input     Input         `json:"input"`
	Status    RequestStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RequestFilter narrows ListRequests results.
type RequestFilter struct {
	Status RequestStatus `json:"status,omitempty"`
	Limit  int           `json:"limit,omitempty"`
	Offset int           `json:"offset,omitempty"`
}
