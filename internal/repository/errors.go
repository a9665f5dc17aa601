package repository

import "errors"

// Sentinel errors surfaced by the clearance repositories. The service layer
// maps these onto API error codes.
var (
	ErrFormNotFound         = errors.New("clearance form not found")
	ErrDepartmentNotFound   = errors.New("department row not found")
	ErrDuplicateActiveForm  = errors.New("active clearance form already exists for registration number")
	ErrStatusNotPending     = errors.New("department status is not pending")
	ErrStatusNotRejected    = errors.New("department status is not rejected")
	ErrFormTerminal         = errors.New("clearance form already completed")
	ErrReapplyLimit         = errors.New("reapplication limit reached")
	ErrReapplyCooldown      = errors.New("reapplication cooldown active")
	ErrCertificatePublished = errors.New("certificate already published")
)
