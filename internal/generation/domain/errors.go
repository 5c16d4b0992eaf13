package domain

import "errors"

var (
	ErrJobNotFound  = errors.New("job_not_found")
	ErrJobNotReady  = errors.New("job_not_ready")
	ErrInvalidJobID = errors.New("invalid_job_id")
)
