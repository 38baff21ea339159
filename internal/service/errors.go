package service

import "errors"

var (
	// ErrRateLimitExceeded клиент превысил лимит запросов в окне
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrPersistence хранилище недоступно или отказало не из-за дубликата
	ErrPersistence = errors.New("persistence failure")
)
