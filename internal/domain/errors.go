package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidInput        = errors.New("invalid input")
	ErrLayerFetch          = errors.New("layer fetch failed")
	ErrCompositeEncode     = errors.New("composite encode failed")
	ErrStorageUpload       = errors.New("storage upload failed")
	ErrStorageDelete       = errors.New("storage delete failed")
	ErrJobFailed           = errors.New("job failed")
	ErrContentPolicy       = errors.New("content policy violation")
	ErrJobTimeout          = errors.New("job timed out")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrProviderFailure     = errors.New("provider failure")
)
