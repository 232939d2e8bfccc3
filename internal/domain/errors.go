package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per failure class.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrIndexNotFound = errors.New("vector index not found")
	ErrRetrieval     = errors.New("retrieval failed")
	ErrGeneration    = errors.New("generation failed")
	ErrTransport     = errors.New("transport failed")
)

// ConfigurationError reports a missing credential or prerequisite artifact.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(key, reason string) *ConfigurationError {
	return &ConfigurationError{Key: key, Reason: reason}
}

// IndexNotFoundError is returned when loading an index that was never built.
// It is also a configuration error: the indexer has to run first.
type IndexNotFoundError struct {
	Location string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("vector index not found at %s: run the indexer first", e.Location)
}

func (e *IndexNotFoundError) Is(target error) bool {
	return target == ErrIndexNotFound || target == ErrConfiguration
}

// RetrievalError wraps an embedding or index-search failure.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string { return fmt.Sprintf("retrieval: %s: %v", e.Op, e.Err) }
func (e *RetrievalError) Unwrap() error { return e.Err }
func (e *RetrievalError) Is(target error) bool {
	return target == ErrRetrieval
}

// GenerationFailure classifies upstream model failures.
type GenerationFailure string

const (
	GenerationAuth      GenerationFailure = "auth"
	GenerationRateLimit GenerationFailure = "rate_limit"
	GenerationTimeout   GenerationFailure = "timeout"
	GenerationNetwork   GenerationFailure = "network"
	GenerationUpstream  GenerationFailure = "upstream"
	GenerationEmpty     GenerationFailure = "empty"
)

// GenerationError wraps a failed call to the hosted language model.
type GenerationError struct {
	Kind GenerationFailure
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation (%s): %v", e.Kind, e.Err)
}
func (e *GenerationError) Unwrap() error { return e.Err }
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

// TransportError wraps a failed front-end-to-backend call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
