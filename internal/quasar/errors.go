package quasar

import "errors"

var (
	// ErrInvalidContents is returned for nil publish contents and for
	// publications whose contents are not hex
	ErrInvalidContents = errors.New("publication contents must be a byte sequence")

	// ErrInvalidFilter is returned when a serialised topic filter is malformed
	ErrInvalidFilter = errors.New("invalid bloom filters supplied")

	// ErrInvalidTTL is returned for a ttl outside (0, MaxRelayHops]
	ErrInvalidTTL = errors.New("message includes invalid ttl")

	// ErrDuplicate is returned for a publication already processed
	// MaxRepublishCached times
	ErrDuplicate = errors.New("message previously routed")

	// ErrTopicMismatch is returned when a topic is not the origin fingerprint
	ErrTopicMismatch = errors.New("topic must match the proof fingerprint")

	// ErrInvalidSignature is returned when the origin signature does not verify
	ErrInvalidSignature = errors.New("invalid origin signature")

	// ErrInvalidProof is returned when the origin proof-of-work does not verify
	ErrInvalidProof = errors.New("invalid origin proof-of-work")

	// ErrPublishExhausted is returned when no contact accepted a publication
	ErrPublishExhausted = errors.New("failed to deliver any publication messages")

	// ErrNoTopics is returned by Subscribe when called without topics
	ErrNoTopics = errors.New("at least one topic is required")

	// ErrNilHandler is returned by Subscribe when called without a handler
	ErrNilHandler = errors.New("subscription handler cannot be nil")
)
