package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Seller directory
	ErrDirectoryLoad = errors.New("seller directory could not be loaded")

	// Inbound payloads and commands
	ErrPayloadParse   = errors.New("malformed mini-app payload")
	ErrInvalidCommand = errors.New("invalid respond command")
	ErrValidation     = errors.New("validation failed")

	// Correlation
	ErrUnknownRequest = errors.New("no pending request for buyer")
	ErrNotResponder   = errors.New("seller was not notified about this request")

	// Delivery
	ErrDelivery             = errors.New("message delivery failed")
	ErrRecipientUnreachable = errors.New("recipient cannot be reached")

	// Dialogue
	ErrInvalidTransition = errors.New("input not expected at this stage")
	ErrNoConversation    = errors.New("no active conversation")

	// Persistence
	ErrInvalidExecContext = errors.New("invalid execution context for database operation")
)
