package subscriptions

import "errors"

// Service errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrEmptyPatch           = errors.New("no fields to update")
	ErrEmptyImport          = errors.New("import contains no subscriptions")
)
