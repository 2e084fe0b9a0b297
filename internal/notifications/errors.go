package notifications

import "errors"

// Repository errors.
var (
	ErrPreferenceNotFound = errors.New("notification preference not found")
)

// Delivery errors.
var (
	ErrChannelDisabled    = errors.New("notification channel is not available")
	ErrPreferenceDisabled = errors.New("notifications are disabled for this channel")
	ErrNoTarget           = errors.New("no delivery target for channel")
	ErrInvalidTarget      = errors.New("invalid delivery target")
)

// isDeliveryError reports whether err means the message can never be delivered
// with the current preferences, as opposed to a transport failure.
func isDeliveryError(err error) bool {
	return errors.Is(err, ErrChannelDisabled) ||
		errors.Is(err, ErrPreferenceDisabled) ||
		errors.Is(err, ErrNoTarget) ||
		errors.Is(err, ErrPreferenceNotFound)
}

// ErrDeliveryFailed wraps sender failures of an immediate dispatch.
var ErrDeliveryFailed = errors.New("failed to deliver notification")
