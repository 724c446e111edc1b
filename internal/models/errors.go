package models

import "errors"

var (
	// ErrMalformedPayload means the remote call returned something that is
	// not a JSON object at all; nothing can be salvaged from it.
	ErrMalformedPayload = errors.New("malformed payload: not an object")

	// ErrTransportFailure wraps network and remote-status errors from the
	// fleet data service.
	ErrTransportFailure = errors.New("transport failure")

	// ErrInvalidThreshold means a rule threshold did not parse as a finite
	// number.
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrNoNotificationChannel means a rule selected neither email nor
	// in-app notification.
	ErrNoNotificationChannel = errors.New("no notification channel selected")

	// ErrRuleNotFound means no rule exists with the given id.
	ErrRuleNotFound = errors.New("alert rule not found")
)
