package client

import (
	"github.com/vantagelabs/relay/pkg/models"
)

// User-visible error messages. Raw internal errors never reach the display;
// they are mapped to short category messages, with network failures kept
// distinct from server-side ones.
const (
	msgGenericFailure  = "Something went wrong while processing your request. Please try again."
	msgProviderFailure = "The assistant ran into a problem generating a response. Please try again."
	msgConnectivity    = "Connection lost. Check your network and try again."
	msgMaxIterations   = "This request needed too many steps and was stopped. Try breaking it into smaller questions."
)

// userFacingError maps a terminal error payload to a display message.
func userFacingError(payload *models.ErrorPayload) string {
	if payload == nil {
		return msgGenericFailure
	}
	switch payload.Code {
	case "provider_error":
		return msgProviderFailure
	case "network_error":
		return msgConnectivity
	case models.ErrCodeMaxIterations:
		return msgMaxIterations
	default:
		return msgGenericFailure
	}
}
