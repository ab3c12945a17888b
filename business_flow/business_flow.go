// Package business_flow orchestrates the use cases behind the HTTP API,
// combining repositories, the session registry, and application services.
package business_flow

import (
	"context"

	"github.com/ibnu-sodik/wage-backend/utils"
)

// ClientMetadata carries request attribution through the flows
type ClientMetadata struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// MetadataFromContext extracts client metadata stored by the middleware
func MetadataFromContext(ctx context.Context) ClientMetadata {
	meta := ClientMetadata{}
	if v, ok := ctx.Value(utils.IPAddressKey).(string); ok {
		meta.IPAddress = v
	}
	if v, ok := ctx.Value(utils.UserAgentKey).(string); ok {
		meta.UserAgent = v
	}
	if v, ok := ctx.Value(utils.RequestIDKey).(string); ok {
		meta.RequestID = v
	}
	return meta
}
