package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for outbound HTTP calls.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// PostJSON sends payload as a JSON body and returns the response body.
	// Non-2xx answers are returned together with an error so callers can inspect the body.
	PostJSON(ctx context.Context, url string, headers map[string]string, payload interface{}) ([]byte, error)
}
