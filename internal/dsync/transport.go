package dsync

import "context"

// RemoteBlob identifies one uploaded blob. MessageID is what patch and
// delete address; Locator is what fetch reads from. A blob with an empty
// Locator must be treated as a failed upload.
type RemoteBlob struct {
	MessageID string
	Locator   string
}

// Transport moves blobs to and from a pool of interchangeable remote
// endpoints. Every call is a single attempt bounded by a timeout; retry
// policy belongs to the caller.
type Transport interface {
	// Upload stores data as a new blob named name through endpoint.
	Upload(ctx context.Context, endpoint string, data []byte, name string) (*RemoteBlob, error)

	// Patch replaces the content of an existing blob in place. The returned
	// blob may carry a new MessageID and a new Locator.
	Patch(ctx context.Context, endpoint, messageID string, data []byte, name string) (*RemoteBlob, error)

	// Delete removes a blob previously uploaded through endpoint.
	Delete(ctx context.Context, endpoint, messageID string) error

	// Fetch returns the raw bytes stored at locator.
	Fetch(ctx context.Context, locator string) ([]byte, error)

	// Probe checks that locator is still retrievable without downloading it.
	Probe(ctx context.Context, locator string) error
}

// EndpointSelector picks the endpoint for the next upload.
type EndpointSelector interface {
	// Select returns an endpoint or an error wrapping ErrConfiguration when
	// none are configured.
	Select() (string, error)
}
