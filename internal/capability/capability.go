// Package capability defines the interchangeable extraction methods the
// orchestrator falls back through, and their concrete implementations.
package capability

import (
	"context"
	"fmt"

	errpkg "github.com/veranemoloko/media-downloader/internal/errors"
)

// Kind tells the orchestrator how a capability delivers media.
type Kind int

const (
	// KindDirectStream writes the media into the response sink.
	KindDirectStream Kind = iota
	// KindDetached starts a background task and returns its id.
	KindDetached
)

func (k Kind) String() string {
	switch k {
	case KindDirectStream:
		return "direct-stream"
	case KindDetached:
		return "detached"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Request is the input shared by every capability.
type Request struct {
	// Ref is the normalized watch URL.
	Ref string
	// Title is already sanitized for use in file names.
	Title     string
	Format    string
	Quality   int
	AudioOnly bool
}

// Result reports what a successful invocation produced.
type Result struct {
	// TaskID is set only by detached capabilities.
	TaskID string
}

// Capability is one way of turning a Request into media for the client.
//
// A direct-stream capability that fails before Sink.Committed becomes true
// returns an error wrapping ErrExtractionFailed (or ErrSpawnFailed). Once it
// has committed, any failure wraps ErrPartialStream.
type Capability interface {
	Name() string
	Kind() Kind
	Invoke(ctx context.Context, req Request, sink Sink) (Result, error)
}

// Registry is the ordered, immutable list of capabilities built at startup.
type Registry struct {
	caps []Capability
}

// NewRegistry creates a Registry that tries caps in the given order.
func NewRegistry(caps ...Capability) *Registry {
	return &Registry{caps: append([]Capability(nil), caps...)}
}

// All returns the capabilities in order.
func (r *Registry) All() []Capability {
	return append([]Capability(nil), r.caps...)
}

// Names returns the capability names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.caps))
	for i, c := range r.caps {
		names[i] = c.Name()
	}
	return names
}

// failure classifies err by whether the sink already carries output.
func failure(sink Sink, err error) error {
	if sink.Committed() {
		return fmt.Errorf("%w: %w", errpkg.ErrPartialStream, err)
	}
	return fmt.Errorf("%w: %w", errpkg.ErrExtractionFailed, err)
}
