package provider

import (
	"context"

	"github.com/theapemachine/agentwire/pkg/a2a"
)

/*
Interface abstracts the text-generation backend.  Complete returns the
full reply in one shot; Stream pushes incremental fragments through
onDelta and returns the concatenated result.  Both must honor context
cancellation so an abandoned subscriber does not leave orphaned
generation work behind.
*/
type Interface interface {
	Complete(ctx context.Context, messages []a2a.Message) (string, error)
	Stream(ctx context.Context, messages []a2a.Message, onDelta func(string)) (string, error)
}
