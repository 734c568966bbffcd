package plugin

import (
	"context"

	"firestige.xyz/groundview/internal/core"
)

// Reporter displays or forwards decoded frames. Report is called from the
// receiver's dispatch goroutine, one frame at a time.
type Reporter interface {
	Plugin
	Report(ctx context.Context, frame *core.Frame) error
	Flush(ctx context.Context) error
}
