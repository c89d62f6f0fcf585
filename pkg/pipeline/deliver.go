package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/report"
)

// WriterDeliverer prints documents to a writer, e.g. stdout in run-once mode
type WriterDeliverer struct {
	W io.Writer
}

// Deliver writes the document markdown
func (w WriterDeliverer) Deliver(ctx context.Context, doc *report.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w.W, "%s\n", doc.Markdown)
	return err
}

// DelivererFunc adapts a function to Deliverer
type DelivererFunc func(ctx context.Context, doc *report.Document) error

// Deliver calls f
func (f DelivererFunc) Deliver(ctx context.Context, doc *report.Document) error {
	return f(ctx, doc)
}
