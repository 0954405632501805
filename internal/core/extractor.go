package core

import "context"

// DocumentExtractor pulls the plain text layer out of a document.
// The contentType hint picks the parsing strategy.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, r []byte, contentType string) (string, error)
}
