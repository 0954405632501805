package ingestion_engine

import "context"

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, req Request) error
	Run(ctx context.Context, req Request) (*Result, error)
	RunUntil(ctx context.Context, req Request, last Stage) (*Result, error)
	ArtifactPath(rel string) (string, error)
}

var _ Ingestor = (*DocumentIngestor)(nil)
