package ports

import "qualitygrid/internal/domain"

// ScoreJob is one organization queued for scoring. Index is its position in
// the batch so results can be collected back in input order.
type ScoreJob struct {
	Index int
	Org   domain.Organization
}

// ScoreResult carries either a scored organization or the failure that
// isolated it from the rest of the batch.
type ScoreResult struct {
	Index int
	Org   domain.Organization
	Err   error
}
