package workflow

import (
	"context"
	"errors"

	"tenant-broker/backend/internal/repository"
)

// FindWorkflowID maps an inbound webhook event to the workflow instance that
// owns the transaction it references. Only endorse_transaction events carry a
// usable transaction id; any other topic returns "" without a lookup. A
// lookup miss also returns "", since notifications for transactions created
// outside this service are expected and not an error.
func FindWorkflowID(ctx context.Context, repo repository.Repository, ev *Event) (string, error) {
	if ev.Topic != TopicEndorseTransaction || ev.Endorse == nil {
		return "", nil
	}

	schema, err := repo.GetSchemaByTransactionID(ctx, ev.Endorse.TransactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// not one of ours, ignore
			return "", nil
		}
		return "", err
	}
	return schema.WorkflowID, nil
}
