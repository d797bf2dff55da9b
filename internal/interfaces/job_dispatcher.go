package interfaces

import (
	"context"

	"github.com/ternarybob/sonar/internal/models"
)

// JobDispatcher routes a claimed run to the pipeline its job type names and
// finalizes the run when all stages reach a terminal state.
type JobDispatcher interface {
	// Dispatch executes the run's pipeline. The run must already be in
	// running status (claimed). Stage errors are recorded on the run, not
	// returned: the error return covers infrastructure failures only.
	Dispatch(ctx context.Context, run *models.JobRun) error
}
