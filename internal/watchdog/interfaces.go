package watchdog

import "context"

// Controller abstracts the lifecycle operations the watchdog drives.
type Controller interface {
	ReapDeadHandle(ctx context.Context) (bool, error)
}
