package workers

import "time"

// WorkerStatus is the registry state of a dispatch worker.
type WorkerStatus string

const (
	WorkerOnline  WorkerStatus = "online"
	WorkerOffline WorkerStatus = "offline"
)

// Worker is a registered dispatch-worker instance.
type Worker struct {
	ID              int64
	Name            string
	Channels        string // CSV of channel classes this worker consumes
	Status          WorkerStatus
	LastSeen        time.Time
	OrdersProcessed int
}
