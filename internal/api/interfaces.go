package api

import (
	"context"

	"github.com/m-voss/devcell/internal/lifecycle"
	"github.com/m-voss/devcell/internal/runtime"
	"github.com/m-voss/devcell/protocol"
)

// LifecycleService abstracts the controller operations API handlers need.
type LifecycleService interface {
	GetOrBoot(ctx context.Context, onLog lifecycle.LogFunc) (runtime.Handle, error)
	SwitchProject(ctx context.Context, projectID string, files protocol.FileTree, onLog lifecycle.LogFunc) error
	StartProject(ctx context.Context, onLog lifecycle.LogFunc, opts lifecycle.StartOpts) (*protocol.StartResponse, error)
	StopProject(ctx context.Context, onLog lifecycle.LogFunc) error
	DestroyRuntime(ctx context.Context, onLog lifecycle.LogFunc) error
	ForceCleanup(ctx context.Context, onLog lifecycle.LogFunc) (zombie bool, err error)
	OpenShell(ctx context.Context) (runtime.Process, error)
	Status() protocol.StatusResponse
	Stats() protocol.StatsResponse
}

// ProjectStore abstracts the persisted per-project records.
type ProjectStore interface {
	Get(projectID string) (*protocol.ProjectStatus, error)
	List() ([]*protocol.ProjectStatus, error)
	Delete(projectID string) error
}
