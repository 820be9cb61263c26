package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/m-voss/devcell/internal/lifecycle"
	"github.com/m-voss/devcell/internal/runtime"
	"github.com/m-voss/devcell/protocol"
)

type MockLifecycleService struct {
	mock.Mock
}

func (m *MockLifecycleService) GetOrBoot(ctx context.Context, onLog lifecycle.LogFunc) (runtime.Handle, error) {
	args := m.Called(ctx, onLog)
	if h := args.Get(0); h != nil {
		return h.(runtime.Handle), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLifecycleService) SwitchProject(ctx context.Context, projectID string, files protocol.FileTree, onLog lifecycle.LogFunc) error {
	args := m.Called(ctx, projectID, files, onLog)
	return args.Error(0)
}

func (m *MockLifecycleService) StartProject(ctx context.Context, onLog lifecycle.LogFunc, opts lifecycle.StartOpts) (*protocol.StartResponse, error) {
	args := m.Called(ctx, onLog, opts)
	if resp := args.Get(0); resp != nil {
		return resp.(*protocol.StartResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLifecycleService) StopProject(ctx context.Context, onLog lifecycle.LogFunc) error {
	args := m.Called(ctx, onLog)
	return args.Error(0)
}

func (m *MockLifecycleService) DestroyRuntime(ctx context.Context, onLog lifecycle.LogFunc) error {
	args := m.Called(ctx, onLog)
	return args.Error(0)
}

func (m *MockLifecycleService) ForceCleanup(ctx context.Context, onLog lifecycle.LogFunc) (bool, error) {
	args := m.Called(ctx, onLog)
	return args.Bool(0), args.Error(1)
}

func (m *MockLifecycleService) OpenShell(ctx context.Context) (runtime.Process, error) {
	args := m.Called(ctx)
	if p := args.Get(0); p != nil {
		return p.(runtime.Process), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLifecycleService) Status() protocol.StatusResponse {
	args := m.Called()
	return args.Get(0).(protocol.StatusResponse)
}

func (m *MockLifecycleService) Stats() protocol.StatsResponse {
	args := m.Called()
	return args.Get(0).(protocol.StatsResponse)
}

type MockProjectStore struct {
	mock.Mock
}

func (m *MockProjectStore) Get(projectID string) (*protocol.ProjectStatus, error) {
	args := m.Called(projectID)
	if p := args.Get(0); p != nil {
		return p.(*protocol.ProjectStatus), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProjectStore) List() ([]*protocol.ProjectStatus, error) {
	args := m.Called()
	if p := args.Get(0); p != nil {
		return p.([]*protocol.ProjectStatus), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProjectStore) Delete(projectID string) error {
	args := m.Called(projectID)
	return args.Error(0)
}
