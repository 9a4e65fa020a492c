package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"changegate.io/changegate/internal/api/handlers"
	"changegate.io/changegate/internal/approval"
	"changegate.io/changegate/internal/notification"
)

// ApprovalModule owns the approval workflow manager. It is constructed after
// the River client exists so decision notifications can be enqueued
// transactionally.
type ApprovalModule struct {
	manager *approval.Manager
}

// NewApprovalModule creates the approval module.
func NewApprovalModule(infra *Infrastructure, triggers *notification.Triggers) (*ApprovalModule, error) {
	if infra == nil || infra.Pool == nil {
		return nil, fmt.Errorf("approval module requires a database pool")
	}
	if infra.RiverClient == nil {
		return nil, fmt.Errorf("approval module requires an initialized river client")
	}

	manager := approval.NewManager(infra.Pool, infra.RiverClient, triggers, infra.Pools)
	return &ApprovalModule{manager: manager}, nil
}

// Manager exposes the workflow manager for direct use outside HTTP handlers.
func (m *ApprovalModule) Manager() *approval.Manager { return m.manager }

func (m *ApprovalModule) Name() string { return "approval" }

func (m *ApprovalModule) RegisterWorkers(*river.Workers) {}

func (m *ApprovalModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Manager = m.manager
}

func (m *ApprovalModule) Shutdown(context.Context) error { return nil }
