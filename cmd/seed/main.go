// Package main provides demo data seeding for ChangeGate.
//
// Seeds a handful of approval requests in different lifecycle states so a
// fresh install has something to review. Idempotent: entities that already
// carry history are skipped.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"changegate.io/changegate/internal/approval"
	"changegate.io/changegate/internal/config"
	"changegate.io/changegate/internal/infrastructure"
	"changegate.io/changegate/internal/notification"
	apperrors "changegate.io/changegate/internal/pkg/errors"
	"changegate.io/changegate/internal/pkg/logger"
	"changegate.io/changegate/internal/repository"
	"changegate.io/changegate/internal/workflow"
)

var (
	editor = approval.Actor{ID: "demo-editor", Role: workflow.RoleEditor}
	admin  = approval.Actor{ID: "demo-admin", Role: workflow.RoleAdmin}
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	queries := repository.New(db.Pool)
	triggers := notification.NewTriggers(notification.NewInboxSender(queries))
	manager := approval.NewManager(db.Pool, nil, triggers, nil)

	logger.Info("Starting demo data seeding...")

	if err := seedPendingLoader(ctx, manager); err != nil {
		return fmt.Errorf("seed pending loader: %w", err)
	}
	if err := seedApprovedDashboard(ctx, manager); err != nil {
		return fmt.Errorf("seed approved dashboard: %w", err)
	}
	if err := seedRejectedIncident(ctx, manager); err != nil {
		return fmt.Errorf("seed rejected incident: %w", err)
	}

	logger.Info("Demo data seeding completed successfully")
	return nil
}

// alreadySeeded reports whether the entity carries any request history.
func alreadySeeded(ctx context.Context, manager *approval.Manager, entityType workflow.EntityType, entityID string) (bool, error) {
	_, err := manager.History(ctx, entityType, entityID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeApprovalNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func seedPendingLoader(ctx context.Context, manager *approval.Manager) error {
	const entityID = "demo-loader-1"
	done, err := alreadySeeded(ctx, manager, workflow.EntityLoader, entityID)
	if err != nil || done {
		return err
	}

	_, err = manager.Submit(ctx, editor, approval.SubmitParams{
		EntityType:    workflow.EntityLoader,
		EntityID:      entityID,
		RequestType:   workflow.RequestCreate,
		ProposedState: json.RawMessage(`{"name":"orders-loader","schedule":"*/15 * * * *","source":"s3://demo/orders"}`),
		ChangeSummary: "Create the demo orders loader",
		Source:        approval.SourceUI,
	})
	if err != nil {
		return err
	}

	logger.Info("Seeded pending request", zap.String("entity_id", entityID))
	return nil
}

func seedApprovedDashboard(ctx context.Context, manager *approval.Manager) error {
	const entityID = "demo-dashboard-1"
	done, err := alreadySeeded(ctx, manager, workflow.EntityDashboard, entityID)
	if err != nil || done {
		return err
	}

	req, err := manager.Submit(ctx, editor, approval.SubmitParams{
		EntityType:    workflow.EntityDashboard,
		EntityID:      entityID,
		RequestType:   workflow.RequestCreate,
		ProposedState: json.RawMessage(`{"title":"Orders Overview","panels":3}`),
		ChangeSummary: "Create the demo orders dashboard",
		Source:        approval.SourceUI,
	})
	if err != nil {
		return err
	}

	if _, err := manager.Decide(ctx, admin, req.ID, workflow.ActionApprove, "looks good"); err != nil {
		return err
	}

	logger.Info("Seeded approved request", zap.String("entity_id", entityID))
	return nil
}

func seedRejectedIncident(ctx context.Context, manager *approval.Manager) error {
	const entityID = "demo-incident-1"
	done, err := alreadySeeded(ctx, manager, workflow.EntityIncident, entityID)
	if err != nil || done {
		return err
	}

	req, err := manager.Submit(ctx, editor, approval.SubmitParams{
		EntityType:    workflow.EntityIncident,
		EntityID:      entityID,
		RequestType:   workflow.RequestCreate,
		ProposedState: json.RawMessage(`{"title":"Close stale incident","severity":"low"}`),
		ChangeSummary: "File the demo incident",
		Source:        approval.SourceUI,
	})
	if err != nil {
		return err
	}

	if _, err := manager.Decide(ctx, admin, req.ID, workflow.ActionReject, "needs an owner before filing"); err != nil {
		return err
	}

	logger.Info("Seeded rejected request", zap.String("entity_id", entityID))
	return nil
}
