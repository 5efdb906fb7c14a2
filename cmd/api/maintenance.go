package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helpdesk-hub/ticket-service/internal/auth"
	"github.com/helpdesk-hub/ticket-service/internal/config"
	"github.com/helpdesk-hub/ticket-service/internal/service"
)

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(migrate.Up)
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(migrate.Down)
		},
	}

	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Audit trail maintenance",
	}

	auditArchiveCmd = &cobra.Command{
		Use:   "archive",
		Short: "Mark audit entries past the retention window as archived",
		RunE:  runAuditArchive,
	}

	auditVerifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Recompute every audit checksum chain",
		RunE:  runAuditVerify,
	}

	tokenCmd = &cobra.Command{
		Use:   "token <subject-id>",
		Short: "Issue a signed access token for local use",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}

	tokenRole string
)

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	auditCmd.AddCommand(auditArchiveCmd, auditVerifyCmd)
	tokenCmd.Flags().StringVarP(&tokenRole, "role", "r", string(auth.RoleRequestor), "role claim: requestor, assignee, moderator or admin")
}

func runMigrate(direction migrate.MigrationDirection) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	if rt.pg == nil {
		return errors.New("migrate requires POSTGRES_DSN")
	}
	_, err = rt.pg.Migrate(ctx, direction, rt.logger)
	return err
}

func runAuditArchive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	archived, err := service.NewAuditService(rt.store, rt.logger, nil).ArchiveExpired(ctx, rt.cfg.Audit.Retention())
	if err != nil {
		return err
	}
	rt.logger.Info("audit archive finished",
		zap.Int64("archived", archived),
		zap.Int("retention_days", rt.cfg.Audit.RetentionDays))
	return nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	report, err := service.NewAuditService(rt.store, rt.logger, nil).Verify(ctx)
	if err != nil {
		return err
	}
	rt.logger.Info("audit verify finished",
		zap.Int("subjects", report.Subjects),
		zap.Int("entries", report.Entries),
		zap.Int("broken", len(report.Broken)))
	if !report.OK() {
		return fmt.Errorf("%d audit chains failed verification", len(report.Broken))
	}
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	role, ok := auth.ParseRole(tokenRole)
	if !ok {
		return fmt.Errorf("unknown role %q", tokenRole)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	token, expiresAt, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes).GenerateToken(args[0], role)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintln(cmd.ErrOrStderr(), "expires", expiresAt.UTC().Format(time.RFC3339))
	return nil
}
