// Package roles applies role grants and revocations and reports a per-item outcome.
package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/app"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"go.uber.org/zap"
)

type Op string

const (
	OpGrant  Op = "grant"
	OpRevoke Op = "revoke"
)

// Outcome is the result of one role mutation.
type Outcome struct {
	Op       Op
	MemberID snowflake.ID
	RoleID   snowflake.ID
	Reason   string
	OK       bool
	Err      error
}

// Denied reports whether the platform refused the mutation for lack of permissions.
func (o Outcome) Denied() bool {
	return errors.Is(o.Err, platform.ErrPermission)
}

// Gone reports whether the member or role no longer exists.
func (o Outcome) Gone() bool {
	return errors.Is(o.Err, platform.ErrNotFound)
}

// Reconciler is the only place that mutates role membership. It never retries.
type Reconciler struct {
	client  platform.Client
	audit   bool
	env     *app.Env
	metrics *reconcilerMetrics
}

func NewReconciler(env *app.Env) *Reconciler {
	return &Reconciler{
		client:  env.Platform,
		audit:   env.AuditRoleChanges,
		env:     env,
		metrics: newMetrics(env.Registry),
	}
}

func (r *Reconciler) Grant(ctx context.Context, memberID, roleID snowflake.ID, reason string) Outcome {
	return r.apply(ctx, OpGrant, memberID, roleID, reason)
}

func (r *Reconciler) Revoke(ctx context.Context, memberID, roleID snowflake.ID, reason string) Outcome {
	return r.apply(ctx, OpRevoke, memberID, roleID, reason)
}

func (r *Reconciler) apply(ctx context.Context, op Op, memberID, roleID snowflake.ID, reason string) Outcome {
	out := Outcome{Op: op, MemberID: memberID, RoleID: roleID, Reason: reason}

	var err error
	if op == OpGrant {
		err = r.client.AddRole(ctx, memberID, roleID, reason)
	} else {
		err = r.client.RemoveRole(ctx, memberID, roleID, reason)
	}

	fields := []zap.Field{
		zap.String("op", string(op)),
		zap.Int64("user_id", int64(memberID)),
		zap.Int64("role_id", int64(roleID)),
		zap.String("reason", reason),
	}

	switch {
	case err == nil:
		out.OK = true
		r.metrics.mutations.WithLabelValues(string(op), "ok").Inc()
		logger.Debug("Role mutation applied", fields...)
		if r.audit {
			r.env.Sink().Log(ctx, auditLine(out))
		}
	case errors.Is(err, platform.ErrPermission):
		out.Err = err
		r.metrics.mutations.WithLabelValues(string(op), "forbidden").Inc()
		logger.Warn("Missing permissions for role mutation", fields...)
	case errors.Is(err, platform.ErrNotFound):
		out.Err = err
		r.metrics.mutations.WithLabelValues(string(op), "not_found").Inc()
		logger.Warn("Role mutation target not found", append(fields, zap.Error(err))...)
	default:
		out.Err = err
		r.metrics.mutations.WithLabelValues(string(op), "error").Inc()
		logger.Error("Role mutation failed", append(fields, zap.Error(err))...)
	}
	return out
}

func auditLine(o Outcome) string {
	verb := "Gave"
	prep := "to"
	if o.Op == OpRevoke {
		verb = "Removed"
		prep = "from"
	}
	line := fmt.Sprintf("**Role Change**: %s %s %s %s", verb, platform.MentionRole(o.RoleID), prep, platform.MentionUser(o.MemberID))
	if o.Reason != "" {
		line += " (" + o.Reason + ")"
	}
	return line
}
