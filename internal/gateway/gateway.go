// Package gateway is the single choke point every protected business
// operation flows through: authorization check, business execution, audit
// record, in that order.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-app/custodia/internal/audit"
	"github.com/custodia-app/custodia/internal/perms"
	"github.com/custodia-app/custodia/internal/shared"
)

// Mode selects how an audit-write failure after a successful business
// operation is treated. There is no default: every call site chooses.
type Mode int

const (
	// Strict turns a failed audit write into a failure of the whole call.
	Strict Mode = iota + 1
	// BestEffort logs and counts a failed audit write but reports success.
	BestEffort
)

// Authorizer answers capability checks for authenticated users.
type Authorizer interface {
	IsAuthorized(ctx context.Context, userID int64, resource string, op perms.Op) (bool, error)
}

// Counters observes authorization denials and swallowed audit-write
// failures. A nil Counters is a valid no-op sink.
type Counters interface {
	IncAuthorizationDenial()
	IncAuditWriteFailure()
}

// Request describes one protected operation.
type Request struct {
	Actor    shared.Actor
	Resource string
	Op       perms.Op
	Mode     Mode
	// Table names the affected table on the audit entry; defaults to Resource.
	Table string
}

// BusinessFunc executes the business operation. It returns the payload for
// the caller plus the detail recorded on the audit entry (the post-image for
// mutations, the query description for reads).
type BusinessFunc func(ctx context.Context) (any, map[string]any, error)

// Gateway composes resolver, business logic and recorder.
type Gateway struct {
	authorizer Authorizer
	recorder   audit.Recorder
	logger     *slog.Logger
	counters   Counters
}

// New builds a Gateway.
func New(authorizer Authorizer, recorder audit.Recorder, logger *slog.Logger, counters Counters) *Gateway {
	return &Gateway{authorizer: authorizer, recorder: recorder, logger: logger, counters: counters}
}

// Invoke runs one protected operation:
//
//  1. The System pseudo-actor skips authorization entirely.
//  2. Otherwise the resolver is consulted; a deny returns
//     shared.ErrPermissionDenied before the business function runs and
//     before anything is audited.
//  3. A business failure propagates untouched, with no audit entry.
//  4. On business success one audit entry is recorded. A failed record is
//     surfaced per req.Mode; in Strict mode the returned error wraps
//     shared.ErrAuditWrite while the business result is still returned.
func (g *Gateway) Invoke(ctx context.Context, req Request, fn BusinessFunc) (any, error) {
	if req.Mode != Strict && req.Mode != BestEffort {
		return nil, fmt.Errorf("%w: gateway mode not set for %s", shared.ErrValidation, req.Resource)
	}

	if !req.Actor.IsSystem() {
		allowed, err := g.authorizer.IsAuthorized(ctx, req.Actor.UserID, req.Resource, req.Op)
		if err != nil {
			return nil, fmt.Errorf("gateway: authorize %s on %s: %w", req.Op.ActionKind(), req.Resource, err)
		}
		if !allowed {
			if g.counters != nil {
				g.counters.IncAuthorizationDenial()
			}
			return nil, shared.ErrPermissionDenied
		}
	}

	result, detail, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	table := req.Table
	if table == "" {
		table = req.Resource
	}
	entry := audit.Entry{
		Action:   req.Op.ActionKind(),
		Module:   audit.ModuleSeguridad,
		Table:    table,
		UserID:   req.Actor.AuditUserID(),
		RoleName: req.Actor.AuditRoleName(),
		Detail:   detail,
	}
	if err := g.recorder.Record(ctx, entry); err != nil {
		if req.Mode == Strict {
			return result, fmt.Errorf("%s on %s: %w", entry.Action, table, err)
		}
		if g.counters != nil {
			g.counters.IncAuditWriteFailure()
		}
		if g.logger != nil {
			g.logger.Error("audit write swallowed",
				slog.String("action", entry.Action),
				slog.String("table", table),
				slog.Any("error", err))
		}
	}
	return result, nil
}
