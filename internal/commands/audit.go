package commands

import (
	"context"

	"github.com/fenilsonani/mailbridge/internal/audit"
	"github.com/fenilsonani/mailbridge/internal/validation"
)

type auditListRequest struct {
	Actor   string `json:"actor"`
	Action  string `json:"action" validate:"omitempty,oneof=imap.mark_read imap.mark_unread imap.delete imap.move"`
	Mailbox string `json:"mailbox"`
	Limit   int    `json:"limit" validate:"min=1,max=10000"`
}

func (s *Session) executeAudit(ctx context.Context, command string, args Args) Response {
	switch command {
	case "list":
		return s.auditList(ctx, args)
	}
	return failure("Unknown command: %s", command)
}

func (s *Session) auditList(ctx context.Context, args Args) Response {
	if s.audit == nil {
		return failure("Audit log is disabled")
	}

	req := auditListRequest{
		Actor:   args.String("actor"),
		Action:  args.String("action"),
		Mailbox: args.String("mailbox"),
	}
	var err error
	if req.Limit, err = args.Int("limit", 100); err != nil {
		return fail("", err)
	}
	if err := validation.Struct(req); err != nil {
		return fail("", err)
	}

	filter := audit.QueryFilter{
		Actor:   req.Actor,
		Action:  audit.EventType(req.Action),
		Mailbox: req.Mailbox,
		Limit:   req.Limit,
	}
	events, err := s.audit.Query(ctx, filter)
	if err != nil {
		return failure("Failed to read audit log: %v", err)
	}
	total, err := s.audit.Count(ctx, filter)
	if err != nil {
		return failure("Failed to read audit log: %v", err)
	}
	if events == nil {
		events = []audit.Event{}
	}

	return success(map[string]any{
		"events": events,
		"count":  len(events),
		"total":  total,
	})
}
