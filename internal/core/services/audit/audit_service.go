package audit

import (
	"context"
	"log"
	"time"

	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

// AuditService records enforcement and operator actions into the relational
// history. The flat iptables_actions.log stays the forensic file; this store
// feeds the dashboard's audit view.
type AuditService struct {
	repo ports.AuditRepository
}

func NewAuditService(repo ports.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Log appends one entry. Best-effort: a failed audit write never blocks an
// enforcement decision.
func (s *AuditService) Log(ctx context.Context, actor string, action domain.AuditAction, target, details string) {
	if s == nil || s.repo == nil {
		return
	}
	entry := domain.AuditEntry{
		Actor:     actor,
		Action:    action,
		Target:    target,
		Details:   details,
		Timestamp: time.Now(),
	}
	if err := s.repo.SaveAudit(ctx, entry); err != nil {
		log.Printf("Audit: save failed: %v", err)
	}
}

// GetLogs returns the newest entries.
func (s *AuditService) GetLogs(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	return s.repo.GetAudits(ctx, limit)
}
