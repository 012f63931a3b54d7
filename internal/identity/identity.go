// Package identity provides phone-number identity primitives. The phone
// number is the durable key for every counterpart.
package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/adashihq/adashi-bot/internal/domain"
	"github.com/adashihq/adashi-bot/internal/shared"
	"github.com/adashihq/adashi-bot/internal/store"
)

var phonePattern = regexp.MustCompile(`^\+?\d{7,15}$`)

// NormalizePhone strips formatting noise from a phone handle. It keeps an
// optional leading plus and all digits; anything else is dropped.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidPhone reports whether the handle looks like a phone number.
func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// EnsureMember returns the member record for a phone, creating one if this
// is the first contact. Lookup precedes creation so the operation is
// idempotent; a lost creation race falls back to the winner's row.
func EnsureMember(ctx context.Context, repo store.Repository, phone, displayName string) (*domain.Member, error) {
	member, err := repo.GetMember(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}
	if member != nil {
		return member, nil
	}

	now := time.Now()
	member = &domain.Member{
		Phone:     phone,
		Name:      strings.TrimSpace(displayName),
		Status:    domain.MemberPending,
		JoinedAt:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateMember(ctx, member); err != nil {
		if shared.IsUniqueConstraintError(err) {
			return repo.GetMember(ctx, phone)
		}
		return nil, fmt.Errorf("create member: %w", err)
	}
	return member, nil
}
