package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const referenceAttempts = 5

// NewReference returns prefix followed by an opaque random suffix, e.g. ORD-3F9A1C07B2E4
func NewReference(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "-" + id[:12]
}

// UniqueReference draws references until exists reports one unused
func UniqueReference(ctx context.Context, prefix string, exists func(ctx context.Context, ref string) (bool, error)) (string, error) {
	for i := 0; i < referenceAttempts; i++ {
		ref := NewReference(prefix)
		taken, err := exists(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("failed to check reference %s: %w", ref, err)
		}
		if !taken {
			return ref, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique %s reference after %d attempts", prefix, referenceAttempts)
}
