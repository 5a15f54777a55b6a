package requestcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentitySlot(t *testing.T) {
	ctx, slot := WithIdentitySlot(context.Background())

	userID, role := slot.Identity()
	assert.Empty(t, userID)
	assert.Empty(t, role)

	inner := WithIdentity(ctx, "0xabc", "auditor")
	assert.Equal(t, "0xabc", UserID(inner))
	assert.Empty(t, UserID(ctx), "the outer context is unchanged")

	userID, role = slot.Identity()
	assert.Equal(t, "0xabc", userID)
	assert.Equal(t, "auditor", role)

	var missing *IdentitySlot
	userID, _ = missing.Identity()
	assert.Empty(t, userID)
}
