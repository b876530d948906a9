package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithRequestID(ctx, " req-1 ")
	ctx = WithUserID(ctx, "42")
	ctx = WithOrgID(ctx, "7")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "42", UserIDFromContext(ctx))
	assert.Equal(t, "7", OrgIDFromContext(ctx))
}
