package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithCrowd(ctx, "internal")

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
	trace, _ := TraceID(ctx)
	assert.Equal(t, "trace-1", trace)
	crowd, _ := Crowd(ctx)
	assert.Equal(t, "internal", crowd)

	_, ok = Crowd(WithCrowd(context.Background(), ""))
	assert.False(t, ok, "empty values are treated as unset")
}
