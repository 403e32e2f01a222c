package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"kind only", New(KindForbidden, "", "saved query is private"), "forbidden: saved query is private"},
		{"with stage", Validation("preprocess", "query text is empty"), "validation: query text is empty (stage=preprocess)"},
		{"with query id", &Error{Kind: KindTimeout, Stage: "execute", QueryID: "q1", Message: "exceeded 30s"},
			"timeout: exceeded 30s (stage=execute, query_id=q1)"},
		{"message from cause", Wrap(errors.New("connection reset"), KindExecution, "execute", ""),
			"execution: connection reset (stage=execute)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_IsSentinel(t *testing.T) {
	err := fmt.Errorf("run: %w", Newf(KindTimeout, "execute", "exceeded %s", "5s"))

	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrExecution)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindExecution, "execute", "boom"))

	cause := errors.New("driver: bad connection")
	err := Wrap(cause, KindExecution, "execute", "query failed")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrExecution)
}

func TestWithQueryID(t *testing.T) {
	orig := Conversion("build", "no join between %s and %s", "orders", "products")
	tagged := WithQueryID(orig, "q-42")

	var appErr *Error
	require.ErrorAs(t, tagged, &appErr)
	assert.Equal(t, "q-42", appErr.QueryID)
	assert.Empty(t, orig.QueryID, "original is not modified")

	plain := errors.New("plain")
	assert.Same(t, plain, WithQueryID(plain, "q-42"))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"app error", New(KindNotFound, "store", "missing"), KindNotFound},
		{"wrapped app error", fmt.Errorf("outer: %w", New(KindCancelled, "execute", "cancelled")), KindCancelled},
		{"bare sentinel", fmt.Errorf("x: %w", ErrForbidden), KindForbidden},
		{"plain error", errors.New("boom"), KindInternal},
		{"context error", context.Canceled, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "", MessageOf(nil))
	assert.Equal(t, "query text is empty", MessageOf(Validation("preprocess", "query text is empty")))
	assert.Equal(t, "execution", MessageOf(Wrap(errors.New("pq: password=secret"), KindExecution, "execute", "")))
	assert.Equal(t, "internal error", MessageOf(errors.New("pq: password=secret")))
}
