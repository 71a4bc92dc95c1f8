package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("accept: %w", AlreadyTaken("o-1"))
	assert.True(t, errors.Is(err, ErrAlreadyTaken))
	assert.False(t, errors.Is(err, ErrInsufficientStock))
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestDetails(t *testing.T) {
	e := InsufficientStock("p-1", 0)
	assert.Equal(t, int64(0), e.Details["available"])
	assert.Equal(t, "p-1", e.Details["product_id"])

	st := InvalidTransition("picked_up", "cancel")
	assert.Equal(t, KindState, st.Kind)
	assert.Equal(t, "picked_up", st.Details["current"])
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	_, ok := As(errors.New("boom"))
	assert.False(t, ok)
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("deadline")
	e := UpstreamTimeout("payments", cause)
	assert.ErrorIs(t, e, cause)
	assert.ErrorIs(t, e, ErrUpstreamTimeout)
	assert.Equal(t, "payments", e.Details["service"])
}

func TestWithLeavesReceiverUntouched(t *testing.T) {
	e := ErrInvalidTransition.With("current", "ready")
	assert.Equal(t, "ready", e.Details["current"])
	assert.Nil(t, ErrInvalidTransition.Details)
	assert.ErrorIs(t, e, ErrInvalidTransition)

	base := NotFound("order")
	withID := base.With("id", "o-1")
	assert.NotContains(t, base.Details, "id")
	assert.Equal(t, "order", withID.Details["resource"])
}
