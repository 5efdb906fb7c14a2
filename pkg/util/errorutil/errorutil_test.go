package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestSentinelsMatchByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewGuardFailed("limit reached", nil))
	assert.ErrorIs(t, err, ErrGuardFailed)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.False(t, IsRetryable(err))

	cm := NewConcurrentModification("ticket", nil)
	assert.ErrorIs(t, cm, ErrConcurrentModification)
	assert.True(t, IsRetryable(cm))
	assert.Equal(t, http.StatusConflict, ToDomainError(cm).HTTPStatus)
}

func TestWithCause(t *testing.T) {
	cause := errors.New("reopen limit")
	err := WithCause(NewGuardFailed("blocked", nil), cause)
	assert.ErrorIs(t, err, ErrGuardFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "blocked: reopen limit", err.Error())

	guard := errors.New("maximum reopen limit of 3 reached")
	wrapped := fmt.Errorf("ticket: action %q blocked from %q: %w", "reopen", "closed", guard)
	err = WithCause(NewGuardFailed(guard.Error(), nil), wrapped)
	assert.Equal(t, wrapped.Error(), err.Error())
	assert.ErrorIs(t, err, guard)

	plain := errors.New("plain")
	assert.Equal(t, plain, WithCause(plain, cause))
}

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
	assert.Equal(t, CodeNotFound, ToDomainError(pgx.ErrNoRows).Code)

	internal := ToDomainError(errors.New("db down"))
	assert.Equal(t, CodeInternal, internal.Code)
	assert.Equal(t, http.StatusInternalServerError, internal.HTTPStatus)

	assert.Equal(t, http.StatusUnprocessableEntity, ToDomainError(NewGuardFailed("x", nil)).HTTPStatus)
	assert.Equal(t, http.StatusBadRequest, ToDomainError(NewInvalidAction("fly")).HTTPStatus)
	assert.Equal(t, http.StatusConflict, ToDomainError(NewInvalidSourceState("x", nil)).HTTPStatus)
}
