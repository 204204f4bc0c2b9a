package dto

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/retail/ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind   shared.ErrorKind
		status int
	}{
		{shared.KindValidation, http.StatusBadRequest},
		{shared.KindNotFound, http.StatusNotFound},
		{shared.KindConflict, http.StatusConflict},
		{shared.KindBusinessRule, http.StatusUnprocessableEntity},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.status, StatusForKind(tt.kind))
		})
	}
}

func TestFromError(t *testing.T) {
	t.Run("wrapped domain error keeps its code", func(t *testing.T) {
		err := fmt.Errorf("recording payment: %w",
			shared.NewBusinessRuleError("PAYMENT_EXCEEDS_REMAINING", "Payment exceeds the remaining amount"))

		status, resp := FromError(err, "req-1")
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "PAYMENT_EXCEEDS_REMAINING", resp.Error.Code)
		assert.Equal(t, "req-1", resp.Error.RequestID)
	})

	t.Run("conflict", func(t *testing.T) {
		status, resp := FromError(shared.ErrConcurrencyConflict, "")
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "CONCURRENCY_CONFLICT", resp.Error.Code)
	})

	t.Run("plain error is hidden", func(t *testing.T) {
		status, resp := FromError(errors.New("pq: connection refused"), "req-2")
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, ErrCodeInternal, resp.Error.Code)
		assert.NotContains(t, resp.Error.Message, "pq")
	})
}

func TestNewSuccessResponseWithMeta(t *testing.T) {
	resp := NewSuccessResponseWithMeta([]int{1, 2}, 41, 2, 20)
	require.NotNil(t, resp.Meta)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Meta.TotalPages)
	assert.Equal(t, int64(41), resp.Meta.Total)

	empty := NewSuccessResponseWithMeta(nil, 0, 1, 0)
	assert.Zero(t, empty.Meta.TotalPages)
}
