package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rangeRequest struct {
	MemberID  string `json:"member_id" validate:"required,uuid"`
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	Format    string `json:"format,omitempty" validate:"omitempty,oneof=csv json"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := rangeRequest{MemberID: uuid.NewString(), StartDate: "2024-01-31"}
		assert.NoError(t, ValidateStruct(&s))
	})

	t.Run("missing required field", func(t *testing.T) {
		err := ValidateStruct(&rangeRequest{})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		assert.Contains(t, GetValidationFields(err), "member_id")
	})

	t.Run("bad date uses json field name", func(t *testing.T) {
		s := rangeRequest{MemberID: uuid.NewString(), StartDate: "31/01/2024"}

		err := ValidateStruct(&s)
		require.Error(t, err)
		fields := GetValidationFields(err)
		assert.Equal(t, "start_date must match the date format 2006-01-02", fields["start_date"])
	})

	t.Run("oneof", func(t *testing.T) {
		s := rangeRequest{MemberID: uuid.NewString(), Format: "xml"}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.Contains(t, GetValidationFields(err)["format"], "must be one of")
	})
}

func TestParseUUID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		want := uuid.New()
		got, err := ParseUUID(want.String(), "id")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseUUID("nope", "id")
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		assert.Contains(t, GetValidationFields(err), "id")
	})
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "Validation failed"}
	assert.Equal(t, "Validation failed", err.Error())
}

func TestGetValidationFields_NonValidationError(t *testing.T) {
	assert.Nil(t, GetValidationFields(assert.AnError))
	assert.False(t, IsValidationError(assert.AnError))
}
