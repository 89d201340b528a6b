package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorWrapsSentinel(t *testing.T) {
	err := fmt.Errorf("complete stage: %w", NewValidationError("missing required fields", "licensePlate", "registrationNumber"))
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, []string{"licensePlate", "registrationNumber"}, ValidationFields(err))
	assert.Contains(t, err.Error(), "(licensePlate, registrationNumber)")
}

func TestInvalidStatusError(t *testing.T) {
	err := &InvalidStatusError{Value: "Shipped"}
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, `invalid status "Shipped"`, err.Error())
	assert.Nil(t, ValidationFields(err))
	assert.Nil(t, ValidationFields(errors.New("other")))
}

func TestActorFromContext(t *testing.T) {
	assert.Equal(t, "system", ActorFromContext(context.Background()))
	assert.Equal(t, "j.smith", ActorFromContext(ContextWithActor(context.Background(), "j.smith")))
}
