package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessages(t *testing.T) {
	assert.Equal(t, "keys unallowed: a, b", KeysUnallowed("a", "b").Error())
	assert.Equal(t, `invalid input for "age": bad`, InvalidInput("age", "bad").Error())
	assert.Equal(t, "connector failure: save: boom", Connector("save", errors.New("boom")).Error())
	assert.Equal(t, "User not found", NotFound("User").Error())
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", InvalidInput("age", "bad"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrKeysUnallowed)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestConnectorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Connector("save", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrConnector)
	assert.Equal(t, "connector_failure", KindOf(err).String())
}
