package mqtt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonCodeError_IsAuthenticationFailed(t *testing.T) {
	tests := []struct {
		name string
		err  *ReasonCodeError
		auth bool
	}{
		{"bad credentials", &ReasonCodeError{Op: "connect", Code: 0x04}, true},
		{"not authorised", &ReasonCodeError{Op: "connect", Code: 0x05}, true},
		{"server unavailable", &ReasonCodeError{Op: "connect", Code: 0x03}, false},
		{"subscribe failure", &ReasonCodeError{Op: "subscribe", Code: SubackFailure}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("%w: %w", ErrConnectionFailed, tt.err)
			assert.Equal(t, tt.auth, errors.Is(wrapped, ErrAuthenticationFailed))
			assert.ErrorIs(t, wrapped, ErrConnectionFailed)
		})
	}
}

func TestReasonCodeError_Error(t *testing.T) {
	assert.Equal(t,
		"mqtt: connect rejected with code 0x04 (bad username or password)",
		(&ReasonCodeError{Op: "connect", Code: 0x04}).Error())

	assert.Equal(t,
		`mqtt: subscribe "a/b" rejected with code 0x80`,
		(&ReasonCodeError{Op: "subscribe", Code: SubackFailure, Topic: "a/b"}).Error())
}

func TestReasonCodeError_Unwrap(t *testing.T) {
	cause := errors.New("not Authorized")
	err := &ReasonCodeError{Op: "connect", Code: 0x05, Err: cause}
	assert.ErrorIs(t, err, cause)
}

func TestConnAckCode_String(t *testing.T) {
	assert.Equal(t, "connection accepted", ConnAccepted.String())
	assert.Equal(t, "client identifier rejected", ConnRefusedIDRejected.String())
	assert.Equal(t, "not authorized", ConnRefusedNotAuth.String())
	assert.Equal(t, "unknown error", ConnAckCode(0xFE).String())
}

func TestConnAckCode_Refused(t *testing.T) {
	assert.False(t, ConnAccepted.refused())
	assert.True(t, ConnRefusedProtocol.refused())
	assert.True(t, ConnRefusedNotAuth.refused())
	assert.False(t, ConnAckCode(0xFE).refused(), "network errors are local failures")
}

func TestQoS(t *testing.T) {
	assert.True(t, AtMostOnce.Valid())
	assert.True(t, ExactlyOnce.Valid())
	assert.False(t, QoS(3).Valid())
	assert.Equal(t, "at-least-once", AtLeastOnce.String())
	assert.Equal(t, "invalid", QoS(9).String())
}
