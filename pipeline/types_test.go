package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestValidate(t *testing.T) {
	valid := Request{ID: "req-1", Prompt: "circles", MaxAttempts: 3}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		req  Request
	}{
		{"missing id", Request{Prompt: "p", MaxAttempts: 1}},
		{"id with slash", Request{ID: "../x", Prompt: "p", MaxAttempts: 1}},
		{"dot id", Request{ID: "..", Prompt: "p", MaxAttempts: 1}},
		{"missing prompt", Request{ID: "a", MaxAttempts: 1}},
		{"zero attempts", Request{ID: "a", Prompt: "p", MaxAttempts: 0}},
		{"too many attempts", Request{ID: "a", Prompt: "p", MaxAttempts: MaxAttemptsLimit + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.req.Validate())
		})
	}

	// A supplied script stands in for the prompt.
	assert.NoError(t, Request{ID: "a", Source: "from manim import *", MaxAttempts: 1}.Validate())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "giving-up", StateGivingUp.String())
	assert.Equal(t, "static-fixing", StateStaticFixing.String())
	assert.Equal(t, "state(42)", State(42).String())

	text, err := StateSuccess.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "success", string(text))

	assert.True(t, StateSuccess.Terminal())
	assert.True(t, StateGivingUp.Terminal())
	assert.False(t, StateDiagnosing.Terminal())
}
