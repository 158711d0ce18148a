package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvent_Room(t *testing.T) {
	two := 2
	tests := []struct {
		name      string
		event     Event
		hasRoom   bool
		remaining int
	}{
		{"unlimited", Event{AdmittedCount: 50}, true, -1},
		{"free seats", Event{Capacity: &two, AdmittedCount: 1}, true, 1},
		{"full", Event{Capacity: &two, AdmittedCount: 2}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.hasRoom, tt.event.HasRoom())
			assert.Equal(t, tt.remaining, tt.event.Remaining())
		})
	}
}

func TestInvitationStatus_Terminal(t *testing.T) {
	assert.False(t, InvitationPending.Terminal())
	assert.True(t, InvitationAccepted.Terminal())
	assert.True(t, InvitationDeclined.Terminal())
	assert.True(t, InvitationExpired.Terminal())
}
