package notify

import (
	"github.com/stretchr/testify/mock"

	"pairlink/internal/types"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(event types.NotificationEvent) {
	m.Called(event)
}
