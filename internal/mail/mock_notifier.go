package mail

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendPasswordReset(ctx context.Context, to string, resetURL string) error {
	args := m.Called(ctx, to, resetURL)
	return args.Error(0)
}
