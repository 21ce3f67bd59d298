// Package acetest provides test doubles that depend on the ace package.
//
// It is separate from package testutil because testutil is imported by
// pkg/ace's tests; keeping ace-typed mocks here avoids an import cycle.
package acetest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/XiaoConstantine/ace-go/pkg/ace"
)

// MockEnvironment is a testify mock implementation of ace.TaskEnvironment.
type MockEnvironment struct {
	mock.Mock
}

func (m *MockEnvironment) Evaluate(ctx context.Context, sample ace.Sample, output *ace.GeneratorOutput) (*ace.EnvironmentResult, error) {
	args := m.Called(ctx, sample, output)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ace.EnvironmentResult), args.Error(1)
}
