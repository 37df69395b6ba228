package storagemock

import (
	"context"

	"github.com/raterudder/energystats/pkg/storage"
	"github.com/raterudder/energystats/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetState(ctx context.Context, siteID string) (types.PersistedState, bool, error) {
	args := m.Called(ctx, siteID)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.PersistedState), args.Bool(1), args.Error(2)
	}
	return types.PersistedState{}, false, nil
}

func (m *MockDatabase) SetState(ctx context.Context, siteID string, state types.PersistedState) error {
	args := m.Called(ctx, siteID, state)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
