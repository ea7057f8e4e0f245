// Package mocks holds testify mocks of domain interfaces.
package mocks

import (
	context "context"

	domain "gooze.dev/pkg/luacover/internal/domain"
	mock "github.com/stretchr/testify/mock"
)

// MockWorkflow is a mock type for the Workflow type
type MockWorkflow struct {
	mock.Mock
}

type MockWorkflow_Expecter struct {
	mock *mock.Mock
}

func (_m *MockWorkflow) EXPECT() *MockWorkflow_Expecter {
	return &MockWorkflow_Expecter{mock: &_m.Mock}
}

// Analyze provides a mock function with given fields: ctx, args
func (_m *MockWorkflow) Analyze(ctx context.Context, args domain.AnalyzeArgs) error {
	ret := _m.Called(ctx, args)

	if len(ret) == 0 {
		panic("no return value specified for Analyze")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, domain.AnalyzeArgs) error); ok {
		r0 = rf(ctx, args)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// MockWorkflow_Analyze_Call is a *mock.Call that shadows Run/Return methods with type explicit version for method 'Analyze'
type MockWorkflow_Analyze_Call struct {
	*mock.Call
}

// Analyze is a helper method to define mock.On call
//   - ctx context.Context
//   - args domain.AnalyzeArgs
func (_e *MockWorkflow_Expecter) Analyze(ctx interface{}, args interface{}) *MockWorkflow_Analyze_Call {
	return &MockWorkflow_Analyze_Call{Call: _e.mock.On("Analyze", ctx, args)}
}

func (_c *MockWorkflow_Analyze_Call) Run(run func(ctx context.Context, args domain.AnalyzeArgs)) *MockWorkflow_Analyze_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(domain.AnalyzeArgs))
	})
	return _c
}

func (_c *MockWorkflow_Analyze_Call) Return(_a0 error) *MockWorkflow_Analyze_Call {
	_c.Call.Return(_a0)
	return _c
}

func (_c *MockWorkflow_Analyze_Call) RunAndReturn(run func(context.Context, domain.AnalyzeArgs) error) *MockWorkflow_Analyze_Call {
	_c.Call.Return(run)
	return _c
}

// Instrument provides a mock function with given fields: ctx, args
func (_m *MockWorkflow) Instrument(ctx context.Context, args domain.InstrumentArgs) error {
	ret := _m.Called(ctx, args)

	if len(ret) == 0 {
		panic("no return value specified for Instrument")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, domain.InstrumentArgs) error); ok {
		r0 = rf(ctx, args)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// MockWorkflow_Instrument_Call is a *mock.Call that shadows Run/Return methods with type explicit version for method 'Instrument'
type MockWorkflow_Instrument_Call struct {
	*mock.Call
}

// Instrument is a helper method to define mock.On call
//   - ctx context.Context
//   - args domain.InstrumentArgs
func (_e *MockWorkflow_Expecter) Instrument(ctx interface{}, args interface{}) *MockWorkflow_Instrument_Call {
	return &MockWorkflow_Instrument_Call{Call: _e.mock.On("Instrument", ctx, args)}
}

func (_c *MockWorkflow_Instrument_Call) Run(run func(ctx context.Context, args domain.InstrumentArgs)) *MockWorkflow_Instrument_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(domain.InstrumentArgs))
	})
	return _c
}

func (_c *MockWorkflow_Instrument_Call) Return(_a0 error) *MockWorkflow_Instrument_Call {
	_c.Call.Return(_a0)
	return _c
}

func (_c *MockWorkflow_Instrument_Call) RunAndReturn(run func(context.Context, domain.InstrumentArgs) error) *MockWorkflow_Instrument_Call {
	_c.Call.Return(run)
	return _c
}

// Merge provides a mock function with given fields: ctx, args
func (_m *MockWorkflow) Merge(ctx context.Context, args domain.MergeArgs) error {
	ret := _m.Called(ctx, args)

	if len(ret) == 0 {
		panic("no return value specified for Merge")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, domain.MergeArgs) error); ok {
		r0 = rf(ctx, args)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// MockWorkflow_Merge_Call is a *mock.Call that shadows Run/Return methods with type explicit version for method 'Merge'
type MockWorkflow_Merge_Call struct {
	*mock.Call
}

// Merge is a helper method to define mock.On call
//   - ctx context.Context
//   - args domain.MergeArgs
func (_e *MockWorkflow_Expecter) Merge(ctx interface{}, args interface{}) *MockWorkflow_Merge_Call {
	return &MockWorkflow_Merge_Call{Call: _e.mock.On("Merge", ctx, args)}
}

func (_c *MockWorkflow_Merge_Call) Run(run func(ctx context.Context, args domain.MergeArgs)) *MockWorkflow_Merge_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(domain.MergeArgs))
	})
	return _c
}

func (_c *MockWorkflow_Merge_Call) Return(_a0 error) *MockWorkflow_Merge_Call {
	_c.Call.Return(_a0)
	return _c
}

func (_c *MockWorkflow_Merge_Call) RunAndReturn(run func(context.Context, domain.MergeArgs) error) *MockWorkflow_Merge_Call {
	_c.Call.Return(run)
	return _c
}

// Replay provides a mock function with given fields: ctx, args
func (_m *MockWorkflow) Replay(ctx context.Context, args domain.ReplayArgs) error {
	ret := _m.Called(ctx, args)

	if len(ret) == 0 {
		panic("no return value specified for Replay")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, domain.ReplayArgs) error); ok {
		r0 = rf(ctx, args)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// MockWorkflow_Replay_Call is a *mock.Call that shadows Run/Return methods with type explicit version for method 'Replay'
type MockWorkflow_Replay_Call struct {
	*mock.Call
}

// Replay is a helper method to define mock.On call
//   - ctx context.Context
//   - args domain.ReplayArgs
func (_e *MockWorkflow_Expecter) Replay(ctx interface{}, args interface{}) *MockWorkflow_Replay_Call {
	return &MockWorkflow_Replay_Call{Call: _e.mock.On("Replay", ctx, args)}
}

func (_c *MockWorkflow_Replay_Call) Run(run func(ctx context.Context, args domain.ReplayArgs)) *MockWorkflow_Replay_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(domain.ReplayArgs))
	})
	return _c
}

func (_c *MockWorkflow_Replay_Call) Return(_a0 error) *MockWorkflow_Replay_Call {
	_c.Call.Return(_a0)
	return _c
}

func (_c *MockWorkflow_Replay_Call) RunAndReturn(run func(context.Context, domain.ReplayArgs) error) *MockWorkflow_Replay_Call {
	_c.Call.Return(run)
	return _c
}

// Run provides a mock function with given fields: ctx, args
func (_m *MockWorkflow) Run(ctx context.Context, args domain.RunArgs) error {
	ret := _m.Called(ctx, args)

	if len(ret) == 0 {
		panic("no return value specified for Run")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, domain.RunArgs) error); ok {
		r0 = rf(ctx, args)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// MockWorkflow_Run_Call is a *mock.Call that shadows Run/Return methods with type explicit version for method 'Run'
type MockWorkflow_Run_Call struct {
	*mock.Call
}

// Run is a helper method to define mock.On call
//   - ctx context.Context
//   - args domain.RunArgs
func (_e *MockWorkflow_Expecter) Run(ctx interface{}, args interface{}) *MockWorkflow_Run_Call {
	return &MockWorkflow_Run_Call{Call: _e.mock.On("Run", ctx, args)}
}

func (_c *MockWorkflow_Run_Call) Run(run func(ctx context.Context, args domain.RunArgs)) *MockWorkflow_Run_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(domain.RunArgs))
	})
	return _c
}

func (_c *MockWorkflow_Run_Call) Return(_a0 error) *MockWorkflow_Run_Call {
	_c.Call.Return(_a0)
	return _c
}

func (_c *MockWorkflow_Run_Call) RunAndReturn(run func(context.Context, domain.RunArgs) error) *MockWorkflow_Run_Call {
	_c.Call.Return(run)
	return _c
}

// View provides a mock function with given fields: ctx, args
func (_m *MockWorkflow) View(ctx context.Context, args domain.ViewArgs) error {
	ret := _m.Called(ctx, args)

	if len(ret) == 0 {
		panic("no return value specified for View")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, domain.ViewArgs) error); ok {
		r0 = rf(ctx, args)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// MockWorkflow_View_Call is a *mock.Call that shadows Run/Return methods with type explicit version for method 'View'
type MockWorkflow_View_Call struct {
	*mock.Call
}

// View is a helper method to define mock.On call
//   - ctx context.Context
//   - args domain.ViewArgs
func (_e *MockWorkflow_Expecter) View(ctx interface{}, args interface{}) *MockWorkflow_View_Call {
	return &MockWorkflow_View_Call{Call: _e.mock.On("View", ctx, args)}
}

func (_c *MockWorkflow_View_Call) Run(run func(ctx context.Context, args domain.ViewArgs)) *MockWorkflow_View_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(domain.ViewArgs))
	})
	return _c
}

func (_c *MockWorkflow_View_Call) Return(_a0 error) *MockWorkflow_View_Call {
	_c.Call.Return(_a0)
	return _c
}

func (_c *MockWorkflow_View_Call) RunAndReturn(run func(context.Context, domain.ViewArgs) error) *MockWorkflow_View_Call {
	_c.Call.Return(run)
	return _c
}

// NewMockWorkflow creates a new instance of MockWorkflow. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockWorkflow(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockWorkflow {
	mock := &MockWorkflow{}
	mock.Mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
