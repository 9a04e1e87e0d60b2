// Code generated by a mockgen-style generator for HostSegment. Hand
// maintained here because this package's own interface is small and
// stable; regenerate with `mockgen -source=host.go -destination=host_mock.go`
// if HostSegment grows.

package brkhost

import (
	"reflect"

	"go.uber.org/mock/gomock"
)

// MockHostSegment is a mock of the HostSegment interface, used to force
// IncBrk failures and short returns deterministically in bookkeeper
// tests without touching real process memory.
type MockHostSegment struct {
	ctrl     *gomock.Controller
	recorder *MockHostSegmentMockRecorder
}

// MockHostSegmentMockRecorder is the mock recorder for MockHostSegment.
type MockHostSegmentMockRecorder struct {
	mock *MockHostSegment
}

// NewMockHostSegment creates a new mock instance.
func NewMockHostSegment(ctrl *gomock.Controller) *MockHostSegment {
	mock := &MockHostSegment{ctrl: ctrl}
	mock.recorder = &MockHostSegmentMockRecorder{mock}

	return mock
}

// EXPECT returns an object that allows the caller to indicate expected
// use.
func (m *MockHostSegment) EXPECT() *MockHostSegmentMockRecorder {
	return m.recorder
}

// IncBrk mocks base method.
func (m *MockHostSegment) IncBrk(n uintptr) (uintptr, error) {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "IncBrk", n)
	ret0, _ := ret[0].(uintptr)
	ret1, _ := ret[1].(error)

	return ret0, ret1
}

// IncBrk indicates an expected call of IncBrk.
func (mr *MockHostSegmentMockRecorder) IncBrk(n interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "IncBrk", reflect.TypeOf((*MockHostSegment)(nil).IncBrk), n)
}

// APIVersion mocks base method.
func (m *MockHostSegment) APIVersion() string {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "APIVersion")
	ret0, _ := ret[0].(string)

	return ret0
}

// APIVersion indicates an expected call of APIVersion.
func (mr *MockHostSegmentMockRecorder) APIVersion() *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "APIVersion", reflect.TypeOf((*MockHostSegment)(nil).APIVersion))
}

// FaultAfter wraps a real HostSegment and returns an OOM error starting
// on the n-th call to IncBrk (1-indexed), passing through every call
// before that. Used to exercise the OOM path against real, otherwise
// well-behaved memory.
type FaultAfter struct {
	Real  HostSegment
	N     int
	calls int
}

func (f *FaultAfter) IncBrk(n uintptr) (uintptr, error) {
	f.calls++
	if f.calls >= f.N {
		return 0, &OOMError{Reason: "injected fault"}
	}

	return f.Real.IncBrk(n)
}

func (f *FaultAfter) APIVersion() string {
	return f.Real.APIVersion()
}
