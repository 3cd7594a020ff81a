package extractor_test

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/trailblazeapp/ride-ingest/internal/model"
)

// MockAIAssistant is a hand-written gomock-style mock for the AIAssistant
// interface, following the same Controller/Call plumbing mockgen would
// generate.
type MockAIAssistant struct {
	ctrl     *gomock.Controller
	recorder *MockAIAssistantMockRecorder
}

type MockAIAssistantMockRecorder struct {
	mock *MockAIAssistant
}

func NewMockAIAssistant(ctrl *gomock.Controller) *MockAIAssistant {
	m := &MockAIAssistant{ctrl: ctrl}
	m.recorder = &MockAIAssistantMockRecorder{mock: m}
	return m
}

func (m *MockAIAssistant) EXPECT() *MockAIAssistantMockRecorder {
	return m.recorder
}

func (m *MockAIAssistant) ExtractSupplemental(ctx context.Context, chunk string) ([]model.RawRow, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ExtractSupplemental", ctx, chunk)
	rows, _ := ret[0].([]model.RawRow)
	err, _ := ret[1].(error)
	return rows, err
}

func (mr *MockAIAssistantMockRecorder) ExtractSupplemental(ctx, chunk interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ExtractSupplemental",
		reflect.TypeOf((*MockAIAssistant)(nil).ExtractSupplemental), ctx, chunk)
}
