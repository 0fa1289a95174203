package recognition

import (
	"sync/atomic"

	"github.com/Kagami/go-face"
)

// MockFaceEngine records how often Recognize ran.
type MockFaceEngine struct {
	RecognizeFunc func(data []byte) ([]face.Face, error)
	CloseFunc     func()
	calls         atomic.Int32
}

func (m *MockFaceEngine) Recognize(data []byte) ([]face.Face, error) {
	m.calls.Add(1)
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(data)
	}
	return nil, nil
}

func (m *MockFaceEngine) Close() {
	if m.CloseFunc != nil {
		m.CloseFunc()
	}
}

func (m *MockFaceEngine) Calls() int { return int(m.calls.Load()) }
