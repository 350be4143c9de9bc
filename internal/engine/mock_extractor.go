package engine

import (
	"context"
	"sync"

	"github.com/Veraticus/ordertrail/internal/extract"
	"github.com/Veraticus/ordertrail/internal/model"
)

// MockExtractor is a configurable Extractor for tests.
type MockExtractor struct {
	mu sync.Mutex

	classifyKind       model.MessageKind
	classifyConfidence float64
	classifyErr        error

	extractResults map[model.MessageKind]extract.Result
	extractErr     error

	ClassifyCalls int
	ExtractCalls  int
}

// NewMockExtractor creates a mock with no canned responses.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		extractResults: make(map[model.MessageKind]extract.Result),
	}
}

// SetClassifyResponse sets the canned classification verdict.
func (m *MockExtractor) SetClassifyResponse(kind model.MessageKind, confidence float64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifyKind = kind
	m.classifyConfidence = confidence
	m.classifyErr = err
}

// SetExtractResponse sets the canned extraction result for a kind.
func (m *MockExtractor) SetExtractResponse(kind model.MessageKind, result extract.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractResults[kind] = result
}

// SetExtractError makes every Extract call fail.
func (m *MockExtractor) SetExtractError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractErr = err
}

// Classify implements Extractor.
func (m *MockExtractor) Classify(_ context.Context, _ extract.Input) (model.MessageKind, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClassifyCalls++
	return m.classifyKind, m.classifyConfidence, m.classifyErr
}

// Extract implements Extractor.
func (m *MockExtractor) Extract(_ context.Context, kind model.MessageKind, _ extract.Input) (extract.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExtractCalls++
	if m.extractErr != nil {
		return extract.Result{}, m.extractErr
	}
	return m.extractResults[kind], nil
}

// MockMatcher returns a fixed retailer for every sender.
type MockMatcher struct {
	Retailer *model.Retailer
}

// Match implements RetailerMatcher.
func (m *MockMatcher) Match(_ context.Context, _, _ string) *model.Retailer {
	return m.Retailer
}
