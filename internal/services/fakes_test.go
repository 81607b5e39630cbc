package services

import (
	"context"
	"errors"
	"sync"

	"spendwise/internal/ai"
	"spendwise/internal/core"
)

type fakeCategorizer struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeCategorizer) Categorize(context.Context, string, core.Money) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, f.err
}

func (f *fakeCategorizer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type publishedMessage struct {
	kind, owner, id, month string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []publishedMessage
	err  error
}

func (p *fakePublisher) PublishExpenseSync(_ context.Context, owner, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, publishedMessage{kind: "sync", owner: owner, id: id})
	return p.err
}

func (p *fakePublisher) PublishExpenseDelete(_ context.Context, owner, id, month string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, publishedMessage{kind: "delete", owner: owner, id: id, month: month})
	return p.err
}

type fakePredictor struct {
	got        []core.Expense
	prediction *ai.Prediction
	err        error
}

func (f *fakePredictor) Predict(_ context.Context, expenses []core.Expense) (*ai.Prediction, error) {
	f.got = expenses
	return f.prediction, f.err
}

type fakeReceiptReader struct {
	mime    string
	receipt *ai.Receipt
	err     error
}

func (f *fakeReceiptReader) ExtractReceipt(_ context.Context, _ []byte, mimeType string) (*ai.Receipt, error) {
	f.mime = mimeType
	return f.receipt, f.err
}

var errBoom = errors.New("boom")

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
