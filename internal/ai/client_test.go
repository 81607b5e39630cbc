package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
)

func reply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
	})
}

func newTestClient(url string, retries int) *Client {
	return NewClient(Config{
		BaseURL:    url,
		APIKey:     "test-key",
		MaxRetries: retries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		Timeout:    time.Second,
	})
}

func TestCategorize_SendsPromptAndTrimsReply(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		reply(w, "  Food & Dining \n")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	cat, err := c.Categorize(context.Background(), "Lunch at cafe", core.Money{Cents: 1250})
	require.NoError(t, err)
	assert.Equal(t, "Food & Dining", cat)

	assert.Equal(t, DefaultModel, got.Model)
	require.Len(t, got.Messages, 2)
	prompt, _ := got.Messages[1].Content.(string)
	assert.Contains(t, prompt, `"Lunch at cafe"`)
	assert.Contains(t, prompt, "12.50")
	assert.Contains(t, prompt, "Bills & Utilities")
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		reply(w, "Travel")
	}))
	defer srv.Close()

	cat, err := newTestClient(srv.URL, 3).Categorize(context.Background(), "Flight", core.Money{Cents: 30000})
	require.NoError(t, err)
	assert.Equal(t, "Travel", cat)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestComplete_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		reply(w, "Other")
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2).Categorize(context.Background(), "x", core.Money{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestComplete_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 5).Categorize(context.Background(), "x", core.Money{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Categorize(context.Background(), "x", core.Money{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestComplete_NotConfigured(t *testing.T) {
	_, err := NewClient(Config{}).Categorize(context.Background(), "x", core.Money{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPredict_ToleratesProse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply(w, "Sure! {\"predictions\":[]}")
	}))
	defer srv.Close()

	p, err := newTestClient(srv.URL, 1).Predict(context.Background(), []core.Expense{
		core.NewExpense("u1", "Coffee", core.Money{Cents: 450}, "Food & Dining", core.NewDate(2025, 1, 3)),
	})
	require.NoError(t, err)
	assert.NotNil(t, p.Predictions)
	assert.Empty(t, p.Predictions)
	assert.Nil(t, p.Trends)
}

func TestPredict_FullReply(t *testing.T) {
	content := "Here is the analysis:\n```json\n" + predictSchema + "\n```"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "Coffee")
		assert.NotContains(t, string(body), "owner-42")
		reply(w, content)
	}))
	defer srv.Close()

	p, err := newTestClient(srv.URL, 1).Predict(context.Background(), []core.Expense{
		core.NewExpense("owner-42", "Coffee", core.Money{Cents: 450}, "Food & Dining", core.NewDate(2025, 1, 3)),
	})
	require.NoError(t, err)
	require.Len(t, p.Predictions, 1)
	assert.Equal(t, 500.0, p.Predictions[0].PredictedAmount)
	assert.Equal(t, "increasing", p.Trends.Overall)
	assert.Len(t, p.Recommendations, 2)
}

func TestPredict_NoStructuredData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply(w, "I am unable to forecast that.")
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 1).Predict(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoStructuredData)
}

func TestExtractReceipt_SendsImageAndParses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.True(t, strings.Contains(string(body), "data:image/png;base64,"))
		reply(w, `{"merchant":"Corner Shop","total":"$23.40","date":"2025-04-02","items":[{"name":"Milk","price":1.2}]}`)
	}))
	defer srv.Close()

	r, err := newTestClient(srv.URL, 1).ExtractReceipt(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "Corner Shop", r.Merchant)
	assert.Equal(t, Number("23.40"), r.Total)
	assert.Equal(t, "2025-04-02", r.Date)
	require.Len(t, r.Items, 1)
	assert.Equal(t, Number("1.2"), r.Items[0].Price)
}

func TestAPIError_Temporary(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 429}).Temporary())
	assert.True(t, (&APIError{StatusCode: 502}).Temporary())
	assert.False(t, (&APIError{StatusCode: 400}).Temporary())
	assert.False(t, isRetryable(context.Canceled))
	assert.True(t, isRetryable(errors.New("send request: connection refused")))
}

func TestComplete_DeadlineCoversRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		http.Error(w, "slow", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:    srv.URL,
		MaxRetries: 10,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		Timeout:    50 * time.Millisecond,
		Deadline:   120 * time.Millisecond,
	})

	start := time.Now()
	_, err := c.Categorize(context.Background(), "Taxi", core.Money{Cents: 1800})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Less(t, atomic.LoadInt32(&calls), int32(10), "deadline must stop retries early")
}
