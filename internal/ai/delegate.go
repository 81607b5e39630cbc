package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"spendwise/internal/core"
	"spendwise/internal/extract"
)

// ErrNoStructuredData is returned when a reply holds no usable JSON object.
var ErrNoStructuredData = extract.ErrNoStructuredData

type (
	CategoryPrediction struct {
		Category        string  `json:"category"`
		PredictedAmount float64 `json:"predicted_amount"`
		Confidence      float64 `json:"confidence"`
	}

	Trend struct {
		Overall    string  `json:"overall"`
		Percentage float64 `json:"percentage"`
	}

	Anomaly struct {
		Description string `json:"description"`
		Severity    string `json:"severity"`
	}

	// Prediction is the forecast returned by Predict. Every field is optional.
	Prediction struct {
		Predictions     []CategoryPrediction `json:"predictions"`
		Trends          *Trend               `json:"trends,omitempty"`
		Anomalies       []Anomaly            `json:"anomalies"`
		Recommendations []string             `json:"recommendations"`
	}

	ReceiptItem struct {
		Name  string `json:"name"`
		Price Number `json:"price"`
	}

	// Receipt is what the model read off a receipt image.
	Receipt struct {
		Merchant string        `json:"merchant"`
		Total    Number        `json:"total"`
		Date     string        `json:"date"`
		Items    []ReceiptItem `json:"items"`
	}
)

// Number holds a numeric value the model may have written either as a JSON
// number or as a string. The original text is kept for exact parsing.
type Number string

func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		str = strings.TrimLeft(str, "$€£")
		*n = Number(strings.TrimSpace(str))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*n = Number(num.String())
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(n))
}

const categorizeSystem = "You are a precise expense categorization AI. Return only the category name."

// Categorize asks the model for a category. The trimmed reply is returned as
// is; it is not guaranteed to be one of core.Categories.
func (c *Client) Categorize(ctx context.Context, description string, amount core.Money) (string, error) {
	prompt := fmt.Sprintf("Categorize this expense: %q (Amount: %s)\n\nAvailable categories: %s\n\nReturn ONLY the category name, nothing else.",
		description, amount.String(), strings.Join(core.Categories, ", "))

	out, err := c.complete(ctx, "categorize", []message{
		{Role: "system", Content: categorizeSystem},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

const predictSystem = "You are an expert financial ML analyst. Always respond with valid JSON."

const predictSchema = `{
  "predictions": [{"category": "Food & Dining", "predicted_amount": 500, "confidence": 0.85}],
  "trends": {"overall": "increasing", "percentage": 15},
  "anomalies": [{"description": "Unusual spike in entertainment", "severity": "medium"}],
  "recommendations": ["Reduce dining out by 20%", "Set up auto-savings"]
}`

type historyEntry struct {
	Description string     `json:"description"`
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
	Date        core.Date  `json:"date"`
}

// Predict sends the expense history and parses the forecast out of the reply.
// A reply without a decodable object yields ErrNoStructuredData.
func (c *Client) Predict(ctx context.Context, expenses []core.Expense) (*Prediction, error) {
	history := make([]historyEntry, 0, len(expenses))
	for _, e := range expenses {
		history = append(history, historyEntry{
			Description: e.Description,
			Amount:      e.Amount,
			Category:    e.Category,
			Date:        e.Date,
		})
	}
	payload, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}

	prompt := "Analyze these expenses and predict future spending:\n\n" + string(payload) +
		"\n\nProvide:\n1. Next month predicted expenses by category\n2. Spending trend analysis\n3. Anomaly detection\n4. Budget recommendations\n\nReturn JSON format:\n" + predictSchema

	out, err := c.complete(ctx, "predict", []message{
		{Role: "system", Content: predictSystem},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	var p Prediction
	if err := extract.Decode(out, &p); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return &p, nil
}

const receiptSystem = "You read receipts. Always respond with valid JSON."

const receiptPrompt = `Extract the merchant name, the total amount, the purchase date (YYYY-MM-DD) and the line items from this receipt.

Return JSON format:
{"merchant": "Store name", "total": 12.34, "date": "2025-01-31", "items": [{"name": "Item", "price": 1.23}]}

Use null for anything you cannot read.`

// ExtractReceipt sends the image inline as a data URL and parses the reply.
func (c *Client) ExtractReceipt(ctx context.Context, image []byte, mimeType string) (*Receipt, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	out, err := c.complete(ctx, "extract_receipt", []message{
		{Role: "system", Content: receiptSystem},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: receiptPrompt},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		}},
	})
	if err != nil {
		return nil, err
	}

	var r Receipt
	if err := extract.Decode(out, &r); err != nil {
		return nil, fmt.Errorf("extract receipt: %w", err)
	}
	return &r, nil
}
