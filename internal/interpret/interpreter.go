package interpret

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/receiptly/internal/llm"
)

// InterpretationRequest returns the deterministic decoding settings for receipt extraction.
func InterpretationRequest(prompt string) llm.Request {
	return llm.Request{
		Prompt:      prompt,
		Temperature: 0,
		TopP:        1,
		MaxTokens:   2048,
	}
}

// Interpreter turns OCR text into an InterpretedReceipt
type Interpreter struct {
	completer llm.Completer
	validator *Validator
	now       func() time.Time
}

// NewInterpreter creates an Interpreter. A nil now defaults to time.Now.
func NewInterpreter(completer llm.Completer, now func() time.Time) *Interpreter {
	if now == nil {
		now = time.Now
	}
	return &Interpreter{
		completer: completer,
		validator: NewValidator(now),
		now:       now,
	}
}

// Interpret runs prompt, completion, parsing and validation in order.
func (i *Interpreter) Interpret(ctx context.Context, ocrText string) (*InterpretedReceipt, error) {
	if strings.TrimSpace(ocrText) == "" {
		return nil, fmt.Errorf("%w: OCR text is required and must be a string", ErrBadRequest)
	}

	prompt := BuildPrompt(ocrText, i.now().Year())

	slog.Info("Interpreting receipt", "ocr_length", len(ocrText))
	raw, err := i.completer.Complete(ctx, InterpretationRequest(prompt))
	if err != nil {
		slog.Error("Model call failed", "error", err)
		return nil, fmt.Errorf("completing interpretation: %w", err)
	}
	slog.Debug("Model response", "response", raw)

	candidate, err := ParseCandidate(raw)
	if err != nil {
		slog.Error("Failed to parse model response", "error", err, "raw_response", raw)
		return nil, err
	}

	receipt, err := i.validator.Validate(candidate)
	if err != nil {
		var incomplete *IncompleteDataError
		if errors.As(err, &incomplete) {
			slog.Error("Model returned incomplete data", "missing", incomplete.Missing)
		}
		return nil, err
	}

	slog.Info("Interpreted receipt",
		"vendor", receipt.Vendor,
		"total", receipt.Total,
		"items", len(receipt.Items),
		"confidence", receipt.Confidence,
		"warnings", len(receipt.Warnings))
	return receipt, nil
}
