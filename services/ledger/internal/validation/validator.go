package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "invalid request"
	}
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// Err returns nil when no field failed so callers can return it directly.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v *ValidationErrors) UUID(field, raw string) uuid.UUID {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		v.Add(field, field+" is required")
		return uuid.Nil
	}
	id, err := uuid.Parse(trimmed)
	if err != nil {
		v.Add(field, field+" must be a uuid")
		return uuid.Nil
	}
	return id
}

func (v *ValidationErrors) OptionalUUID(field, raw string) *uuid.UUID {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	id := v.UUID(field, raw)
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func (v *ValidationErrors) PositiveDecimal(field, raw string) decimal.Decimal {
	val, err := parseDecimal(field, raw)
	if err != nil {
		v.Add(field, err.Error())
		return decimal.Zero
	}
	if val.LessThanOrEqual(decimal.Zero) {
		v.Add(field, field+" must be positive")
		return decimal.Zero
	}
	return val
}

func (v *ValidationErrors) OptionalNonNegativeDecimal(field, raw string) *decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	val, err := parseDecimal(field, raw)
	if err != nil {
		v.Add(field, err.Error())
		return nil
	}
	if val.IsNegative() {
		v.Add(field, field+" must not be negative")
		return nil
	}
	return &val
}

func (v *ValidationErrors) PositiveInt(field string, raw int64) int64 {
	if raw <= 0 {
		v.Add(field, field+" must be positive")
	}
	return raw
}

// Time accepts RFC3339 timestamps and plain dates.
func (v *ValidationErrors) Time(field, raw string) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		v.Add(field, field+" is required")
		return time.Time{}
	}
	ts, err := parseTime(trimmed)
	if err != nil {
		v.Add(field, field+" must be RFC3339 or YYYY-MM-DD")
		return time.Time{}
	}
	return ts
}

func (v *ValidationErrors) OptionalTime(field, raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	ts := v.Time(field, raw)
	if ts.IsZero() {
		return nil
	}
	return &ts
}

func ParseLimit(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return n, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%s is required", field)
	}
	val, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal", field)
	}
	return val, nil
}

func parseTime(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}
