// Package firsttrack is the reference scoring strategy: run the solver on a CSV
// dataset and count rows whose value matches the expected transform.
package firsttrack

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"smartsolution/internal/judge/model"
	appErr "smartsolution/pkg/errors"
)

const (
	defaultKeyColumn   = "id"
	defaultValueColumn = "num"
)

// Transform maps a reference value to the value a correct solver outputs.
type Transform func(float64) float64

// Square is the canonical first-track transform.
func Square(v float64) float64 {
	return v * v
}

// ComparatorConfig configures row matching.
type ComparatorConfig struct {
	KeyColumn   string
	ValueColumn string
	Transform   Transform
	// Tolerance is the allowed absolute difference. Zero requires exact equality.
	Tolerance float64
	// Bonus draws a value in [0, 1). Defaults to math/rand/v2.
	Bonus func() float64
}

// Comparator scores produced output against the reference dataset.
type Comparator struct {
	keyColumn   string
	valueColumn string
	transform   Transform
	tolerance   float64
	bonus       func() float64
}

// NewComparator creates a Comparator with defaults for unset fields.
func NewComparator(cfg ComparatorConfig) *Comparator {
	if cfg.KeyColumn == "" {
		cfg.KeyColumn = defaultKeyColumn
	}
	if cfg.ValueColumn == "" {
		cfg.ValueColumn = defaultValueColumn
	}
	if cfg.Transform == nil {
		cfg.Transform = Square
	}
	if cfg.Tolerance < 0 {
		cfg.Tolerance = 0
	}
	if cfg.Bonus == nil {
		cfg.Bonus = rand.Float64
	}
	return &Comparator{
		keyColumn:   cfg.KeyColumn,
		valueColumn: cfg.ValueColumn,
		transform:   cfg.Transform,
		tolerance:   cfg.Tolerance,
		bonus:       cfg.Bonus,
	}
}

// Compare matches rows by key. The score is the number of correct rows plus a bonus in [0, 1).
// Malformed produced output yields an OutputMalformed error result.
func (c *Comparator) Compare(produced, reference io.Reader) model.AutoJudgeResult {
	expected, err := c.readReference(reference)
	if err != nil {
		return model.ResultFromError(appErr.Wrapf(err, appErr.JudgeSystemError, "reference dataset is unreadable"))
	}
	got, err := c.readProduced(produced)
	if err != nil {
		return model.ResultFromError(err)
	}

	correct := 0
	for key, ref := range expected {
		value, ok := got[key]
		if !ok || !value.valid {
			continue
		}
		if c.matches(value.num, c.transform(ref)) {
			correct++
		}
	}

	bonus := c.bonus()
	if math.IsNaN(bonus) || bonus < 0 || bonus >= 1 {
		bonus = 0
	}
	return model.SuccessResult(float64(correct)+bonus, fmt.Sprintf("Correct: %d/%d, bonus=%.3f", correct, len(expected), bonus))
}

func (c *Comparator) matches(got, want float64) bool {
	if math.IsNaN(got) || math.IsNaN(want) {
		return false
	}
	if c.tolerance == 0 {
		return got == want
	}
	return math.Abs(got-want) <= c.tolerance
}

type cell struct {
	num   float64
	valid bool
}

// readReference keeps the first row per key and skips rows it cannot use.
func (c *Comparator) readReference(r io.Reader) (map[string]float64, error) {
	out := make(map[string]float64)
	err := c.scan(r, func(key, raw string) error {
		if _, dup := out[key]; dup {
			return nil
		}
		v, err := parseNumber(raw)
		if err != nil {
			return nil
		}
		out[key] = v
		return nil
	})
	return out, err
}

// readProduced rejects duplicate keys. Unparsable values are kept as incorrect answers.
func (c *Comparator) readProduced(r io.Reader) (map[string]cell, error) {
	out := make(map[string]cell)
	err := c.scan(r, func(key, raw string) error {
		if _, dup := out[key]; dup {
			return malformed(fmt.Sprintf("duplicate %s %q", c.keyColumn, key))
		}
		v, err := parseNumber(raw)
		out[key] = cell{num: v, valid: err == nil}
		return nil
	})
	if err != nil {
		var appError *appErr.Error
		if errors.As(err, &appError) {
			return nil, err
		}
		return nil, malformed(err.Error())
	}
	return out, nil
}

// scan walks CSV rows by header name and calls fn for every row with a non-empty key.
func (c *Comparator) scan(r io.Reader, fn func(key, raw string) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("missing header row")
	}
	if err != nil {
		return err
	}
	keyIdx, valueIdx := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch name {
		case c.keyColumn:
			keyIdx = i
		case c.valueColumn:
			valueIdx = i
		}
	}
	if keyIdx < 0 || valueIdx < 0 {
		return fmt.Errorf("header must contain %q and %q columns", c.keyColumn, c.valueColumn)
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if keyIdx >= len(record) {
			continue
		}
		key := strings.TrimSpace(record[keyIdx])
		if key == "" {
			continue
		}
		raw := ""
		if valueIdx < len(record) {
			raw = record[valueIdx]
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
}

func parseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return v, nil
}

func malformed(detail string) *appErr.Error {
	return appErr.New(appErr.OutputMalformed).WithMessage(detail)
}
