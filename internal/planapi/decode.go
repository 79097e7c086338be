package planapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"weekly-health-plan/internal/planner"
)

var jsonNull = []byte("null")

// unwrapData strips an optional {"data": ...} envelope. A missing or null
// payload is reported as ErrNotFound.
func unwrapData(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return nil, ErrNotFound
	}
	if raw[0] != '{' {
		return raw, nil
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("planapi: decode envelope: %w", err)
	}
	data, ok := env["data"]
	if !ok {
		return raw, nil
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return nil, ErrNotFound
	}
	return data, nil
}

// numericKeys are plan fields that carry numbers. The generator sometimes
// emits them as strings.
var numericKeys = map[string]bool{
	"week_number":              true,
	"duration":                 true,
	"calories":                 true,
	"calories_target":          true,
	"protein":                  true,
	"carbs":                    true,
	"fat":                      true,
	"fiber":                    true,
	"exercise_calories_burned": true,
	"calorie_compensation":     true,
	"diet_adherence":           true,
}

// coerceNumbers rewrites numeric strings under numericKeys into numbers and
// removes any other non-number value there, so the field decodes as absent.
func coerceNumbers(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if !numericKeys[k] {
				coerceNumbers(val)
				continue
			}
			switch n := val.(type) {
			case nil, json.Number:
			case string:
				f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
				if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
					delete(t, k)
					continue
				}
				t[k] = json.Number(strconv.FormatFloat(f, 'f', -1, 64))
			default:
				delete(t, k)
			}
		}
	case []any:
		for _, e := range t {
			coerceNumbers(e)
		}
	}
}

// decodeLenient decodes a JSON object into dst. Numeric fields go through
// coerceNumbers first. A value of the wrong type leaves only that field at
// its zero value; the rest of dst is still filled in.
func decodeLenient(raw []byte, dst any, logger *slog.Logger, what string) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return fmt.Errorf("%s is not a JSON object", what)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return err
	}
	coerceNumbers(tree)
	normalized, err := json.Marshal(tree)
	if err != nil {
		return err
	}

	err = json.Unmarshal(normalized, dst)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		logger.Warn("ignoring mistyped field", "in", what, "field", typeErr.Field, "got", typeErr.Value)
		return nil
	}
	return err
}

type wireWeeklyPlan planner.WeeklyPlan

// decodeWeeklyPlan narrows a weekly plan payload. Days are decoded one at a
// time: unknown weekday keys and days that are not objects are dropped so a
// partially broken plan still projects.
func decodeWeeklyPlan(raw []byte, logger *slog.Logger) (*planner.WeeklyPlan, error) {
	var payload struct {
		wireWeeklyPlan
		DailyPlans map[string]json.RawMessage `json:"daily_plans"`
	}
	if err := decodeLenient(raw, &payload, logger, "weekly plan"); err != nil {
		return nil, fmt.Errorf("planapi: decode weekly plan: %w", err)
	}

	plan := planner.WeeklyPlan(payload.wireWeeklyPlan)
	plan.DailyPlans = make(map[planner.Weekday]planner.DayPlan, len(payload.DailyPlans))
	for key, dayRaw := range payload.DailyPlans {
		wd := planner.Weekday(strings.ToLower(strings.TrimSpace(key)))
		if wd.Index() < 0 {
			logger.Warn("dropping unknown weekday key", "plan_id", plan.ID, "key", key)
			continue
		}
		if bytes.Equal(bytes.TrimSpace(dayRaw), jsonNull) {
			continue
		}
		var day planner.DayPlan
		if err := decodeLenient(dayRaw, &day, logger, string(wd)); err != nil {
			logger.Warn("dropping malformed day", "plan_id", plan.ID, "weekday", wd, "error", err)
			continue
		}
		plan.DailyPlans[wd] = day
	}
	return &plan, nil
}

// decodeTodayPlan narrows the today payload the same way a single day is.
func decodeTodayPlan(raw []byte, logger *slog.Logger) (*planner.TodayPlan, error) {
	var today planner.TodayPlan
	if err := decodeLenient(raw, &today, logger, "today plan"); err != nil {
		return nil, fmt.Errorf("planapi: decode today plan: %w", err)
	}
	return &today, nil
}
