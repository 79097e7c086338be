package planapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"weekly-health-plan/internal/config"
	"weekly-health-plan/internal/metrics"
	"weekly-health-plan/internal/planner"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("super-secret-key")

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		PlanAPIURL: server.URL,
		PlanAPIKey: "key-1:" + hex.EncodeToString(testSecret),
		PlanUserID: "user-42",
	}
	return NewClient(cfg, opts...), server
}

const weeklyPlanJSON = `{
	"id": 7,
	"user_id": "user-42",
	"monthly_plan_id": "m-3",
	"week_number": 2,
	"week_start_date": "2023-01-09",
	"week_end_date": "2023-01-15",
	"theme": "Build the base",
	"daily_plans": {
		"monday": {"day_name": "周一", "exercises": [{"exercise_id": "running", "name": "Run", "duration": 30, "intensity": "moderate", "calories_target": 250, "time_slot": "morning"}], "diet": {"calories_target": 1900}},
		"Tuesday": {"is_rest_day": true, "diet": {}},
		"wednesday": "rest",
		"funday": {"diet": {}},
		"sunday": null
	}
}`

func TestCurrentWeeklyPlan(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != "/api/plans/weekly/current" {
				t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			}
			if r.Header.Get("X-Request-ID") == "" {
				t.Error("Expected X-Request-ID header")
			}
			checkToken(t, r)
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, weeklyPlanJSON)
		})

		plan, err := client.CurrentWeeklyPlan(context.Background())
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if plan.ID != "7" || plan.MonthlyPlanID != "m-3" || plan.WeekNumber != 2 {
			t.Errorf("Unexpected plan metadata %+v", plan)
		}
		if len(plan.DailyPlans) != 2 {
			t.Fatalf("Expected 2 valid days after narrowing, got %d", len(plan.DailyPlans))
		}
		if _, ok := plan.DailyPlans[planner.Tuesday]; !ok {
			t.Error("Expected capitalised Tuesday key to be normalised")
		}
		if _, ok := plan.DailyPlans[planner.Wednesday]; ok {
			t.Error("Expected non-object Wednesday to be dropped")
		}
		mon := plan.DailyPlans[planner.Monday]
		if len(mon.Exercises) != 1 || mon.Exercises[0].Duration != 30 {
			t.Errorf("Unexpected Monday exercises %+v", mon.Exercises)
		}
	})

	t.Run("Envelope", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"data": %s}`, weeklyPlanJSON)
		})
		plan, err := client.CurrentWeeklyPlan(context.Background())
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if plan.Theme != "Build the base" {
			t.Errorf("Expected theme from envelope, got %q", plan.Theme)
		}
	})

	t.Run("NullData", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data": null}`)
		})
		_, err := client.CurrentWeeklyPlan(context.Background())
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error": "no plan for this week"}`)
		})
		_, err := client.CurrentWeeklyPlan(context.Background())
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "no plan for this week" {
			t.Errorf("Expected APIError with message, got %v", err)
		}
	})

	t.Run("ServerError", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error": {"message": "database down"}}`)
		})
		_, err := client.CurrentWeeklyPlan(context.Background())
		if err == nil {
			t.Fatal("Expected an error for non-200 status code, got nil")
		}
		if errors.Is(err, ErrNotFound) {
			t.Error("Expected a 500 not to match ErrNotFound")
		}
		if !strings.Contains(err.Error(), "database down") {
			t.Errorf("Expected nested error message, got %v", err)
		}
	})

	t.Run("MistypedFields", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{
				"id": 8,
				"week_number": "1",
				"theme": ["not", "a", "string"],
				"daily_plans": {
					"monday": {
						"is_rest_day": "no",
						"exercises": [{"name": "Run", "duration": "30", "calories_target": "n/a", "time_slot": "morning"}],
						"diet": {"breakfast": {"foods": [
							{"name": "Oats", "calories": "230", "protein": "lots"},
							{"name": "Milk", "calories": 120, "fat": true}
						]}}
					},
					"tuesday": {"exercises": "not-a-list", "tips": ["Stretch"]}
				}
			}`)
		})
		plan, err := client.CurrentWeeklyPlan(context.Background())
		if err != nil {
			t.Fatalf("Expected mistyped fields to degrade, got %v", err)
		}
		if plan.ID != "8" || plan.WeekNumber != 1 || plan.Theme != "" {
			t.Errorf("Unexpected plan metadata %+v", plan)
		}
		if len(plan.DailyPlans) != 2 {
			t.Fatalf("Expected both days to survive, got %d", len(plan.DailyPlans))
		}

		mon := plan.DailyPlans[planner.Monday]
		if len(mon.Exercises) != 1 {
			t.Fatalf("Expected Monday's run to survive, got %+v", mon.Exercises)
		}
		if ex := mon.Exercises[0]; ex.Name != "Run" || ex.Duration != 30 || ex.CaloriesTarget != 0 {
			t.Errorf("Unexpected exercise %+v", ex)
		}
		foods := mon.Diet.Breakfast.Foods
		if len(foods) != 2 {
			t.Fatalf("Expected 2 foods, got %d", len(foods))
		}
		if foods[0].Calories == nil || *foods[0].Calories != 230 {
			t.Errorf("Expected numeric-string calories to decode, got %v", foods[0].Calories)
		}
		if foods[0].Protein != nil || foods[1].Fat != nil {
			t.Error("Expected non-numeric nutrients to be absent")
		}
		if foods[1].Calories == nil || *foods[1].Calories != 120 {
			t.Errorf("Expected Milk calories 120, got %v", foods[1].Calories)
		}

		tue := plan.DailyPlans[planner.Tuesday]
		if len(tue.Exercises) != 0 || len(tue.Tips) != 1 {
			t.Errorf("Expected Tuesday without exercises but with tips, got %+v", tue)
		}
	})

	t.Run("NotAnObject", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `["monday", "tuesday"]`)
		})
		if _, err := client.CurrentWeeklyPlan(context.Background()); err == nil {
			t.Fatal("Expected a decode error, got nil")
		}
	})
}

func checkToken(t *testing.T, r *http.Request) {
	t.Helper()
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		t.Fatalf("Expected bearer token, got %q", auth)
	}
	token, err := jwt.Parse(strings.TrimPrefix(auth, "Bearer "), func(tok *jwt.Token) (any, error) {
		if tok.Header["kid"] != "key-1" {
			return nil, fmt.Errorf("unexpected kid %v", tok.Header["kid"])
		}
		return testSecret, nil
	}, jwt.WithAudience("plans"), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("Expected a valid token, got %v", err)
	}
	sub, _ := token.Claims.GetSubject()
	if sub != "user-42" {
		t.Errorf("Expected subject user-42, got %q", sub)
	}
}

func TestTodayAndMonthly(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/plans/weekly/today":
			fmt.Fprint(w, `{"plan_id": 7, "day_name": "monday", "is_rest_day": false, "completion": {"exercise_completed": true, "diet_adherence": 80}}`)
		case "/api/plans/monthly/current":
			fmt.Fprint(w, `{"data": {"id": 3, "month": "2024-06", "title": "June"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	today, err := client.TodayPlan(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if today.PlanID != "7" || today.DayName != "monday" || !today.Completion.ExerciseCompleted {
		t.Errorf("Unexpected today plan %+v", today)
	}
	if today.Completion.DietAdherence == nil || *today.Completion.DietAdherence != 80 {
		t.Errorf("Expected diet adherence 80, got %v", today.Completion.DietAdherence)
	}

	monthly, err := client.CurrentMonthlyPlan(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if monthly.ID != "3" || monthly.Title != "June" {
		t.Errorf("Unexpected monthly plan %+v", monthly)
	}
}

func TestMutations(t *testing.T) {
	type captured struct {
		method, path string
		body         map[string]any
	}
	var got []captured

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		got = append(got, captured{r.Method, r.URL.Path, body})

		switch {
		case strings.HasSuffix(r.URL.Path, "/generate"):
			fmt.Fprint(w, weeklyPlanJSON)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	plan, err := client.GenerateWeeklyPlan(ctx, GenerateRequest{MonthlyPlanID: "m-3", WeekNumber: 2, WeekStartDate: &start})
	if err != nil || plan == nil {
		t.Fatalf("GenerateWeeklyPlan failed: %v", err)
	}

	done := true
	if err := client.UpdateDayCompletion(ctx, "7", planner.Friday, CompletionPatch{ExerciseCompleted: &done}); err != nil {
		t.Fatalf("UpdateDayCompletion failed: %v", err)
	}
	if err := client.AdjustWeeklyPlan(ctx, "7", planner.Monday, SkipExercise, nil); err != nil {
		t.Fatalf("AdjustWeeklyPlan failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(got))
	}
	if got[0].body["week_start_date"] != "2024-06-10" || got[0].body["monthly_plan_id"] != "m-3" {
		t.Errorf("Unexpected generate body %v", got[0].body)
	}
	if got[1].method != http.MethodPatch || got[1].path != "/api/plans/weekly/7/days/friday/completion" {
		t.Errorf("Unexpected completion request %s %s", got[1].method, got[1].path)
	}
	if _, ok := got[1].body["diet_adherence"]; ok {
		t.Error("Expected unset diet_adherence to be omitted")
	}
	if got[2].path != "/api/plans/weekly/7/adjust" || got[2].body["adjustment_type"] != "skip_exercise" || got[2].body["day"] != "monday" {
		t.Errorf("Unexpected adjust request %s %v", got[2].path, got[2].body)
	}
}

func TestAIAdjust(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/plans/weekly/7/ai-adjust" {
				t.Errorf("Unexpected path %s", r.URL.Path)
			}
			fmt.Fprint(w, `{"status": "success", "explanation": "Moved runs to evenings", "changes": ["monday: evening run"], "updated_plan": {"id": 7}}`)
		})
		res, err := client.AIAdjustWeeklyPlan(context.Background(), "7", "I can only train in the evening")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if !res.Succeeded() || len(res.Changes) != 1 || res.UserMessage() != "Moved runs to evenings" {
			t.Errorf("Unexpected result %+v", res)
		}
		if len(res.UpdatedPlan) == 0 {
			t.Error("Expected updated_plan to be kept raw")
		}
	})

	t.Run("Failure", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var body aiAdjustBody
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Domain != "diet" {
				t.Errorf("Expected domain diet, got %q", body.Domain)
			}
			fmt.Fprint(w, `{"status": "failure", "message": "无法理解您的请求", "explanation": "ignored"}`)
		})
		res, err := client.AIAdjustDietPlan(context.Background(), "7", "???", "diet")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if res.Succeeded() {
			t.Error("Expected failure status")
		}
		if res.UserMessage() != "无法理解您的请求" {
			t.Errorf("Expected verbatim message, got %q", res.UserMessage())
		}
		if res.Changes == nil {
			t.Error("Expected non-nil changes")
		}
	})

	t.Run("UnknownStatusFailsClosed", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status": "maybe"}`)
		})
		res, err := client.AIAdjustWeeklyPlan(context.Background(), "7", "x")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if res.Succeeded() {
			t.Error("Expected unknown status to count as failure")
		}
	})

	t.Run("SuccessFlag", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success": true, "changes": []}`)
		})
		res, err := client.AIAdjustWeeklyPlan(context.Background(), "7", "x")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if !res.Succeeded() {
			t.Error("Expected success flag to count as success")
		}
	})
}

func TestRecorder(t *testing.T) {
	store := metrics.NewStore(10)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, WithRecorder(store))

	_, _ = client.CurrentMonthlyPlan(context.Background())
	usage := store.GetDailyUsage(1)
	if len(usage) != 1 || usage[0].TotalCalls != 1 || usage[0].TotalFailures != 1 {
		t.Errorf("Expected one failed call recorded, got %+v", usage)
	}
}

func TestInvalidAPIKey(t *testing.T) {
	cfg := &config.Config{PlanAPIURL: "http://127.0.0.1:0", PlanAPIKey: "no-colon"}
	_, err := NewClient(cfg).CurrentWeeklyPlan(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid api key format") {
		t.Fatalf("Expected invalid key error, got %v", err)
	}
}
