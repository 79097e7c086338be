package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"weekly-health-plan/internal/adjust"
	"weekly-health-plan/internal/app"
	"weekly-health-plan/internal/config"
	"weekly-health-plan/internal/metrics"
	"weekly-health-plan/internal/planapi"
	"weekly-health-plan/internal/planview"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.DiscardHandler)
	if cfg.DebugLogging() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	metricsStore := metrics.NewStore(metrics.DefaultCapacity)
	client := planapi.NewClient(cfg, planapi.WithRecorder(metricsStore), planapi.WithLogger(logger))
	view := planview.New(client, planview.WithLocation(cfg.Location), planview.WithLogger(logger))
	defer view.Close()
	coordinator := adjust.NewCoordinator(client, view, logger)

	application := app.NewApp(client, view, coordinator, metricsStore)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "week":
		err = application.ShowWeek(ctx)
	case "today":
		err = application.ShowToday(ctx)
	case "regen":
		regenCmd := flag.NewFlagSet("regen", flag.ExitOnError)
		week := regenCmd.Int("week", 0, "Week number to generate (default: current plan's week)")
		regenCmd.Parse(args)
		err = application.Regenerate(ctx, *week)
	case "skip", "reduce", "change":
		if len(args) < 1 {
			log.Fatalf("Usage: weekplan %s <weekday>", os.Args[1])
		}
		adjustment := map[string]planapi.AdjustmentType{
			"skip":   planapi.SkipExercise,
			"reduce": planapi.ReduceExercise,
			"change": planapi.ChangeExercise,
		}[os.Args[1]]
		err = application.AdjustDay(ctx, args[0], adjustment)
	case "done":
		doneCmd := flag.NewFlagSet("done", flag.ExitOnError)
		adherence := doneCmd.Int("adherence", -1, "Diet adherence percentage (0-100)")
		doneCmd.Parse(args)
		if doneCmd.NArg() < 1 {
			log.Fatal("Usage: weekplan done [-adherence N] <weekday>")
		}
		err = application.MarkDone(ctx, doneCmd.Arg(0), *adherence)
	case "adjust":
		err = application.Adjust(ctx, strings.Join(args, " "), "")
	case "diet":
		dietCmd := flag.NewFlagSet("diet", flag.ExitOnError)
		domain := dietCmd.String("domain", "diet", "Diet domain the request applies to")
		dietCmd.Parse(args)
		err = application.Adjust(ctx, strings.Join(dietCmd.Args(), " "), *domain)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if errors.Is(err, app.ErrNoPlan) {
		fmt.Println("No plan for this week yet. Run `weekplan regen` to generate one.")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}

	if cfg.DebugLogging() {
		application.PrintUsage(1)
	}
}

func printUsage() {
	fmt.Println("Usage: weekplan <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  week                         Show this week's plan")
	fmt.Println("  today                        Show today's plan and progress")
	fmt.Println("  regen [-week N]              Regenerate this week's plan")
	fmt.Println("  skip|reduce|change <weekday> Adjust a day's exercise")
	fmt.Println("  done [-adherence N] <day>    Mark a day as done")
	fmt.Println("  adjust <request>             Change the week in plain language")
	fmt.Println("  diet [-domain D] <request>   Change the diet plan in plain language")
}
