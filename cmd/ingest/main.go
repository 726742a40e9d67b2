package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/yungbote/mensa-backend/internal/app"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
)

// ingest runs one ingestion pass for a single date and exits. Exit code 0
// means the run succeeded or another run already holds the date.
func main() {
	var date string
	flag.StringVar(&date, "date", "", "menu date YYYY-MM-DD (default: today in MENU_TIMEZONE)")
	flag.Parse()

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	os.Exit(run(ctx, application, date))
}

func run(ctx context.Context, application *app.App, date string) int {
	defer application.Close()

	day := menu.DayOf(time.Now().In(application.Cfg.Location))
	if date != "" {
		parsed, err := menu.ParseDay(date)
		if err != nil {
			fmt.Printf("invalid -date %q: %v\n", date, err)
			return 2
		}
		day = parsed
	}

	report, err := application.Services.Driver.Run(ctx, day, menu.TriggerCLI)
	if errors.Is(err, ingesterr.ErrLockHeld) {
		fmt.Printf("%s: another run holds the date, skipping\n", day.Format(menu.DayLayout))
		return 0
	}
	if err != nil {
		fmt.Printf("ingest %s: %v\n", day.Format(menu.DayLayout), err)
		return 1
	}

	r := report.Run
	fmt.Printf("run %s %s: status=%s seen=%d inserted=%d updated=%d unchanged=%d rejected=%d ai_scored=%d ai_cached=%d ai_failed=%d (%s)\n",
		r.ID, day.Format(menu.DayLayout), r.Status,
		r.MealsSeen, r.MealsInserted, r.MealsUpdated, r.MealsUnchanged, r.MealsRejected,
		report.AIScored, report.AICached, report.AIFailed, report.Duration.Round(time.Millisecond))
	for _, o := range report.Outcomes {
		line := fmt.Sprintf("  %-24s entries=%d", o.Source, o.Entries)
		if o.Error != "" {
			line += " error=" + o.Error
		}
		fmt.Println(line)
	}
	for _, w := range report.Warnings {
		fmt.Println("  warning:", w)
	}
	if r.Status != menu.RunStatusSucceeded {
		return 1
	}
	return 0
}
