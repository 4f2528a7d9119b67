// Command plannertest runs the two-stage booking planner against the real
// catalog and a sample dialogue. Useful for checking prompt and model changes
// without a live kiosk session.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/techxpo/clinic-kiosk/internal/catalog"
	appconfig "github.com/techxpo/clinic-kiosk/internal/config"
	"github.com/techxpo/clinic-kiosk/internal/planner"
	"github.com/techxpo/clinic-kiosk/internal/schedule"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

const sampleDialogue = `[user] Chào em, anh muốn đặt lịch khám.
[assistant] Dạ em chào anh, anh cho em xin tên và số điện thoại ạ.
[user] Anh tên Nam, số 0901234567. Mấy hôm nay anh bị đau họng, ho nhiều về đêm.
[assistant] Dạ anh Nam chờ em một chút, em tìm lịch khám phù hợp cho anh ạ.`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	llm, err := planner.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.Stage1Model)
	if err != nil {
		log.Fatalf("gemini client: %v", err)
	}

	cat := catalog.New(catalog.Config{
		CatalogDir: cfg.CatalogDir,
		DataDirs:   []string{cfg.BookingDataDir, cfg.SecondaryDataDir},
		ImageDir:   cfg.HospitalImageDir,
		Logger:     logger,
	})
	scheduler := schedule.NewScheduler(schedule.SchedulerConfig{
		Catalog: cat,
		Store:   schedule.NewInMemoryStore(),
		Grid:    schedule.NewGrid(cfg.WorkStart, cfg.WorkEnd, cfg.SlotMinutes),
		HoldTTL: cfg.HoldTTL,
		Logger:  logger,
	})

	dataDirs := []string{cfg.BookingDataDir, cfg.SecondaryDataDir}
	pl := planner.New(planner.Config{
		LLM:       llm,
		Catalog:   cat,
		Scheduler: scheduler,
		Index: func() catalog.DepartmentsIndex {
			return catalog.LoadDepartmentsIndex(cfg.DepartmentsIndexPath, dataDirs)
		},
		Stage1Model: cfg.Stage1Model,
		Stage2Model: cfg.Stage2Model,
		Logger:      logger,
	})

	targetDate := time.Now().Format("2006-01-02")
	if len(os.Args) > 1 {
		targetDate = os.Args[1]
	}

	fmt.Printf("planning for %s with %s / %s\n\n", targetDate, cfg.Stage1Model, cfg.Stage2Model)

	start := time.Now()
	res, err := pl.Plan(ctx, sampleDialogue, targetDate)
	if err != nil {
		log.Fatalf("plan: %v", err)
	}
	fmt.Printf("planner finished in %v, %d option(s)\n", time.Since(start).Round(time.Millisecond), len(res.Options))

	for i, opt := range res.Options {
		fmt.Printf("  [%d] %s / %s (%s) / %s / %s\n",
			i, opt.Hospital, opt.Department, opt.DepartmentCode, opt.DoctorName, opt.SlotTime)
	}
	if res.Chosen != nil {
		fmt.Printf("chosen: %s / %s / %s\n", res.Chosen.Hospital, res.Chosen.DoctorName, res.Chosen.SlotTime)
	}
}
