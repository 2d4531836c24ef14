package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"videodetect/internal/repository/sqlite"
	"videodetect/internal/services/storage"
)

func main() {
	dbPath := flag.String("db", filepath.Join("data", "detections.db"), "Database path")
	list := flag.Bool("list", false, "List archived runs")
	runID := flag.String("run", "", "Run ID to export")
	out := flag.String("out", "", "Output workbook (defaults to detections_<run>.xlsx)")
	flag.Parse()

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	runs := sqlite.NewRunRepository(db)
	detections := sqlite.NewDetectionRepository(db)

	if *list {
		all, err := runs.GetAll()
		if err != nil {
			log.Fatalf("Failed to list runs: %v", err)
		}
		if len(all) == 0 {
			fmt.Println("No runs archived")
			return
		}
		for _, r := range all {
			fmt.Printf("%s  %-22s %5d detections  %s\n", r.ID, r.Mode, r.Detections, r.Source)
		}
		return
	}

	if *runID == "" {
		flag.Usage()
		return
	}

	run, err := runs.GetByRunID(*runID)
	if err != nil {
		log.Fatalf("Failed to load run: %v", err)
	}
	if run == nil {
		log.Fatalf("Run %s not found in %s", *runID, *dbPath)
	}

	records, err := detections.GetByRunID(run.ID)
	if err != nil {
		log.Fatalf("Failed to load detections: %v", err)
	}

	path := *out
	if path == "" {
		path = "detections_" + run.ID + ".xlsx"
	}
	if err := storage.WriteXLSX(context.Background(), path, records); err != nil {
		log.Fatalf("Failed to write %s: %v", path, err)
	}
	fmt.Printf("Exported %d detections of run %s to %s\n", len(records), run.ID, path)

	lines, err := labelSummary(detections, run.ID)
	if err != nil {
		log.Printf("Failed to count labels: %v", err)
		return
	}
	for _, line := range lines {
		fmt.Println(line)
	}
}

type labelCounter interface {
	CountByLabel(runID string) (map[string]int, error)
}

// labelSummary formats the per-label counts of a run, sorted by label.
func labelSummary(repo labelCounter, runID string) ([]string, error) {
	counts, err := repo.CountByLabel(runID)
	if err != nil {
		return nil, fmt.Errorf("count labels of run %s: %w", runID, err)
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	lines := make([]string, len(labels))
	for i, label := range labels {
		lines[i] = fmt.Sprintf("   %-16s %d", label, counts[label])
	}
	return lines, nil
}
