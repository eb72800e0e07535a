package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"longform-scriptgen/internal/config"
	"longform-scriptgen/internal/domain/model"
	pg "longform-scriptgen/internal/infra/db/postgres"
	"longform-scriptgen/internal/usecase"
)

// batchFile is the YAML layout accepted by -file:
//
//	jobs:
//	  - title: The Lighthouse Keeper
//	    concept: A keeper who never left the island
//	    duration_minutes: 30
type batchFile struct {
	Jobs []model.JobInput `yaml:"jobs"`
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	file := flag.String("file", "", "YAML file with a jobs list")
	title := flag.String("title", "", "title of a single job")
	concept := flag.String("concept", "", "concept of a single job")
	minutes := flag.Int("minutes", 20, "target duration of a single job")
	flag.Parse()

	inputs, err := collect(*file, *title, *concept, *minutes)
	if err != nil {
		log.Fatalf("input: %v", err)
	}

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	store := usecase.NewJobStore(pg.NewPostgresJobRepo(pool, nil), nil)
	library := usecase.NewLibraryUseCase(store, nil, nil)

	failed := 0
	for _, in := range inputs {
		job, err := library.Enqueue(ctx, in, model.SourceAutomation)
		if err != nil {
			failed++
			fmt.Printf("skipped %q: %v\n", in.Title, err)
			continue
		}
		fmt.Printf("queued: %s (id=%s, minutes=%d)\n", job.Title, job.ID, job.DurationMinutes)
	}
	fmt.Printf("%d queued, %d skipped.\n", len(inputs)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func collect(file, title, concept string, minutes int) ([]model.JobInput, error) {
	if file == "" {
		if title == "" {
			return nil, errors.New("either -file or -title is required")
		}
		return []model.JobInput{{Title: title, Concept: concept, DurationMinutes: minutes}}, nil
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var bf batchFile
	if err := yaml.Unmarshal(b, &bf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	if len(bf.Jobs) == 0 {
		return nil, fmt.Errorf("%s has no jobs", file)
	}
	return bf.Jobs, nil
}
