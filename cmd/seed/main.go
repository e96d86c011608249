package main

import (
	"context"
	"log"
	"time"

	"candidate-pipeline/internal/config"
	"candidate-pipeline/internal/models"
	"candidate-pipeline/internal/store"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()
	if cfg.StoreDriver == "memory" {
		log.Fatalf("seed: memory store does not outlive this process, set STORE_DRIVER=postgres")
	}

	repo, closeRepo, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeRepo()

	stages, err := cfg.Stages()
	if err != nil {
		log.Fatalf("stage template: %v", err)
	}
	seeded, err := store.EnsureStages(ctx, repo, stages)
	if err != nil {
		log.Fatalf("seed stages: %v", err)
	}
	if seeded {
		log.Printf("seeded %d stages", len(stages))
	} else {
		log.Printf("stages already present, leaving them alone")
	}

	existing, err := repo.ListApplications(ctx, models.Query{JobID: demoJobID, Limit: 1})
	if err != nil {
		log.Fatalf("list applications: %v", err)
	}
	if len(existing) > 0 {
		log.Printf("demo applications already present for job %d", demoJobID)
		return
	}

	for _, app := range demoApplications(time.Now().UTC()) {
		created, err := repo.CreateApplication(ctx, app)
		if err != nil {
			log.Fatalf("create application %s: %v", app.Applicant.FullName, err)
		}
		log.Printf("created application id=%d name=%q stage=%s", created.ID, created.Applicant.FullName, created.Stage)
	}
}

const demoJobID = 1

func demoApplications(now time.Time) []models.Application {
	daysAgo := func(n int) *time.Time {
		t := now.AddDate(0, 0, -n)
		return &t
	}
	score := func(v int) *int { return &v }
	return []models.Application{
		{
			JobID: demoJobID, Stage: models.StageNew, Priority: models.PriorityHigh, Rating: 4,
			Tags: []string{"go", "remote"}, Flagged: true, IsNewLead: true, ContactVisible: true,
			JobMatchScore: score(88), ResumeURL: "https://example.com/resumes/ada.pdf", AppliedAt: daysAgo(2),
			Applicant: models.Applicant{FullName: "Ada Lovelace", Email: "ada@example.com", Phone: "+44 20 7946 0001", Location: "London", Skills: []string{"Go", "PostgreSQL"}},
		},
		{
			JobID: demoJobID, Stage: "reviewing", Priority: models.PriorityNormal, Rating: 3,
			Tags: []string{"backend"}, ContactVisible: true, JobMatchScore: score(71), AppliedAt: daysAgo(6),
			Applicant: models.Applicant{FullName: "Grace Hopper", Email: "grace@example.com", Location: "Arlington", Skills: []string{"COBOL", "Compilers"}},
		},
		{
			JobID: demoJobID, Stage: models.StagePhoneScreening, Priority: models.PriorityNormal, Rating: 4,
			ContactVisible: false, JobMatchScore: score(64), AppliedAt: daysAgo(9),
			Applicant: models.Applicant{FullName: "Alan Turing", Email: "alan@example.com", Location: "Manchester", Skills: []string{"Cryptography"}},
		},
		{
			JobID: demoJobID, Stage: "interview", Priority: models.PriorityUrgent, Rating: 5,
			Tags: []string{"go", "kubernetes"}, ContactVisible: true, JobMatchScore: score(93),
			ResumeURL: "https://example.com/resumes/margaret.pdf", AppliedAt: daysAgo(14),
			Applicant: models.Applicant{FullName: "Margaret Hamilton", Email: "margaret@example.com", Location: "Boston", Skills: []string{"Go", "Embedded"}},
		},
		{
			JobID: demoJobID, Stage: "offer", Priority: models.PriorityHigh, Rating: 5,
			ContactVisible: true, JobMatchScore: score(90), AppliedAt: daysAgo(21),
			Applicant: models.Applicant{FullName: "Linus Torvalds", Email: "linus@example.com", Location: "Portland", Skills: []string{"C", "Git"}},
		},
		{
			JobID: demoJobID, Stage: "rejected", Priority: models.PriorityLow, Rating: 1,
			ContactVisible: true, AppliedAt: daysAgo(30),
			Applicant: models.Applicant{FullName: "Charles Babbage", Email: "charles@example.com", Location: "London"},
		},
	}
}
