package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/database"
	"github.com/quizdesk/quizdesk-backend/internal/logger"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"golang.org/x/crypto/bcrypt"
)

// Seeds one teacher, ten students and a demo quiz so a fresh install has
// something to click on. All seeded accounts share the password below.
const seedPassword = "quizdesk-demo"

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	userService := service.NewUserService(userRepo, log)

	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash seed password")
	}

	fmt.Println("=== Seeding Demo Data ===")

	teacher, err := userService.Register(ctx, "Demo Teacher", "teacher@quizdesk.local", string(hash), model.RoleTeacher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create demo teacher")
	}
	fmt.Printf("Created teacher (ID: %d)\n", teacher.ID)

	names := []string{
		"Alice Turner", "Ben Okafor", "Carla Mendes", "Daniel Kovacs", "Elif Demir",
		"Franco Rossi", "Grace Liu", "Hugo Petit", "Ines Halim", "Jonas Berg",
	}
	created := 0
	for i, name := range names {
		email := fmt.Sprintf("student%d@quizdesk.local", i+1)
		if _, err := userService.Register(ctx, name, email, string(hash), model.RoleStudent); err != nil {
			fmt.Printf("Error creating student %s: %v\n", email, err)
			continue
		}
		created++
	}
	fmt.Printf("Created %d/%d students\n", created, len(names))

	// Demo quiz with one question of each auto-scored type plus a free
	// text one. Authoring has no service layer here, so plain SQL.
	quizID := uuid.New()
	_, err = pool.Exec(ctx,
		`INSERT INTO quizzes
		   (id, title, description, owner_id, duration_minutes, pass_percentage,
		    max_attempts, is_active, randomize_questions, shuffle_options,
		    show_results_immediately)
		 VALUES ($1, $2, $3, $4, 10, 70, 3, TRUE, TRUE, TRUE, TRUE)`,
		quizID, "Go Fundamentals", "A short demo quiz about the Go language.", teacher.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create demo quiz")
	}

	type seedOption struct {
		text    string
		correct bool
	}
	type seedQuestion struct {
		text    string
		qtype   model.QuestionType
		marks   int
		options []seedOption
	}

	questions := []seedQuestion{
		{
			text: "Which keyword starts a goroutine?", qtype: model.QuestionTypeSingle, marks: 2,
			options: []seedOption{{"go", true}, {"async", false}, {"spawn", false}, {"run", false}},
		},
		{
			text: "Which of these are built-in Go types?", qtype: model.QuestionTypeMultiple, marks: 3,
			options: []seedOption{{"rune", true}, {"complex128", true}, {"decimal", false}, {"char", false}},
		},
		{
			text: "A nil map can be read from without panicking.", qtype: model.QuestionTypeTrueFalse, marks: 1,
			options: []seedOption{{"True", true}, {"False", false}},
		},
		{
			text: "Explain when you would choose a buffered channel over an unbuffered one.", qtype: model.QuestionTypeShortAnswer, marks: 4,
		},
	}

	for i, q := range questions {
		questionID := uuid.New()
		_, err := pool.Exec(ctx,
			`INSERT INTO questions (id, quiz_id, question_text, question_type, marks, is_required, sort_order)
			 VALUES ($1, $2, $3, $4, $5, TRUE, $6)`,
			questionID, quizID, q.text, q.qtype, q.marks, i+1)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create demo question")
		}
		for j, o := range q.options {
			_, err := pool.Exec(ctx,
				`INSERT INTO options (id, question_id, option_text, is_correct, sort_order)
				 VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), questionID, o.text, o.correct, j+1)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create demo option")
			}
		}
	}

	fmt.Printf("Created demo quiz %s with %d questions\n", quizID, len(questions))
	fmt.Println("\nSeed completed! Password for every account:", seedPassword)
}
