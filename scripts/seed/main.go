// Command seed provisions the initial admin account and a starter subject
// catalog. Safe to re-run: existing rows are left untouched.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dbtc-online/enrollment-api/internal/models"
	"github.com/dbtc-online/enrollment-api/internal/repository"
	"github.com/dbtc-online/enrollment-api/pkg/config"
	"github.com/dbtc-online/enrollment-api/pkg/database"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

func main() {
	var (
		adminEmail    string
		adminPassword string
		withSubjects  bool
	)
	flag.StringVar(&adminEmail, "admin-email", "admin@dbtc.edu.ph", "Admin account email")
	flag.StringVar(&adminPassword, "admin-password", "", "Admin account password (required)")
	flag.BoolVar(&withSubjects, "subjects", true, "Seed the starter subject catalog")
	flag.Parse()

	if adminPassword == "" {
		log.Fatal("-admin-password is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := repository.NewUserRepository(db)
	if _, err := users.FindByEmail(ctx, adminEmail); err == nil {
		fmt.Printf("admin %s already exists, skipping\n", adminEmail)
	} else if appErrors.FromError(err).Code != appErrors.ErrNotFound.Code {
		log.Fatalf("failed to look up admin: %v", err)
	} else {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}
		admin := &models.User{
			Email:        adminEmail,
			PasswordHash: string(hash),
			Role:         models.RoleAdmin,
			Active:       true,
		}
		if err := users.Create(ctx, nil, admin); err != nil {
			log.Fatalf("failed to create admin: %v", err)
		}
		fmt.Printf("created admin %s\n", adminEmail)
	}

	if !withSubjects {
		return
	}

	subjects := repository.NewSubjectRepository(db)
	existing, err := subjects.List(ctx, models.SubjectFilter{})
	if err != nil {
		log.Fatalf("failed to list subjects: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d subjects already present, skipping catalog\n", len(existing))
		return
	}

	for _, subject := range starterCatalog() {
		s := subject
		if err := subjects.Create(ctx, &s); err != nil {
			log.Fatalf("failed to create subject %s: %v", s.SubjectCode, err)
		}
	}
	fmt.Printf("seeded %d subjects\n", len(starterCatalog()))
}

func starterCatalog() []models.Subject {
	return []models.Subject{
		{SubjectCode: "GEN-MATH-11", SubjectName: "General Mathematics", Units: 3, Schedule: "MWF 8:00-9:00", Strand: "", GradeLevel: "11", Semester: "1st", MaxStudents: 40},
		{SubjectCode: "ORAL-COMM-11", SubjectName: "Oral Communication", Units: 3, Schedule: "MWF 9:00-10:00", Strand: "", GradeLevel: "11", Semester: "1st", MaxStudents: 40},
		{SubjectCode: "PR1-STEM-11", SubjectName: "Pre-Calculus", Units: 3, Schedule: "TTh 8:00-9:30", Strand: "STEM", GradeLevel: "11", Semester: "1st", MaxStudents: 35},
		{SubjectCode: "FABM1-ABM-11", SubjectName: "Fundamentals of ABM 1", Units: 3, Schedule: "TTh 9:30-11:00", Strand: "ABM", GradeLevel: "11", Semester: "1st", MaxStudents: 35},
		{SubjectCode: "PROG1-ICT-11", SubjectName: "Computer Programming 1", Units: 3, Schedule: "TTh 13:00-14:30", Strand: "ICT", GradeLevel: "11", Semester: "1st", MaxStudents: 30},
	}
}
