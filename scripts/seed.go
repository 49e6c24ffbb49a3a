//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/auth"
	"github.com/cryptiomt/cryptiomt/internal/database"
	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/pkg/config"
	"github.com/cryptiomt/cryptiomt/pkg/crypto"
	"github.com/cryptiomt/cryptiomt/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Create admin user
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	name := os.Getenv("ADMIN_NAME")

	if email == "" {
		email = "admin@example.com"
	}
	generatedPassword := false
	if password == "" {
		suffix, err := crypto.GenerateRandomString(12)
		if err != nil {
			log.Fatalf("failed to generate admin password: %v", err)
		}
		password = "Adm1n!" + suffix
		generatedPassword = true
	}
	if name == "" {
		name = "Admin"
	}

	resp, err := authService.Register(context.Background(), auth.RegisterInput{
		Email:    email,
		Password: password,
		Name:     name,
		OrgName:  "Demo Hospital",
	})

	if err != nil {
		if err == auth.ErrUserExists {
			fmt.Printf("Admin user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create admin user: %v", err)
	}

	orgID := resp.User.OrganizationID
	now := time.Now().UTC().Unix()

	devices := []models.Device{
		{
			OrganizationID: orgID,
			Name:           "Infusion Pump Ward A",
			Type:           models.DeviceTypeInfusionPump,
			Manufacturer:   "Baxter",
			Model:          "Sigma Spectrum",
			OSVersion:      "Windows CE 6.0",
			Department:     "Ward A",
			OnNetwork:      true,
			HasPHI:         true,
			PHICategory:    "medication_records",
			Source:         "manual",
			LastSeenAt:     now,
		},
		{
			OrganizationID: orgID,
			Name:           "MRI Scanner",
			Type:           models.DeviceTypeImaging,
			Manufacturer:   "Siemens",
			Model:          "Magnetom Aera",
			OSVersion:      "Windows 7",
			Department:     "Radiology",
			OnNetwork:      true,
			HasPHI:         true,
			PHICategory:    "imaging",
			Source:         "manual",
			LastSeenAt:     now,
		},
		{
			OrganizationID: orgID,
			Name:           "Patient Monitor ICU-3",
			Type:           models.DeviceTypeMonitor,
			Manufacturer:   "Philips",
			Model:          "IntelliVue MX450",
			OSVersion:      "Linux 4.19",
			Department:     "ICU",
			OnNetwork:      true,
			Source:         "manual",
			LastSeenAt:     now,
		},
		{
			OrganizationID: orgID,
			Name:           "Lab Analyzer",
			Type:           models.DeviceTypeLab,
			Manufacturer:   "Roche",
			Model:          "Cobas 6000",
			Department:     "Laboratory",
			Source:         "manual",
			LastSeenAt:     now,
		},
	}
	if err := db.Create(&devices).Error; err != nil {
		log.Fatalf("failed to seed devices: %v", err)
	}

	score := 9.8
	vulns := []models.Vulnerability{
		{
			CVEID:       "CVE-2024-0001",
			Description: "Authentication bypass in device management interface",
			PublishedAt: now,
			CVSSScore:   &score,
			Severity:    models.SeverityCritical,
			Vendors:     []string{"philips"},
			Products:    []string{"intellivue mx450"},
		},
	}
	if err := db.Create(&vulns).Error; err != nil {
		log.Fatalf("failed to seed vulnerabilities: %v", err)
	}

	fmt.Printf("Seed complete!\n")
	fmt.Printf("Email: %s\n", resp.User.Email)
	if generatedPassword {
		fmt.Printf("Password: %s\n", password)
	}
	fmt.Printf("Organization: %s\n", resp.User.Organization.Name)
	fmt.Printf("Devices: %d, Vulnerabilities: %d\n", len(devices), len(vulns))
	fmt.Printf("Token: %s\n", resp.Token)
}
