package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"datacleanse/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("usage: go run ./cmd/create_user <username> <password> [organization]")
		os.Exit(2)
	}
	username := os.Args[1]
	password := os.Args[2]
	orgName := "default"
	if len(os.Args) > 3 {
		orgName = os.Args[3]
	}

	dsn := os.Getenv("DB_DSN")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DB_DSN not set in environment")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}

	// ensure role and organization exist
	var role models.Role
	if err := db.Where("name = ?", "user").First(&role).Error; err != nil {
		role = models.Role{Name: "user", Description: "regular user"}
		db.Create(&role)
	}
	var org models.Organization
	if err := db.Where("name = ?", orgName).First(&org).Error; err != nil {
		org = models.Organization{Name: orgName}
		if err := db.Create(&org).Error; err != nil {
			log.Fatalf("failed to create organization %s: %v", orgName, err)
		}
	}

	// check existing
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		fmt.Printf("user %s already exists (id=%d)\n", username, existing.ID)
		os.Exit(0)
	}

	hpw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt failed: %v", err)
	}
	rid := role.ID
	oid := org.ID
	user := models.User{Username: username, HashedPassword: hpw, RoleID: &rid, OrganizationID: &oid}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s id=%d org=%s\n", username, user.ID, orgName)
}
