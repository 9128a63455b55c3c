package platform

import (
	"fmt"
	"log"
	"os"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	DB *gorm.DB
)

// Config holds the relational store connection settings.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

func InitDB() {
	config := Config{
		Host:     os.Getenv("SQL_HOST"),
		Port:     os.Getenv("SQL_PORT"),
		User:     os.Getenv("SQL_USER"),
		Password: os.Getenv("SQL_PASSWORD"),
		DBName:   os.Getenv("SQL_DBNAME"),
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.User, config.Password, config.Host, config.Port, config.DBName)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
		return
	}
	DB = db
}

// InitTestDB swaps the shared handle for an in-memory sqlite database.
// A single open connection keeps every query on the same memory store.
func InitTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to open test database: %v", err)
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to access test database pool: %v", err)
		return nil
	}
	sqlDB.SetMaxOpenConns(1)
	DB = db
	return db
}
