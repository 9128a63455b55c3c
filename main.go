package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"seqquest/controller"
	"seqquest/model"
	"seqquest/platform"
	"seqquest/service"

	_uuid "github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const Version = "0.1.0"

// CORSMiddleware ...
// CORS (Cross-Origin Resource Sharing)
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, UPDATE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "X-Requested-With, Content-Type, Origin, Authorization, Accept, Client-Security-Token, Accept-Encoding, x-access-token")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
		} else {
			c.Next()
		}
	}
}

// RequestIDMiddleware ...
// Generate a unique ID and attach it to each request for future reference or use
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		uuid := _uuid.New()
		c.Writer.Header().Set("X-Request-Id", uuid.String())
		c.Set("requestId", uuid.String())
		c.Next()
	}
}

func LogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		if raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		userAgent := c.Request.UserAgent()
		requestId := c.GetString("requestId")

		logrus.Infof(
			" [%s] %d | %v | %s | %s | %s | %s ",
			requestId,
			status,
			latency,
			clientIP,
			method,
			path,
			userAgent,
		)
	}
}

var tokenService = service.TokenService{}

// TokenAuthMiddleware ...
// Bearer-token middleware for the session administration endpoints
func TokenAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := tokenService.TokenValid(c.Request); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
			return
		}
		c.Next()
	}
}

func main() {
	fmt.Println("Server started...")

	//Load the .env file
	err := godotenv.Load(".env")
	if err != nil {
		fmt.Println("failed to load the env file")
	}

	platform.InitFile("./log", "gin")

	r := gin.Default()
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LogMiddleware())

	//init database
	platform.InitDB()
	model.InstallDB()

	platform.InitLLMClient()
	platform.InitVectorStore()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	})

	v1 := r.Group("/v1")
	{
		question := new(controller.QuestionController)
		v1.POST("/question", question.Generate)
		v1.POST("/question/follow-up", question.FollowUp)
		v1.POST("/question/automatic", question.Automatic)

		session := new(controller.SessionController)
		v1.POST("/token", session.Token)
		v1.GET("/sessions", TokenAuthMiddleware(), session.List)
		v1.GET("/conversations/:id/messages", TokenAuthMiddleware(), session.Messages)
		v1.POST("/sessions/:id/deactivate", TokenAuthMiddleware(), session.Deactivate)
		v1.POST("/conversations/:id/deactivate", TokenAuthMiddleware(), session.DeactivateConversation)
	}

	c := cron.New()
	c.AddFunc("17 3 * * *", service.CleanupIdleSessionsTask)
	c.Start()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	r.Run(":" + port)
}
