// Package api is the read-only trace inspection server: a thin gin+cors
// HTTP surface over internal/tracedb, used to browse completed runs
// without re-parsing their trace files. Adapted from internal/api's
// gin.Default()+cors.DefaultConfig() wiring and route-group layout,
// repurposed from mutable simulation CRUD to a read-only run/event view.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/halvorsen/schedsim-go/internal/tracedb"
)

// Server is the read-only inspection API.
type Server struct {
	router *gin.Engine
	db     *tracedb.DB
	port   string
}

// NewServer constructs the inspection server against an open trace
// database.
func NewServer(db *tracedb.DB, port string) *Server {
	router := gin.Default()

	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	config.AllowMethods = []string{"GET", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(config))

	s := &Server{router: router, db: db, port: port}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")

	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)
	api.GET("/runs/:id/events", s.getEvents)
	api.GET("/runs/:id/energy", s.getEnergy)
	api.GET("/health", s.healthCheck)
}

// Start blocks serving on the configured port.
func (s *Server) Start() error {
	return s.router.Run(":" + s.port)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now()})
}

func (s *Server) listRuns(c *gin.Context) {
	var runs []tracedb.Run
	if err := s.db.Order("created_at desc").Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) getRun(c *gin.Context) {
	id := c.Param("id")
	var run tracedb.Run
	if err := s.db.First(&run, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getEvents(c *gin.Context) {
	id := c.Param("id")

	limit := 1000
	if l := c.Query("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			limit = v
		}
	}

	q := s.db.Where("run_id = ?", id).Order("time asc, id asc").Limit(limit)
	if t := c.Query("type"); t != "" {
		q = q.Where("type = ?", t)
	}

	var events []tracedb.Event
	if err := q.Find(&events).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) getEnergy(c *gin.Context) {
	id := c.Param("id")
	var totals []tracedb.EnergyTotal
	if err := s.db.Where("run_id = ?", id).Find(&totals).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, totals)
}
