package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fruit-quality-eval/backend/internal/analysis"
	"fruit-quality-eval/backend/internal/auth"
	"fruit-quality-eval/backend/internal/grading"
	"fruit-quality-eval/backend/internal/store"
)

const defaultMaxImageBytes = 10 << 20

// Config defines server dependencies.
type Config struct {
	DBPath         string
	AllowedOrigins []string
	SilentDB       bool
	SessionTTL     time.Duration
	RememberTTL    time.Duration
	AnalysisSeed   int64
	MaxImageBytes  int64
}

// Server wires HTTP handlers with persistence, analysis, and grading.
type Server struct {
	db             *store.Database
	analyzer       *analysis.Analyzer
	sessions       *auth.Manager
	notifier       *AnalysisNotifier
	allowedOrigins []string
	maxImageBytes  int64
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	maxImageBytes := cfg.MaxImageBytes
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxImageBytes
	}

	server := &Server{
		db:             db,
		analyzer:       analysis.New(cfg.AnalysisSeed),
		sessions:       auth.NewManager(db, cfg.SessionTTL, cfg.RememberTTL),
		notifier:       NewAnalysisNotifier(),
		allowedOrigins: cfg.AllowedOrigins,
		maxImageBytes:  maxImageBytes,
	}

	if purged, err := server.sessions.PurgeExpired(); err != nil {
		logrus.WithError(err).Warn("purge expired sessions")
	} else if purged > 0 {
		logrus.WithField("sessions", purged).Info("purged expired sessions")
	}

	return server, nil
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)
	r.POST("/api/auth/login", s.handleLogin)

	authed := r.Group("/api", s.sessions.Middleware())
	{
		authed.POST("/auth/logout", s.handleLogout)
		authed.GET("/auth/me", s.handleMe)
		authed.POST("/analyze/apple", s.handleAnalyze)
		authed.GET("/analyze/stream", s.handleAnalysisStream)
		authed.GET("/analyses", s.handleListAnalyses)
		authed.GET("/analyses/:id", s.handleGetAnalysis)
		authed.GET("/export.csv", s.handleExportCSV)
		authed.GET("/export.json", s.handleExportJSON)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	count, err := s.db.CountAnalyses()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"analyses":        count,
		"max_image_bytes": s.maxImageBytes,
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	session, err := s.sessions.Login(req.Email, req.Password, req.Remember)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.renderError(c, http.StatusUnprocessableEntity, err)
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	logrus.WithField("email", session.Email).Info("login issued")
	c.JSON(http.StatusOK, LoginResponse{
		Token:   session.Token,
		User:    UserDTO{Name: session.Name, Email: session.Email},
		Message: "Login successful",
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	session := auth.SessionFrom(c)
	if session != nil {
		if err := s.sessions.Logout(session.Token); err != nil {
			s.renderError(c, http.StatusInternalServerError, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (s *Server) handleMe(c *gin.Context) {
	session := auth.SessionFrom(c)
	if session == nil {
		s.renderError(c, http.StatusUnauthorized, errors.New("no active session"))
		return
	}
	c.JSON(http.StatusOK, UserDTO{Name: session.Name, Email: session.Email})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	start := time.Now()

	fileHeader, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			s.renderError(c, http.StatusBadRequest, errors.New("image file is required"))
		} else {
			s.renderError(c, http.StatusBadRequest, err)
		}
		return
	}
	if fileHeader.Size > s.maxImageBytes {
		s.renderError(c, http.StatusRequestEntityTooLarge,
			fmt.Errorf("image exceeds %d byte limit", s.maxImageBytes))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(src, s.maxImageBytes))
	src.Close()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	result, err := s.analyzer.Analyze(data)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	assessment, err := grading.GradeQuality(grading.AnalysisResult{
		FreshnessScore:    float64(result.FreshnessScore),
		SpoilageRisk:      result.SpoilageRisk,
		PesticideClass:    result.PesticideClass,
		EstimatedWeightKg: result.EstimatedWeightKg,
		Nutrition:         result.Nutrition.Map(),
	})
	if err != nil {
		if errors.Is(err, grading.ErrInvalidInput) {
			s.renderError(c, http.StatusUnprocessableEntity, err)
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	model := store.Analysis{
		Filename:          fileHeader.Filename,
		FreshnessScore:    result.FreshnessScore,
		SpoilageRatio:     result.SpoilageRatio,
		SpoilageRisk:      result.SpoilageRisk,
		DryMatterPercent:  result.DryMatterPercent,
		PesticideClass:    result.PesticideClass,
		PesticideCategory: string(grading.ClassifyPesticide(result.PesticideClass)),
		EstimatedWeightKg: result.EstimatedWeightKg,
		Grade:             string(assessment.Grade),
		GradeText:         assessment.GradeText,
		SafeToEat:         assessment.SafeToEat,
		Message:           assessment.Message,
		ShelfLife:         assessment.ShelfLife,
		ProcessingTimeMs:  time.Since(start).Milliseconds(),
	}
	model.SetNutrition(result.Nutrition.Map())
	model.SetSpectralCurve(result.SpectralCurve)
	model.SetSensorValues(result.SensorValues)

	if err := s.db.SaveAnalysis(&model); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	dto := FromModel(model)
	logrus.WithFields(logrus.Fields{
		"analysis_id": model.ID,
		"grade":       model.Grade,
		"freshness":   model.FreshnessScore,
		"duration_ms": model.ProcessingTimeMs,
	}).Info("analysis completed")

	s.notifier.Broadcast(AnalysisEvent{Type: "analysis", Analysis: &dto})
	c.JSON(http.StatusOK, dto)
}

func (s *Server) handleListAnalyses(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	grade := strings.TrimSpace(c.Query("grade"))
	risk := strings.TrimSpace(c.Query("risk"))
	sort := strings.TrimSpace(c.Query("sort"))
	minFreshness, _ := strconv.Atoi(c.Query("minFreshness"))

	var safeOnly *bool
	if value := strings.TrimSpace(c.Query("safe")); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid safe filter: %s", value))
			return
		}
		safeOnly = &parsed
	}

	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 25
	}

	rows, total, err := s.db.ListAnalyses(store.AnalysisQuery{
		Query:        query,
		Grade:        grade,
		SpoilageRisk: risk,
		SafeOnly:     safeOnly,
		MinFreshness: minFreshness,
		Sort:         sort,
		Offset:       page * pageSize,
		Limit:        pageSize,
	})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	dtos := make([]AnalysisDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	c.JSON(http.StatusOK, AnalysesResponse{Items: dtos, Total: total})
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	row, err := s.db.GetAnalysis(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("analysis %d not found", id))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, FromModel(*row))
}

func (s *Server) handleAnalysisStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("analysis websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("analysis websocket closed")
			} else {
				logrus.WithError(err).Warn("analysis websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) handleExportCSV(c *gin.Context) {
	rows, _, err := s.db.ListAnalyses(store.AnalysisQuery{Limit: -1})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=fruit-quality-export.csv")
	c.Header("Content-Type", "text/csv")

	writer := csv.NewWriter(c.Writer)
	headers := []string{"id", "created_at", "filename", "freshness_score", "spoilage_risk", "pesticide_class", "pesticide_category", "estimated_weight_kg", "grade", "grade_text", "safe_to_eat", "shelf_life", "processing_time_ms"}
	if err := writer.Write(headers); err != nil {
		return
	}
	for _, row := range rows {
		dto := FromModel(row)
		line := []string{
			strconv.FormatUint(uint64(dto.ID), 10),
			dto.CreatedAt.UTC().Format(time.RFC3339),
			dto.Filename,
			strconv.Itoa(dto.FreshnessScore),
			dto.SpoilageRisk,
			dto.PesticideClass,
			dto.PesticideCategory,
			fmt.Sprintf("%.2f", dto.EstimatedWeightKg),
			string(dto.Quality.Grade),
			dto.Quality.GradeText,
			strconv.FormatBool(dto.Quality.SafeToEat),
			dto.Quality.ShelfLife,
			strconv.FormatInt(dto.ProcessingTimeMs, 10),
		}
		if err := writer.Write(line); err != nil {
			return
		}
	}
	writer.Flush()
}

func (s *Server) handleExportJSON(c *gin.Context) {
	rows, _, err := s.db.ListAnalyses(store.AnalysisQuery{Limit: -1})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]AnalysisDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	c.Header("Content-Disposition", "attachment; filename=fruit-quality-export.json")
	c.JSON(http.StatusOK, dtos)
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseUintParam(value string) (uint, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("identifier is required")
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier: %w", err)
	}
	if parsed == 0 {
		return 0, errors.New("identifier must be greater than zero")
	}
	return uint(parsed), nil
}
