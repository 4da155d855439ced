package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/qrpay-labs/merchant-console/internal/apiclient"
	"github.com/qrpay-labs/merchant-console/internal/apperror"
	"github.com/qrpay-labs/merchant-console/internal/config"
	"github.com/qrpay-labs/merchant-console/internal/dashboard"
	"github.com/qrpay-labs/merchant-console/internal/model"
	"github.com/qrpay-labs/merchant-console/internal/service"
	"github.com/qrpay-labs/merchant-console/internal/session"
	"github.com/qrpay-labs/merchant-console/internal/storage"
)

const msgNotAuthenticated = "Not authenticated."

// Server wires HTTP handlers.
type Server struct {
	app     *fiber.App
	cfg     *config.Config
	client  *apiclient.Client
	session *session.Store
	logSvc  *service.QRLogService
	store   storage.Store

	mu    sync.Mutex
	board *dashboard.Controller
}

// New builds a server instance.
func New(cfg *config.Config, store storage.Store, sess *session.Store, client *apiclient.Client, logSvc *service.QRLogService) *Server {
	app := fiber.New(fiber.Config{
		IdleTimeout:  cfg.HTTP.ReadTimeout,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		AppName:      "merchant-console",
	})
	s := &Server{
		app:     app,
		cfg:     cfg,
		client:  client,
		session: sess,
		logSvc:  logSvc,
		store:   store,
	}
	s.registerRoutes()
	return s
}

// Start listens and serves HTTP traffic.
func (s *Server) Start() error {
	return s.app.Listen(s.cfg.HTTP.Addr)
}

// Handler exposes the app as a net/http handler.
func (s *Server) Handler() http.HandlerFunc {
	return adaptor.FiberApp(s.app)
}

// Shutdown closes the dashboard and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.board != nil {
		s.board.Close()
		s.board = nil
	}
	s.mu.Unlock()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.handleHealth)

	s.app.Post("/auth/register", s.handleRegister)
	s.app.Post("/auth/login", s.handleLogin)
	s.app.Post("/auth/logout", s.handleLogout)
	s.app.Get("/auth/profile", s.handleProfile)

	board := s.app.Group("/api/dashboard", s.requireSession)
	board.Get("/", s.handleState)
	board.Post("/refresh", s.handleRefresh)
	board.Post("/form/add", s.handleBeginAdd)
	board.Post("/form/edit/:id", s.handleBeginEdit)
	board.Put("/form", s.handleSetDraft)
	board.Post("/form/submit", s.handleSubmit)
	board.Delete("/form", s.handleCancel)
	board.Delete("/devices/:id", s.handleDelete)
	board.Put("/selection", s.handleSelect)
	board.Post("/qr", s.handleGenerate)

	logGroup := s.app.Group("/api/qr/log", s.requireSession)
	logGroup.Get("/list", s.handleLogList)
	logGroup.Get("/count/date", s.handleLogCountDate)
	logGroup.Get("/count/status", s.handleLogCountStatus)
	logGroup.Get("/count/device", s.handleLogCountDevice)

	s.app.Get("/api/summary", s.requireSession, s.handleSummary)

	s.serveFrontend()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(model.StatusRes{
		Status:        "ok",
		Authenticated: s.session.Authenticated(),
		Backend:       s.client.BaseURL(),
	})
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req apiclient.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.Error("Invalid request body."))
	}
	msg, err := s.client.Register(c.UserContext(), req)
	if err != nil {
		return s.fail(c, err, "Registration failed.")
	}
	return c.JSON(model.Success(msg, nil))
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.Error("Invalid request body."))
	}
	token, err := s.client.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return s.fail(c, err, "Login failed.")
	}
	if err := s.session.SetCredential(c.UserContext(), token); err != nil {
		log.Printf("store credential: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(model.Error("Could not store session."))
	}
	board := s.mount()
	// an unreachable backend only shows up in the dashboard's error slot
	_ = board.Refresh(c.UserContext())
	return c.JSON(model.Success("Login successful.", fiber.Map{"authenticated": true}))
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	s.unmount()
	if err := s.session.Clear(c.UserContext()); err != nil {
		log.Printf("clear credential: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(model.Error("Could not clear session."))
	}
	return c.JSON(model.Success("Logged out.", nil))
}

func (s *Server) handleProfile(c *fiber.Ctx) error {
	return c.JSON(model.Success("ok", fiber.Map{
		"authenticated": s.session.Authenticated(),
	}))
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return s.state(c, "ok")
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	if err := s.dashboard(c).Refresh(c.UserContext()); err != nil {
		return s.fail(c, err, dashboard.MsgFetchFailed)
	}
	return s.state(c, "Devices refreshed.")
}

func (s *Server) handleBeginAdd(c *fiber.Ctx) error {
	if err := s.dashboard(c).BeginAdd(); err != nil {
		return s.fail(c, err, "")
	}
	return s.state(c, "ok")
}

func (s *Server) handleBeginEdit(c *fiber.Ctx) error {
	id := model.DeviceID(c.Params("id"))
	if err := s.dashboard(c).BeginEdit(id); err != nil {
		return s.fail(c, err, "")
	}
	return s.state(c, "ok")
}

func (s *Server) handleSetDraft(c *fiber.Ctx) error {
	var draft model.DeviceDraft
	if err := c.BodyParser(&draft); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.Error("Invalid request body."))
	}
	if err := s.dashboard(c).SetDraft(draft); err != nil {
		return s.fail(c, err, "")
	}
	return s.state(c, "ok")
}

func (s *Server) handleSubmit(c *fiber.Ctx) error {
	board := s.dashboard(c)
	mode := board.Snapshot().Mode
	if err := board.Submit(c.UserContext()); err != nil {
		fallback := dashboard.MsgAddFailed
		if mode == dashboard.ModeEditing {
			fallback = dashboard.MsgUpdateFailed
		}
		return s.fail(c, err, fallback)
	}
	if mode == dashboard.ModeEditing {
		return s.state(c, "Device updated.")
	}
	return s.state(c, "Device added.")
}

func (s *Server) handleCancel(c *fiber.Ctx) error {
	s.dashboard(c).Cancel()
	return s.state(c, "ok")
}

func (s *Server) handleDelete(c *fiber.Ctx) error {
	id := model.DeviceID(c.Params("id"))
	if err := s.dashboard(c).Delete(c.UserContext(), id); err != nil {
		if apperror.Is(err, apperror.KindServer) || apperror.Is(err, apperror.KindNetwork) {
			return c.Status(statusOf(err)).JSON(model.Error(dashboard.MsgDeleteFailed))
		}
		return s.fail(c, err, "")
	}
	return s.state(c, "Device deleted.")
}

func (s *Server) handleSelect(c *fiber.Ctx) error {
	var req struct {
		DeviceID model.DeviceID `json:"deviceId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.Error("Invalid request body."))
	}
	if err := s.dashboard(c).Select(req.DeviceID); err != nil {
		return s.fail(c, err, "")
	}
	return s.state(c, "ok")
}

func (s *Server) handleGenerate(c *fiber.Ctx) error {
	var req struct {
		Amount *string `json:"amount"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(model.Error("Invalid request body."))
		}
	}
	board := s.dashboard(c)
	if req.Amount != nil {
		board.SetAmount(*req.Amount)
	}
	result, err := board.Generate(c.UserContext())
	if err != nil {
		return s.fail(c, err, dashboard.MsgGenerateFailed)
	}
	return c.JSON(model.Success("QR code generated.", result))
}

func (s *Server) handleLogList(c *fiber.Ctx) error {
	page, err := s.logSvc.Query(c.UserContext(), parseLogFilter(c))
	if err != nil {
		return s.fail(c, err, "")
	}
	return c.JSON(model.Success("ok", page))
}

func (s *Server) handleLogCountDate(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.logSvc.CountByDate(c.UserContext(), c.Query("dateType", "day"), begin, end)
	if err != nil {
		return s.fail(c, err, "")
	}
	return c.JSON(model.Success("ok", data))
}

func (s *Server) handleLogCountStatus(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.logSvc.CountByStatus(c.UserContext(), begin, end)
	if err != nil {
		return s.fail(c, err, "")
	}
	return c.JSON(model.Success("ok", data))
}

func (s *Server) handleLogCountDevice(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.logSvc.CountByDevice(c.UserContext(), begin, end)
	if err != nil {
		return s.fail(c, err, "")
	}
	return c.JSON(model.Success("ok", data))
}

func (s *Server) handleSummary(c *fiber.Ctx) error {
	st := s.dashboard(c).Snapshot()
	logs, err := s.store.ListQRLogs(c.UserContext())
	if err != nil {
		log.Printf("list qr logs: %v", err)
		logs = nil
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
	todayStart := time.Now().UTC().Truncate(24 * time.Hour)
	todayGenerated := 0
	todaySuccess := 0
	for _, entry := range logs {
		if entry.CreatedAt.Before(todayStart) {
			break
		}
		todayGenerated++
		if entry.Status == model.QRStatusSuccess {
			todaySuccess++
		}
	}
	recent := make([]fiber.Map, 0, 5)
	for i := 0; i < len(logs) && i < 5; i++ {
		recent = append(recent, fiber.Map{
			"device": logs[i].DeviceName,
			"amount": logs[i].Amount,
			"status": logs[i].Status,
			"time":   logs[i].CreatedAt.Local().Format("01-02 15:04"),
		})
	}
	return c.JSON(model.Success("ok", fiber.Map{
		"devices":        len(st.Devices),
		"todayGenerated": todayGenerated,
		"todaySuccess":   todaySuccess,
		"recentLogs":     recent,
	}))
}

// dashboardView is the state as rendered to clients, with secret keys masked in the list.
type dashboardView struct {
	dashboard.State
	Devices []model.DeviceView `json:"devices"`
}

func (s *Server) state(c *fiber.Ctx, msg string) error {
	st := s.dashboard(c).Snapshot()
	view := dashboardView{State: st, Devices: make([]model.DeviceView, 0, len(st.Devices))}
	for _, d := range st.Devices {
		view.Devices = append(view.Devices, model.ViewOf(d))
	}
	return c.JSON(model.Success(msg, view))
}

// dashboard returns the controller for the current session, building it on first use for a
// session restored from disk. requireSession guarantees a credential is present.
func (s *Server) dashboard(c *fiber.Ctx) *dashboard.Controller {
	s.mu.Lock()
	board := s.board
	created := board == nil
	if created {
		board = dashboard.New(context.Background(), s.client, s.client, s.logSvc)
		s.board = board
	}
	s.mu.Unlock()
	if created {
		// a failed list lands in the error slot
		_ = board.Refresh(c.UserContext())
	}
	return board
}

// mount replaces any existing controller with a fresh one for a new session.
func (s *Server) mount() *dashboard.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board != nil {
		s.board.Close()
	}
	s.board = dashboard.New(context.Background(), s.client, s.client, s.logSvc)
	return s.board
}

func (s *Server) unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board != nil {
		s.board.Close()
		s.board = nil
	}
}

func (s *Server) requireSession(c *fiber.Ctx) error {
	if !s.session.Authenticated() {
		return c.Status(http.StatusUnauthorized).JSON(model.AuthError(msgNotAuthenticated))
	}
	return c.Next()
}

// fail maps err to a status and writes the one-line message the operator sees.
func (s *Server) fail(c *fiber.Ctx, err error, fallback string) error {
	status := statusOf(err)
	if fallback == "" {
		fallback = err.Error()
	}
	msg := apperror.Message(err, fallback)
	if apperror.Is(err, apperror.KindAuth) {
		return c.Status(status).JSON(model.AuthError(msg))
	}
	if status >= http.StatusInternalServerError && apperror.KindOf(err) == 0 {
		log.Printf("%s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(model.Error(msg))
}

func statusOf(err error) int {
	var e *apperror.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case apperror.KindValidation:
			return http.StatusBadRequest
		case apperror.KindAuth:
			return http.StatusUnauthorized
		case apperror.KindServer:
			if e.Status >= 400 && e.Status < 500 {
				return e.Status
			}
		}
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, dashboard.ErrBusy),
		errors.Is(err, dashboard.ErrModeConflict),
		errors.Is(err, dashboard.ErrNoForm),
		errors.Is(err, dashboard.ErrAborted):
		return http.StatusConflict
	case errors.Is(err, dashboard.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) serveFrontend() {
	dir := strings.TrimSpace(s.cfg.Frontend.Dir)
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return
	}
	s.app.Static("/", dir, fiber.Static{
		Index:    "index.html",
		Compress: true,
	})
}

func parseLogFilter(c *fiber.Ctx) model.QRLogFilter {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize", "10"))
	begin, end := parseTimeRange(c)
	return model.QRLogFilter{
		DeviceID:  model.DeviceID(c.Query("deviceId")),
		Status:    c.Query("status"),
		BeginTime: begin,
		EndTime:   end,
		Page:      page,
		PageSize:  pageSize,
	}
}

func parseTimeRange(c *fiber.Ctx) (*time.Time, *time.Time) {
	begin := parseTime(c.Query("beginTime"))
	end := parseTime(c.Query("endTime"))
	return begin, end
}

func parseTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
