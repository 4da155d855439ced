// Package devbackend is a development implementation of the QR provisioning backend's
// HTTP contract. The console talks to it exactly as it talks to the real service.
package devbackend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/qrpay-labs/merchant-console/internal/model"
)

// Server wires the backend's HTTP handlers.
type Server struct {
	app       *fiber.App
	store     *Store
	auth      *Auth
	qrBaseURL string
}

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	CompanyName string `json:"company_name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type deviceRequest struct {
	Name            string `json:"name"`
	DeviceName      string `json:"device_name"`
	ApplicationCode string `json:"application_code"`
	SecretKey       string `json:"secret_key"`
}

type deviceResponse struct {
	ID              uint64 `json:"id"`
	DeviceName      string `json:"device_name"`
	ApplicationCode string `json:"application_code"`
	SecretKey       string `json:"secret_key"`
}

type generateQRRequest struct {
	Amount   *float64       `json:"amount"`
	DeviceID model.DeviceID `json:"device_id"`
}

// New builds a backend server instance.
func New(store *Store, auth *Auth, qrBaseURL string) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "qr-backend-dev",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := http.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"detail": err.Error()})
		},
	})
	s := &Server{
		app:       app,
		store:     store,
		auth:      auth,
		qrBaseURL: strings.TrimRight(qrBaseURL, "/"),
	}
	s.registerRoutes()
	return s
}

// Handler exposes the app as a net/http handler, for embedding behind httptest or another mux.
func (s *Server) Handler() http.HandlerFunc {
	return adaptor.FiberApp(s.app)
}

// Start listens and serves HTTP traffic.
func (s *Server) Start(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Post("/register", s.handleRegister)
	s.app.Post("/login", s.handleLogin)
	s.app.Get("/qr/:file", s.handleQRImage)

	s.app.Get("/devices", s.requireToken, s.handleListDevices)
	s.app.Post("/add-device", s.requireToken, s.handleAddDevice)
	s.app.Put("/devices/:id", s.requireToken, s.handleUpdateDevice)
	s.app.Delete("/devices/:id", s.requireToken, s.handleDeleteDevice)
	s.app.Post("/generate-qr", s.requireToken, s.handleGenerateQR)
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, http.StatusBadRequest, "Invalid request body")
	}
	for field, value := range map[string]string{
		"username":     req.Username,
		"password":     req.Password,
		"company_name": req.CompanyName,
		"address":      req.Address,
		"phone":        req.Phone,
	} {
		if strings.TrimSpace(value) == "" {
			return s.fail(c, http.StatusUnprocessableEntity, "Field required: "+field)
		}
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, "Could not register user")
	}
	user := &User{
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		CompanyName:  req.CompanyName,
		Address:      req.Address,
		Phone:        req.Phone,
	}
	if err := s.store.CreateUser(c.UserContext(), user); err != nil {
		if errors.Is(err, ErrExists) {
			return s.fail(c, http.StatusBadRequest, "Username already registered")
		}
		return s.fail(c, http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"message": "User registered successfully"})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, http.StatusBadRequest, "Invalid request body")
	}
	user, err := s.store.GetUser(c.UserContext(), strings.TrimSpace(req.Username))
	if err != nil || !CheckPassword(user.PasswordHash, req.Password) {
		return s.fail(c, http.StatusUnauthorized, "Incorrect username or password")
	}
	token, err := s.auth.Issue(user.Username)
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, "Could not issue token")
	}
	return c.JSON(fiber.Map{"access_token": token, "token_type": "bearer"})
}

func (s *Server) handleListDevices(c *fiber.Ctx) error {
	devices, err := s.store.ListDevices(c.UserContext(), owner(c))
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, err.Error())
	}
	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, toResponse(d))
	}
	return c.JSON(out)
}

func (s *Server) handleAddDevice(c *fiber.Ctx) error {
	req, ok := s.parseDevice(c)
	if !ok {
		return nil
	}
	device := &Device{
		Owner:           owner(c),
		Name:            req.name(),
		ApplicationCode: req.ApplicationCode,
		SecretKey:       req.SecretKey,
	}
	if err := s.store.CreateDevice(c.UserContext(), device); err != nil {
		return s.storeFailure(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(device))
}

func (s *Server) handleUpdateDevice(c *fiber.Ctx) error {
	id, err := deviceID(c.Params("id"))
	if err != nil {
		return s.fail(c, http.StatusNotFound, "Device not found")
	}
	req, ok := s.parseDevice(c)
	if !ok {
		return nil
	}
	device, err := s.store.ReplaceDevice(c.UserContext(), owner(c), id, req.name(), req.ApplicationCode, req.SecretKey)
	if err != nil {
		return s.storeFailure(c, err)
	}
	return c.JSON(toResponse(device))
}

func (s *Server) handleDeleteDevice(c *fiber.Ctx) error {
	id, err := deviceID(c.Params("id"))
	if err != nil {
		return s.fail(c, http.StatusNotFound, "Device not found")
	}
	if err := s.store.DeleteDevice(c.UserContext(), owner(c), id); err != nil {
		return s.storeFailure(c, err)
	}
	return c.JSON(fiber.Map{"message": "Device deleted"})
}

func (s *Server) handleGenerateQR(c *fiber.Ctx) error {
	var req generateQRRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, http.StatusUnprocessableEntity, "Invalid request body")
	}
	if req.Amount == nil || *req.Amount <= 0 {
		return s.fail(c, http.StatusUnprocessableEntity, "Amount must be greater than zero")
	}
	id, err := deviceID(req.DeviceID.String())
	if err != nil {
		return s.fail(c, http.StatusNotFound, "Device not found")
	}
	device, err := s.store.GetDevice(c.UserContext(), owner(c), id)
	if err != nil {
		return s.storeFailure(c, err)
	}
	ref := fmt.Sprintf("%s/%s.png?amount=%.2f&app=%s", s.qrBaseURL, uuid.NewString(), *req.Amount, device.ApplicationCode)
	log.Printf("devbackend: qr generated for device %d (%s) amount %.2f", device.ID, device.Owner, *req.Amount)
	return c.JSON(fiber.Map{"qr_url": ref})
}

func (s *Server) requireToken(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Get("token"))
	if token == "" {
		return s.fail(c, http.StatusUnauthorized, "Not authenticated")
	}
	claims, err := s.auth.Validate(token)
	if err != nil {
		return s.fail(c, http.StatusUnauthorized, "Invalid token")
	}
	c.Locals("username", claims.Username)
	return c.Next()
}

// parseDevice decodes a create/update body. When it reports false the error response has
// already been written.
func (s *Server) parseDevice(c *fiber.Ctx) (*deviceRequest, bool) {
	var req deviceRequest
	if err := c.BodyParser(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	missing := ""
	switch {
	case strings.TrimSpace(req.name()) == "":
		missing = "name"
	case strings.TrimSpace(req.ApplicationCode) == "":
		missing = "application_code"
	case strings.TrimSpace(req.SecretKey) == "":
		missing = "secret_key"
	}
	if missing != "" {
		s.fail(c, http.StatusUnprocessableEntity, "Field required: "+missing)
		return nil, false
	}
	return &req, true
}

func (s *Server) storeFailure(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return s.fail(c, http.StatusNotFound, "Device not found")
	case errors.Is(err, ErrDuplicateCode):
		return s.fail(c, http.StatusBadRequest, ErrDuplicateCode.Error())
	}
	return s.fail(c, http.StatusInternalServerError, err.Error())
}

// fail writes the backend's {"detail": ...} error body.
func (s *Server) fail(c *fiber.Ctx, status int, detail string) error {
	return c.Status(status).JSON(fiber.Map{"detail": detail})
}

func (r *deviceRequest) name() string {
	if strings.TrimSpace(r.Name) != "" {
		return r.Name
	}
	return r.DeviceName
}

func owner(c *fiber.Ctx) string {
	name, _ := c.Locals("username").(string)
	return name
}

func deviceID(raw string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
}

func toResponse(d *Device) deviceResponse {
	return deviceResponse{
		ID:              d.ID,
		DeviceName:      d.Name,
		ApplicationCode: d.ApplicationCode,
		SecretKey:       d.SecretKey,
	}
}
