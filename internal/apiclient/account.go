package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/qrpay-labs/merchant-console/internal/apperror"
)

// RegisterRequest is the merchant sign-up form.
type RegisterRequest struct {
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

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register creates a merchant account and returns the backend's confirmation message.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" || strings.TrimSpace(req.CompanyName) == "" ||
		strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.Phone) == "" {
		return "", apperror.Validation("All registration fields are required.")
	}
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodPost, "/register", false, req, &raw); err != nil {
		return "", err
	}
	return registerMessage(raw), nil
}

func registerMessage(raw json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	return "Registration successful."
}

// Login exchanges username and password for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return "", apperror.Validation("Username and password are required.")
	}
	var resp loginResponse
	if err := c.call(ctx, http.MethodPost, "/login", false, loginRequest{Username: username, Password: password}, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", apperror.Server(http.StatusOK, "Login response carried no access token.")
	}
	return resp.AccessToken, nil
}
