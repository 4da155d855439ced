package model

// StatusRes reports console health for /healthz.
type StatusRes struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
	Backend       string `json:"backend"`
}
