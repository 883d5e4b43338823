package api

// TokenResponse представляет выпущенный access token
type TokenResponse struct {
	AccessToken string `json:"access_token"` // JWT access token
	TokenType   string `json:"token_type"`   // всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`   // время жизни access token в секундах
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// HealthResponse is returned by the health endpoints
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time,omitempty"`
}
