package rest

// ResponseError is the plain error payload for 4xx/5xx responses.
type ResponseError struct {
	Message string `json:"message"`
}
