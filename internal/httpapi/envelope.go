package httpapi

import "time"

// Envelope is the uniform response body shape every handler returns:
// {success, data?, error?, timestamp}.
type Envelope[T any] struct {
	Success   bool      `json:"success"`
	Data      T         `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func ok[T any](data T) Envelope[T] {
	return Envelope[T]{Success: true, Data: data, Timestamp: time.Now()}
}

func fail[T any](err error) Envelope[T] {
	return Envelope[T]{Success: false, Error: err.Error(), Timestamp: time.Now()}
}
