package client

import "context"

// TokenSource supplies the bearer token for backend requests. An empty token
// means the request is sent unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// NoToken sends every request unauthenticated.
type NoToken struct{}

func (NoToken) Token(context.Context) (string, error) { return "", nil }

// StaticToken always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// TokenFunc adapts a function to a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }
