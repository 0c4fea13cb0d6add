package server

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
)

func TestWebServerOrigins(t *testing.T) {
	opts := DefaultWebOptions()
	opts.AllowedOrigins = []string{"https://app.example.com"}
	s := NewWebServer(opts, nil, logr.Discard())

	assert.True(t, s.allowed("https://app.example.com"))
	assert.False(t, s.allowed("https://evil.example.com"))

	opts.AllowAllOrigins = true
	s = NewWebServer(opts, nil, logr.Discard())
	assert.True(t, s.allowed("https://evil.example.com"))
}

func TestWebOptionsTLS(t *testing.T) {
	opts := DefaultWebOptions()
	assert.False(t, opts.useTLS())
	opts.Cert, opts.Key = "cert.pem", "key.pem"
	assert.True(t, opts.useTLS())
}
