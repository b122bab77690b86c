package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	msgNoChallenge     = "No challenge found"
	msgInvalidSig      = "Invalid signature"
	msgTooManyAttempts = "Too many failed attempts"
)

// AuthHandler manages challenge-response authentication
type AuthHandler struct {
	sharedSecret string
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(sharedSecret string) *AuthHandler {
	return &AuthHandler{
		sharedSecret: sharedSecret,
	}
}

// SignChallenge returns the hex HMAC-SHA256 of challenge under secret.
// Clients answer auth.challenge with it.
func SignChallenge(secret, challenge string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(challenge))
	return hex.EncodeToString(h.Sum(nil))
}

// GenerateChallenge generates a cryptographically random 32-byte challenge
func (a *AuthHandler) GenerateChallenge() (string, error) {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return hex.EncodeToString(challenge), nil
}

// VerifySignature verifies an HMAC-SHA256 signature against a challenge
func (a *AuthHandler) VerifySignature(challenge, signature string) bool {
	expected := SignChallenge(a.sharedSecret, challenge)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// HandleAuthResponse processes an authentication response and updates client state.
// Callers serialize access to client; see ClientRegistry.Authenticate.
func (a *AuthHandler) HandleAuthResponse(client *Client, signature string) AuthResult {
	if client.AuthAttempts >= maxAuthAttempts {
		return AuthResult{Event: "auth.failure", Message: msgTooManyAttempts}
	}
	if client.Challenge == "" {
		return AuthResult{Event: "auth.failure", Message: msgNoChallenge}
	}

	if !a.VerifySignature(client.Challenge, signature) {
		client.AuthAttempts++
		if client.AuthAttempts >= maxAuthAttempts {
			return AuthResult{Event: "auth.failure", Message: msgTooManyAttempts}
		}
		return AuthResult{Event: "auth.failure", Message: msgInvalidSig}
	}

	client.Authenticated = true
	client.State = StateAuthenticated
	client.AuthAttempts = 0
	client.Challenge = ""

	return AuthResult{
		Event:   "auth.success",
		Success: true,
	}
}
