package handler

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthHandler issues anonymous device identities. There are no user
// accounts: a device signs in once, receives a member id and a token,
// and keeps both in its local cache.
type AuthHandler struct {
	secret        []byte
	tokenDuration time.Duration
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(secret []byte, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{secret: secret, tokenDuration: tokenDuration}
}

type signInRequest struct {
	// MemberID restores an identity from a previous sign-in; empty
	// mints a fresh one.
	MemberID string `json:"member_id"`
}

type signInResponse struct {
	MemberID  string    `json:"member_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SignInAnonymous mints or refreshes an anonymous identity token.
func (h *AuthHandler) SignInAnonymous(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	memberID := req.MemberID
	if memberID == "" {
		memberID = uuid.New().String()
	}

	now := time.Now()
	expiresAt := now.Add(h.tokenDuration)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   memberID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString(h.secret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "signing token")
		return
	}

	respondJSON(w, http.StatusOK, &signInResponse{
		MemberID:  memberID,
		Token:     signed,
		ExpiresAt: expiresAt,
	})
}
