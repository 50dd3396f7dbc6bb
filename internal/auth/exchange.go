// Package auth verifies external JWTs and exchanges them for backend API
// tokens. The exchange is one-shot and stateless.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kagent-dev/toolbridge/internal/apperrors"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// JWTVerifier validates HS256 signed JWTs.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates the token and extracts the subject from the "sub" claim.
func (v *JWTVerifier) Verify(tokenString string) (subject string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}

// Exchanger trades a verified JWT for a backend API token by posting the
// assertion to the exchange endpoint.
type Exchanger struct {
	verifier   *JWTVerifier
	endpoint   string
	httpClient *http.Client
}

// NewExchanger creates an Exchanger against the given endpoint.
func NewExchanger(verifier *JWTVerifier, endpoint string) *Exchanger {
	return &Exchanger{
		verifier:   verifier,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type exchangeRequest struct {
	Assertion string `json:"assertion"`
	Subject   string `json:"subject"`
}

type exchangeResponse struct {
	Token string `json:"token"`
}

// Exchange verifies the external JWT and returns the backend API token the
// exchange endpoint issued for it.
func (e *Exchanger) Exchange(ctx context.Context, externalJWT string) (string, error) {
	subject, err := e.verifier.Verify(externalJWT)
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeAuthFailed, "JWT verification failed", err)
	}

	body, err := json.Marshal(exchangeRequest{Assertion: externalJWT, Subject: subject})
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeAuthFailed, "failed to encode exchange request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeAuthFailed, "failed to build exchange request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeAuthFailed, "token exchange request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", apperrors.New(apperrors.ErrCodeAuthFailed,
			fmt.Sprintf("token exchange returned status %d: %s", resp.StatusCode, raw), nil)
	}

	var out exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.New(apperrors.ErrCodeAuthFailed, "failed to decode exchange response", err)
	}
	if out.Token == "" {
		return "", apperrors.New(apperrors.ErrCodeAuthFailed, "exchange response contained no token", nil)
	}
	return out.Token, nil
}
