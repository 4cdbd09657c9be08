package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

var ErrNoSubject = errors.New("token carries no user id")

// Subject returns the user id embedded in a JWT without verifying the
// signature. It is for display only; the server remains the authority.
func Subject(token string) (string, error) {
	if token == "" {
		return "", ErrNoSubject
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	for _, key := range []string{"sub", "id", "_id", "userId"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", ErrNoSubject
}
