package fakeapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskdesk/domain"
)

const (
	tokenTTL   = 24 * time.Hour
	ctxUserKey = "user"
)

var (
	errUserNotFound       = errors.New("user not found")
	errUserExists         = errors.New("user already exists")
	errInvalidCredentials = errors.New("invalid credentials")
	errTaskNotFound       = errors.New("task not found")
	errForbidden          = errors.New("access forbidden")
	errBadAssignee        = errors.New("assigned employee not found")
)

type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	if err := sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body").SetInternal(err)
	}
	return nil
}

// echoValidator lets handlers call c.Validate(req).
type echoValidator struct {
	v *validator.Validate
}

func newEchoValidator() *echoValidator {
	return &echoValidator{v: domain.NewValidator()}
}

func (ev *echoValidator) Validate(i any) error {
	err := ev.v.Struct(i)
	if err == nil {
		return nil
	}
	if problems, ok := domain.ValidationProblems(err); ok {
		return echo.NewHTTPError(http.StatusBadRequest, strings.Join(problems, "; "))
	}
	return err
}

type messageResponse struct {
	Message string `json:"message"`
}

func newHTTPErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, msg := resolveError(err, logger, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, messageResponse{Message: msg})
	}
}

func resolveError(err error, logger *log.Logger, c echo.Context) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}
	switch {
	case errors.Is(err, errUserNotFound), errors.Is(err, errTaskNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, errInvalidCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, errUserExists):
		return http.StatusConflict, err.Error()
	case errors.Is(err, errBadAssignee):
		return http.StatusBadRequest, err.Error()
	}
	logger.WithError(err).WithFields(log.Fields{
		"method": c.Request().Method,
		"path":   c.Path(),
	}).Error("unhandled error")
	return http.StatusInternalServerError, "internal server error"
}

func requestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.WithFields(log.Fields{
				"method":     c.Request().Method,
				"route":      c.Path(),
				"status":     c.Response().Status,
				"request_id": c.Request().Header.Get("X-Request-ID"),
				"total_ms":   float64(time.Since(start)) / float64(time.Millisecond),
			}).Debug("fakeapi.request")
			return nil
		}
	}
}

func issueToken(secret []byte, u domain.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"id":   u.ID,
		"role": string(u.Role),
		"exp":  time.Now().Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// requireUser validates the bearer token and stores the caller's account in
// the request context.
func requireUser(secret []byte, st *state) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}
			claims := jwt.MapClaims{}
			tok, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("invalid signing method")
				}
				return secret, nil
			})
			if err != nil || !tok.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			sub, _ := claims["sub"].(string)
			acc, found := st.account(sub)
			if !found {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			c.Set(ctxUserKey, acc.user)
			return next(c)
		}
	}
}

func currentUser(c echo.Context) domain.User {
	u, _ := c.Get(ctxUserKey).(domain.User)
	return u
}
