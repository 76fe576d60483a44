package magiclink

import (
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

type MagicLinkControllerRoutes struct {
	Request string
	Verify  string
}

type MagicLinkController struct {
	Debug    bool
	Logger   Logger
	Issuer   *Issuer
	Verifier *Verifier
	Codec    *SessionCodec
	Config   Config
	Routes   *MagicLinkControllerRoutes
}

type MagicLinkControllerOption func(*MagicLinkController) *MagicLinkController

func NewMagicLinkController(opts ...MagicLinkControllerOption) *MagicLinkController {
	c := &MagicLinkController{
		Logger: defLogger{},
		Routes: &MagicLinkControllerRoutes{
			Request: "/auth/magic-link",
			Verify:  "/auth/verify",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Issuer == nil {
		panic("Missing Issuer in magic link controller...")
	}

	if c.Verifier == nil {
		panic("Missing Verifier in magic link controller...")
	}

	if c.Codec == nil {
		panic("Missing SessionCodec in magic link controller...")
	}

	return c
}

func WithControllerLogger(logger Logger) MagicLinkControllerOption {
	return func(c *MagicLinkController) *MagicLinkController {
		c.Logger = logger
		return c
	}
}

func WithControllerIssuer(issuer *Issuer) MagicLinkControllerOption {
	return func(c *MagicLinkController) *MagicLinkController {
		c.Issuer = issuer
		return c
	}
}

func WithControllerVerifier(verifier *Verifier) MagicLinkControllerOption {
	return func(c *MagicLinkController) *MagicLinkController {
		c.Verifier = verifier
		return c
	}
}

func WithControllerCodec(codec *SessionCodec) MagicLinkControllerOption {
	return func(c *MagicLinkController) *MagicLinkController {
		c.Codec = codec
		return c
	}
}

func WithControllerConfig(cfg Config) MagicLinkControllerOption {
	return func(c *MagicLinkController) *MagicLinkController {
		c.Config = cfg
		return c
	}
}

func WithControllerDebug(debug bool) MagicLinkControllerOption {
	return func(c *MagicLinkController) *MagicLinkController {
		c.Debug = debug
		return c
	}
}

func RegisterMagicLinkRoutes[T any](app router.Router[T], opts ...MagicLinkControllerOption) {

	controller := NewMagicLinkController(opts...)

	app.
		Post(
			controller.Routes.Request,
			controller.RequestToken,
		).
		SetName("magic-link.request.post")

	app.
		Post(
			controller.Routes.Verify,
			controller.VerifyToken,
		).
		SetName("magic-link.verify.post")

	app.
		Get(
			controller.Routes.Verify,
			controller.VerifyTokenLink,
		).
		SetName("magic-link.verify.get")
}

// RequestTokenPayload is the body for the token request endpoint
type RequestTokenPayload struct {
	Email    string `form:"email" json:"email"`
	DeviceID string `form:"device_id" json:"device_id"`
}

// Validate will run validation rules
func (r RequestTokenPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.DeviceID,
			validation.Required,
			validation.Length(1, 200),
		),
	)
}

// VerifyTokenPayload is the body for the verification endpoint
type VerifyTokenPayload struct {
	Token string `form:"token" json:"token"`
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r VerifyTokenPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Token,
			validation.Required,
		),
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *MagicLinkController) RequestToken(ctx router.Context) error {
	requestID := uuid.NewString()
	payload := new(RequestTokenPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("request token parse payload: ", "error", err)
		return a.respondError(ctx, requestID, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse request body"))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("request token validate payload: ", "error", err)
		return a.respondError(ctx, requestID, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid token request"))
	}

	if a.Debug {
		a.Logger.Debug("request token payload", "payload", print.MaybePrettyJSON(payload))
	}

	var res *IssueTokenResponse
	req := IssueTokenMessage{
		Email:    payload.Email,
		DeviceID: payload.DeviceID,
		OnResponse: func(resp *IssueTokenResponse) {
			res = resp
		},
	}

	issueToken := IssueTokenHandler{issuer: a.Issuer}
	if err := issueToken.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("request token error: ", "error", err)
		return a.respondError(ctx, requestID, err)
	}

	body := router.ViewContext{
		"success":    true,
		"message":    "If the address is valid, a sign-in link is on its way",
		"request_id": requestID,
	}
	if res != nil && res.Receipt != nil {
		body["email"] = res.Receipt.Email
		body["expires_at"] = res.Receipt.ExpiresAt
		body["remaining"] = res.Receipt.Remaining
	}

	return ctx.JSON(fiber.StatusAccepted, body)
}

func (a *MagicLinkController) VerifyToken(ctx router.Context) error {
	requestID := uuid.NewString()
	payload := new(VerifyTokenPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("verify token parse payload: ", "error", err)
		return a.respondError(ctx, requestID, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse request body"))
	}

	return a.verify(ctx, requestID, payload)
}

// VerifyTokenLink handles link clicks, reading the token and email
// from query parameters instead of the request body.
func (a *MagicLinkController) VerifyTokenLink(ctx router.Context) error {
	requestID := uuid.NewString()
	payload := &VerifyTokenPayload{
		Token: ctx.Query("token"),
		Email: ctx.Query("email"),
	}

	return a.verify(ctx, requestID, payload)
}

func (a *MagicLinkController) verify(ctx router.Context, requestID string, payload *VerifyTokenPayload) error {
	if err := payload.Validate(); err != nil {
		a.Logger.Error("verify token validate payload: ", "error", err)
		return a.respondError(ctx, requestID, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification request"))
	}

	var res *VerifyTokenResponse
	req := VerifyTokenMessage{
		Token: payload.Token,
		Email: payload.Email,
		OnResponse: func(resp *VerifyTokenResponse) {
			res = resp
		},
	}

	verifyToken := VerifyTokenHandler{verifier: a.Verifier}
	if err := verifyToken.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("verify token error: ", "error", err)
		return a.respondError(ctx, requestID, err)
	}

	if res == nil || res.Identity == nil {
		return a.respondError(ctx, requestID, ErrVerificationFailed)
	}

	now := time.Now()
	session := &SessionObject{
		Email:     res.Identity.Email(),
		Role:      res.Identity.Role(),
		Verified:  true,
		Source:    SessionSourceVerified,
		LoginTime: now,
		ExpiresAt: now.Add(a.sessionTTL()),
	}

	encoded, err := a.Codec.Encode(session)
	if err != nil {
		a.Logger.Error("verify token encode session: ", "error", err)
		return a.respondError(ctx, requestID, err)
	}

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"success": true,
		"message": "Sign-in verified",
		"user": router.ViewContext{
			"email": res.Identity.Email(),
			"role":  res.Identity.Role(),
		},
		"session":    encoded,
		"request_id": requestID,
	})
}

func (a *MagicLinkController) sessionTTL() time.Duration {
	if a.Config != nil {
		if ttl := a.Config.GetSessionTTL(); ttl > 0 {
			return ttl
		}
	}
	return DefaultSessionTTL
}

func (a *MagicLinkController) respondError(ctx router.Context, requestID string, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal error"

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		status = statusFromCategory(richErr.Category)
		message = richErr.Message
		if status == fiber.StatusTooManyRequests {
			if retry := RetryAfterSeconds(richErr); retry > 0 {
				ctx.SetHeader("Retry-After", strconv.Itoa(retry))
			}
		}
	}

	return ctx.JSON(status, router.ViewContext{
		"success":    false,
		"error":      message,
		"request_id": requestID,
	})
}

func statusFromCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

