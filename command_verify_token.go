package magiclink

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type VerifyTokenMessage struct {
	Token      string `json:"token" doc:"Opaque token carried by the sign-in link."`
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Email the link was requested for."`
	OnResponse func(resp *VerifyTokenResponse)
}

func (p VerifyTokenMessage) Type() string { return "magiclink.token.verify" }

type VerifyTokenResponse struct {
	Identity Identity
	Success  bool
}

type VerifyTokenHandler struct {
	verifier *Verifier
}

func NewVerifyTokenHandler(verifier *Verifier) *VerifyTokenHandler {
	return &VerifyTokenHandler{verifier: verifier}
}

func (h *VerifyTokenHandler) Execute(ctx context.Context, event VerifyTokenMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyTokenHandler) execute(ctx context.Context, event VerifyTokenMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	identity, err := h.verifier.Verify(ctx, event.Token, event.Email)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryAuth, "failed to verify sign-in token")
	}

	if event.OnResponse != nil {
		event.OnResponse(&VerifyTokenResponse{
			Identity: identity,
			Success:  true,
		})
	}

	return nil
}
