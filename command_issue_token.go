package magiclink

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type IssueTokenMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email to send the sign-in link to."`
	DeviceID   string `json:"device_id" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Stable per-installation identifier."`
	OnResponse func(resp *IssueTokenResponse)
}

func (p IssueTokenMessage) Type() string { return "magiclink.token.issue" }

type IssueTokenResponse struct {
	Receipt *IssueReceipt
	Success bool
}

type IssueTokenHandler struct {
	issuer *Issuer
}

func NewIssueTokenHandler(issuer *Issuer) *IssueTokenHandler {
	return &IssueTokenHandler{issuer: issuer}
}

func (h *IssueTokenHandler) Execute(ctx context.Context, event IssueTokenMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token issuance",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *IssueTokenHandler) execute(ctx context.Context, event IssueTokenMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	receipt, err := h.issuer.Request(ctx, event.Email, event.DeviceID)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue sign-in token")
	}

	if event.OnResponse != nil {
		event.OnResponse(&IssueTokenResponse{
			Receipt: receipt,
			Success: true,
		})
	}

	return nil
}
