package mirror

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"

	"ledger-mirror/internal/accounts"
	"ledger-mirror/internal/pkg/storage/sqlite"
)

const (
	mimeTextCSV = "text/csv"

	jsonOutputFormat = "json"
	csvOutputFormat  = "csv"
)

type accountView struct {
	Pubkey      string    `json:"pubkey" csv:"pubkey"`
	Slot        uint64    `json:"slot" csv:"slot"`
	Data        string    `json:"data" csv:"data"`
	LastUpdated time.Time `json:"last_updated" csv:"last_updated"`
}

func newAccountView(e accounts.Entry) accountView {
	return accountView{
		Pubkey:      e.Key.String(),
		Slot:        e.Slot,
		Data:        base64.StdEncoding.EncodeToString(e.Data),
		LastUpdated: e.LastUpdated.UTC(),
	}
}

type subscriptionView struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Keys  int    `json:"keys"`
}

type healthView struct {
	Status        string             `json:"status"`
	Accounts      int                `json:"accounts"`
	Subscriptions []subscriptionView `json:"subscriptions"`
	Submitter     bool               `json:"submitter"`
}

type submissionView struct {
	MessageHash string    `json:"message_hash"`
	Signature   string    `json:"signature,omitempty"`
	Attempt     uint32    `json:"attempt"`
	State       string    `json:"state"`
	Slot        uint64    `json:"slot,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newSubmissionView(s sqlite.Submission) submissionView {
	return submissionView{
		MessageHash: s.MessageHash,
		Signature:   s.Signature,
		Attempt:     s.Attempt,
		State:       s.State,
		Slot:        s.Slot,
		Reason:      s.Reason,
		CreatedAt:   s.CreatedAt.UTC(),
		UpdatedAt:   s.UpdatedAt.UTC(),
	}
}

func csvResp(ctx echo.Context, res interface{}, fileName string) error {
	ctx.Response().Header().Set(echo.HeaderContentType, mimeTextCSV)
	if fileName != "" {
		ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"%s\"", fileName))
	}
	ctx.Response().WriteHeader(http.StatusOK)

	return gocsv.Marshal(res, ctx.Response())
}
