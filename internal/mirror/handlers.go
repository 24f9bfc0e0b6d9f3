package mirror

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"

	"ledger-mirror/internal/accounts"
	"ledger-mirror/internal/pkg/log"
	"ledger-mirror/internal/pkg/storage/sqlite"
	echo2 "ledger-mirror/internal/pkg/util/echo"
)

const (
	maxLimit     = 1000
	defaultLimit = 50
)

func (m *mirror) initHandlers() {
	echo2.InitHandlersStart(m.router)

	m.router.GET("/health", m.getHealth)
	m.router.GET("/accounts", m.getAccounts)
	m.router.GET("/accounts/:key", m.getAccount)
	m.router.GET("/submissions", m.getSubmissions)
	m.router.GET("/submissions/:hash", m.getSubmission)
}

func (m *mirror) getHealth(ctx echo.Context) error {
	res := healthView{
		Status:        "ok",
		Accounts:      m.cache.Len(),
		Subscriptions: []subscriptionView{},
		Submitter:     m.submitter != nil,
	}
	if m.sync != nil {
		for _, sub := range m.sync.Subscriptions() {
			res.Subscriptions = append(res.Subscriptions, subscriptionView{
				ID:    sub.ID,
				State: sub.State().String(),
				Keys:  len(sub.Keys()),
			})
		}
	}

	return ctx.JSON(http.StatusOK, res)
}

func (m *mirror) getAccount(ctx echo.Context) error {
	key, err := solana.PublicKeyFromBase58(ctx.Param("key"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "key")
	}

	entry, ok := m.cache.Get(key)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "account not cached")
	}

	return ctx.JSON(http.StatusOK, newAccountView(entry))
}

func (m *mirror) getAccounts(ctx echo.Context) error {
	format := jsonOutputFormat
	if paramString := ctx.QueryParam("format"); paramString != "" {
		if paramString != jsonOutputFormat && paramString != csvOutputFormat {
			return echo.NewHTTPError(http.StatusBadRequest, "format")
		}
		format = paramString
	}

	predicate := func(accounts.Entry) bool { return true }
	if group := ctx.QueryParam("group"); group != "" {
		keys, ok := m.groupKeys(group)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "group")
		}
		set := make(map[accounts.Key]struct{}, len(keys))
		for _, k := range keys {
			set[k] = struct{}{}
		}
		predicate = func(e accounts.Entry) bool {
			_, ok := set[e.Key]
			return ok
		}
	}

	entries := m.cache.SnapshotAll(predicate)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.String() < entries[j].Key.String()
	})

	res := make([]accountView, 0, len(entries))
	for _, e := range entries {
		res = append(res, newAccountView(e))
	}

	if format == csvOutputFormat {
		return csvResp(ctx, res, "accounts.csv")
	}

	return ctx.JSON(http.StatusOK, res)
}

func (m *mirror) getSubmission(ctx echo.Context) error {
	if m.journal == nil {
		return echo.NewHTTPError(http.StatusNotFound, "journal disabled")
	}

	sub, err := m.journal.GetSubmission(ctx.Param("hash"))
	if err == sqlite.ErrNotFound {
		return echo.NewHTTPError(http.StatusNotFound, "submission")
	}
	if err != nil {
		log.Logger.Mirror.Errorf("GetSubmission: %s", err)
		return err
	}

	return ctx.JSON(http.StatusOK, newSubmissionView(sub))
}

func (m *mirror) getSubmissions(ctx echo.Context) error {
	if m.journal == nil {
		return echo.NewHTTPError(http.StatusNotFound, "journal disabled")
	}

	if signature := ctx.QueryParam("signature"); signature != "" {
		sub, err := m.journal.GetSubmissionBySignature(signature)
		if err == sqlite.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "submission")
		}
		if err != nil {
			log.Logger.Mirror.Errorf("GetSubmissionBySignature: %s", err)
			return err
		}
		return ctx.JSON(http.StatusOK, []submissionView{newSubmissionView(sub)})
	}

	state := ctx.QueryParam("state")
	if state == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "state or signature required")
	}
	limit := defaultLimit
	if paramString := ctx.QueryParam("limit"); paramString != "" {
		var err error
		limit, err = strconv.Atoi(paramString)
		if err != nil || limit > maxLimit || limit < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit")
		}
	}

	subs, err := m.journal.GetSubmissionsByState(state, uint64(limit))
	if err != nil {
		log.Logger.Mirror.Errorf("GetSubmissionsByState: %s", err)
		return err
	}

	res := make([]submissionView, 0, len(subs))
	for _, s := range subs {
		res = append(res, newSubmissionView(s))
	}

	return ctx.JSON(http.StatusOK, res)
}
