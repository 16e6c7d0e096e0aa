package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paystream.org/internal/audit"
	"paystream.org/internal/engine"
	"paystream.org/internal/obs"
	"paystream.org/internal/stream"
)

type transactionRequest struct {
	Type   string  `json:"type"`
	Client uint16  `json:"client"`
	Tx     uint32  `json:"tx"`
	Amount *string `json:"amount,omitempty"`
}

type accountView struct {
	Client    engine.ClientID `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Total     decimal.Decimal `json:"total"`
	Locked    bool            `json:"locked"`
}

func viewOf(acc engine.Account) accountView {
	return accountView{
		Client:    acc.Client,
		Available: acc.Available,
		Held:      acc.Held,
		Total:     acc.Total(),
		Locked:    acc.Locked,
	}
}

type listAccountsResponse struct {
	Items []accountView `json:"items"`
	AsOf  time.Time     `json:"as_of"`
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.applyTransaction(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleAccountsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAccounts(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := strconv.ParseUint(path, 10, 16)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "client id must be an integer in [0,65535]")
		return
	}
	acc, ok := a.engine.Account(engine.ClientID(id))
	if !ok {
		writeError(w, r, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(acc))
}

func (a *API) applyTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := req.toRecord()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.engine.Apply(rec); err != nil {
		obs.TransactionRejected(string(rec.Kind), engine.Reason(err))
		a.auditRecord(r, "engine.transaction.reject", rec, engine.Reason(err))
		handleEngineError(w, r, err)
		return
	}

	obs.TransactionApplied(string(rec.Kind))
	obs.SetAccounts(len(a.engine.Snapshot()))
	a.auditRecord(r, "engine.transaction.apply", rec, "")

	if a.stream != nil {
		a.stream.Publish(stream.NewEvent(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "applied",
		"kind":   rec.Kind,
		"client": rec.Client,
		"tx":     rec.Tx,
	})
}

func (req transactionRequest) toRecord() (engine.Record, error) {
	kind := engine.Kind(strings.ToLower(strings.TrimSpace(req.Type)))
	switch kind {
	case engine.Deposit, engine.Withdrawal, engine.Dispute, engine.Resolve, engine.Chargeback:
	default:
		return engine.Record{}, errors.New("type must be one of deposit, withdrawal, dispute, resolve, chargeback")
	}

	rec := engine.Record{
		Kind:   kind,
		Client: engine.ClientID(req.Client),
		Tx:     engine.TxID(req.Tx),
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(strings.TrimSpace(*req.Amount))
		if err != nil {
			return engine.Record{}, errors.New("amount must be a decimal string")
		}
		rec.Amount = amount
		rec.HasAmount = true
	}
	return rec, nil
}

func (a *API) listAccounts(w http.ResponseWriter, r *http.Request) {
	snapshot := a.engine.Snapshot()
	items := make([]accountView, 0, len(snapshot))
	for _, acc := range snapshot {
		items = append(items, viewOf(acc))
	}
	writeJSON(w, http.StatusOK, listAccountsResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) auditRecord(r *http.Request, event string, rec engine.Record, reason string) {
	fields := map[string]any{
		"kind":   string(rec.Kind),
		"client": strconv.FormatUint(uint64(rec.Client), 10),
		"tx":     strconv.FormatUint(uint64(rec.Tx), 10),
	}
	if rec.HasAmount {
		fields["amount"] = rec.Amount.String()
	}
	if reason != "" {
		fields["reason"] = reason
	}
	_ = audit.LogEvent(r.Context(), event, fields)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrMalformedRecord):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrUnknownReference):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrDuplicateTransaction),
		errors.Is(err, engine.ErrOwnerMismatch),
		errors.Is(err, engine.ErrInvalidStateTransition),
		errors.Is(err, engine.ErrInsufficientFunds):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrAccountLocked):
		writeError(w, r, http.StatusLocked, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
