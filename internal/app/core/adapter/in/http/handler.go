package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// maxAmountBytes 金額 body 的長度上限
const maxAmountBytes = 64

// errPreconditionRequired PUT 沒有帶任何前置條件
var errPreconditionRequired = errors.New("If-Match or If-Unmodified-Since header is required")

type handler struct {
	core   usecase.Ledger
	logger *zap.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createAccount(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("cf")
	if owner == "" {
		h.writeErr(w, r, fmt.Errorf("missing cf: %w", domain.ErrInvalidArgument))
		return
	}
	amount, err := readAmount(r, true)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	acc, err := h.core.CreateAccount(r.Context(), owner, amount)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/accounts/%d", acc.ID))
	setValidators(w, acc)
	writeText(w, http.StatusCreated, strconv.FormatInt(acc.ID, 10))
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.core.Deposit)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.core.Withdraw)
}

func (h *handler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64, amount decimal.Decimal) (domain.Account, error)) {
	id, err := accountID(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	amount, err := readAmount(r, false)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	acc, err := op(r.Context(), id, amount)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	setValidators(w, acc)
	writeText(w, http.StatusOK, acc.Balance.String())
}

func (h *handler) getBalance(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	acc, err := h.core.GetAccount(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	setValidators(w, acc)
	writeText(w, http.StatusOK, acc.Balance.String())
}

// setBalance If-Match (版本號) 優先於 If-Unmodified-Since (秒精度)，兩者皆無回傳 428
func (h *handler) setBalance(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	amount, err := readAmount(r, false)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	var acc domain.Account
	switch {
	case r.Header.Get("If-Match") != "":
		version, perr := parseETag(r.Header.Get("If-Match"))
		if perr != nil {
			h.writeErr(w, r, perr)
			return
		}
		acc, err = h.core.SetBalanceAtVersion(r.Context(), id, amount, version)
	case r.Header.Get("If-Unmodified-Since") != "":
		since, perr := http.ParseTime(r.Header.Get("If-Unmodified-Since"))
		if perr != nil {
			h.writeErr(w, r, fmt.Errorf("If-Unmodified-Since: %v: %w", perr, domain.ErrInvalidArgument))
			return
		}
		acc, err = h.core.SetBalance(r.Context(), id, amount, since)
	default:
		err = errPreconditionRequired
	}
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	setValidators(w, acc)
	w.WriteHeader(http.StatusNoContent)
}

type transferResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

func (h *handler) transfer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, err := parseID(q.Get("source"), "source")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	destination, err := parseID(q.Get("destination"), "destination")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	amount, err := readAmount(r, false)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	tran, err := h.core.Transfer(r.Context(), source, destination, amount)
	if tran == nil {
		h.writeErr(w, r, err)
		return
	}
	resp := transferResponse{ID: tran.ID.String(), State: tran.State.String()}
	code := http.StatusOK
	if err != nil {
		code = statusOf(err)
		resp.Error = err.Error()
		h.logFailure(r, code, err)
	}
	writeJSON(w, code, resp)
}

func (h *handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	h.logFailure(r, code, err)
	http.Error(w, err.Error(), code)
}

func (h *handler) logFailure(r *http.Request, code int, err error) {
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	}
}

// statusOf 將 domain 錯誤對應為 HTTP 狀態碼，ErrInconsistent 優先
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInconsistent):
		return http.StatusInternalServerError
	case errors.Is(err, errPreconditionRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrContention):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// setValidators 寫入條件請求用的 Last-Modified 與 ETag
func setValidators(w http.ResponseWriter, acc domain.Account) {
	w.Header().Set("Last-Modified", acc.LastModified.UTC().Format(http.TimeFormat))
	w.Header().Set("ETag", formatETag(acc.Version))
}

func formatETag(version uint64) string {
	return `"` + strconv.FormatUint(version, 10) + `"`
}

// parseETag 只接受單一強版本號，例如 "7"
func parseETag(v string) (uint64, error) {
	tag := strings.TrimSpace(v)
	if len(tag) < 2 || tag[0] != '"' || tag[len(tag)-1] != '"' {
		return 0, fmt.Errorf("If-Match %q: expected a quoted version: %w", v, domain.ErrInvalidArgument)
	}
	version, err := strconv.ParseUint(tag[1:len(tag)-1], 10, 64)
	if err != nil || version == 0 {
		return 0, fmt.Errorf("If-Match %q: expected a quoted version: %w", v, domain.ErrInvalidArgument)
	}
	return version, nil
}

func accountID(r *http.Request) (int64, error) {
	return parseID(mux.Vars(r)["id"], "account id")
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, domain.ErrInvalidArgument)
	}
	return id, nil
}

// readAmount 讀取 text/plain 十進位金額；allowEmpty 時空 body 視為 0
func readAmount(r *http.Request, allowEmpty bool) (decimal.Decimal, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAmountBytes+1))
	if err != nil {
		return decimal.Zero, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxAmountBytes {
		return decimal.Zero, fmt.Errorf("amount too long: %w", domain.ErrInvalidArgument)
	}
	raw := strings.TrimSpace(string(body))
	if raw == "" && allowEmpty {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, domain.ErrInvalidArgument)
	}
	return amount, nil
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
