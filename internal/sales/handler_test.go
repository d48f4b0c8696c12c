package sales_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/sales"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/storetest"
)

func newSalesRouter(t *testing.T, opts storetest.Options) (*storetest.Fixture, http.Handler) {
	t.Helper()
	f := storetest.NewWithOptions(t, opts)
	h := sales.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.Sales)
	r := chi.NewRouter()
	r.Route("/sales", h.MountSalesRoutes)
	r.Route("/sales-return", h.MountReturnRoutes)
	return f, r
}

func serve(router http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem), rec.Body.String())
	return problem
}

const saleBody = `{"paymentMethod":"Cash","customerName":"Dana","items":[{"productId":"tee","size":"M","quantity":8,"sellingPrice":"20"}]}`

type saleResult struct {
	TransactionID int64  `json:"transactionId"`
	TotalAmount   string `json:"totalAmount"`
	TotalProfit   string `json:"totalProfit"`
	Status        string `json:"status"`
}

func TestHandlerSaleLifecycle(t *testing.T) {
	f, router := newSalesRouter(t, storetest.Options{})
	f.Receive(t, "tee", "M", 5, "10")
	f.Receive(t, "tee", "M", 3, "12")

	rec := serve(router, http.MethodPost, "/sales", saleBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sale saleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	require.Equal(t, saleResult{TransactionID: sale.TransactionID, TotalAmount: "160", TotalProfit: "74", Status: "Pending"}, sale)

	rec = serve(router, http.MethodGet, fmt.Sprintf("/sales/%d", sale.TransactionID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txn sales.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txn))
	require.Equal(t, "Dana", txn.CustomerName)
	require.Len(t, txn.Lines, 1)

	rec = serve(router, http.MethodPut, fmt.Sprintf("/sales/mark-completed/%d", sale.TransactionID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.JSONEq(t, fmt.Sprintf(`{"transactionId":%d,"status":"Completed"}`, sale.TransactionID), rec.Body.String())

	rec = serve(router, http.MethodPut, fmt.Sprintf("/sales/reverse/%d", sale.TransactionID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(router, http.MethodPut, fmt.Sprintf("/sales/reverse/%d", sale.TransactionID), "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, httpx.KindInvalidTransition, decodeProblem(t, rec).Kind)

	rec = serve(router, http.MethodGet, "/sales?status=Cancelled", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []sales.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = serve(router, http.MethodGet, "/sales/summary", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum sales.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	require.Equal(t, 1, sum.Cancelled)
	require.True(t, sum.Revenue.IsZero())
	f.RequireConsistent(t)
}

func TestHandlerSaleErrors(t *testing.T) {
	f, router := newSalesRouter(t, storetest.Options{})
	f.Receive(t, "tee", "M", 2, "10")

	rec := serve(router, http.MethodPost, "/sales", saleBody, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	problem := decodeProblem(t, rec)
	require.Equal(t, httpx.KindInsufficientStock, problem.Kind)
	require.Contains(t, problem.Detail, "requested 8, available 2")

	cases := []string{
		`{"paymentMethod":"Cash","items":[]}`,
		`{"paymentMethod":"Cash","items":[{"productId":"tee","size":"M","quantity":0,"sellingPrice":"1"}]}`,
		`{"paymentMethod":"Cheque","items":[{"productId":"tee","size":"M","quantity":1,"sellingPrice":"1"}]}`,
		`{"paymentMethod":"Cash","items":[{"productId":"tee","size":"M","quantity":1,"sellingPrice":"1"}],"tip":"5"}`,
		`not json`,
	}
	for _, body := range cases {
		rec := serve(router, http.MethodPost, "/sales", body, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.Equal(t, httpx.KindValidation, decodeProblem(t, rec).Kind, body)
	}

	rec = serve(router, http.MethodGet, "/sales/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(router, http.MethodGet, "/sales/42", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, httpx.KindNotFound, decodeProblem(t, rec).Kind)
	rec = serve(router, http.MethodGet, "/sales?limit=many", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerIdempotencyKeyRejectsReplay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f, router := newSalesRouter(t, storetest.Options{Idempotency: shared.NewIdempotencyStore(client, time.Hour)})
	f.Receive(t, "tee", "M", 20, "10")

	header := http.Header{"Idempotency-Key": []string{"till-1-0001"}}
	rec := serve(router, http.MethodPost, "/sales", saleBody, header)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(router, http.MethodPost, "/sales", saleBody, header)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, httpx.KindConflict, decodeProblem(t, rec).Kind)
	require.Equal(t, int64(12), f.Available(t, "tee", "M"))

	rec = serve(router, http.MethodPost, "/sales", saleBody, http.Header{"Idempotency-Key": []string{"till-1-0002"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, int64(4), f.Available(t, "tee", "M"))
}

func TestHandlerFailedSaleReleasesIdempotencyKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f, router := newSalesRouter(t, storetest.Options{Idempotency: shared.NewIdempotencyStore(client, time.Hour)})
	header := http.Header{"Idempotency-Key": []string{"retry-me"}}

	rec := serve(router, http.MethodPost, "/sales", saleBody, header)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, httpx.KindInsufficientStock, decodeProblem(t, rec).Kind)

	f.Receive(t, "tee", "M", 8, "10")
	rec = serve(router, http.MethodPost, "/sales", saleBody, header)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHandlerReturnFlow(t *testing.T) {
	f, router := newSalesRouter(t, storetest.Options{})
	f.Receive(t, "tee", "M", 5, "10")
	f.Receive(t, "tee", "M", 3, "12")
	rec := serve(router, http.MethodPost, "/sales", saleBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sale saleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))

	body := fmt.Sprintf(`{"transactionId":%d,"items":[{"productId":"tee","size":"M","quantity":6,"reason":"faded"}]}`, sale.TransactionID)
	rec = serve(router, http.MethodPost, "/sales-return", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ret struct {
		ReturnID     int64  `json:"returnId"`
		RefundAmount string `json:"refundAmount"`
		ReturnedCost string `json:"returnedCost"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret))
	require.NotZero(t, ret.ReturnID)
	require.Equal(t, "120", ret.RefundAmount)
	require.Equal(t, "62", ret.ReturnedCost)

	over := fmt.Sprintf(`{"transactionId":%d,"items":[{"productId":"tee","size":"M","quantity":3,"reason":"faded"}]}`, sale.TransactionID)
	rec = serve(router, http.MethodPost, "/sales-return", over, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, httpx.KindValidation, decodeProblem(t, rec).Kind)

	rec = serve(router, http.MethodGet, fmt.Sprintf("/sales-return/by-transaction/%d", sale.TransactionID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []sales.Return
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	require.Equal(t, "faded", history[0].Items[0].Reason)

	rec = serve(router, http.MethodGet, "/sales-return", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve(router, http.MethodGet, "/sales-return/by-transaction/999", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	f.RequireConsistent(t)
}
