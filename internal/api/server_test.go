package api

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qview/internal/launch"
	"github.com/samcharles93/qview/internal/quantized"
)

func newTestEcho() *echo.Echo {
	engine := quantized.NewEngine(launch.NewSerial(4), nil)
	server := NewServer(engine, NewTensorStore(8), nil)
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Error ResponseError `json:"error"`
}

func TestPerTensorLifecycle(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	createRec := doJSON(t, e, http.MethodPost, "/v1/quantized/per_tensor",
		`{"dtype":"uint8","shape":[2,3],"data":[0,1,2,200,254,255],"scale":0.5,"zero_point":10}`)
	if createRec.Code != http.StatusOK {
		t.Fatalf("create status: got %d body=%s", createRec.Code, createRec.Body.String())
	}
	created := decodeBody[TensorObject](t, createRec)
	if !strings.HasPrefix(created.ID, "qt_") {
		t.Fatalf("unexpected id %q", created.ID)
	}
	if created.DType != "quint8" || !slices.Equal(created.Shape, []int{2, 3}) {
		t.Fatalf("unexpected tensor %+v", created)
	}
	if created.Scale == nil || *created.Scale != 0.5 || created.ZeroPoint == nil || *created.ZeroPoint != 10 {
		t.Fatalf("unexpected params scale=%v zero_point=%v", created.Scale, created.ZeroPoint)
	}
	if !slices.Equal(created.Data, []float64{0, 1, 2, 200, 254, 255}) {
		t.Fatalf("data changed: %v", created.Data)
	}
	if created.QScheme != "per_tensor_affine" {
		t.Fatalf("qscheme = %q", created.QScheme)
	}

	getRec := doJSON(t, e, http.MethodGet, "/v1/tensors/"+created.ID, "")
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status: got %d body=%s", getRec.Code, getRec.Body.String())
	}
	got := decodeBody[TensorObject](t, getRec)
	if got.ID != created.ID || !slices.Equal(got.Data, created.Data) {
		t.Fatalf("get returned %+v", got)
	}

	reprRec := doJSON(t, e, http.MethodPost, "/v1/quantized/int_repr", `{"id":"`+created.ID+`"}`)
	if reprRec.Code != http.StatusOK {
		t.Fatalf("int_repr status: got %d body=%s", reprRec.Code, reprRec.Body.String())
	}
	repr := decodeBody[TensorObject](t, reprRec)
	if repr.DType != "uint8" || repr.Scale != nil || !slices.Equal(repr.Data, created.Data) {
		t.Fatalf("int_repr returned %+v", repr)
	}

	delRec := doJSON(t, e, http.MethodDelete, "/v1/tensors/"+created.ID, "")
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status: got %d body=%s", delRec.Code, delRec.Body.String())
	}
	if del := decodeBody[DeleteTensorResp](t, delRec); !del.Deleted || del.ID != created.ID {
		t.Fatalf("unexpected delete response %+v", del)
	}

	missingRec := doJSON(t, e, http.MethodGet, "/v1/tensors/"+created.ID, "")
	if missingRec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: got %d", missingRec.Code)
	}
}

func TestPerTensorRejectsUnsupportedDType(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	rec := doJSON(t, e, http.MethodPost, "/v1/quantized/per_tensor",
		`{"dtype":"float32","shape":[2],"data":[1.5,2],"scale":1,"zero_point":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody[errorBody](t, rec)
	if body.Error.Type != "unsupported_dtype_error" {
		t.Fatalf("error type = %q", body.Error.Type)
	}
	if !strings.Contains(body.Error.Message, "make_per_tensor_quantized_tensor") {
		t.Fatalf("error message %q does not name the operation", body.Error.Message)
	}
}

func TestPerTensorValidatesData(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	cases := []struct {
		name  string
		body  string
		param string
	}{
		{"out of range", `{"dtype":"uint8","shape":[1],"data":[256],"scale":1,"zero_point":0}`, "data"},
		{"fractional", `{"dtype":"int32","shape":[1],"data":[1.5],"scale":1,"zero_point":0}`, "data"},
		{"count mismatch", `{"dtype":"int8","shape":[3],"data":[1,2],"scale":1,"zero_point":0}`, "data"},
		{"huge shape", `{"dtype":"int32","shape":[1099511627776],"data":[],"scale":1,"zero_point":0}`, "data"},
		{"quantized input", `{"dtype":"qint8","shape":[1],"data":[1],"scale":1,"zero_point":0}`, "dtype"},
		{"missing shape", `{"dtype":"int8","data":[1],"scale":1,"zero_point":0}`, "shape"},
		{"unknown field", `{"dtype":"int8","shape":[1],"data":[1],"bogus":true}`, ""},
	}
	for _, tc := range cases {
		rec := doJSON(t, e, http.MethodPost, "/v1/quantized/per_tensor", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d body=%s", tc.name, rec.Code, rec.Body.String())
		}
		if body := decodeBody[errorBody](t, rec); body.Error.Param != tc.param {
			t.Fatalf("%s: param = %q, want %q", tc.name, body.Error.Param, tc.param)
		}
	}
}

func TestDequantizeInline(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	rec := doJSON(t, e, http.MethodPost, "/v1/quantized/dequantize",
		`{"dtype":"qint8","shape":[3],"data":[-128,0,127],"scale":0.5,"zero_point":-1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	out := decodeBody[TensorObject](t, rec)
	if out.DType != "float32" || !slices.Equal(out.Data, []float64{-63.5, 0.5, 64}) {
		t.Fatalf("dequantize returned %+v", out)
	}
}

func TestDequantizeOverflowIsRequestError(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	rec := doJSON(t, e, http.MethodPost, "/v1/quantized/dequantize",
		`{"dtype":"qint32","shape":[1],"data":[2000000000],"scale":1e300,"zero_point":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody[errorBody](t, rec)
	if body.Error.Type != "invalid_request_error" || body.Error.Param != "scale" {
		t.Fatalf("unexpected error %+v", body.Error)
	}
	if !strings.Contains(body.Error.Message, "overflows") {
		t.Fatalf("message %q does not name the overflow", body.Error.Message)
	}
}

func TestQuantizeRoundsHalfToEven(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	rec := doJSON(t, e, http.MethodPost, "/v1/quantized/quantize",
		`{"dtype":"qint8","shape":[4],"data":[0.25,0.75,-1,1000],"scale":0.5,"zero_point":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	out := decodeBody[TensorObject](t, rec)
	if out.DType != "qint8" || !slices.Equal(out.Data, []float64{0, 2, -2, 127}) {
		t.Fatalf("quantize returned %+v", out)
	}

	bad := doJSON(t, e, http.MethodPost, "/v1/quantized/quantize",
		`{"dtype":"quint8","shape":[1],"data":[1],"scale":0,"zero_point":0}`)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("zero scale: got %d body=%s", bad.Code, bad.Body.String())
	}
}

func TestIntReprUnknownID(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	rec := doJSON(t, e, http.MethodPost, "/v1/quantized/int_repr", `{"id":"qt_missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestListDTypes(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	rec := doJSON(t, e, http.MethodGet, "/v1/dtypes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := decodeBody[struct {
		Object string      `json:"object"`
		Data   []DTypeInfo `json:"data"`
	}](t, rec)
	idx := slices.IndexFunc(body.Data, func(d DTypeInfo) bool { return d.Name == "quint8" })
	if idx < 0 {
		t.Fatalf("quint8 missing from %+v", body.Data)
	}
	q := body.Data[idx]
	if !q.Quantized || q.Underlying != "uint8" || q.Min == nil || *q.Max != 255 {
		t.Fatalf("unexpected quint8 info %+v", q)
	}
	i32 := body.Data[slices.IndexFunc(body.Data, func(d DTypeInfo) bool { return d.Name == "int32" })]
	if i32.QuantType != "qint32" || i32.Quantized {
		t.Fatalf("unexpected int32 info %+v", i32)
	}
}

func TestStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	e := echo.New()
	store := NewTensorStore(2)
	NewServer(nil, store, nil).Register(e)
	var ids []string
	for range 3 {
		rec := doJSON(t, e, http.MethodPost, "/v1/quantized/per_tensor",
			`{"dtype":"int8","shape":[1],"data":[1],"scale":1,"zero_point":0}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
		}
		ids = append(ids, decodeBody[TensorObject](t, rec).ID)
	}
	if store.Len() != 2 {
		t.Fatalf("store holds %d tensors", store.Len())
	}
	if _, ok := store.Get(ids[0]); ok {
		t.Fatal("oldest tensor was not evicted")
	}
	if _, ok := store.Get(ids[2]); !ok {
		t.Fatal("newest tensor missing")
	}
}

func TestRateLimitPerClient(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(RateLimit(0.001, 1))
	NewServer(nil, nil, nil).Register(e)

	if rec := doJSON(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d", rec.Code)
	}
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d", rec.Code)
	}
	if body := decodeBody[errorBody](t, rec); body.Error.Type != "rate_limit_error" {
		t.Fatalf("error type = %q", body.Error.Type)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	other := httptest.NewRecorder()
	e.ServeHTTP(other, req)
	if other.Code != http.StatusOK {
		t.Fatalf("other client: got %d", other.Code)
	}
}
