// Package api exposes the quantization operations over HTTP.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qview/internal/logger"
	"github.com/samcharles93/qview/internal/quantized"
	"github.com/samcharles93/qview/internal/tensor"
	"github.com/samcharles93/qview/pkg/dtype"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 64 << 20

type Server struct {
	engine *quantized.Engine
	store  *TensorStore
	log    logger.Logger
	clock  func() time.Time
}

func NewServer(engine *quantized.Engine, store *TensorStore, log logger.Logger) *Server {
	if engine == nil {
		engine = quantized.NewEngine(nil, log)
	}
	if store == nil {
		store = NewTensorStore(0)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		engine: engine,
		store:  store,
		log:    log,
		clock:  time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/dtypes", s.handleListDTypes)

	e.POST("/v1/quantized/per_tensor", s.handlePerTensor)
	e.POST("/v1/quantized/int_repr", s.handleIntRepr)
	e.POST("/v1/quantized/dequantize", s.handleDequantize)
	e.POST("/v1/quantized/quantize", s.handleQuantize)

	e.GET("/v1/tensors/:id", s.handleGetTensor)
	e.DELETE("/v1/tensors/:id", s.handleDeleteTensor)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"launcher": s.engine.Launcher().Name(),
		"stored":   s.store.Len(),
	})
}

func (s *Server) handleListDTypes(c *echo.Context) error {
	all := dtype.All()
	data := make([]DTypeInfo, 0, len(all))
	for _, t := range all {
		data = append(data, dtypeInfo(t))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
	})
}

func (s *Server) handlePerTensor(c *echo.Context) error {
	req, err := decodeJSON[PerTensorRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	src, err := tensorFromData(req.DType, req.Shape, req.Data)
	if err != nil {
		return writeOpError(c, err)
	}
	q, err := s.engine.MakePerTensorQuantized(c.Request().Context(), src, req.Scale, req.ZeroPoint)
	if err != nil {
		return writeOpError(c, err)
	}
	rec := s.store.Put(q, s.clock())
	obj, err := recordObject(rec)
	if err != nil {
		return writeOpError(c, err)
	}
	return c.JSON(http.StatusOK, obj)
}

func (s *Server) handleIntRepr(c *echo.Context) error {
	req, err := decodeJSON[QuantizedInput](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	q, err := s.resolveQuantized(c, req)
	if err != nil {
		return writeOpError(c, err)
	}
	out, err := s.engine.IntRepr(c.Request().Context(), q)
	if err != nil {
		return writeOpError(c, err)
	}
	obj, err := tensorObject(out)
	if err != nil {
		return writeOpError(c, err)
	}
	return c.JSON(http.StatusOK, obj)
}

func (s *Server) handleDequantize(c *echo.Context) error {
	req, err := decodeJSON[QuantizedInput](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	q, err := s.resolveQuantized(c, req)
	if err != nil {
		return writeOpError(c, err)
	}
	out, err := s.engine.Dequantize(c.Request().Context(), q)
	if err != nil {
		return writeOpError(c, err)
	}
	obj, err := tensorObject(out)
	if err != nil {
		return writeOpError(c, err)
	}
	return c.JSON(http.StatusOK, obj)
}

func (s *Server) handleQuantize(c *echo.Context) error {
	req, err := decodeJSON[QuantizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	qtype, err := dtype.Parse(req.DType)
	if err != nil {
		return writeOpError(c, err)
	}
	x, err := tensorFromData(dtype.Float.String(), req.Shape, req.Data)
	if err != nil {
		return writeOpError(c, err)
	}
	q, err := s.engine.QuantizePerTensor(c.Request().Context(), x, req.Scale, req.ZeroPoint, qtype)
	if err != nil {
		return writeOpError(c, err)
	}
	rec := s.store.Put(q, s.clock())
	obj, err := recordObject(rec)
	if err != nil {
		return writeOpError(c, err)
	}
	return c.JSON(http.StatusOK, obj)
}

func (s *Server) handleGetTensor(c *echo.Context) error {
	id := c.Param("id")
	rec, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "tensor not found")
	}
	obj, err := recordObject(rec)
	if err != nil {
		return writeOpError(c, err)
	}
	return c.JSON(http.StatusOK, obj)
}

func (s *Server) handleDeleteTensor(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "tensor not found")
	}
	return c.JSON(http.StatusOK, DeleteTensorResp{
		ID:      id,
		Object:  "tensor.deleted",
		Deleted: true,
	})
}

// resolveQuantized returns the stored tensor named by in.ID, or builds one
// from the inline fields through the per-tensor view.
func (s *Server) resolveQuantized(c *echo.Context, in QuantizedInput) (*tensor.Tensor, error) {
	if in.ID != "" {
		rec, ok := s.store.Get(in.ID)
		if !ok {
			return nil, fmt.Errorf("%w: tensor %s", ErrNotFound, in.ID)
		}
		return rec.Tensor, nil
	}
	qtype, err := dtype.Parse(in.DType)
	if err != nil {
		return nil, err
	}
	raw, err := dtype.ToUnderlying(qtype)
	if err != nil {
		return nil, newInvalidRequest("dtype", fmt.Sprintf("dtype %s is not quantized", qtype))
	}
	src, err := tensorFromData(raw.String(), in.Shape, in.Data)
	if err != nil {
		return nil, err
	}
	return s.engine.MakePerTensorQuantized(c.Request().Context(), src, in.Scale, in.ZeroPoint)
}
