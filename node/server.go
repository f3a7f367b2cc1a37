package node

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Server exposes a node over HTTP.
type Server struct {
	node *Node
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func NewServer(n *Node) *Server {
	return &Server{node: n}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/submit", s.handleSubmit)
	e.GET("/status", s.handleStatus)
	e.GET("/did/:did", s.handleGetDocument)
}

func errorResponse(c echo.Context, code int, msg string, err error) error {
	return c.JSON(code, ErrorResponse{
		Code:    code,
		Message: msg,
		Details: err.Error(),
	})
}

func (s *Server) handleSubmit(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "failed to read request", err)
	}

	// ledger level refusals are still answered with 200 and a REQNACK
	return c.JSONBlob(http.StatusOK, s.node.Handle(body))
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.node.Status())
}

func (s *Server) handleGetDocument(c echo.Context) error {
	doc, err := s.node.Document(c.Param("did"))
	switch {
	case errors.Is(err, ErrUnknownNym):
		return errorResponse(c, http.StatusNotFound, "not found", err)
	case err != nil:
		return errorResponse(c, http.StatusBadRequest, "cannot resolve did", err)
	}

	return c.JSON(http.StatusOK, doc)
}
