package person

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"personrelay/internal/logger"
	"personrelay/pkg/errors"
)

type BaseHandler struct {
	Logger logger.Logger
}

// HandleError answers with the service error's status and a detail body.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToDetailResponse(err))
}

type Handler struct {
	BaseHandler
	Service Service
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: log},
		Service:     service,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/", h.Root)
	router.GET("/all", h.ListAll)
	router.POST("/person", h.CreatePerson)
}

// Root godoc
// @Summary      Liveness greeting
// @Tags         people
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       / [get]
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"Hello": "World"})
}

// ListAll godoc
// @Summary      List every stored person
// @Description  Each row is rendered as "<PersonID>, <Email>"
// @Tags         people
// @Produce      json
// @Success      200  {array}   string
// @Failure      500  {object}  map[string]string
// @Router       /all [get]
func (h *Handler) ListAll(c *gin.Context) {
	rows, err := h.Service.ListDisplay(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// CreatePerson godoc
// @Summary      Insert one person
// @Tags         people
// @Accept       json
// @Produce      json
// @Param        person  body      Person  true  "Person to store"
// @Success      200     {object}  Person
// @Failure      500     {object}  map[string]string
// @Router       /person [post]
func (h *Handler) CreatePerson(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}

	p, err := Parse(body)
	if err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}

	stored, err := h.Service.Create(c.Request.Context(), p)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}
