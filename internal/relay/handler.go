package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"personrelay/internal/logger"
	"personrelay/internal/person"
)

type Drainer interface {
	DrainAndInsert(ctx context.Context) (Result, error)
}

type Handler struct {
	person.BaseHandler
	relay Drainer
}

func NewHandler(relay Drainer, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: person.BaseHandler{Logger: log},
		relay:       relay,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRoutes) {
	router.POST("/personservicebus/", h.DrainQueue)
}

// DrainQueue godoc
// @Summary      Drain the queue into the people table
// @Description  Receives every available message, parses it and inserts the parsed records in one batch
// @Tags         relay
// @Produce      json
// @Success      200  {object}  map[string]int
// @Failure      500  {object}  map[string]string
// @Router       /personservicebus/ [post]
func (h *Handler) DrainQueue(c *gin.Context) {
	// A drain lasts as long as the queue has messages, so the server-wide
	// write timeout must not cut off the rows_affected answer.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		h.Logger.DebugwCtx(c.Request.Context(), "Write deadline left in place", "error", err)
	}

	res, err := h.relay.DrainAndInsert(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows_affected": res.Inserted})
}
