package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gitlab.com/dirk.krummacker/person-service/internal/logging"
	"gitlab.com/dirk.krummacker/person-service/internal/metrics"
	"gitlab.com/dirk.krummacker/person-service/internal/model"
	"gitlab.com/dirk.krummacker/person-service/internal/person"
)

// pingTimeout bounds the database check of the health endpoint.
const pingTimeout = 2 * time.Second

// Pinger checks whether the database is reachable. store.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// handler holds the dependencies of the REST API endpoints.
type handler struct {
	persons *person.Service
	db      Pinger
	logger  logrus.FieldLogger
}

// SetupHttpRouter initializes the REST API router and registers all endpoints. Request logging
// is turned off when ginLogging is false.
func SetupHttpRouter(persons *person.Service, db Pinger, m *metrics.Metrics, logger logrus.FieldLogger, ginLogging bool) *gin.Engine {
	h := &handler{persons: persons, db: db, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestID())
	if ginLogging {
		router.Use(logging.RequestLogger(logger))
	} else {
		logger.Info("Turning off HTTP request logging.")
	}
	router.Use(m.Middleware())

	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	api := router.Group("/api/person")
	api.GET("", h.findPersons)
	api.POST("", h.createPerson)
	api.GET("/:id", h.findPersonByID)
	// The legacy API accepted any capitalization of this segment; the two spellings in use are
	// registered.
	for _, segment := range []string{"personalid", "PersonalId"} {
		api.GET("/"+segment+"/:personalId", h.findPersonByPersonalID)
		api.PUT("/"+segment+"/:personalId", h.updatePersonByPersonalID)
		api.DELETE("/"+segment+"/:personalId", h.deletePersonByPersonalID)
	}
	return router
}

// findPersons responds with the list of all persons as JSON.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/person
func (h *handler) findPersons(c *gin.Context) {
	persons, err := h.persons.List(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, persons)
}

// findPersonByID locates the person whose internal id matches the id parameter of the request
// URL, then returns that person as a response.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/person/56
func (h *handler) findPersonByID(c *gin.Context) {
	id, errConv := strconv.ParseInt(c.Param("id"), 10, 64)
	if errConv != nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	p, err := h.persons.Get(c.Request.Context(), id)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, p)
}

// findPersonByPersonalID returns the person with the personal id of the request URL.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/person/personalid/0105241234
func (h *handler) findPersonByPersonalID(c *gin.Context) {
	p, err := h.persons.GetByPersonalId(c.Request.Context(), c.Param("personalId"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, p)
}

// createPerson registers the person specified in the request's JSON. Only first name, last
// name and gender are taken from the request; id, personal id and timestamps are assigned by
// the service. It responds with the stored person and its location.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/person --request "POST" --include --header "Content-Type: application/json" --data '{"firstName": "Anna", "lastName": "Hansen", "gender": "female"}'
func (h *handler) createPerson(c *gin.Context) {
	var draft model.Person
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	p, err := h.persons.Create(c.Request.Context(), draft)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Header("Location", "/api/person/"+strconv.FormatInt(p.Id, 10))
	c.IndentedJSON(http.StatusCreated, p)
}

// updatePersonByPersonalID replaces first and last name of the person with the personal id of
// the request URL. The JSON must carry the same personal id.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/person/personalid/0105241234 --request "PUT" --include --header "Content-Type: application/json" --data '{"personalId": "0105241234", "firstName": "Anne", "lastName": "Berg"}'
func (h *handler) updatePersonByPersonalID(c *gin.Context) {
	var patch model.Person
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	if err := h.persons.Update(c.Request.Context(), c.Param("personalId"), patch); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// deletePersonByPersonalID deletes the person with the personal id of the request URL.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/person/personalid/0105241234 --request "DELETE"
func (h *handler) deletePersonByPersonalID(c *gin.Context) {
	if err := h.persons.Delete(c.Request.Context(), c.Param("personalId")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// health reports whether the database can be reached.
func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		logging.FromContext(c, h.logger).WithError(err).Warn("database ping failed")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"message": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// abortWithError answers the request with the status code matching err. Absent persons get
// an empty 404.
func (h *handler) abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, person.ErrNotFound):
		c.AbortWithStatus(http.StatusNotFound)
	case errors.Is(err, person.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "personalId cannot be changed"})
	case errors.Is(err, person.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "personalId already taken"})
	case errors.Is(err, person.ErrConcurrency):
		logging.FromContext(c, h.logger).WithError(err).Error("concurrent modification")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "person was modified concurrently"})
	default:
		logging.FromContext(c, h.logger).WithError(err).Error("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}
