package ops

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// body is the JSON envelope for ops responses.
type body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, body{Success: true, Data: data})
}

func accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, body{Success: true, Data: data})
}

func badRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, body{Success: false, Error: err})
}

func conflict(c *gin.Context, err string) {
	c.JSON(http.StatusConflict, body{Success: false, Error: err})
}

func internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, body{Success: false, Error: err})
}

func internalWith(c *gin.Context, err, detail string) {
	c.JSON(http.StatusInternalServerError, body{Success: false, Error: err, Detail: detail})
}
