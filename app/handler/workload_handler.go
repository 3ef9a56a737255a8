package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"slumber/internal/model"
	"slumber/internal/service/lifecycle"
	"slumber/pkg/logger"
)

// WorkloadHandler serves the operator API and the gateway wake route
type WorkloadHandler struct {
	workloads WorkloadService
}

// NewWorkloadHandler creates workload handler
func NewWorkloadHandler(workloads WorkloadService) *WorkloadHandler {
	return &WorkloadHandler{workloads: workloads}
}

// Deploy creates a workload
// @Summary Deploy workload
// @Tags Workloads
// @Accept json
// @Produce json
// @Param request body model.DeployRequest true "Deploy request"
// @Success 201 {object} model.Workload
// @Router /api/v1/workloads [post]
func (h *WorkloadHandler) Deploy(c *gin.Context) {
	var req model.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	w, err := h.workloads.Deploy(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	logger.InfoCtx(c.Request.Context(), "deployed workload %s (%s) on port %d", w.ID, w.TemplateID, w.PublicPort)
	c.JSON(http.StatusCreated, w)
}

// List lists workloads, optionally for one account
// @Summary List workloads
// @Tags Workloads
// @Produce json
// @Param account_id query string false "Owning account"
// @Router /api/v1/workloads [get]
func (h *WorkloadHandler) List(c *gin.Context) {
	items, err := h.workloads.List(c.Request.Context(), c.Query("account_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []*model.Workload{}
	}
	c.JSON(http.StatusOK, gin.H{"workloads": items, "total": len(items)})
}

// Get returns one workload
// @Summary Get workload
// @Tags Workloads
// @Produce json
// @Param id path string true "Workload id"
// @Router /api/v1/workloads/{id} [get]
func (h *WorkloadHandler) Get(c *gin.Context) {
	w, err := h.workloads.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Wake starts a sleeping workload. With wait=true the call returns once the
// workload is RUNNING or the wake failed.
// @Summary Wake workload
// @Tags Workloads
// @Produce json
// @Param id path string true "Workload id"
// @Param wait query bool false "Wait for readiness"
// @Router /api/v1/workloads/{id}/wake [post]
func (h *WorkloadHandler) Wake(c *gin.Context) {
	wait, _ := strconv.ParseBool(c.Query("wait"))

	var (
		ack *model.WakeAck
		err error
	)
	if wait {
		ack, err = h.workloads.WakeAndWait(c.Request.Context(), c.Param("id"))
	} else {
		ack, err = h.workloads.Wake(c.Request.Context(), c.Param("id"))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// InternalWake is the gateway trigger. It only acknowledges; the gateway
// keeps probing the workload itself.
func (h *WorkloadHandler) InternalWake(c *gin.Context) {
	ctx := logger.WithWorkload(c.Request.Context(), c.Param("id"))
	ack, err := h.workloads.Wake(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	logger.DebugCtx(ctx, "gateway wake acknowledged in state %s", ack.State)
	c.JSON(http.StatusOK, ack)
}

// Hibernate stops a running workload
// @Summary Hibernate workload
// @Tags Workloads
// @Param id path string true "Workload id"
// @Router /api/v1/workloads/{id}/hibernate [post]
func (h *WorkloadHandler) Hibernate(c *gin.Context) {
	id := c.Param("id")
	if err := h.workloads.Hibernate(c.Request.Context(), id, lifecycle.ReasonManual); err != nil {
		writeError(c, err)
		return
	}
	w, err := h.workloads.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Delete removes a workload and all of its runtime objects
// @Summary Delete workload
// @Tags Workloads
// @Param id path string true "Workload id"
// @Router /api/v1/workloads/{id} [delete]
func (h *WorkloadHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.workloads.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	logger.InfoCtx(c.Request.Context(), "deleted workload %s", id)
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

// Export uploads the workload's data volume to the backup store
// @Summary Export workload data
// @Tags Workloads
// @Param id path string true "Workload id"
// @Router /api/v1/workloads/{id}/export [post]
func (h *WorkloadHandler) Export(c *gin.Context) {
	ref, err := h.workloads.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ref)
}

// Logs returns the tail of the workload's console output as plain text
// @Summary Workload logs
// @Tags Workloads
// @Param id path string true "Workload id"
// @Param tail query int false "Number of log lines" default(100)
// @Success 200 {string} string
// @Router /api/v1/workloads/{id}/logs [get]
func (h *WorkloadHandler) Logs(c *gin.Context) {
	tail, err := strconv.Atoi(c.DefaultQuery("tail", "100"))
	if err != nil || tail <= 0 {
		tail = 100
	}

	logs, err := h.workloads.Logs(c.Request.Context(), c.Param("id"), tail)
	if err != nil {
		writeError(c, err)
		return
	}
	c.String(http.StatusOK, logs)
}

// ListTemplates returns the game catalog
// @Summary List templates
// @Tags Templates
// @Router /api/v1/templates [get]
func (h *WorkloadHandler) ListTemplates(c *gin.Context) {
	items, err := h.workloads.ListTemplates(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []*model.Template{}
	}
	c.JSON(http.StatusOK, gin.H{"templates": items})
}
