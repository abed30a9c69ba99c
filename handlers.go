package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/shopdash_backend/audit"
	"github.com/mmdatafocus/shopdash_backend/backend"
	"github.com/mmdatafocus/shopdash_backend/config"
	"github.com/mmdatafocus/shopdash_backend/hooks"
	"github.com/mmdatafocus/shopdash_backend/middlewares"
	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/models/reports"
	"github.com/mmdatafocus/shopdash_backend/query"
	"github.com/mmdatafocus/shopdash_backend/utils"
	"github.com/mmdatafocus/shopdash_backend/workflow"
	"github.com/sirupsen/logrus"
)

const auditHeadlineLimit = 2

type listResponse struct {
	Data    []models.Record `json:"data"`
	Count   int             `json:"count"`
	Loading bool            `json:"loading"`
	Error   *string         `json:"error"`
}

type detailResponse struct {
	Data    []models.Record `json:"data"`
	Loading bool            `json:"loading"`
	Error   *string         `json:"error"`
}

type auditEntryResponse struct {
	Record   *models.AuditRecord `json:"record"`
	Summary  audit.Summary       `json:"summary"`
	Headline string              `json:"headline"`
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}

// readStatus maps a failed read: bad input 400, unknown resource 404, backend 502.
func readStatus(c *gin.Context, err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case models.IsValidationError(err), errors.Is(err, query.ErrInvalidOptions), errors.Is(err, errBadParam):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnknownResource):
		return http.StatusNotFound
	default:
		_ = c.Error(err)
		return http.StatusBadGateway
	}
}

// writeStatus maps a write: a failed result is 422, a held line lock 409, a backend failure 502.
func writeStatus(c *gin.Context, result *models.CorrectionResult, err error) (int, *models.CorrectionResult) {
	switch {
	case errors.Is(err, workflow.ErrCorrectionInProgress):
		return http.StatusConflict, models.FailedResult(err.Error())
	case err != nil:
		_ = c.Error(err)
		return http.StatusBadGateway, models.FailedResult(err.Error())
	case !result.Success:
		return http.StatusUnprocessableEntity, result
	}
	return http.StatusOK, result
}

var errBadParam = errors.New("invalid parameter")

func badParam(name string, value string) error {
	return &paramError{name: name, value: value}
}

type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " " + strconv.Quote(e.value)
}

func (e *paramError) Unwrap() error {
	return errBadParam
}

func optionalInt(c *gin.Context, name string) (*int, error) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, badParam(name, v)
	}
	return &n, nil
}

// queryOptions reads list options from the query string.
func queryOptions(c *gin.Context) (models.QueryOptions, error) {
	opts := models.QueryOptions{
		SortColumn:   strings.TrimSpace(c.Query("sortColumn")),
		SortOrder:    models.SortOrder(strings.ToLower(strings.TrimSpace(c.Query("sortOrder")))),
		FilterColumn: strings.TrimSpace(c.Query("filterColumn")),
		FilterValue:  c.Query("filterValue"),
		DateColumn:   strings.TrimSpace(c.Query("dateColumn")),
		Select:       utils.SplitAndTrim(c.Query("select")),
	}
	var err error
	if opts.Page, err = optionalInt(c, "page"); err != nil {
		return opts, err
	}
	if opts.PageSize, err = optionalInt(c, "pageSize"); err != nil {
		return opts, err
	}
	if from, to := strings.TrimSpace(c.Query("from")), strings.TrimSpace(c.Query("to")); from != "" || to != "" {
		opts.DateRange = &models.DateRange{Start: from, End: to}
	}
	return opts, nil
}

func listBody(r hooks.ListResult) listResponse {
	return listResponse{Data: r.Data, Count: r.Count, Loading: r.Loading, Error: errorText(r.Err)}
}

func listHandler(c *gin.Context) {
	opts, err := queryOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, listResponse{Data: []models.Record{}, Error: errorText(err)})
		return
	}
	r := current(c).hooks.UseList(c.Request.Context(), c.Param("resource"), opts)
	c.JSON(readStatus(c, r.Err), listBody(r))
}

func detailsHandler(c *gin.Context) {
	d, err := middlewares.GetDetails(c.Request.Context(), c.Param("resource"), c.Param("id"))
	if d == nil {
		d = []models.Record{}
	}
	c.JSON(readStatus(c, err), detailResponse{Data: d, Error: errorText(err)})
}

// batchDetailsHandler resolves ?ids=1,2,3 through the request's detail loader.
func batchDetailsHandler(c *gin.Context) {
	ids := utils.UniqueSlice(utils.SplitAndTrim(c.Query("ids")))
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}
	rows, errs := middlewares.GetManyDetails(c.Request.Context(), c.Param("resource"), ids)
	data := make(map[string]detailResponse, len(ids))
	status := http.StatusOK
	for i, id := range ids {
		resp := detailResponse{Data: rows[i]}
		if resp.Data == nil {
			resp.Data = []models.Record{}
		}
		if i < len(errs) && errs[i] != nil {
			resp.Error = errorText(errs[i])
			if s := readStatus(c, errs[i]); s > status {
				status = s
			}
		}
		data[id] = resp
	}
	c.JSON(status, gin.H{"data": data})
}

// watchHandler streams list updates as server-sent events until the client goes away.
func watchHandler(c *gin.Context) {
	a := current(c)
	ctx := c.Request.Context()
	resource := c.Param("resource")
	opts, err := queryOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, listResponse{Data: []models.Record{}, Error: errorText(err)})
		return
	}

	// a backend failure is streamed like any later update; bad input is not
	first := a.hooks.UseList(ctx, resource, opts)
	if first.Err != nil && !backend.IsBackendError(first.Err) {
		c.JSON(readStatus(c, first.Err), listBody(first))
		return
	}
	sub, err := a.hooks.WatchList(ctx, resource, opts)
	if err != nil {
		c.JSON(readStatus(c, err), listResponse{Data: []models.Record{}, Error: errorText(err)})
		return
	}
	c.SSEvent("update", listBody(first))
	if sub == nil {
		// demo data never changes
		return
	}
	defer sub.Close()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e := <-sub.Updates():
			c.SSEvent("update", listBody(hooks.ListFromEntry(e)))
			return true
		}
	})
}

// searchHandler serves autocomplete. A request superseded by a newer one from the
// same client within the debounce window gets 204.
func searchHandler(c *gin.Context) {
	a := current(c)
	resource := c.Param("resource")
	client := c.GetHeader("x-client-id")
	if client == "" {
		client = c.ClientIP()
	}
	if !a.debounce.Settle(c.Request.Context(), client+":"+resource) {
		c.Status(http.StatusNoContent)
		return
	}
	r := a.hooks.Search(c.Request.Context(), resource, c.Query("column"), c.Query("term"))
	c.JSON(readStatus(c, r.Err), listBody(r))
}

func milestonesHandler(c *gin.Context) {
	sortBy, ok := reports.ParseTimelineSortKey(strings.TrimSpace(c.Query("sort")))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": badParam("sort", c.Query("sort")).Error()})
		return
	}
	q := hooks.MilestoneQuery{SortBy: sortBy}
	switch strings.ToLower(strings.TrimSpace(c.Query("order"))) {
	case "", string(models.SortDesc):
	case string(models.SortAsc):
		q.Ascending = true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": badParam("order", c.Query("order")).Error()})
		return
	}
	if from, to := strings.TrimSpace(c.Query("from")), strings.TrimSpace(c.Query("to")); from != "" || to != "" {
		q.DateRange = &models.DateRange{Start: from, End: to}
	}

	r := current(c).hooks.UseMilestones(c.Request.Context(), q)
	c.JSON(readStatus(c, r.Err), gin.H{"data": r.Data, "loading": r.Loading, "error": errorText(r.Err)})
}

func auditEntry(rec *models.AuditRecord) auditEntryResponse {
	s := audit.Summarize(rec)
	return auditEntryResponse{Record: rec, Summary: s, Headline: s.Headline(auditHeadlineLimit)}
}

// auditListHandler lists audit entries with their summaries. Malformed entries are skipped.
func auditListHandler(c *gin.Context) {
	opts, err := queryOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"data": []auditEntryResponse{}, "error": err.Error()})
		return
	}
	if opts.SortColumn == "" {
		opts.SortColumn, opts.SortOrder = "created_at", models.SortDesc
	}
	r := current(c).hooks.UseList(c.Request.Context(), models.ResourceAuditLog, opts)
	entries := make([]auditEntryResponse, 0, len(r.Data))
	for _, row := range r.Data {
		rec, err := models.ParseAuditRecord(row)
		if err != nil {
			config.GetLogger().WithFields(logrus.Fields{"module": "handlers", "funcName": "auditListHandler"}).Warn(err.Error())
			continue
		}
		entries = append(entries, auditEntry(rec))
	}
	c.JSON(readStatus(c, r.Err), gin.H{"data": entries, "count": r.Count, "loading": r.Loading, "error": errorText(r.Err)})
}

// loadAuditRecord reads one audit entry. It returns nil without error when none exists.
func loadAuditRecord(c *gin.Context, id string) (*models.AuditRecord, error) {
	d := current(c).hooks.UseDetails(c.Request.Context(), models.ResourceAuditLog, id)
	if d.Err != nil {
		return nil, d.Err
	}
	if len(d.Data) == 0 {
		return nil, nil
	}
	return models.ParseAuditRecord(d.Data[0])
}

func auditEntryHandler(c *gin.Context) {
	rec, err := loadAuditRecord(c, c.Param("id"))
	switch {
	case errors.Is(err, models.ErrInvalidAuditRecord):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(readStatus(c, err), gin.H{"error": err.Error()})
		return
	case rec == nil:
		c.JSON(http.StatusNotFound, gin.H{"error": utils.ErrorRecordNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, auditEntry(rec))
}

// rollbackHandler reverts an audit entry and then drops the caches it touched.
func rollbackHandler(c *gin.Context) {
	a := current(c)
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, models.FailedResult(badParam("audit id", c.Param("id")).Error()))
		return
	}

	var table string
	if !models.ModeFromContext(c.Request.Context()).IsDemo() {
		rec, err := loadAuditRecord(c, c.Param("id"))
		if err != nil && !errors.Is(err, models.ErrInvalidAuditRecord) {
			status, failed := writeStatus(c, nil, err)
			c.JSON(status, failed)
			return
		}
		if rec == nil && err == nil {
			c.JSON(http.StatusNotFound, models.FailedResult(utils.ErrorRecordNotFound.Error()))
			return
		}
		if rec != nil {
			table = rec.TableName
		}
	}

	result, err := a.rollback.Rollback(c.Request.Context(), id)
	if err == nil && result.Success {
		a.cache.Apply(c.Request.Context(), workflow.RollbackInvalidation(table, result))
	}
	status, body := writeStatus(c, result, err)
	c.JSON(status, body)
}

func correctionHandler(c *gin.Context) {
	var req models.CorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.FailedResult("invalid request: "+err.Error()))
		return
	}
	req.Resource = c.Param("resource")
	result, err := current(c).corrector.CorrectTransaction(c.Request.Context(), req)
	status, body := writeStatus(c, result, err)
	c.JSON(status, body)
}

func productCorrectionHandler(c *gin.Context) {
	var req models.ProductCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.FailedResult("invalid request: "+err.Error()))
		return
	}
	req.ProductID = c.Param("id")
	result, err := current(c).corrector.CorrectProduct(c.Request.Context(), req)
	status, body := writeStatus(c, result, err)
	c.JSON(status, body)
}
