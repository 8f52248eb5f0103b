package api

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"revenue-reconciliation-service/internal/generator"
	"revenue-reconciliation-service/internal/identity"
	"revenue-reconciliation-service/internal/models"
	"revenue-reconciliation-service/internal/parsers"
	"revenue-reconciliation-service/internal/reporter"
	"revenue-reconciliation-service/internal/session"
	"revenue-reconciliation-service/pkg/errors"
	"revenue-reconciliation-service/pkg/logger"
)

const maxUploadBytes = 32 << 20

// Handler holds the dependencies shared by every endpoint.
type Handler struct {
	svc      *session.Service
	exporter *reporter.Exporter
	log      logger.Logger
	now      func() time.Time
}

// NewHandler creates a Handler over the session service.
func NewHandler(svc *session.Service) *Handler {
	return &Handler{
		svc:      svc,
		exporter: reporter.NewExporter(),
		log:      logger.GetGlobalLogger().WithComponent("api"),
		now:      time.Now,
	}
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

// CreateSession opens a session. The optional JSON body overrides the
// default settings key by key.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	raw := map[string]string{}
	if err := decodeJSON(r, &raw); err != nil {
		writeError(w, err)
		return
	}
	settings, err := session.ParseSettings(raw)
	if err != nil {
		writeError(w, err)
		return
	}
	sess := h.svc.Create(settings)
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// ListSessions returns every session, newest first.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.svc.List()
	out := make([]session.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSession returns one session snapshot.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Status(sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DeleteSession abandons a session and drops its artifacts.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(sessionID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSettings replaces the session settings before analysis starts.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	raw := map[string]string{}
	if err := decodeJSON(r, &raw); err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.svc.UpdateSettings(sessionID(r), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type validateResponse struct {
	Session    session.Snapshot          `json:"session"`
	Validation *parsers.ValidationResult `json:"validation"`
	Identity   *identity.Resolution      `json:"identity"`
}

// Validate ingests the six tables from a multipart form. Each file part is
// named after its table; credit_notes may be omitted.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat,
			"request is not a valid multipart upload"))
		return
	}

	sources := parsers.TableSources{}
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, table := range parsers.TableNames {
		headers := r.MultipartForm.File[table]
		if len(headers) == 0 {
			continue
		}
		f, err := headers[0].Open()
		if err != nil {
			writeError(w, errors.FileError(errors.CodeFileNotFound, headers[0].Filename, err))
			return
		}
		opened = append(opened, f)
		sources[table] = f
	}

	result, res, err := h.svc.Validate(id, sources)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.svc.Status(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Session: snap, Validation: result, Identity: res})
}

// IdentityGet replays the identity resolution for review.
func (h *Handler) IdentityGet(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.IdentityGet(sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type decideRequest struct {
	MatchID  string `json:"match_id"`
	Decision string `json:"decision"`
}

// IdentityDecide records a confirm or reject for one review candidate.
func (h *Handler) IdentityDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.IdentityDecide(sessionID(r), req.MatchID, req.Decision)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// IdentityUndo pops the most recent operator decision.
func (h *Handler) IdentityUndo(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.IdentityUndo(sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// IdentityReset clears the decision log and drops derived artifacts.
func (h *Handler) IdentityReset(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.IdentityReset(sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Analyze starts the background pipeline. Pass bypass_review=true to start
// with a non-empty review queue.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	bypass := r.URL.Query().Get("bypass_review") == "true"
	if err := h.svc.Analyze(id, bypass); err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.svc.Status(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// Status returns the pollable processing snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Status(sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Dashboard returns the headline payload for a completed run.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.svc.Dashboard(sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func accountFilters(r *http.Request) session.AccountFilters {
	q := r.URL.Query()
	filters := session.AccountFilters{
		Status:    models.VarianceStatus(q.Get("variance_type")),
		MatchType: models.MatchType(q.Get("match_type")),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filters.Limit = limit
	}
	return filters
}

// Accounts lists account summaries by descending absolute variance.
func (h *Handler) Accounts(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.Accounts(sessionID(r), accountFilters(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Lineage traces one rsx id through segments, variances, and allocations.
func (h *Handler) Lineage(w http.ResponseWriter, r *http.Request) {
	lin, err := h.svc.Lineage(sessionID(r), chi.URLParam(r, "rsxID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lin)
}

// Exclusions lists the exclusion log, optionally filtered by reason code.
func (h *Handler) Exclusions(w http.ResponseWriter, r *http.Request) {
	reason := models.ExclusionReason(r.URL.Query().Get("reason_code"))
	exclusions, err := h.svc.Exclusions(sessionID(r), reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exclusions)
}

func (h *Handler) sendAttachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

// ExportAccounts streams the account summaries as CSV. The variance_type
// query parameter may repeat to select several statuses.
func (h *Handler) ExportAccounts(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	summaries, err := h.svc.Accounts(id, session.AccountFilters{})
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.svc.Status(id)
	if err != nil {
		writeError(w, err)
		return
	}

	var statuses []models.VarianceStatus
	for _, v := range r.URL.Query()["variance_type"] {
		statuses = append(statuses, models.VarianceStatus(v))
	}

	h.sendAttachment(w, "text/csv", reporter.Filename("accounts", "csv", h.now()))
	if err := h.exporter.AccountsCSV(w, summaries, snap.Settings.Currency, statuses); err != nil {
		h.log.WithField("session_id", id).WithError(err).Error("accounts export failed")
	}
}

// ExportLineage streams one account's lineage as CSV.
func (h *Handler) ExportLineage(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	rsxID := chi.URLParam(r, "rsxID")
	lin, err := h.svc.Lineage(id, rsxID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.sendAttachment(w, "text/csv", reporter.Filename("lineage", "csv", h.now()))
	if err := h.exporter.LineageCSV(w, rsxID, lin.Variances, lin.Segments); err != nil {
		h.log.WithField("session_id", id).WithError(err).Error("lineage export failed")
	}
}

// ExportExclusions streams the exclusion log as CSV.
func (h *Handler) ExportExclusions(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	exclusions, err := h.svc.Exclusions(id, "")
	if err != nil {
		writeError(w, err)
		return
	}

	h.sendAttachment(w, "text/csv", reporter.Filename("exclusions", "csv", h.now()))
	if err := h.exporter.ExclusionsCSV(w, id, exclusions); err != nil {
		h.log.WithField("session_id", id).WithError(err).Error("exclusions export failed")
	}
}

// ExportReport renders the structural integrity report as PDF.
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	dash, err := h.svc.Dashboard(id)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.svc.Status(id)
	if err != nil {
		writeError(w, err)
		return
	}

	pdf, err := h.exporter.ScoreReportPDF(dash.Score, reporter.ReportMeta{
		PeriodStart: snap.Settings.PeriodStart,
		PeriodEnd:   snap.Settings.PeriodEnd,
		Currency:    snap.Settings.Currency,
		GeneratedAt: h.now(),
	})
	if err != nil {
		writeError(w, errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError,
			"report rendering failed"))
		return
	}
	h.sendAttachment(w, "application/pdf", reporter.Filename("report", "pdf", h.now()))
	_, _ = w.Write(pdf)
}

// Template serves the downloadable CSV skeleton for one table.
func (h *Handler) Template(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	tpl, err := parsers.Template(table)
	if err != nil {
		writeError(w, errors.New(errors.CategoryFile, errors.CodeDataNotFound,
			fmt.Sprintf("no template for table %q", table)).
			WithSuggestion("Recognized tables: accounts, customers, subscriptions, invoices, payments, credit_notes"))
		return
	}
	h.sendAttachment(w, "text/csv", fmt.Sprintf("template_%s.csv", table))
	_, _ = w.Write([]byte(tpl))
}

type syntheticRequest struct {
	Seed *int64 `json:"seed"`
}

// Synthetic generates the demo dataset and opens a session pre-loaded with
// it, already validated and sitting in identity review.
func (h *Handler) Synthetic(w http.ResponseWriter, r *http.Request) {
	var req syntheticRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	seed := int64(generator.DefaultSeed)
	if req.Seed != nil {
		seed = *req.Seed
	}

	out := generator.New(seed).Generate()
	sess := h.svc.Create(session.DefaultSettings())
	result, res, err := h.svc.Validate(sess.ID, out.Sources())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, validateResponse{
		Session:    sess.Snapshot(),
		Validation: result,
		Identity:   res,
	})
}

// SyntheticTable serves one generated table as CSV without opening a
// session.
func (h *Handler) SyntheticTable(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	seed := int64(generator.DefaultSeed)
	if v := r.URL.Query().Get("seed"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, errors.ConfigurationError(errors.CodeInvalidSetting, "seed", v))
			return
		}
		seed = parsed
	}

	out := generator.New(seed).Generate()
	content, ok := out.Tables[table]
	if !ok {
		writeError(w, errors.New(errors.CategoryFile, errors.CodeDataNotFound,
			fmt.Sprintf("no synthetic table %q", table)))
		return
	}
	h.sendAttachment(w, "text/csv", fmt.Sprintf("synthetic_%s.csv", table))
	_, _ = w.Write([]byte(content))
}
