package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/menta2k/edge-case-lab/internal/logging"
	"github.com/menta2k/edge-case-lab/pkg/export"
	"github.com/menta2k/edge-case-lab/pkg/lab"
	"github.com/menta2k/edge-case-lab/pkg/pipeline"
	"github.com/menta2k/edge-case-lab/pkg/processing"
	"github.com/menta2k/edge-case-lab/pkg/scoring"
	"github.com/menta2k/edge-case-lab/pkg/types"
)

type ctxKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the id assigned by the router, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// maxWait caps how long ?wait=true blocks on an analysis
const maxWait = 5 * time.Minute

// SessionView is the JSON body returned for every state change
type SessionView struct {
	lab.Snapshot
	Assessment scoring.Assessment `json:"assessment"`
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type analyzeBody struct {
	Token   string         `json:"token"`
	Verdict *types.Verdict `json:"verdict,omitempty"`
	Applied *bool          `json:"applied,omitempty"`
}

// Handlers serves one lab session
type Handlers struct {
	session *lab.Session
	logger  *zap.Logger
}

func NewHandlers(session *lab.Session, logger *zap.Logger) *Handlers {
	return &Handlers{session: session, logger: logger}
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (h *Handlers) CatalogHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Catalog())
}

func (h *Handlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w, h.session.Snapshot())
}

func (h *Handlers) SetParamHandler(w http.ResponseWriter, r *http.Request) {
	field, err := types.ParseField(chi.URLParam(r, "field"))
	if err != nil {
		h.writeError(w, r, "api.set_param", http.StatusNotFound, err)
		return
	}

	var body struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
		// also accept ?value= for simple clients
		v, qerr := strconv.ParseFloat(r.URL.Query().Get("value"), 64)
		if qerr != nil {
			h.writeError(w, r, "api.set_param", http.StatusBadRequest, errors.New("value is required"))
			return
		}
		body.Value = &v
	}

	snap, err := h.session.SetParam(field, *body.Value)
	if err != nil {
		h.writeError(w, r, "api.set_param", http.StatusBadRequest, err)
		return
	}
	h.writeSession(w, snap)
}

// paramsBody is a full parameter vector; every field is required
type paramsBody struct {
	Blur       *float64 `json:"blur"`
	Brightness *float64 `json:"brightness"`
	Noise      *float64 `json:"noise"`
	Rotation   *float64 `json:"rotation"`
	Crop       *float64 `json:"crop"`
}

func (b paramsBody) params() (types.Params, error) {
	values := map[types.Field]*float64{
		types.FieldBlur:       b.Blur,
		types.FieldBrightness: b.Brightness,
		types.FieldNoise:      b.Noise,
		types.FieldRotation:   b.Rotation,
		types.FieldCrop:       b.Crop,
	}
	var missing []string
	for _, f := range types.Fields() {
		if values[f] == nil {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return types.Params{}, fmt.Errorf("missing parameters: %s", strings.Join(missing, ", "))
	}
	return types.Params{
		Blur:       *b.Blur,
		Brightness: *b.Brightness,
		Noise:      *b.Noise,
		Rotation:   *b.Rotation,
		Crop:       *b.Crop,
	}, nil
}

func (h *Handlers) SetParamsHandler(w http.ResponseWriter, r *http.Request) {
	var body paramsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, "api.set_params", http.StatusBadRequest, err)
		return
	}
	p, err := body.params()
	if err != nil {
		h.writeError(w, r, "api.set_params", http.StatusBadRequest, err)
		return
	}
	snap, err := h.session.SetParams(p)
	if err != nil {
		h.writeError(w, r, "api.set_params", http.StatusBadRequest, err)
		return
	}
	h.writeSession(w, snap)
}

func (h *Handlers) PresetHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.SelectDifficulty(chi.URLParam(r, "label"))
	if err != nil {
		h.writeError(w, r, "api.preset", http.StatusNotFound, err)
		return
	}
	h.writeSession(w, snap)
}

func (h *Handlers) ScenarioHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.SelectScenario(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "api.scenario", http.StatusNotFound, err)
		return
	}
	h.writeSession(w, snap)
}

func (h *Handlers) ResetHandler(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w, h.session.Reset())
}

func (h *Handlers) ImageHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.SelectImage(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "api.image", http.StatusNotFound, err)
		return
	}
	h.writeSession(w, snap)
}

// PreviewHandler serves the preview with overlay. A missing source still
// yields 200 with the placeholder frame; X-Source-Status tells them apart.
func (h *Handlers) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	img, err := h.session.Preview()
	status := "ready"
	switch {
	case errors.Is(err, pipeline.ErrSourceUnavailable):
		status = "unavailable"
		if errors.Is(err, processing.ErrSourcePending) {
			status = "loading"
		}
	case err != nil:
		h.writeError(w, r, "api.preview", http.StatusInternalServerError, err)
		return
	}

	data, err := processing.Encode(img, "png", 0, false)
	if err != nil {
		h.writeError(w, r, "api.preview", http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Source-Status", status)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handlers) ExportHandler(w http.ResponseWriter, r *http.Request) {
	data, err := h.session.Export()
	if err != nil {
		h.writeError(w, r, "api.export", statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", h.session.ExportMimeType())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// AnalyzeHandler submits the current frame. It answers 202 with the token
// right away, or with ?wait=true blocks and answers 200 with the verdict.
func (h *Handlers) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	pending, err := h.session.Submit(r.Context())
	if err != nil {
		h.writeError(w, r, "api.analyze", statusFor(err), err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		writeJSON(w, http.StatusAccepted, analyzeBody{Token: pending.Token})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), maxWait)
	defer cancel()
	verdict, applied, err := pending.Wait(ctx)
	if err != nil {
		// the call keeps running; the client can poll the session
		writeJSON(w, http.StatusAccepted, analyzeBody{Token: pending.Token})
		return
	}
	writeJSON(w, http.StatusOK, analyzeBody{Token: pending.Token, Verdict: &verdict, Applied: &applied})
}

func (h *Handlers) writeSession(w http.ResponseWriter, snap lab.Snapshot) {
	writeJSON(w, http.StatusOK, SessionView{Snapshot: snap, Assessment: scoring.Assess(snap.Params)})
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, op string, status int, err error) {
	id := RequestID(r.Context())
	err = logging.NewOperationError(op, id, err)
	logger := logging.WithOperation(h.logger, op, id)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error("request failed", zap.Error(err))
	} else {
		logger.Info("request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error(), RequestID: id})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, lab.ErrAnalyzing):
		return http.StatusConflict
	case errors.Is(err, export.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, lab.ErrUnknownPreset), errors.Is(err, lab.ErrUnknownImage):
		return http.StatusNotFound
	case errors.Is(err, types.ErrOutOfRange), errors.Is(err, pipeline.ErrInvalidParams):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
