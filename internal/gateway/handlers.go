package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	v1 "github.com/matheus3301/convsync/internal/contract/v1"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/metrics"
	"github.com/matheus3301/convsync/internal/provider"
	"github.com/matheus3301/convsync/internal/registry"
	"github.com/matheus3301/convsync/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	maxUpdatesBatch     = 200
	maxSendBody         = 64 << 10
)

// API serves the gateway REST endpoints.
type API struct {
	db              *store.DB
	rec             *Recorder
	registry        *registry.Registry
	provider        provider.Provider
	providerTimeout time.Duration
	maxMessageChars int
	logger          *zap.Logger
}

// APIOptions tunes the REST handlers. Zero values take the defaults.
type APIOptions struct {
	ProviderTimeout time.Duration
	MaxMessageChars int
}

// NewAPI creates the REST handlers.
func NewAPI(db *store.DB, rec *Recorder, reg *registry.Registry, p provider.Provider, opts APIOptions, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 20 * time.Second
	}
	if opts.MaxMessageChars <= 0 {
		opts.MaxMessageChars = defaultMaxMessageChars
	}
	return &API{
		db:              db,
		rec:             rec,
		registry:        reg,
		provider:        p,
		providerTimeout: opts.ProviderTimeout,
		maxMessageChars: opts.MaxMessageChars,
		logger:          logger,
	}
}

// Health handles GET /health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	h := v1.Health{Status: "ok", Provider: a.provider.Name()}
	if v, err := a.db.GetSyncState(store.KeyHistorySyncedAt); err == nil && v != "" {
		h.HistorySyncedAt, _ = strconv.ParseInt(v, 10, 64)
	}
	writeJSON(w, http.StatusOK, h)
}

// ListMessages handles GET /api/messages: a newest-first window of stored
// messages, ascending within the window.
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	offset = max(offset, 0)

	rows, total, err := a.db.ListMessages(r.Context(), registry.NormalizeID(q.Get("conversationId")), limit, offset)
	if err != nil {
		a.logger.Error("list messages failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list messages failed")
		return
	}
	items := make([]v1.ChatPayload, 0, len(rows))
	for i := range rows {
		items = append(items, v1.FromMessage(rows[i].Convo()))
	}
	page := convo.NewPage(items, total, limit, offset)
	writeJSON(w, http.StatusOK, v1.MessageList{Items: page.Items, Pagination: v1.FromPage(page)})
}

// ListSessions handles GET /api/sessions. A registry failure is reported in
// the error field next to an empty page.
func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	pageSize, err := intParam(q.Get("pageSize"), registry.DefaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pageSize")
		return
	}

	res := a.registry.List(r.Context(), page, pageSize)
	out := v1.SessionList{
		Items:      make([]v1.Session, 0, len(res.Page.Items)),
		Pagination: v1.FromPage(res.Page),
	}
	for _, c := range res.Page.Items {
		out.Items = append(out.Items, v1.ToSession(c))
	}
	if res.Failed {
		out.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// FindSent handles GET /api/messages/sent: the message a client stored under
// clientMsgId, or 404 when none was stored.
func (a *API) FindSent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	convID := registry.NormalizeID(q.Get("conversationId"))
	clientMsgID := strings.TrimSpace(q.Get("clientMsgId"))
	if convID == "" || clientMsgID == "" {
		writeError(w, http.StatusBadRequest, "conversationId and clientMsgId are required")
		return
	}
	m, err := a.db.FindByClientMsgID(convID, clientMsgID)
	if err != nil {
		a.logger.Error("lookup client message failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "not stored")
		return
	}
	writeJSON(w, http.StatusOK, v1.FromMessage(m.Convo()))
}

// SendWhatsApp handles POST /api/whatsapp/send. A provider rejection answers
// 502 with Success=false; the message is stored only once the provider
// accepted it.
func (a *API) SendWhatsApp(w http.ResponseWriter, r *http.Request) {
	var req v1.SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSendBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	phone := registry.NormalizePhone(req.To)
	content := strings.TrimSpace(req.Content)
	switch {
	case phone == "":
		writeError(w, http.StatusBadRequest, "missing recipient")
		return
	case content == "" && req.MediaRef == "":
		writeError(w, http.StatusBadRequest, "empty message")
		return
	case utf8.RuneCountInString(content) > a.maxMessageChars:
		writeError(w, http.StatusRequestEntityTooLarge, "message too long")
		return
	}

	log := a.logger.With(zap.String("conversation_id", phone), zap.String("client_msg_id", req.ClientMsgID))

	if existing, err := a.db.FindByClientMsgID(phone, req.ClientMsgID); err != nil {
		log.Error("lookup client message failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "send failed")
		return
	} else if existing != nil {
		writeJSON(w, http.StatusOK, v1.SendResponse{Success: true, ProviderMessageID: existing.MsgID})
		return
	}

	attemptID, err := a.db.RecordSendAttempt(phone, req.ClientMsgID, content)
	if err != nil {
		log.Error("record send attempt failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "send failed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.providerTimeout)
	start := time.Now()
	providerID, err := a.provider.Send(ctx, phone, content, req.MediaRef)
	cancel()
	metrics.RecordProviderSend(a.provider.Name(), err == nil, time.Since(start).Seconds())

	if err != nil {
		log.Warn("provider send failed", zap.Error(err))
		if merr := a.db.MarkAttemptFailed(attemptID, err.Error()); merr != nil {
			log.Error("mark attempt failed", zap.Error(merr))
		}
		writeJSON(w, http.StatusBadGateway, v1.SendResponse{Success: false, Error: err.Error()})
		return
	}
	if err := a.db.MarkAttemptSent(attemptID, providerID); err != nil {
		log.Error("mark attempt sent", zap.Error(err))
	}

	stored, _, err := a.rec.Append(&store.Message{
		MsgID:          providerID,
		ConversationID: phone,
		ClientMsgID:    req.ClientMsgID,
		Direction:      convo.Outbound,
		Sender:         string(RoleAgent),
		Body:           content,
		MediaRef:       req.MediaRef,
		Status:         convo.StatusSent,
	}, convo.ChannelWhatsApp)
	if err != nil {
		// Delivered but not stored: the provider echo or a refetch repairs it.
		log.Error("store sent message failed", zap.String("provider_msg_id", providerID), zap.Error(err))
		writeJSON(w, http.StatusOK, v1.SendResponse{Success: true, ProviderMessageID: providerID})
		return
	}
	writeJSON(w, http.StatusOK, v1.SendResponse{Success: true, ProviderMessageID: stored.MsgID})
}

// Updates handles GET /api/whatsapp/updates. Without a cursor it returns no
// changes and the current head, so a poller starts from now.
func (a *API) Updates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	convID := registry.NormalizePhone(q.Get("conversationId"))
	if convID == "" {
		writeError(w, http.StatusBadRequest, "missing conversationId")
		return
	}

	resp := v1.UpdatesResponse{Messages: []v1.ChatPayload{}, StatusUpdates: []v1.StatusUpdatePayload{}}
	raw := q.Get("cursor")
	if raw == "" {
		head, err := a.db.LatestCursor(r.Context(), convID)
		if err != nil {
			a.logger.Error("latest cursor failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "updates failed")
			return
		}
		resp.Cursor = head
		writeJSON(w, http.StatusOK, resp)
		return
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cursor < 0 {
		writeError(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	msgs, statuses, next, err := a.db.Updates(r.Context(), convID, cursor, maxUpdatesBatch)
	if err != nil {
		a.logger.Error("updates failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "updates failed")
		return
	}
	for i := range msgs {
		resp.Messages = append(resp.Messages, v1.FromMessage(msgs[i].Convo()))
	}
	for _, s := range statuses {
		resp.StatusUpdates = append(resp.StatusUpdates, v1.StatusUpdatePayload{
			ConversationID: s.ConversationID,
			MessageID:      s.MsgID,
			Status:         s.Status.String(),
		})
	}
	resp.Cursor = next
	writeJSON(w, http.StatusOK, resp)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
