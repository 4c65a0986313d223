package terminal

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/forkline/forkline/internal/engine"
	"github.com/forkline/forkline/internal/tables"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const MaxBodyBytes = 1 << 20

// Handler exposes the engine to the terminal's view layer: the floor
// board, per-table sessions, staging, commit, and the command wrappers.
// It renders nothing; it stops at the engine boundary.
type Handler struct {
	logger    apt.Logger
	config    *apt.Config
	tlm       *telemetry.HTTP
	registry  *SessionRegistry
	directory tables.Directory
	reader    engine.StoreReader
}

type HandlerDeps struct {
	Registry  *SessionRegistry
	Directory tables.Directory
	Reader    engine.StoreReader
}

func NewHandler(hd HandlerDeps, config *apt.Config, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		logger:    logger,
		config:    config,
		tlm:       telemetry.NewHTTP(),
		registry:  hd.Registry,
		directory: hd.Directory,
		reader:    hd.Reader,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tables", func(r chi.Router) {
		r.Get("/", h.ListTables)
		r.Get("/{id}", h.GetTable)

		r.Post("/{id}/session", h.OpenSession)
		r.Delete("/{id}/session", h.CloseSession)

		r.Get("/{id}/order", h.GetOrderMirror)
		r.Get("/{id}/staging", h.ListStaging)
		r.Post("/{id}/staging", h.StageItem)
		r.Delete("/{id}/staging/{itemID}", h.UnstageItem)
		r.Post("/{id}/commit", h.Commit)

		r.Post("/{id}/send", h.SendToKitchen)
		r.Post("/{id}/check", h.RequestCheck)
		r.Post("/{id}/pay", h.MarkPaid)
		r.Patch("/{id}/guests", h.UpdateGuestCount)
		r.Post("/{id}/link", h.LinkTables)

		r.Put("/{id}/items/{itemID}/quantity", h.UpdateQuantity)
		r.Delete("/{id}/items/{itemID}", h.RemoveItem)

		r.Route("/{id}/tabs", func(r chi.Router) {
			r.Get("/", h.ListTabs)
			r.Post("/", h.CreateTab)
			r.Delete("/{tabID}", h.RemoveTab)
			r.Post("/{tabID}/assign", h.AssignToTab)
			r.Post("/{tabID}/unassign", h.UnassignFromTab)
			r.Get("/{tabID}/bill", h.TabBill)
		})
	})
}

// tableView is the floor board entry for one table.
type tableView struct {
	Table         tables.Table       `json:"table"`
	DerivedStatus string             `json:"derived_status"`
	Link          tables.LinkDisplay `json:"link"`
}

func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListTables")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	all, err := h.directory.ListTables(ctx)
	if err != nil {
		log.Error("cannot list tables", "error", err)
		apt.RespondError(w, http.StatusBadGateway, "Could not load tables")
		return
	}

	pointers := make([]*tables.Table, len(all))
	for i := range all {
		pointers[i] = &all[i]
	}

	views := make([]tableView, 0, len(all))
	for i := range all {
		table := &all[i]
		order, items := h.orderStateFor(r, table)
		views = append(views, tableView{
			Table:         *table,
			DerivedStatus: tables.DeriveStatus(table, order, items),
			Link:          tables.LinkDisplayFor(table, pointers),
		})
	}

	apt.RespondCollection(w, views, "table")
}

func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetTable")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseIDParam(w, r, "id", log)
	if !ok {
		return
	}

	table, err := h.directory.GetTable(ctx, id)
	if err != nil {
		log.Error("cannot load table", "error", err, "id", id.String())
		apt.RespondError(w, http.StatusNotFound, "Table not found")
		return
	}

	group, err := h.directory.ListTables(ctx)
	if err != nil {
		log.Info("cannot load table group, link display degraded", "error", err)
	}
	pointers := make([]*tables.Table, len(group))
	for i := range group {
		pointers[i] = &group[i]
	}

	order, items := h.orderStateFor(r, table)
	apt.RespondSuccess(w, tableView{
		Table:         *table,
		DerivedStatus: tables.DeriveStatus(table, order, items),
		Link:          tables.LinkDisplayFor(table, pointers),
	})
}

// orderStateFor resolves a table's order state, preferring an open
// session's mirror and falling back to a direct store read for tables
// this terminal is not watching.
func (h *Handler) orderStateFor(r *http.Request, table *tables.Table) (*engine.Order, []engine.OrderItem) {
	if session, ok := h.registry.Get(table.ID); ok {
		if order, items, ok := session.Order(); ok {
			return order, items
		}
	}
	if table.CurrentOrderID == nil {
		return nil, nil
	}

	ctx := r.Context()
	order, err := h.reader.GetOrder(ctx, *table.CurrentOrderID)
	if err != nil {
		h.log(r).Debug("cannot read order for board", "order_id", table.CurrentOrderID.String(), "error", err)
		return nil, nil
	}
	items, err := h.reader.ListItems(ctx, order.ID)
	if err != nil {
		h.log(r).Debug("cannot read items for board", "order_id", order.ID.String(), "error", err)
		return order, nil
	}
	return order, items
}

func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.OpenSession")
	defer finish()

	log := h.log(r)

	id, ok := h.parseIDParam(w, r, "id", log)
	if !ok {
		return
	}

	session, err := h.registry.Open(r.Context(), id)
	if err != nil {
		log.Error("cannot open table session", "error", err, "table_id", id.String())
		h.respondCommandError(w, err)
		return
	}

	orderID, attached := session.OrderID()
	payload := map[string]any{"table_id": id, "attached": attached}
	if attached {
		payload["order_id"] = orderID
	}
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, payload)
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CloseSession")
	defer finish()

	log := h.log(r)

	id, ok := h.parseIDParam(w, r, "id", log)
	if !ok {
		return
	}

	h.registry.Close(id)
	w.WriteHeader(http.StatusNoContent)
}

type orderMirrorView struct {
	Order *engine.Order      `json:"order"`
	Items []engine.OrderItem `json:"items"`
}

func (h *Handler) GetOrderMirror(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetOrderMirror")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}

	order, items, ok := session.Order()
	if !ok {
		apt.RespondError(w, http.StatusNotFound, "No canonical order visible for table")
		return
	}
	apt.RespondSuccess(w, orderMirrorView{Order: order, Items: items})
}

func (h *Handler) ListStaging(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListStaging")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}
	apt.RespondCollection(w, session.StagingItems(), "staging-item")
}

func (h *Handler) StageItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.StageItem")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}

	var item engine.StagingItem
	if !h.decodeBody(w, r, &item, log) {
		return
	}
	if item.DishName == "" {
		apt.RespondError(w, http.StatusBadRequest, "dish_name is required")
		return
	}
	if item.Quantity <= 0 {
		apt.RespondError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	item.EnsureLocalID()
	session.Stage(item)
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, item)
}

func (h *Handler) UnstageItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UnstageItem")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}
	itemID, ok := h.parseIDParam(w, r, "itemID", log)
	if !ok {
		return
	}

	session.Unstage(itemID)
	w.WriteHeader(http.StatusNoContent)
}

type commitRequest struct {
	GuestCount int `json:"guest_count"`
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Commit")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}

	req := commitRequest{GuestCount: 1}
	if r.ContentLength > 0 {
		if !h.decodeBody(w, r, &req, log) {
			return
		}
	}

	result, err := session.Commit(r.Context(), req.GuestCount)
	if err != nil {
		log.Info("commit failed", "error", err, "committed", result.Committed, "remaining", result.Remaining)
		h.respondCommandError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, result)
}

func (h *Handler) SendToKitchen(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "Handler.SendToKitchen", func(session *engine.Session) error {
		return session.SendToKitchen(r.Context())
	})
}

func (h *Handler) RequestCheck(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "Handler.RequestCheck", func(session *engine.Session) error {
		return session.RequestCheck(r.Context())
	})
}

type payRequest struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.MarkPaid")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}

	var req payRequest
	if !h.decodeBody(w, r, &req, log) {
		return
	}
	if req.Method == "" {
		apt.RespondError(w, http.StatusBadRequest, "method is required")
		return
	}

	if err := session.MarkPaid(r.Context(), req.Method, req.Amount); err != nil {
		h.respondCommandError(w, err)
		return
	}
	apt.RespondSuccess(w, map[string]any{"paid": true})
}

type guestCountRequest struct {
	GuestCount int `json:"guest_count"`
}

func (h *Handler) UpdateGuestCount(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateGuestCount")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}

	var req guestCountRequest
	if !h.decodeBody(w, r, &req, log) {
		return
	}
	if req.GuestCount <= 0 {
		apt.RespondError(w, http.StatusBadRequest, "guest_count must be positive")
		return
	}

	if err := session.UpdateGuestCount(r.Context(), req.GuestCount); err != nil {
		h.respondCommandError(w, err)
		return
	}
	apt.RespondSuccess(w, map[string]any{"guest_count": req.GuestCount})
}

type linkRequest struct {
	TableNumbers []string `json:"table_numbers"`
}

func (h *Handler) LinkTables(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.LinkTables")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseIDParam(w, r, "id", log)
	if !ok {
		return
	}
	session, ok := h.registry.Get(id)
	if !ok {
		apt.RespondError(w, http.StatusConflict, "No open session for table")
		return
	}

	var req linkRequest
	if !h.decodeBody(w, r, &req, log) {
		return
	}
	if len(req.TableNumbers) == 0 {
		apt.RespondError(w, http.StatusBadRequest, "table_numbers is required")
		return
	}

	// Pre-validate against directory state; the store revalidates and is
	// the final arbiter.
	all, err := h.directory.ListTables(ctx)
	if err != nil {
		log.Error("cannot validate link request", "error", err)
		apt.RespondError(w, http.StatusBadGateway, "Could not validate tables")
		return
	}
	primary := findTable(all, id)
	for _, number := range req.TableNumbers {
		secondary := findTableByNumber(all, number)
		if secondary == nil {
			apt.RespondError(w, http.StatusBadRequest, "Unknown table "+number)
			return
		}
		if err := tables.CanLink(primary, secondary); err != nil {
			apt.RespondError(w, http.StatusConflict, err.Error())
			return
		}
	}

	if err := session.LinkTables(ctx, req.TableNumbers); err != nil {
		h.respondCommandError(w, err)
		return
	}
	apt.RespondSuccess(w, map[string]any{"linked": req.TableNumbers})
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateQuantity")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}
	itemID, ok := h.parseIDParam(w, r, "itemID", log)
	if !ok {
		return
	}

	var req quantityRequest
	if !h.decodeBody(w, r, &req, log) {
		return
	}

	if err := session.UpdateQuantity(r.Context(), itemID, req.Quantity); err != nil {
		h.respondCommandError(w, err)
		return
	}
	apt.RespondSuccess(w, map[string]any{"quantity": req.Quantity})
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RemoveItem")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}
	itemID, ok := h.parseIDParam(w, r, "itemID", log)
	if !ok {
		return
	}

	if err := session.RemoveItem(r.Context(), itemID); err != nil {
		h.respondCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Customer tabs

type createTabRequest struct {
	Name string `json:"name"`
}

func (h *Handler) CreateTab(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CreateTab")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}

	var req createTabRequest
	if !h.decodeBody(w, r, &req, log) {
		return
	}
	if req.Name == "" {
		apt.RespondError(w, http.StatusBadRequest, "name is required")
		return
	}

	tab := session.Tabs().CreateTab(req.Name)
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, tab)
}

func (h *Handler) ListTabs(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListTabs")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}
	apt.RespondCollection(w, session.Tabs().Tabs(), "customer-tab")
}

type assignRequest struct {
	ItemID uuid.UUID `json:"item_id"`
}

func (h *Handler) AssignToTab(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.AssignToTab")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}
	tabID, ok := h.parseIDParam(w, r, "tabID", log)
	if !ok {
		return
	}

	var req assignRequest
	if !h.decodeBody(w, r, &req, log) {
		return
	}
	if req.ItemID == uuid.Nil {
		apt.RespondError(w, http.StatusBadRequest, "item_id is required")
		return
	}

	if err := session.Tabs().Assign(req.ItemID, tabID); err != nil {
		apt.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	apt.RespondSuccess(w, map[string]any{"item_id": req.ItemID, "tab_id": tabID})
}

func (h *Handler) RemoveTab(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RemoveTab")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}
	tabID, ok := h.parseIDParam(w, r, "tabID", log)
	if !ok {
		return
	}

	// Items on the removed tab fall back to unassigned; removing an
	// unknown tab is a no-op.
	session.Tabs().RemoveTab(tabID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UnassignFromTab(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UnassignFromTab")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}
	tabID, ok := h.parseIDParam(w, r, "tabID", log)
	if !ok {
		return
	}

	var req assignRequest
	if !h.decodeBody(w, r, &req, log) {
		return
	}
	if req.ItemID == uuid.Nil {
		apt.RespondError(w, http.StatusBadRequest, "item_id is required")
		return
	}

	current, assigned := session.Tabs().TabFor(req.ItemID)
	if !assigned || current != tabID {
		apt.RespondError(w, http.StatusNotFound, "Item is not on this tab")
		return
	}

	session.Tabs().Unassign(req.ItemID)
	apt.RespondSuccess(w, map[string]any{"item_id": req.ItemID, "unassigned": true})
}

type tabBillView struct {
	Tab      engine.CustomerTab `json:"tab"`
	Items    []engine.OrderItem `json:"items"`
	Subtotal decimal.Decimal    `json:"subtotal"`
}

func (h *Handler) TabBill(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.TabBill")
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}
	tabID, ok := h.parseIDParam(w, r, "tabID", log)
	if !ok {
		return
	}

	var tab *engine.CustomerTab
	for _, t := range session.Tabs().Tabs() {
		if t.ID == tabID {
			tab = &t
			break
		}
	}
	if tab == nil {
		apt.RespondError(w, http.StatusNotFound, "Tab not found")
		return
	}

	_, items, _ := session.Order()
	apt.RespondSuccess(w, tabBillView{
		Tab:      *tab,
		Items:    session.Tabs().ItemsFor(tabID, items),
		Subtotal: session.Tabs().SubtotalFor(tabID, items),
	})
}

// Helpers

func (h *Handler) command(w http.ResponseWriter, r *http.Request, name string, run func(*engine.Session) error) {
	w, r, finish := h.tlm.Start(w, r, name)
	defer finish()

	log := h.log(r)

	session, ok := h.requireSession(w, r, log)
	if !ok {
		return
	}

	if err := run(session); err != nil {
		log.Info("command failed", "op", name, "error", err)
		h.respondCommandError(w, err)
		return
	}
	apt.RespondSuccess(w, map[string]any{"ok": true})
}

func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request, log apt.Logger) (*engine.Session, bool) {
	id, ok := h.parseIDParam(w, r, "id", log)
	if !ok {
		return nil, false
	}
	session, ok := h.registry.Get(id)
	if !ok {
		apt.RespondError(w, http.StatusConflict, "No open session for table; open the table view first")
		return nil, false
	}
	return session, true
}

// respondCommandError maps engine errors to HTTP responses. Every
// operator-facing failure states whether the action is safe to retry.
func (h *Handler) respondCommandError(w http.ResponseWriter, err error) {
	var timeout *engine.ConsistencyTimeoutError
	if errors.As(err, &timeout) {
		apt.RespondError(w, http.StatusServiceUnavailable, timeout.Error()+" (safe to retry)")
		return
	}

	var commit *engine.CommitError
	if errors.As(err, &commit) {
		msg := commit.Error()
		if commit.SafeToRetry() {
			msg += " (safe to retry)"
		} else {
			msg += " (needs operator attention)"
		}
		apt.RespondError(w, http.StatusConflict, msg)
		return
	}

	var remote *engine.RemoteError
	if errors.As(err, &remote) {
		if remote.Transient() {
			apt.RespondError(w, http.StatusBadGateway, remote.Message+" (safe to retry)")
			return
		}
		apt.RespondError(w, http.StatusConflict, remote.Message+" (needs operator attention)")
		return
	}

	apt.RespondError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dest any, log apt.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		log.Debug("invalid request payload", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func (h *Handler) parseIDParam(w http.ResponseWriter, r *http.Request, name string, log apt.Logger) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, name)
	if idStr == "" {
		log.Debug("missing id parameter", "param", name)
		apt.RespondError(w, http.StatusBadRequest, "Missing "+name+" parameter")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		log.Debug("invalid id parameter", "param", name, "id", idStr)
		apt.RespondError(w, http.StatusBadRequest, "Invalid "+name+" parameter")
		return uuid.Nil, false
	}

	return id, true
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", r.Context().Value("request_id"))
}

func findTable(all []tables.Table, id uuid.UUID) *tables.Table {
	for i := range all {
		if all[i].ID == id {
			return &all[i]
		}
	}
	return nil
}

func findTableByNumber(all []tables.Table, number string) *tables.Table {
	for i := range all {
		if all[i].Number == number {
			return &all[i]
		}
	}
	return nil
}
