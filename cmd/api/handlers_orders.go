package main

import (
	"net/http"
	"strings"

	"agrinetwork/dispute"
	"agrinetwork/order"
)

type actionRequest struct {
	ActorID   string     `json:"actorId"`
	ActorRole order.Role `json:"actorRole"`
	Action    string     `json:"action"`
}

func (s *Server) handleOrderAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ActorID == "" || req.ActorRole == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "actorId, actorRole and action are required")
		return
	}
	if err := checkActor(r, req.ActorID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	res, err := s.orderService.Apply(r.Context(), order.ApplyRequest{
		OrderID:   r.PathValue("id"),
		ActorID:   req.ActorID,
		ActorRole: req.ActorRole,
		Action:    order.Action(strings.ToLower(req.Action)),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, actionResponse{
		OrderID:        res.Order.ID,
		Status:         res.Order.Status,
		EscrowReleased: res.EscrowReleased,
		Order:          newOrderView(res.Order),
		Verdict:        res.Verdict,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.orderService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

type createOrderRequest struct {
	BuyerID   string `json:"buyerId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.BuyerID == "" || req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "buyerId and productId are required")
		return
	}
	if err := checkActor(r, req.BuyerID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	o, err := s.orderService.Create(r.Context(), order.CreateRequest{
		BuyerID:   req.BuyerID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderView(o))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.subjectOrQuery(w, r)
	if !ok {
		return
	}
	orders, err := s.orderService.List(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(orders, newOrderView))
}

// handleAdminOrders lists orders by status for support and admin accounts. The actor
// is the actorId query parameter or the token subject.
func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	actorID := r.URL.Query().Get("actorId")
	if actorID == "" {
		actorID, _ = r.Context().Value(ctxKeyUserID).(string)
	}
	if actorID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "actorId is required")
		return
	}
	if err := checkActor(r, actorID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := order.Status(strings.ToLower(r.URL.Query().Get("status")))
	orders, err := s.orderService.ListByStatus(r.Context(), actorID, status)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(orders, newOrderView))
}

type mediationRequest struct {
	ActorID   string     `json:"actorId"`
	ActorRole order.Role `json:"actorRole"`
}

func (s *Server) handleRequestMediation(w http.ResponseWriter, r *http.Request) {
	var req mediationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := checkActor(r, req.ActorID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	v, err := s.orderService.RequestMediation(r.Context(), r.PathValue("id"), req.ActorID, req.ActorRole)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.chatService.List(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(msgs, newMessageView))
}

type appendMessageRequest struct {
	SenderID   string `json:"senderId"`
	Text       string `json:"text"`
	Attachment string `json:"attachment,omitempty"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var req appendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := checkActor(r, req.SenderID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	msg, err := s.chatService.Append(r.Context(), dispute.AppendRequest{
		OrderID:       r.PathValue("id"),
		SenderID:      req.SenderID,
		Text:          req.Text,
		AttachmentRef: req.Attachment,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newMessageView(msg))
}

// subjectOrQuery resolves the user a listing is for: the userId query parameter,
// falling back to the token subject. A query naming someone else needs a staff token.
func (s *Server) subjectOrQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("userId")
	subject, _ := r.Context().Value(ctxKeyUserID).(string)
	if userID == "" {
		userID = subject
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "userId is required")
		return "", false
	}
	if err := checkSubject(r, userID); err != nil {
		s.writeDomainError(w, r, err)
		return "", false
	}
	return userID, true
}

// checkSubject is checkActor for read paths, where staff tokens may act on anyone.
func checkSubject(r *http.Request, userID string) error {
	if role, ok := tokenRole(r); ok && role.IsStaff() {
		return nil
	}
	return checkActor(r, userID)
}
