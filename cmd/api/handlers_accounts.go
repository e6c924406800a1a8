package main

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"agrinetwork/auth"
	"agrinetwork/mediation"
	"agrinetwork/product"
)

const defaultProductPage = 50

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserView(*user))
}

type loginResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: res.Token, User: newUserView(res.User)})
}

// handleMe returns the caller's own account. It always needs a token.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "bearer token required")
		return
	}
	user, err := s.authService.Profile(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}

type kycRequest struct {
	UserID         string `json:"userId"`
	IDImageURL     string `json:"idImageUrl"`
	SelfieImageURL string `json:"selfieImageUrl"`
}

type kycResponse struct {
	User    userView          `json:"user"`
	Verdict mediation.Verdict `json:"verdict"`
}

func (s *Server) handleSubmitKYC(w http.ResponseWriter, r *http.Request) {
	var req kycRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := checkActor(r, req.UserID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.kycService.Submit(r.Context(), auth.KYCSubmission{
		UserID:         req.UserID,
		IDImageURL:     req.IDImageURL,
		SelfieImageURL: req.SelfieImageURL,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, kycResponse{User: newUserView(res.User), Verdict: res.Verdict})
}

type setKYCRequest struct {
	ActorID string         `json:"actorId"`
	Status  auth.KYCStatus `json:"status"`
}

func (s *Server) handleSetKYC(w http.ResponseWriter, r *http.Request) {
	var req setKYCRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := checkActor(r, req.ActorID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	user, err := s.kycService.SetStatus(r.Context(), req.ActorID, r.PathValue("id"), req.Status)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	limit := defaultProductPage
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = n
	}
	products, err := s.productService.List(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(products, newProductView))
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.productService.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductView(p))
}

type createProductRequest struct {
	OwnerID   string          `json:"ownerId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := checkActor(r, req.OwnerID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	p, err := s.productService.Create(r.Context(), product.CreateRequest{
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newProductView(p))
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if err := checkSubject(r, userID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	wal, err := s.walletService.Get(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWalletView(wal))
}

type withdrawRequest struct {
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "userId is required")
		return
	}
	if err := checkActor(r, req.UserID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	wd, err := s.walletService.Withdraw(r.Context(), req.UserID, req.Amount)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newWithdrawalView(wd))
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.subjectOrQuery(w, r)
	if !ok {
		return
	}
	list, err := s.walletService.ListWithdrawals(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, newWithdrawalView))
}
