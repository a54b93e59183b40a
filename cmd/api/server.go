package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"farmdeal/auth"
	"farmdeal/chat"
	"farmdeal/deal"
	"farmdeal/listing"
	"farmdeal/logging"
	"farmdeal/profile"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

// messenger is the slice of the chat repository the API needs.
type messenger interface {
	Append(ctx context.Context, threadID, senderID, recipientID, body string) (chat.Message, error)
	MarkRead(ctx context.Context, threadID, actorID string) error
	UnreadCount(ctx context.Context, threadID, actorID string) (int, error)
	Thread(ctx context.Context, threadID string) ([]chat.Message, error)
}

// Server wires the domain services behind the HTTP API.
type Server struct {
	authService    *auth.Service
	profileService *profile.Service
	deals          deal.Store
	listings       listing.Store
	messages       messenger
	log            logging.Logger
}

func (s *Server) logger() logging.Logger {
	if s.log == nil {
		return logging.Nop()
	}
	return s.log
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/profiles/", s.withAuth(s.handleProfile))
	mux.HandleFunc("/api/listings", s.withAuth(s.handleListings))
	mux.HandleFunc("/api/listings/", s.withAuth(s.handleListingDetail))
	mux.HandleFunc("/api/deals", s.withAuth(s.handleDeals))
	mux.HandleFunc("/api/deals/", s.withAuth(s.handleDealDetail))
	return mux
}

// withAuth verifies the bearer token and stashes the actor id and role in the
// request context.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx))
	}
}

func actorFrom(r *http.Request) (string, auth.Role) {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
	return userID, role
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Phone     string `json:"phone,omitempty"`
	Location  string `json:"location,omitempty"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

func toUserResponse(u auth.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
	if u.Phone != nil {
		resp.Phone = *u.Phone
	}
	if u.Location != nil {
		resp.Location = *u.Location
	}
	return resp
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger().Error(r.Context(), "register failed", "err", err)
			writeError(w, http.StatusBadRequest, "registration failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger().Error(r.Context(), "login failed", "err", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Token string       `json:"token"`
		User  userResponse `json:"user"`
	}{Token: result.Token, User: toUserResponse(result.User)})
}

type profileResponse struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	Phone     string `json:"phone,omitempty"`
	Location  string `json:"location,omitempty"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/profiles/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "profile id required")
		return
	}
	p, err := s.profileService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		s.logger().Error(r.Context(), "get profile failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		ID:        p.ID,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Location:  p.Location,
		Role:      p.Role,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	})
}

type listingResponse struct {
	ID        string  `json:"id"`
	OwnerID   string  `json:"ownerId"`
	Name      string  `json:"name"`
	Image     string  `json:"image,omitempty"`
	Rate      float64 `json:"rate"`
	Quantity  float64 `json:"quantity"`
	Unit      string  `json:"unit"`
	CreatedAt string  `json:"createdAt"`
}

func toListingResponse(l listing.Listing) listingResponse {
	return listingResponse{
		ID:        l.ID,
		OwnerID:   l.OwnerID,
		Name:      l.Name,
		Image:     l.Image,
		Rate:      l.Rate,
		Quantity:  l.Quantity,
		Unit:      l.Unit,
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	userID, role := actorFrom(r)
	switch r.Method {
	case http.MethodGet:
		items, err := s.listings.ForOwner(r.Context(), userID)
		if err != nil {
			s.logger().Error(r.Context(), "list listings failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		resp := make([]listingResponse, 0, len(items))
		for _, l := range items {
			resp = append(resp, toListingResponse(l))
		}
		writeJSON(w, http.StatusOK, struct {
			Items []listingResponse `json:"items"`
			Total int               `json:"total"`
		}{Items: resp, Total: len(resp)})
	case http.MethodPost:
		if role != auth.RoleFarmer {
			writeError(w, http.StatusForbidden, "only farmers create listings")
			return
		}
		var req struct {
			Name     string  `json:"name"`
			Image    string  `json:"image"`
			Rate     float64 `json:"rate"`
			Quantity float64 `json:"quantity"`
			Unit     string  `json:"unit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		l, err := s.listings.Create(r.Context(), listing.CreateParams{
			OwnerID:  userID,
			Name:     req.Name,
			Image:    req.Image,
			Rate:     req.Rate,
			Quantity: req.Quantity,
			Unit:     req.Unit,
		})
		if err != nil {
			if errors.Is(err, listing.ErrValidation) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.logger().Error(r.Context(), "create listing failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, toListingResponse(l))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleListingDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/listings/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "listing id required")
		return
	}
	userID, _ := actorFrom(r)

	switch r.Method {
	case http.MethodGet:
		l, err := s.listings.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, listing.ErrNotFound) {
				writeError(w, http.StatusNotFound, "listing not found")
				return
			}
			s.logger().Error(r.Context(), "get listing failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, toListingResponse(l))
	case http.MethodDelete:
		// Only the owner retires a listing.
		l, err := s.listings.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, listing.ErrNotFound) {
				writeError(w, http.StatusNotFound, "listing not found")
				return
			}
			s.logger().Error(r.Context(), "get listing failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if l.OwnerID != userID {
			writeError(w, http.StatusForbidden, "not the listing owner")
			return
		}
		if err := s.listings.Delete(r.Context(), id); err != nil && !errors.Is(err, listing.ErrNotFound) {
			s.logger().Error(r.Context(), "delete listing failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type dealResponse struct {
	ID            string  `json:"id"`
	ListingID     string  `json:"listingId"`
	ListingName   string  `json:"listingName"`
	SellerID      string  `json:"sellerId"`
	SellerName    string  `json:"sellerName"`
	BuyerID       string  `json:"buyerId"`
	BuyerName     string  `json:"buyerName"`
	BuyerPhone    string  `json:"buyerPhone,omitempty"`
	BuyerLocation string  `json:"buyerLocation,omitempty"`
	Unit          string  `json:"unit"`
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price"`
	Kind          string  `json:"kind"`
	Status        string  `json:"status"`
	SellerSeen    bool    `json:"sellerSeen"`
	BuyerSeen     bool    `json:"buyerSeen"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

func toDealResponse(d deal.Deal) dealResponse {
	return dealResponse{
		ID:            d.ID,
		ListingID:     d.ListingID,
		ListingName:   d.ListingName,
		SellerID:      d.SellerID,
		SellerName:    d.SellerName,
		BuyerID:       d.BuyerID,
		BuyerName:     d.BuyerName,
		BuyerPhone:    d.BuyerPhone,
		BuyerLocation: d.BuyerLocation,
		Unit:          d.Unit,
		Quantity:      d.Quantity,
		Price:         d.Price,
		Kind:          string(d.Kind),
		Status:        string(d.Status),
		SellerSeen:    d.SellerSeen,
		BuyerSeen:     d.BuyerSeen,
		CreatedAt:     d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     d.UpdatedAt.Format(time.RFC3339),
	}
}

func dealRole(role auth.Role) deal.Role {
	if role == auth.RoleFarmer {
		return deal.RoleSeller
	}
	return deal.RoleBuyer
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	userID, role := actorFrom(r)
	switch r.Method {
	case http.MethodGet:
		items, err := s.deals.ForActor(r.Context(), userID, dealRole(role))
		if err != nil {
			s.logger().Error(r.Context(), "list deals failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		resp := make([]dealResponse, 0, len(items))
		unseen := 0
		for _, d := range items {
			if d.Status == deal.StatusPending && !d.SeenBy(dealRole(role)) {
				unseen++
			}
			resp = append(resp, toDealResponse(d))
		}
		writeJSON(w, http.StatusOK, struct {
			Items  []dealResponse `json:"items"`
			Total  int            `json:"total"`
			Unseen int            `json:"unseen"`
		}{Items: resp, Total: len(resp), Unseen: unseen})
	case http.MethodPost:
		if role != auth.RoleTrader {
			writeError(w, http.StatusForbidden, "only traders open deals")
			return
		}
		var req struct {
			ListingID string  `json:"listingId"`
			Kind      string  `json:"kind"`
			Quantity  float64 `json:"quantity"`
			Price     float64 `json:"price"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		l, err := s.listings.Get(r.Context(), req.ListingID)
		if err != nil {
			if errors.Is(err, listing.ErrNotFound) {
				writeError(w, http.StatusNotFound, "listing not found")
				return
			}
			s.logger().Error(r.Context(), "get listing failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		buyer, err := s.authService.GetUserByID(r.Context(), userID)
		if err != nil {
			s.logger().Error(r.Context(), "load buyer failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		seller, err := s.profileService.GetByID(r.Context(), l.OwnerID)
		if err != nil {
			s.logger().Error(r.Context(), "load seller failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		params := deal.CreateParams{
			ListingID:   l.ID,
			ListingName: l.Name,
			SellerID:    l.OwnerID,
			SellerName:  seller.FullName,
			BuyerID:     buyer.ID,
			BuyerName:   buyer.FullName,
			Unit:        l.Unit,
			Quantity:    req.Quantity,
			Price:       req.Price,
			Kind:        deal.Kind(req.Kind),
		}
		if buyer.Phone != nil {
			params.BuyerPhone = *buyer.Phone
		}
		if buyer.Location != nil {
			params.BuyerLocation = *buyer.Location
		}
		d, err := s.deals.Create(r.Context(), params)
		if err != nil {
			s.writeDealError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDealResponse(d))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleDealDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/deals/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "deal id required")
		return
	}
	userID, _ := actorFrom(r)

	switch {
	case sub == "" && r.Method == http.MethodGet:
		d, err := s.deals.Get(r.Context(), id)
		if err != nil {
			s.writeDealError(w, r, err)
			return
		}
		if _, ok := d.RoleOf(userID); !ok {
			writeError(w, http.StatusForbidden, "not a participant")
			return
		}
		writeJSON(w, http.StatusOK, toDealResponse(d))
	case sub == "" && r.Method == http.MethodPatch:
		s.handleDealAction(w, r, id, userID)
	case sub == "seen" && r.Method == http.MethodPost:
		if err := s.deals.SetSeen(r.Context(), id, userID, true); err != nil {
			s.writeDealError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case strings.HasPrefix(sub, "messages"):
		s.handleDealMessages(w, r, id, sub, userID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type messageResponse struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	Body      string `json:"body"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

// handleDealMessages serves the per-deal chat thread. The deal id doubles as
// the thread id and only participants may touch it.
func (s *Server) handleDealMessages(w http.ResponseWriter, r *http.Request, dealID, sub, userID string) {
	if s.messages == nil {
		writeError(w, http.StatusNotFound, "chat disabled")
		return
	}
	d, err := s.deals.Get(r.Context(), dealID)
	if err != nil {
		s.writeDealError(w, r, err)
		return
	}
	role, ok := d.RoleOf(userID)
	if !ok {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}
	recipient := d.SellerID
	if role == deal.RoleSeller {
		recipient = d.BuyerID
	}

	switch {
	case sub == "messages" && r.Method == http.MethodGet:
		msgs, err := s.messages.Thread(r.Context(), dealID)
		if err != nil {
			s.logger().Error(r.Context(), "load thread failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		resp := make([]messageResponse, 0, len(msgs))
		for _, m := range msgs {
			resp = append(resp, messageResponse{
				ID:        m.ID,
				SenderID:  m.SenderID,
				Body:      m.Body,
				Read:      m.Read,
				CreatedAt: m.CreatedAt.Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, struct {
			Items []messageResponse `json:"items"`
		}{Items: resp})
	case sub == "messages" && r.Method == http.MethodPost:
		var req struct {
			Body string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Body == "" {
			writeError(w, http.StatusBadRequest, "message body required")
			return
		}
		m, err := s.messages.Append(r.Context(), dealID, userID, recipient, req.Body)
		if err != nil {
			s.logger().Error(r.Context(), "append message failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, messageResponse{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Body:      m.Body,
			Read:      m.Read,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		})
	case sub == "messages/unread" && r.Method == http.MethodGet:
		n, err := s.messages.UnreadCount(r.Context(), dealID, userID)
		if err != nil {
			s.logger().Error(r.Context(), "unread count failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Count int `json:"count"`
		}{Count: n})
	case sub == "messages/read" && r.Method == http.MethodPost:
		if err := s.messages.MarkRead(r.Context(), dealID, userID); err != nil {
			s.logger().Error(r.Context(), "mark read failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleDealAction(w http.ResponseWriter, r *http.Request, dealID, userID string) {
	var req struct {
		Action   string  `json:"action"`
		Quantity float64 `json:"quantity"`
		Price    float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var (
		d   deal.Deal
		err error
	)
	switch req.Action {
	case "accept":
		d, err = s.deals.UpdateStatus(r.Context(), dealID, deal.StatusAccepted, userID)
	case "reject":
		d, err = s.deals.UpdateStatus(r.Context(), dealID, deal.StatusRejected, userID)
	case "counter":
		d, err = s.deals.UpdateOffer(r.Context(), dealID, req.Quantity, req.Price, userID)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	if err != nil {
		s.writeDealError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDealResponse(d))
}

func (s *Server) writeDealError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, deal.ErrNotFound):
		writeError(w, http.StatusNotFound, "deal not found")
	case errors.Is(err, deal.ErrValidationFailed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, deal.ErrPreconditionFailed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, deal.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		s.logger().Error(r.Context(), "deal operation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}
