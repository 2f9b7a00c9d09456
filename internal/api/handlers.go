package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lflhelper/fixtures-bot/internal/fixtures"
	"github.com/lflhelper/fixtures-bot/internal/notify"
	"github.com/lflhelper/fixtures-bot/internal/payment"
	"github.com/lflhelper/fixtures-bot/internal/render"
	"github.com/lflhelper/fixtures-bot/internal/subscription"
)

type teamResponse struct {
	TeamID     fixtures.TeamID         `json:"team_id"`
	TeamName   string                  `json:"team_name"`
	Fixtures   []fixtures.MatchFixture `json:"fixtures"`
	NoFixtures bool                    `json:"no_fixtures"`
	Message    string                  `json:"message"`
}

type fixturesResponse struct {
	Query    string         `json:"query"`
	Resolved int            `json:"resolved"`
	Skipped  int            `json:"skipped"`
	Summary  string         `json:"summary"`
	Teams    []teamResponse `json:"teams"`
}

type subscriptionResponse struct {
	UserID        string     `json:"user_id"`
	Active        bool       `json:"active"`
	StartedAt     *time.Time `json:"started_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	LastPaymentID string     `json:"last_payment_id,omitempty"`
	Message       string     `json:"message"`
}

type adminUser struct {
	UserID        string     `json:"user_id"`
	Active        bool       `json:"active"`
	ActiveNow     bool       `json:"active_now"`
	StartedAt     *time.Time `json:"started_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	LastPaymentID string     `json:"last_payment_id,omitempty"`
}

type adminUsersResponse struct {
	Total  int         `json:"total"`
	Active int         `json:"active"`
	Users  []adminUser `json:"users"`
}

type checkoutRequest struct {
	Email  string `json:"email"   validate:"required,email"`
	ChatID string `json:"chat_id" validate:"required"`
}

type checkoutResponse struct {
	PaymentID       string `json:"payment_id"`
	ConfirmationURL string `json:"confirmation_url"`
	WatchID         string `json:"watch_id"`
	Message         string `json:"message"`
}

type feedbackRequest struct {
	Text     string `json:"text"     validate:"required,max=4000"`
	Username string `json:"username" validate:"omitempty,max=64"`
}

func (s *Server) getFixtures(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		s.writeError(w, http.StatusUnauthorized, "missing "+userIDHeader)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("team"))
	if query == "" {
		s.writeDenied(w, http.StatusBadRequest, "team query required", render.AskTeamText)
		return
	}
	if !s.requireActive(r.Context(), w, userID, render.NotSubscribedText) {
		return
	}

	report := s.deps.Fixtures.RunReport(r.Context(), query)
	resp := fixturesResponse{
		Query:    report.Query,
		Resolved: report.Resolved,
		Skipped:  len(report.Skipped),
		Summary:  render.Summary(report),
		Teams:    make([]teamResponse, 0, len(report.Teams)),
	}
	for _, team := range report.Teams {
		resp.Teams = append(resp.Teams, teamResponse{
			TeamID:     team.TeamID,
			TeamName:   team.TeamName,
			Fixtures:   team.Result.Fixtures,
			NoFixtures: !team.Result.Available(),
			Message:    s.deps.Formatter.TeamMessage(team),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Subscriptions.Register(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		s.subscriptionError(w, err)
		return
	}
	s.writeSubscription(r.Context(), w, user.ID)
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	s.writeSubscription(r.Context(), w, chi.URLParam(r, "user_id"))
}

// writeSubscription checks expiry first so the returned record reflects it.
func (s *Server) writeSubscription(ctx context.Context, w http.ResponseWriter, userID string) {
	active, err := s.deps.Subscriptions.IsActive(ctx, userID)
	if err != nil {
		s.subscriptionError(w, err)
		return
	}
	user, err := s.deps.Subscriptions.Get(ctx, userID)
	if err != nil {
		s.subscriptionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, subscriptionResponse{
		UserID:        user.ID,
		Active:        active,
		StartedAt:     user.StartedAt,
		ExpiresAt:     user.ExpiresAt,
		LastPaymentID: user.LastPaymentID,
		Message:       s.deps.Formatter.SubscriptionInfo(active, user.StartedAt, user.ExpiresAt),
	})
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	if s.deps.Payments == nil || s.deps.Watcher == nil {
		s.writeDenied(w, http.StatusServiceUnavailable, "payments disabled", render.PaymentFailedText)
		return
	}
	var req checkoutRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid checkout request")
		return
	}

	ctx := r.Context()
	user, err := s.deps.Subscriptions.Register(ctx, chi.URLParam(r, "user_id"))
	if err != nil {
		s.subscriptionError(w, err)
		return
	}

	product := s.opts.Product
	created, err := s.deps.Payments.Create(ctx, payment.CreateRequest{
		UserID:      user.ID,
		Email:       req.Email,
		Description: product.Description,
		ItemName:    product.ItemName,
		Amount:      product.Amount,
		ReturnURL:   product.ReturnURL,
	})
	if err != nil {
		s.logger.Error("create payment failed", zap.String("user_id", user.ID), zap.Error(err))
		s.writeDenied(w, http.StatusBadGateway, "payment provider error", render.PaymentFailedText)
		return
	}
	if err := s.deps.Subscriptions.AttachPayment(ctx, user.ID, created.ID); err != nil {
		s.logger.Error("record payment failed",
			zap.String("user_id", user.ID),
			zap.String("payment_id", created.ID),
			zap.Error(err),
		)
		s.writeDenied(w, http.StatusInternalServerError, "record payment failed", render.PaymentFailedText)
		return
	}

	watchCtx, cancel := context.WithTimeout(ctx, enqueueWaitTimeout)
	defer cancel()
	item, err := s.deps.Watcher.Watch(watchCtx, user.ID, created.ID, req.ChatID)
	if err != nil {
		s.logger.Error("queue payment watch failed", zap.String("payment_id", created.ID), zap.Error(err))
		s.writeDenied(w, http.StatusServiceUnavailable, "payment watcher unavailable", render.PaymentFailedText)
		return
	}

	s.writeJSON(w, http.StatusCreated, checkoutResponse{
		PaymentID:       created.ID,
		ConfirmationURL: created.ConfirmationURL,
		WatchID:         item.ID,
		Message:         render.CheckoutMessage(created.ConfirmationURL),
	})
}

func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Mailer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "feedback disabled")
		return
	}
	var req feedbackRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid feedback request")
		return
	}
	userID := chi.URLParam(r, "user_id")
	if !s.requireActive(r.Context(), w, userID, render.SubscribersOnlyText) {
		return
	}

	fb := notify.Feedback{UserID: userID, Username: req.Username, Text: req.Text}
	if err := s.deps.Mailer.Send(r.Context(), fb.Subject(), fb.Body()); err != nil {
		s.logger.Error("send feedback failed", zap.String("user_id", userID), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "feedback delivery failed")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"message": render.FeedbackThanksText})
}

// requireActive writes a 403 carrying denied and returns false unless the
// user holds an active subscription.
func (s *Server) requireActive(ctx context.Context, w http.ResponseWriter, userID, denied string) bool {
	active, err := s.deps.Subscriptions.IsActive(ctx, userID)
	if err != nil {
		s.subscriptionError(w, err)
		return false
	}
	if !active {
		s.writeDenied(w, http.StatusForbidden, "subscription required", denied)
		return false
	}
	return true
}

func (s *Server) subscriptionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscription.ErrInvalidUserID):
		s.writeError(w, http.StatusBadRequest, "invalid user id")
	case errors.Is(err, subscription.ErrUserNotFound):
		s.writeError(w, http.StatusNotFound, "user not found")
	default:
		s.logger.Error("subscription store failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "subscription store unavailable")
	}
}

// listUsers is the operator view of every stored subscription record.
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Subscriptions.List(r.Context())
	if err != nil {
		s.logger.Error("list users failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "list users failed")
		return
	}
	now := s.deps.Subscriptions.Now()
	resp := adminUsersResponse{Total: len(users), Users: make([]adminUser, 0, len(users))}
	for _, u := range users {
		activeNow := u.ActiveAt(now)
		if activeNow {
			resp.Active++
		}
		resp.Users = append(resp.Users, adminUser{
			UserID:        u.ID,
			Active:        u.Active,
			ActiveNow:     activeNow,
			StartedAt:     u.StartedAt,
			ExpiresAt:     u.ExpiresAt,
			LastPaymentID: u.LastPaymentID,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}
