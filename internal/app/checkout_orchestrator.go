/**
 * @description
 * This file implements the checkout orchestrator: it reconciles the cart or
 * plan selection with the authenticated identity, computes the payable
 * amount, drives the external payment widget through its
 * load → render → ready → pay lifecycle and triages the provider's error
 * taxonomy into user-facing recovery actions.
 *
 * @notes
 * - One checkout session exists per user. A new Begin fully supersedes any
 *   in-flight sequence for the same user: the previous context is cancelled
 *   and the generation counter is checked after every external call, so a
 *   late-arriving load can never overwrite a newer widget instance.
 * - Payment success is a browser redirect, never a callback. The success
 *   route settles the order; this component only observes "request accepted".
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
	"github.com/oz-TeamWizard/MealStack/pkg/tosspayments"
)

// Checkout session states.
const (
	CheckoutIdle             = "idle"
	CheckoutGuarding         = "guarding"
	CheckoutComputingAmount  = "computing_amount"
	CheckoutLoadingWidget    = "loading_widget"
	CheckoutRenderingMethods = "rendering_methods"
	CheckoutReady            = "ready"
	CheckoutPaying           = "paying"
	CheckoutRedirected       = "redirected"
	CheckoutFailed           = "failed"
)

// Failure kinds for the checkout error taxonomy.
const (
	FailureInvalidAmount  = "invalid_amount"
	FailureWidgetLoad     = "widget_load"
	FailureWidgetRender   = "widget_render"
	FailureInvalidForm    = "invalid_form"
	FailurePaymentRequest = "payment_request"
	FailureConfiguration  = "configuration"
)

// Recovery actions attached to failures.
const (
	RecoveryRetry          = "retry"
	RecoveryScrollAndRetry = "scroll_and_retry"
	RecoverySelectMethod   = "select_method"
	RecoveryContactSupport = "contact_support"
	RecoveryFixForm        = "fix_form"
)

// ErrSuperseded reports that a newer Begin replaced this load sequence.
var ErrSuperseded = errors.New("checkout sequence superseded")

// ErrSessionNotFound reports an unknown checkout session.
var ErrSessionNotFound = errors.New("checkout session not found")

// ErrNotReady reports a payment attempt before the widget is usable.
var ErrNotReady = errors.New("checkout session is not ready for payment")

// CheckoutFailure describes a surfaced failure and how the user recovers.
type CheckoutFailure struct {
	Kind     string `json:"kind"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Recovery string `json:"recovery"`
}

// PaymentOutcome is the sum type of a payment attempt: either the provider
// accepted and the browser is being redirected, or a typed failure.
type PaymentOutcome struct {
	Redirected  bool             `json:"redirected"`
	RedirectURL string           `json:"redirect_url,omitempty"`
	OrderID     uuid.UUID        `json:"order_id"`
	Failure     *CheckoutFailure `json:"failure,omitempty"`
}

// WidgetDriver abstracts the widget bridge for the orchestrator.
type WidgetDriver interface {
	Load(ctx context.Context, customerKey string, ui tosspayments.UIConfig) (Widget, error)
}

// Widget is a loaded widget instance.
type Widget interface {
	RenderPaymentMethods(ctx context.Context, target string, amount tosspayments.Amount, ui tosspayments.UIConfig) (MethodsHandle, error)
	RenderAgreement(ctx context.Context, target string, ui tosspayments.UIConfig) error
	RequestPayment(ctx context.Context, req tosspayments.PaymentRequest) error
}

// MethodsHandle is a rendered payment-method selector.
type MethodsHandle interface {
	UpdateAmount(ctx context.Context, amount tosspayments.Amount) error
	Mounted(ctx context.Context) (bool, error)
}

// CheckoutOrderRepository defines the store operations checkout needs.
type CheckoutOrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	MarkOrderFailed(ctx context.Context, id uuid.UUID) error
}

// CheckoutConfig carries the environment-provided checkout settings.
type CheckoutConfig struct {
	SuccessURL      string
	FailURL         string
	VariantKeyDark  string
	VariantKeyLight string
	MethodsTarget   string
	AgreementTarget string
	MountTimeout    time.Duration
	MountPollEvery  time.Duration
}

// CheckoutSession is the per-user checkout state machine.
type CheckoutSession struct {
	ID          uuid.UUID        `json:"id"`
	UserID      uuid.UUID        `json:"user_id"`
	OrderType   string           `json:"order_type"`
	Theme       string           `json:"theme"`
	Status      string           `json:"status"`
	Amount      int64            `json:"amount"`
	OrderName   string           `json:"order_name"`
	CustomerKey string           `json:"customer_key"`
	PlanID      string           `json:"plan_id,omitempty"`
	RedirectTo  string           `json:"redirect_to,omitempty"`
	Failure     *CheckoutFailure `json:"failure,omitempty"`

	generation uint64
	cancel     context.CancelFunc
	widget     Widget
	handle     MethodsHandle
}

// CheckoutOrchestrator drives checkout sessions against the widget bridge.
type CheckoutOrchestrator struct {
	driver WidgetDriver
	cart   *CartService
	orders CheckoutOrderRepository
	cfg    CheckoutConfig
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*CheckoutSession // keyed by user ID
}

// NewCheckoutOrchestrator creates a checkout orchestrator.
func NewCheckoutOrchestrator(driver WidgetDriver, cart *CartService, orders CheckoutOrderRepository, cfg CheckoutConfig, logger *slog.Logger) *CheckoutOrchestrator {
	if cfg.MethodsTarget == "" {
		cfg.MethodsTarget = "#payment-methods"
	}
	if cfg.AgreementTarget == "" {
		cfg.AgreementTarget = "#agreement"
	}
	if cfg.MountTimeout <= 0 {
		cfg.MountTimeout = 1500 * time.Millisecond
	}
	if cfg.MountPollEvery <= 0 {
		cfg.MountPollEvery = 50 * time.Millisecond
	}
	return &CheckoutOrchestrator{
		driver:   driver,
		cart:     cart,
		orders:   orders,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[uuid.UUID]*CheckoutSession),
	}
}

// uiCascade returns the render configurations in fallback order for the
// requested theme: named variant, explicit theme, bare. The widget can
// silently no-op on a bad configuration key, and the only observable signal
// of success is the mounted check, so rendering walks this list until one
// configuration mounts.
func (o *CheckoutOrchestrator) uiCascade(theme string) []tosspayments.UIConfig {
	if theme != "light" {
		theme = "dark"
	}
	variant := o.cfg.VariantKeyDark
	if theme == "light" {
		variant = o.cfg.VariantKeyLight
	}

	var cascade []tosspayments.UIConfig
	if variant != "" {
		cascade = append(cascade, tosspayments.UIConfig{VariantKey: variant})
	}
	cascade = append(cascade,
		tosspayments.UIConfig{Theme: theme},
		tosspayments.UIConfig{},
	)
	return cascade
}

// Begin starts (or restarts) the user's checkout session and runs the
// sequence through Ready. A guard violation sets RedirectTo instead of an
// error; widget failures leave the session in Failed with a typed failure.
func (o *CheckoutOrchestrator) Begin(ctx context.Context, user *domain.User, orderType, theme string) (*CheckoutSession, error) {
	if user == nil {
		return &CheckoutSession{Status: CheckoutIdle, RedirectTo: "/login"}, nil
	}
	if orderType != domain.OrderTypeSubscription {
		orderType = domain.OrderTypeProduct
	}
	if theme != "light" {
		theme = "dark"
	}

	// The run context stays live after Begin returns so later widget calls
	// can use it; it is cancelled only by the next takeover.
	s, gen, runCtx := o.takeover(ctx, user.ID, orderType, theme)

	// Guarding: violations are navigation outcomes, not in-place errors.
	o.setStatus(s, gen, CheckoutGuarding)
	var selection domain.PlanSelection
	if orderType == domain.OrderTypeSubscription {
		sel, ok := o.cart.Selection(user.ID)
		if !ok || sel.UnitPrice <= 0 {
			o.finishRedirect(s, gen, "/subscription")
			return s, nil
		}
		selection = sel
	} else {
		if len(o.cart.Items(user.ID)) == 0 {
			o.finishRedirect(s, gen, "/products")
			return s, nil
		}
	}

	// ComputingAmount: a non-positive amount never reaches the widget.
	o.setStatus(s, gen, CheckoutComputingAmount)
	amount, orderName := o.deriveOrder(user.ID, orderType, selection)
	if amount <= 0 {
		o.fail(s, gen, &CheckoutFailure{
			Kind:     FailureInvalidAmount,
			Message:  "주문 금액이 올바르지 않습니다.",
			Recovery: RecoveryRetry,
		})
		return s, nil
	}
	o.mu.Lock()
	if s.generation == gen {
		s.Amount = amount
		s.OrderName = orderName
		s.PlanID = selection.PlanID
	}
	o.mu.Unlock()

	// LoadingWidget
	o.setStatus(s, gen, CheckoutLoadingWidget)
	customerKey := DeriveCustomerKey(user.ID.String(), user.Email, user.PhoneNumber)
	cascade := o.uiCascade(theme)

	widget, err := o.driver.Load(runCtx, customerKey, cascade[0])
	if o.stale(s, gen) {
		return s, ErrSuperseded
	}
	if err != nil {
		o.logger.Warn("widget load failed", "user_id", user.ID, "error", err)
		o.fail(s, gen, &CheckoutFailure{
			Kind:     FailureWidgetLoad,
			Message:  "결제 모듈을 불러오지 못했습니다. 잠시 후 다시 시도해주세요.",
			Recovery: RecoveryRetry,
		})
		return s, nil
	}
	o.mu.Lock()
	if s.generation == gen {
		s.CustomerKey = customerKey
		s.widget = widget
	}
	o.mu.Unlock()

	// RenderingMethods: cascade until one configuration mounts.
	o.setStatus(s, gen, CheckoutRenderingMethods)
	handle, err := o.renderWithFallback(runCtx, s, gen, widget, amount, cascade)
	if err != nil {
		if errors.Is(err, ErrSuperseded) {
			return s, ErrSuperseded
		}
		o.logger.Warn("widget render failed after fallback cascade", "user_id", user.ID, "error", err)
		o.fail(s, gen, &CheckoutFailure{
			Kind:     FailureWidgetRender,
			Message:  "결제 수단을 표시하지 못했습니다. 새로고침 후 다시 시도해주세요.",
			Recovery: RecoveryRetry,
		})
		return s, nil
	}

	// Agreement rendering is best-effort; the selector is what gates payment.
	if err := widget.RenderAgreement(runCtx, o.cfg.AgreementTarget, cascade[0]); err != nil {
		o.logger.Warn("agreement render failed", "user_id", user.ID, "error", err)
	}
	if o.stale(s, gen) {
		return s, ErrSuperseded
	}

	o.mu.Lock()
	if s.generation == gen {
		s.handle = handle
		s.Status = CheckoutReady
		s.Failure = nil
	}
	o.mu.Unlock()
	return s, nil
}

// renderWithFallback walks the configuration cascade, confirming each render
// via the mounted signal within the bounded timeout, and returns the first
// handle that actually mounted.
func (o *CheckoutOrchestrator) renderWithFallback(ctx context.Context, s *CheckoutSession, gen uint64, widget Widget, amount int64, cascade []tosspayments.UIConfig) (MethodsHandle, error) {
	widgetAmount := tosspayments.Amount{Value: amount, Currency: tosspayments.CurrencyKRW}

	var lastErr error
	for _, ui := range cascade {
		handle, err := widget.RenderPaymentMethods(ctx, o.cfg.MethodsTarget, widgetAmount, ui)
		if o.stale(s, gen) {
			return nil, ErrSuperseded
		}
		if err != nil {
			lastErr = err
			continue
		}

		mounted, err := o.awaitMount(ctx, s, gen, handle)
		if err != nil {
			return nil, err
		}
		if mounted {
			return handle, nil
		}
		o.logger.Info("render attempt did not mount, falling back",
			"variant_key", ui.VariantKey, "theme", ui.Theme, "bare", ui.Bare())
	}

	if lastErr == nil {
		lastErr = errors.New("no render configuration mounted")
	}
	return nil, lastErr
}

// awaitMount polls the mounted signal until it is true or the wall-clock
// bound elapses. The poll aborts early only via the session's cancellation.
func (o *CheckoutOrchestrator) awaitMount(ctx context.Context, s *CheckoutSession, gen uint64, handle MethodsHandle) (bool, error) {
	deadline := time.Now().Add(o.cfg.MountTimeout)
	ticker := time.NewTicker(o.cfg.MountPollEvery)
	defer ticker.Stop()

	for {
		mounted, err := handle.Mounted(ctx)
		if o.stale(s, gen) {
			return false, ErrSuperseded
		}
		if err == nil && mounted {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ErrSuperseded
		case <-ticker.C:
		}
	}
}

// Session returns the user's current checkout session.
func (o *CheckoutOrchestrator) Session(userID uuid.UUID) (*CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// RefreshAmount recomputes the payable amount and pushes it to the widget.
// Safe to call at any time: before the selector exists it is a no-op, and a
// failed push is swallowed so an unrelated recomputation can never break a
// live session.
func (o *CheckoutOrchestrator) RefreshAmount(ctx context.Context, userID uuid.UUID) {
	o.mu.Lock()
	s, ok := o.sessions[userID]
	if !ok {
		o.mu.Unlock()
		return
	}
	var selection domain.PlanSelection
	if s.OrderType == domain.OrderTypeSubscription {
		selection, _ = o.cart.Selection(userID)
	}
	amount, orderName := o.deriveOrder(userID, s.OrderType, selection)
	s.Amount = amount
	s.OrderName = orderName
	handle := s.handle
	o.mu.Unlock()

	if handle == nil {
		return
	}
	widgetAmount := tosspayments.Amount{Value: amount, Currency: tosspayments.CurrencyKRW}
	if err := handle.UpdateAmount(ctx, widgetAmount); err != nil {
		o.logger.Warn("widget amount update failed", "user_id", userID, "error", err)
	}
}

var phoneDigits = regexp.MustCompile(`[^0-9]`)

// Pay validates the delivery form and invokes the widget's request-payment
// operation with a fresh order ID. Precondition failures abort locally and
// never reach the widget.
func (o *CheckoutOrchestrator) Pay(ctx context.Context, user *domain.User, delivery domain.DeliveryInfo) (*PaymentOutcome, error) {
	o.mu.Lock()
	s, ok := o.sessions[user.ID]
	if !ok {
		o.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if s.Status != CheckoutReady && s.Status != CheckoutFailed {
		o.mu.Unlock()
		return nil, ErrNotReady
	}
	widget := s.widget
	amount := s.Amount
	orderName := s.OrderName
	orderType := s.OrderType
	planID := s.PlanID
	gen := s.generation
	s.Status = CheckoutPaying
	o.mu.Unlock()

	if widget == nil {
		return nil, ErrNotReady
	}

	// Local form validation; these never become provider calls.
	phone := phoneDigits.ReplaceAllString(delivery.Phone, "")
	if delivery.Name == "" || delivery.Address == "" || len(phone) < 10 || len(phone) > 11 {
		failure := &CheckoutFailure{
			Kind:     FailureInvalidForm,
			Message:  "배송 정보를 모두 입력해주세요.",
			Recovery: RecoveryFixForm,
		}
		o.setFailure(s, gen, failure, CheckoutReady)
		return &PaymentOutcome{Failure: failure}, nil
	}
	if amount <= 0 {
		failure := &CheckoutFailure{
			Kind:     FailureInvalidAmount,
			Message:  "주문 금액이 올바르지 않습니다.",
			Recovery: RecoveryRetry,
		}
		o.setFailure(s, gen, failure, CheckoutFailed)
		return &PaymentOutcome{Failure: failure}, nil
	}
	delivery.Phone = phone

	// One order row per attempt; the ID is the provider-facing orderId and
	// must never repeat across rapid retries.
	order := &domain.Order{
		ID:        uuid.New(),
		UserID:    user.ID,
		OrderType: orderType,
		OrderName: orderName,
		Amount:    amount,
		Status:    domain.OrderPending,
		PlanID:    planID,
		Delivery:  delivery,
	}
	if err := o.orders.CreateOrder(ctx, order); err != nil {
		o.setFailure(s, gen, nil, CheckoutReady)
		return nil, fmt.Errorf("failed to record payment attempt: %w", err)
	}

	err := widget.RequestPayment(ctx, tosspayments.PaymentRequest{
		OrderID:             order.ID.String(),
		OrderName:           orderName,
		SuccessURL:          o.cfg.SuccessURL,
		FailURL:             o.cfg.FailURL,
		CustomerEmail:       user.Email,
		CustomerName:        delivery.Name,
		CustomerMobilePhone: phone,
		Metadata: map[string]string{
			"order_type":     orderType,
			"address":        delivery.Address,
			"detail_address": delivery.DetailAddress,
			"memo":           delivery.Memo,
		},
	})
	if err != nil {
		failure := triagePaymentError(err)
		if markErr := o.orders.MarkOrderFailed(ctx, order.ID); markErr != nil {
			o.logger.Warn("failed to mark order failed", "order_id", order.ID, "error", markErr)
		}
		o.setFailure(s, gen, failure, CheckoutFailed)
		return &PaymentOutcome{OrderID: order.ID, Failure: failure}, nil
	}

	// The provider navigates the browser to the success URL; there is no
	// direct callback. Settlement happens on the success route. A checkout
	// restarted while the request was in flight owns the session now; its
	// state must not be overwritten by this finished attempt.
	o.mu.Lock()
	if s.generation == gen {
		s.Status = CheckoutRedirected
		s.Failure = nil
	}
	o.mu.Unlock()
	return &PaymentOutcome{
		Redirected:  true,
		RedirectURL: o.cfg.SuccessURL,
		OrderID:     order.ID,
	}, nil
}

// triagePaymentError maps provider codes onto recovery actions.
func triagePaymentError(err error) *CheckoutFailure {
	var widgetErr *tosspayments.WidgetError
	if errors.As(err, &widgetErr) {
		switch widgetErr.Code {
		case tosspayments.CodeNotRenderedPaymentUI:
			return &CheckoutFailure{
				Kind:     FailurePaymentRequest,
				Code:     widgetErr.Code,
				Message:  "결제창이 아직 준비되지 않았습니다. 잠시 후 다시 시도해주세요.",
				Recovery: RecoveryScrollAndRetry,
			}
		case tosspayments.CodeNotSelectedPaymentMethod:
			return &CheckoutFailure{
				Kind:     FailurePaymentRequest,
				Code:     widgetErr.Code,
				Message:  "결제 수단을 먼저 선택해주세요.",
				Recovery: RecoverySelectMethod,
			}
		case tosspayments.CodeInvalidSuccessURL, tosspayments.CodeInvalidFailURL:
			return &CheckoutFailure{
				Kind:     FailureConfiguration,
				Code:     widgetErr.Code,
				Message:  "결제 설정에 문제가 있습니다. 고객센터로 문의해주세요.",
				Recovery: RecoveryContactSupport,
			}
		}
		return &CheckoutFailure{
			Kind:     FailurePaymentRequest,
			Code:     widgetErr.Code,
			Message:  "결제에 실패했습니다. 다시 시도해주세요.",
			Recovery: RecoveryRetry,
		}
	}
	return &CheckoutFailure{
		Kind:     FailurePaymentRequest,
		Message:  "결제에 실패했습니다. 다시 시도해주세요.",
		Recovery: RecoveryRetry,
	}
}

// deriveOrder computes the payable amount and order name for the session.
func (o *CheckoutOrchestrator) deriveOrder(userID uuid.UUID, orderType string, selection domain.PlanSelection) (int64, string) {
	if orderType == domain.OrderTypeSubscription {
		return selection.UnitPrice, selection.Name
	}

	items := o.cart.Items(userID)
	total := o.cart.Total(userID)
	switch len(items) {
	case 0:
		return total, ""
	case 1:
		return total, items[0].Name
	default:
		return total, fmt.Sprintf("%s 외 %d건", items[0].Name, len(items)-1)
	}
}

// takeover supersedes any in-flight sequence for the user and returns the
// session, the new generation and the run context.
func (o *CheckoutOrchestrator) takeover(ctx context.Context, userID uuid.UUID, orderType, theme string) (*CheckoutSession, uint64, context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[userID]
	if !ok {
		s = &CheckoutSession{ID: uuid.New(), UserID: userID}
		o.sessions[userID] = s
	}
	if s.cancel != nil {
		s.cancel()
	}

	// Detached from the request context: the sequence is cancelled by the
	// next takeover, not by the request that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.generation++
	s.cancel = cancel
	s.OrderType = orderType
	s.Theme = theme
	s.Status = CheckoutIdle
	s.RedirectTo = ""
	s.Failure = nil
	s.widget = nil
	s.handle = nil
	return s, s.generation, runCtx
}

func (o *CheckoutOrchestrator) stale(s *CheckoutSession, gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return s.generation != gen
}

func (o *CheckoutOrchestrator) setStatus(s *CheckoutSession, gen uint64, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s.generation == gen {
		s.Status = status
	}
}

func (o *CheckoutOrchestrator) finishRedirect(s *CheckoutSession, gen uint64, target string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s.generation == gen {
		s.Status = CheckoutIdle
		s.RedirectTo = target
	}
}

func (o *CheckoutOrchestrator) fail(s *CheckoutSession, gen uint64, failure *CheckoutFailure) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s.generation == gen {
		s.Status = CheckoutFailed
		s.Failure = failure
	}
}

func (o *CheckoutOrchestrator) setFailure(s *CheckoutSession, gen uint64, failure *CheckoutFailure, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s.generation == gen {
		s.Status = status
		s.Failure = failure
	}
}
