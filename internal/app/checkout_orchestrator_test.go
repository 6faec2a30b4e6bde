package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
	"github.com/oz-TeamWizard/MealStack/pkg/tosspayments"
)

type fakeHandle struct {
	mu        sync.Mutex
	mounted   bool
	updates   []int64
	updateErr error
}

func (h *fakeHandle) UpdateAmount(ctx context.Context, amount tosspayments.Amount) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, amount.Value)
	return h.updateErr
}

func (h *fakeHandle) Mounted(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mounted, nil
}

type fakeWidget struct {
	mu         sync.Mutex
	renders    []tosspayments.UIConfig
	mountWhen  func(ui tosspayments.UIConfig) bool
	lastHandle *fakeHandle
	requestErr error
	requests   []tosspayments.PaymentRequest
}

func (w *fakeWidget) RenderPaymentMethods(ctx context.Context, target string, amount tosspayments.Amount, ui tosspayments.UIConfig) (MethodsHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.renders = append(w.renders, ui)
	mounted := true
	if w.mountWhen != nil {
		mounted = w.mountWhen(ui)
	}
	w.lastHandle = &fakeHandle{mounted: mounted}
	return w.lastHandle, nil
}

func (w *fakeWidget) RenderAgreement(ctx context.Context, target string, ui tosspayments.UIConfig) error {
	return nil
}

func (w *fakeWidget) RequestPayment(ctx context.Context, req tosspayments.PaymentRequest) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requests = append(w.requests, req)
	return w.requestErr
}

type fakeDriver struct {
	mu      sync.Mutex
	widget  *fakeWidget
	loadErr error
	loads   int
	lastKey string
}

func (d *fakeDriver) Load(ctx context.Context, customerKey string, ui tosspayments.UIConfig) (Widget, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loads++
	d.lastKey = customerKey
	if d.loadErr != nil {
		return nil, d.loadErr
	}
	return d.widget, nil
}

type checkoutOrderRepoStub struct {
	mu        sync.Mutex
	created   []*domain.Order
	failedIDs []uuid.UUID
	createErr error
}

func (s *checkoutOrderRepoStub) CreateOrder(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *order
	s.created = append(s.created, &cp)
	return nil
}

func (s *checkoutOrderRepoStub) MarkOrderFailed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

func testCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		SuccessURL:     "https://mealstack.kr/checkout/success",
		FailURL:        "https://mealstack.kr/checkout/fail",
		VariantKeyDark: "vk-dark",
		MountTimeout:   20 * time.Millisecond,
		MountPollEvery: 2 * time.Millisecond,
	}
}

func newTestOrchestrator(driver WidgetDriver, orders CheckoutOrderRepository) (*CheckoutOrchestrator, *CartService) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cart := NewCartService()
	return NewCheckoutOrchestrator(driver, cart, orders, testCheckoutConfig(), logger), cart
}

func testUser() *domain.User {
	return &domain.User{ID: uuid.New(), PhoneNumber: "01012345678"}
}

func TestBeginWithoutUserRedirectsToLogin(t *testing.T) {
	driver := &fakeDriver{widget: &fakeWidget{}}
	o, _ := newTestOrchestrator(driver, &checkoutOrderRepoStub{})

	s, err := o.Begin(context.Background(), nil, domain.OrderTypeProduct, "dark")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.RedirectTo != "/login" {
		t.Errorf("expected redirect to /login, got %q", s.RedirectTo)
	}
	if driver.loads != 0 {
		t.Error("expected no widget load without a user")
	}
}

func TestBeginProductWithEmptyCartRedirects(t *testing.T) {
	driver := &fakeDriver{widget: &fakeWidget{}}
	o, _ := newTestOrchestrator(driver, &checkoutOrderRepoStub{})

	s, err := o.Begin(context.Background(), testUser(), domain.OrderTypeProduct, "dark")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.RedirectTo != "/products" {
		t.Errorf("expected redirect to /products, got %q", s.RedirectTo)
	}
	if driver.loads != 0 {
		t.Error("expected guard violation to never reach the widget")
	}
}

func TestBeginSubscriptionWithoutSelectionRedirects(t *testing.T) {
	driver := &fakeDriver{widget: &fakeWidget{}}
	o, _ := newTestOrchestrator(driver, &checkoutOrderRepoStub{})

	s, err := o.Begin(context.Background(), testUser(), domain.OrderTypeSubscription, "dark")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.RedirectTo != "/subscription" {
		t.Errorf("expected redirect to /subscription, got %q", s.RedirectTo)
	}
}

func TestBeginSubscriptionReachesReady(t *testing.T) {
	widget := &fakeWidget{}
	driver := &fakeDriver{widget: widget}
	o, cart := newTestOrchestrator(driver, &checkoutOrderRepoStub{})
	user := testUser()

	weekly, _ := domain.FindPlan(domain.PlanWeekly)
	cart.SelectSubscription(user.ID, weekly)

	s, err := o.Begin(context.Background(), user, domain.OrderTypeSubscription, "dark")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Status != CheckoutReady {
		t.Fatalf("expected status ready, got %q (failure: %+v)", s.Status, s.Failure)
	}
	if s.Amount != 65000 {
		t.Errorf("expected amount 65000, got %d", s.Amount)
	}
	if s.OrderName != "주간 구독" {
		t.Errorf("expected plan name as order name, got %q", s.OrderName)
	}
	if driver.lastKey != user.ID.String() {
		t.Errorf("expected customer key from user ID, got %q", driver.lastKey)
	}
	if len(widget.renders) != 1 {
		t.Errorf("expected a single render when the first configuration mounts, got %d", len(widget.renders))
	}
	if widget.renders[0].VariantKey != "vk-dark" {
		t.Errorf("expected variant render first, got %+v", widget.renders[0])
	}
}

func TestRenderFallbackCascadeOrder(t *testing.T) {
	widget := &fakeWidget{
		mountWhen: func(ui tosspayments.UIConfig) bool { return ui.Bare() },
	}
	driver := &fakeDriver{widget: widget}
	o, cart := newTestOrchestrator(driver, &checkoutOrderRepoStub{})
	user := testUser()

	cart.AddItem(user.ID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 1})

	s, err := o.Begin(context.Background(), user, domain.OrderTypeProduct, "dark")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Status != CheckoutReady {
		t.Fatalf("expected status ready after fallback, got %q", s.Status)
	}

	if len(widget.renders) != 3 {
		t.Fatalf("expected 3 render attempts, got %d", len(widget.renders))
	}
	if widget.renders[0].VariantKey != "vk-dark" {
		t.Errorf("attempt 1 should use the variant key, got %+v", widget.renders[0])
	}
	if widget.renders[1].Theme != "dark" || widget.renders[1].VariantKey != "" {
		t.Errorf("attempt 2 should use the explicit theme, got %+v", widget.renders[1])
	}
	if !widget.renders[2].Bare() {
		t.Errorf("attempt 3 should be bare, got %+v", widget.renders[2])
	}
}

func TestRenderFailsWhenNothingMounts(t *testing.T) {
	widget := &fakeWidget{
		mountWhen: func(tosspayments.UIConfig) bool { return false },
	}
	driver := &fakeDriver{widget: widget}
	o, cart := newTestOrchestrator(driver, &checkoutOrderRepoStub{})
	user := testUser()

	cart.AddItem(user.ID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 1})

	s, err := o.Begin(context.Background(), user, domain.OrderTypeProduct, "dark")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Status != CheckoutFailed {
		t.Fatalf("expected status failed, got %q", s.Status)
	}
	if s.Failure == nil || s.Failure.Kind != FailureWidgetRender {
		t.Errorf("expected widget_render failure, got %+v", s.Failure)
	}
	if len(widget.renders) != 3 {
		t.Errorf("expected all 3 configurations attempted, got %d", len(widget.renders))
	}
}

func TestWidgetLoadFailure(t *testing.T) {
	driver := &fakeDriver{loadErr: errors.New("bridge unreachable")}
	o, cart := newTestOrchestrator(driver, &checkoutOrderRepoStub{})
	user := testUser()

	cart.AddItem(user.ID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 1})

	s, err := o.Begin(context.Background(), user, domain.OrderTypeProduct, "dark")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Status != CheckoutFailed {
		t.Fatalf("expected status failed, got %q", s.Status)
	}
	if s.Failure == nil || s.Failure.Kind != FailureWidgetLoad {
		t.Errorf("expected widget_load failure, got %+v", s.Failure)
	}
}

func TestRefreshAmountPushesToHandle(t *testing.T) {
	widget := &fakeWidget{}
	driver := &fakeDriver{widget: widget}
	o, cart := newTestOrchestrator(driver, &checkoutOrderRepoStub{})
	user := testUser()

	cart.AddItem(user.ID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 1})
	if _, err := o.Begin(context.Background(), user, domain.OrderTypeProduct, "dark"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cart.AddItem(user.ID, domain.CartItem{ProductID: "dosirak-2", UnitPrice: 12500, Quantity: 2})
	o.RefreshAmount(context.Background(), user.ID)

	s, err := o.Session(user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Amount != 33900 {
		t.Errorf("expected refreshed amount 33900, got %d", s.Amount)
	}
	widget.mu.Lock()
	handle := widget.lastHandle
	widget.mu.Unlock()
	handle.mu.Lock()
	defer handle.mu.Unlock()
	if len(handle.updates) == 0 || handle.updates[len(handle.updates)-1] != 33900 {
		t.Errorf("expected amount pushed to the widget handle, got %v", handle.updates)
	}
}

func TestRefreshAmountWithoutSessionIsNoop(t *testing.T) {
	driver := &fakeDriver{widget: &fakeWidget{}}
	o, _ := newTestOrchestrator(driver, &checkoutOrderRepoStub{})

	// Must not panic or create a session.
	o.RefreshAmount(context.Background(), uuid.New())
	if _, err := o.Session(uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestPayRejectsInvalidForm(t *testing.T) {
	widget := &fakeWidget{}
	driver := &fakeDriver{widget: widget}
	orders := &checkoutOrderRepoStub{}
	o, cart := newTestOrchestrator(driver, orders)
	user := testUser()

	cart.AddItem(user.ID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 1})
	if _, err := o.Begin(context.Background(), user, domain.OrderTypeProduct, "dark"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := o.Pay(context.Background(), user, domain.DeliveryInfo{
		Name:    "",
		Phone:   "010-1234-5678",
		Address: "서울시 강남구",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Failure == nil || outcome.Failure.Kind != FailureInvalidForm {
		t.Errorf("expected invalid_form failure, got %+v", outcome.Failure)
	}
	if len(orders.created) != 0 {
		t.Error("expected no order row for a local validation failure")
	}
	if len(widget.requests) != 0 {
		t.Error("expected form validation to never reach the widget")
	}
}

func TestPayNormalizesPhoneAndCreatesPendingOrder(t *testing.T) {
	widget := &fakeWidget{}
	driver := &fakeDriver{widget: widget}
	orders := &checkoutOrderRepoStub{}
	o, cart := newTestOrchestrator(driver, orders)
	user := testUser()

	cart.AddItem(user.ID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 2})
	if _, err := o.Begin(context.Background(), user, domain.OrderTypeProduct, "dark"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := o.Pay(context.Background(), user, domain.DeliveryInfo{
		Name:    "김철수",
		Phone:   "010-1234-5678",
		Address: "서울시 강남구",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Redirected {
		t.Fatalf("expected redirected outcome, got %+v", outcome)
	}
	if outcome.RedirectURL != "https://mealstack.kr/checkout/success" {
		t.Errorf("unexpected redirect URL %q", outcome.RedirectURL)
	}

	if len(orders.created) != 1 {
		t.Fatalf("expected one pending order, got %d", len(orders.created))
	}
	order := orders.created[0]
	if order.Status != domain.OrderPending {
		t.Errorf("expected pending status, got %q", order.Status)
	}
	if order.Amount != 17800 {
		t.Errorf("expected amount 17800, got %d", order.Amount)
	}
	if order.Delivery.Phone != "01012345678" {
		t.Errorf("expected normalized phone, got %q", order.Delivery.Phone)
	}

	if len(widget.requests) != 1 {
		t.Fatalf("expected one payment request, got %d", len(widget.requests))
	}
	if widget.requests[0].OrderID != order.ID.String() {
		t.Error("expected the provider orderId to match the stored order")
	}
}

func TestPayUsesFreshOrderIDPerAttempt(t *testing.T) {
	widget := &fakeWidget{requestErr: &tosspayments.WidgetError{Code: "PAY_PROCESS_CANCELED", Message: "cancelled"}}
	driver := &fakeDriver{widget: widget}
	orders := &checkoutOrderRepoStub{}
	o, cart := newTestOrchestrator(driver, orders)
	user := testUser()

	cart.AddItem(user.ID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 1})
	if _, err := o.Begin(context.Background(), user, domain.OrderTypeProduct, "dark"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	delivery := domain.DeliveryInfo{Name: "김철수", Phone: "01012345678", Address: "서울시 강남구"}
	if _, err := o.Pay(context.Background(), user, delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := o.Pay(context.Background(), user, delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(orders.created) != 2 {
		t.Fatalf("expected two order rows, got %d", len(orders.created))
	}
	if orders.created[0].ID == orders.created[1].ID {
		t.Error("expected a fresh order ID per attempt")
	}
	if len(orders.failedIDs) != 2 {
		t.Errorf("expected both attempts marked failed, got %d", len(orders.failedIDs))
	}
}

func TestPayTriagesProviderCodes(t *testing.T) {
	tests := []struct {
		code         string
		wantKind     string
		wantRecovery string
	}{
		{tosspayments.CodeNotRenderedPaymentUI, FailurePaymentRequest, RecoveryScrollAndRetry},
		{tosspayments.CodeNotSelectedPaymentMethod, FailurePaymentRequest, RecoverySelectMethod},
		{tosspayments.CodeInvalidSuccessURL, FailureConfiguration, RecoveryContactSupport},
		{tosspayments.CodeInvalidFailURL, FailureConfiguration, RecoveryContactSupport},
		{"PAY_PROCESS_ABORTED", FailurePaymentRequest, RecoveryRetry},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			failure := triagePaymentError(&tosspayments.WidgetError{Code: tt.code, Message: "x"})
			if failure.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", failure.Kind, tt.wantKind)
			}
			if failure.Recovery != tt.wantRecovery {
				t.Errorf("recovery = %q, want %q", failure.Recovery, tt.wantRecovery)
			}
			if failure.Code != tt.code {
				t.Errorf("code = %q, want %q", failure.Code, tt.code)
			}
		})
	}
}

func TestPayBeforeReady(t *testing.T) {
	driver := &fakeDriver{widget: &fakeWidget{}}
	o, _ := newTestOrchestrator(driver, &checkoutOrderRepoStub{})

	if _, err := o.Pay(context.Background(), testUser(), domain.DeliveryInfo{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

type gatedWidget struct {
	inner   *fakeWidget
	entered chan struct{}
	release chan struct{}
	calls   int32
}

func (w *gatedWidget) RenderPaymentMethods(ctx context.Context, target string, amount tosspayments.Amount, ui tosspayments.UIConfig) (MethodsHandle, error) {
	return w.inner.RenderPaymentMethods(ctx, target, amount, ui)
}

func (w *gatedWidget) RenderAgreement(ctx context.Context, target string, ui tosspayments.UIConfig) error {
	return w.inner.RenderAgreement(ctx, target, ui)
}

func (w *gatedWidget) RequestPayment(ctx context.Context, req tosspayments.PaymentRequest) error {
	if atomic.AddInt32(&w.calls, 1) == 1 {
		close(w.entered)
		<-w.release
	}
	return w.inner.RequestPayment(ctx, req)
}

type gatedWidgetDriver struct {
	widget *gatedWidget
}

func (d *gatedWidgetDriver) Load(ctx context.Context, customerKey string, ui tosspayments.UIConfig) (Widget, error) {
	return d.widget, nil
}

func TestPayFinishingAfterRestartDoesNotClobberSession(t *testing.T) {
	widget := &gatedWidget{
		inner:   &fakeWidget{},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	driver := &gatedWidgetDriver{widget: widget}
	o, cart := newTestOrchestrator(driver, &checkoutOrderRepoStub{})
	user := testUser()

	cart.AddItem(user.ID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 1})
	if _, err := o.Begin(context.Background(), user, domain.OrderTypeProduct, "dark"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payDone := make(chan struct{})
	go func() {
		defer close(payDone)
		delivery := domain.DeliveryInfo{Name: "김철수", Phone: "01012345678", Address: "서울시 강남구"}
		if _, err := o.Pay(context.Background(), user, delivery); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}()
	<-widget.entered

	// Checkout restarts while the payment request is still in flight; the
	// restarted session reaches ready and owns the state from here on.
	s2, err := o.Begin(context.Background(), user, domain.OrderTypeProduct, "dark")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s2.Status != CheckoutReady {
		t.Fatalf("expected restarted sequence ready, got %q", s2.Status)
	}

	close(widget.release)
	<-payDone

	s, err := o.Session(user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Status != CheckoutReady {
		t.Errorf("stale payment attempt must not overwrite the restarted session, got %q", s.Status)
	}
}

type gatedDriver struct {
	inner   *fakeDriver
	entered chan struct{}
	release chan struct{}
	calls   int32
}

func (d *gatedDriver) Load(ctx context.Context, customerKey string, ui tosspayments.UIConfig) (Widget, error) {
	if atomic.AddInt32(&d.calls, 1) == 1 {
		close(d.entered)
		<-d.release
	}
	return d.inner.Load(ctx, customerKey, ui)
}

func TestBeginSupersedesInFlightSequence(t *testing.T) {
	widget := &fakeWidget{}
	driver := &gatedDriver{
		inner:   &fakeDriver{widget: widget},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	o, cart := newTestOrchestrator(driver, &checkoutOrderRepoStub{})
	user := testUser()

	cart.AddItem(user.ID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 1})

	firstErr := make(chan error, 1)
	go func() {
		_, err := o.Begin(context.Background(), user, domain.OrderTypeProduct, "dark")
		firstErr <- err
	}()
	<-driver.entered

	// The second Begin takes over while the first is stuck loading.
	s2, err := o.Begin(context.Background(), user, domain.OrderTypeProduct, "dark")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s2.Status != CheckoutReady {
		t.Fatalf("expected second sequence ready, got %q", s2.Status)
	}

	close(driver.release)
	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Errorf("expected first sequence to report ErrSuperseded, got %v", err)
	}

	// The surviving session is the second one.
	s, err := o.Session(user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Status != CheckoutReady {
		t.Errorf("late first sequence must not clobber the ready session, got %q", s.Status)
	}
}
