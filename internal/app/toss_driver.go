/**
 * @description
 * Adapter binding the checkout orchestrator's widget interfaces to the Toss
 * Payments bridge client.
 */
package app

import (
	"context"

	"github.com/oz-TeamWizard/MealStack/pkg/tosspayments"
)

// TossWidgetDriver implements WidgetDriver over the bridge client.
type TossWidgetDriver struct {
	client *tosspayments.Client
}

// NewTossWidgetDriver wraps a bridge client.
func NewTossWidgetDriver(client *tosspayments.Client) *TossWidgetDriver {
	return &TossWidgetDriver{client: client}
}

func (d *TossWidgetDriver) Load(ctx context.Context, customerKey string, ui tosspayments.UIConfig) (Widget, error) {
	w, err := d.client.Load(ctx, customerKey, ui)
	if err != nil {
		return nil, err
	}
	return &tossWidget{w: w}, nil
}

type tossWidget struct {
	w *tosspayments.Widget
}

func (t *tossWidget) RenderPaymentMethods(ctx context.Context, target string, amount tosspayments.Amount, ui tosspayments.UIConfig) (MethodsHandle, error) {
	h, err := t.w.RenderPaymentMethods(ctx, target, amount, ui)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (t *tossWidget) RenderAgreement(ctx context.Context, target string, ui tosspayments.UIConfig) error {
	return t.w.RenderAgreement(ctx, target, ui)
}

func (t *tossWidget) RequestPayment(ctx context.Context, req tosspayments.PaymentRequest) error {
	return t.w.RequestPayment(ctx, req)
}
