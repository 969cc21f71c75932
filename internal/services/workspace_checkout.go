package services

import "context"

var (
	_ AnalysisService = (*Workspace)(nil)
	_ CheckoutService = (*Workspace)(nil)
)

// BeginCheckout starts a fresh checkout flow for the viewer.
func (w *Workspace) BeginCheckout(viewer string, planIndex int) (CheckoutState, error) {
	flow, err := w.StartCheckout(viewer, planIndex)
	if err != nil {
		return CheckoutState{}, err
	}
	return flow.State(), nil
}

// CheckoutState returns the state of the viewer's current flow.
func (w *Workspace) CheckoutState(viewer string) (CheckoutState, error) {
	flow, err := w.Checkout(viewer)
	if err != nil {
		return CheckoutState{}, err
	}
	return flow.State(), nil
}

func (w *Workspace) SelectCheckoutPlan(viewer string, planIndex int) (CheckoutState, error) {
	flow, err := w.Checkout(viewer)
	if err != nil {
		return CheckoutState{}, err
	}
	return flow.SelectPlan(planIndex)
}

func (w *Workspace) SetCheckoutConsents(viewer string, terms, recurring bool) (CheckoutState, error) {
	flow, err := w.Checkout(viewer)
	if err != nil {
		return CheckoutState{}, err
	}
	return flow.SetConsents(terms, recurring), nil
}

func (w *Workspace) PayCheckout(ctx context.Context, viewer string) (CheckoutAttempt, error) {
	flow, err := w.Checkout(viewer)
	if err != nil {
		return CheckoutAttempt{}, err
	}
	return flow.Pay(ctx)
}

func (w *Workspace) CheckoutSucceeded(ctx context.Context, viewer, attemptID string) (CheckoutState, error) {
	flow, err := w.Checkout(viewer)
	if err != nil {
		return CheckoutState{}, err
	}
	return flow.OnSuccess(ctx, attemptID)
}

func (w *Workspace) CheckoutFailed(ctx context.Context, viewer, attemptID, reason string) (CheckoutState, error) {
	flow, err := w.Checkout(viewer)
	if err != nil {
		return CheckoutState{}, err
	}
	return flow.OnFail(ctx, attemptID, reason)
}

func (w *Workspace) CheckoutCompleted(viewer, attemptID string) (CheckoutState, error) {
	flow, err := w.Checkout(viewer)
	if err != nil {
		return CheckoutState{}, err
	}
	return flow.OnComplete(attemptID)
}
