package payments

import (
	"context"
	"errors"
	"strings"
)

// CloudPaymentsProviderName is the registration key of the CloudPayments widget provider.
const CloudPaymentsProviderName = "cloudpayments"

// CloudPaymentsConfig configures the CloudPayments widget provider.
type CloudPaymentsConfig struct {
	PublicID string
	Skin     string
}

// CloudPaymentsProvider prepares parameters for the CloudPayments "charge" widget call.
// No server-side API is contacted; the widget runs in the viewer's client.
type CloudPaymentsProvider struct {
	publicID string
	skin     string
}

// NewCloudPaymentsProvider validates the config and constructs the provider.
func NewCloudPaymentsProvider(cfg CloudPaymentsConfig) (*CloudPaymentsProvider, error) {
	publicID := strings.TrimSpace(cfg.PublicID)
	if publicID == "" {
		return nil, errors.New("cloudpayments: public id is required")
	}
	skin := strings.TrimSpace(cfg.Skin)
	if skin == "" {
		skin = "mini"
	}
	return &CloudPaymentsProvider{publicID: publicID, skin: skin}, nil
}

// Launch returns the charge parameters. The description is the tariff name only and the amount
// is expressed in major units as the widget expects.
func (p *CloudPaymentsProvider) Launch(_ context.Context, req WidgetRequest) (WidgetLaunch, error) {
	if p == nil {
		return WidgetLaunch{}, errors.New("cloudpayments: provider is nil")
	}

	data := map[string]any{
		"tariff_id": req.TariffID,
		"user_id":   req.ViewerID,
	}
	if req.AttemptID != "" {
		data["attempt_id"] = req.AttemptID
	}
	for k, v := range req.Metadata {
		if _, reserved := data[k]; !reserved {
			data[k] = v
		}
	}

	params := map[string]any{
		"publicId":         p.publicID,
		"description":      req.TariffName,
		"amount":           float64(req.AmountMinor) / 100,
		"currency":         strings.ToUpper(req.Currency),
		"invoiceId":        req.IdempotencyKey,
		"accountId":        req.ViewerID,
		"requireEmail":     false,
		"requireRecurrent": req.RequireRecurrent,
		"skin":             p.skin,
		"data":             data,
	}

	return WidgetLaunch{
		Provider:  CloudPaymentsProviderName,
		AttemptID: req.AttemptID,
		Params:    params,
	}, nil
}
