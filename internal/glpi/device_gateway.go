package glpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/deviceops/reports-back/internal/domain"
)

// DeviceGateway looks devices up in the external inventory system. Callers
// never see the session: every Load acquires a token, performs the lookup
// and releases the token, also on failure.
type DeviceGateway struct {
	authClient *AuthClient
	logger     *log.Logger
}

func NewDeviceGateway(authClient *AuthClient, logger *log.Logger) *DeviceGateway {
	return &DeviceGateway{authClient: authClient, logger: logger}
}

// Load returns the device read model, or (nil, nil) when the inventory
// system does not know the device. Missing or unexpected response fields
// count as absent, not as a fault, so callers can render a not-found
// response instead of an error.
func (g *DeviceGateway) Load(
	ctx context.Context,
	deviceID int,
	deviceType domain.DeviceType,
) (*domain.DeviceInfo, error) {
	sessionToken, err := g.authClient.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := g.authClient.CloseSession(ctx, sessionToken); closeErr != nil {
			if g.logger != nil {
				g.logger.Printf("inventory session release failed: %v", closeErr)
			}
		}
	}()

	body, err := g.fetchDevice(ctx, sessionToken, deviceID, deviceType)
	if err != nil {
		var httpErr *apiHTTPError
		if errors.As(err, &httpErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("load device %d/%s: %w", deviceID, deviceType, err)
	}

	return parseDevice(body), nil
}

func (g *DeviceGateway) fetchDevice(
	ctx context.Context,
	sessionToken string,
	deviceID int,
	deviceType domain.DeviceType,
) ([]byte, error) {
	var body []byte
	operation := func() error {
		request, err := g.authClient.newRequest(
			ctx,
			fmt.Sprintf("/%s/%d", deviceType, deviceID),
		)
		if err != nil {
			return backoff.Permanent(err)
		}
		request.Header.Set(sessionHeader, sessionToken)

		response, err := g.authClient.do(request)
		if err != nil {
			return err
		}
		body = response
		return nil
	}

	if err := backoff.Retry(operation, g.authClient.retryPolicy(ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// parseDevice maps the inventory payload, treating malformed or incomplete
// documents as an unknown device.
func parseDevice(body []byte) *domain.DeviceInfo {
	var decoded struct {
		ID          *int    `json:"id"`
		Serial      *string `json:"serial"`
		OtherSerial *string `json:"otherserial"`
		Name        string  `json:"name"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil
	}
	if decoded.ID == nil || decoded.Serial == nil || decoded.OtherSerial == nil {
		return nil
	}

	return &domain.DeviceInfo{
		DeviceID:        *decoded.ID,
		Name:            strings.TrimSpace(decoded.Name),
		InventoryNumber: *decoded.OtherSerial,
		SerialNumber:    *decoded.Serial,
	}
}
