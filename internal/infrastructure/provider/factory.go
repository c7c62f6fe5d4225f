package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/qris-gateway/internal/config"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/provider"
	"github.com/wekeepgrowing/qris-gateway/internal/infrastructure/crypto"
	legacyProfile "github.com/wekeepgrowing/qris-gateway/internal/infrastructure/provider/legacy"
	"github.com/wekeepgrowing/qris-gateway/internal/infrastructure/provider/session"
	snapProfile "github.com/wekeepgrowing/qris-gateway/internal/infrastructure/provider/snap"
	"github.com/wekeepgrowing/qris-gateway/internal/infrastructure/transport"
)

// Factory creates the gateway profile and client based on the configured profile type
type Factory struct {
	config    *config.GatewayConfig
	transport transport.Transport
	logger    *zap.Logger
}

// NewFactory creates a new provider factory
func NewFactory(config *config.GatewayConfig, logger *zap.Logger) *Factory {
	return &Factory{
		config:    config,
		transport: transport.NewHTTPTransport(config.RequestTimeout, logger),
		logger:    logger,
	}
}

// WithTransport replaces the HTTP transport
func (f *Factory) WithTransport(t transport.Transport) *Factory {
	f.transport = t
	return f
}

// GetProfile returns a gateway profile based on the profile type
func (f *Factory) GetProfile(profileType provider.ProfileType) (provider.GatewayProfile, error) {
	switch profileType {
	case provider.ProfileTypeSNAP:
		return f.createSNAPProfile()
	case provider.ProfileTypeLegacy:
		return f.createLegacyProfile()
	default:
		return nil, fmt.Errorf("unsupported gateway profile: %s", profileType)
	}
}

// GetProfileFromString returns a gateway profile from a string type
func (f *Factory) GetProfileFromString(profileStr string) (provider.GatewayProfile, error) {
	// Default to SNAP if not specified
	if profileStr == "" {
		profileStr = string(provider.ProfileTypeSNAP)
	}
	return f.GetProfile(provider.ProfileType(profileStr))
}

// NewClient wires the configured profile behind a session manager
func (f *Factory) NewClient() (*Client, *session.Manager, error) {
	profile, err := f.GetProfileFromString(f.config.Profile)
	if err != nil {
		return nil, nil, err
	}

	manager := session.NewManager(profile, f.logger,
		session.WithSafetyMargin(f.config.TokenSafetyMargin),
		session.WithDefaultTTL(f.config.DefaultTokenTTL))

	client := NewClient(profile, manager, ClientOptions{
		Currency:       f.config.Currency,
		CallbackURL:    f.config.CallbackURL,
		QRImageBaseURL: f.config.QRImageBaseURL,
	}, f.logger)

	return client, manager, nil
}

// createSNAPProfile creates a new SNAP profile instance
func (f *Factory) createSNAPProfile() (provider.GatewayProfile, error) {
	if f.config.ClientID == "" || f.config.ClientSecret == "" {
		return nil, fmt.Errorf("SNAP client credentials not configured")
	}

	signer, err := crypto.NewHMACSigner(f.config.ResolvedSignatureEncoding())
	if err != nil {
		return nil, err
	}

	return snapProfile.NewSNAPProfile(snapProfile.Config{
		BaseURL:       f.config.ResolvedBaseURL(),
		ClientID:      f.config.ClientID,
		ClientSecret:  f.config.ClientSecret,
		MerchantID:    f.config.MerchantID,
		StoreLabel:    f.config.MerchantName,
		TerminalLabel: f.config.MerchantCity,
	}, signer, f.transport, f.logger), nil
}

// createLegacyProfile creates a new legacy REST profile instance
func (f *Factory) createLegacyProfile() (provider.GatewayProfile, error) {
	if f.config.ClientID == "" || f.config.ClientSecret == "" {
		return nil, fmt.Errorf("legacy client credentials not configured")
	}

	return legacyProfile.NewLegacyProfile(legacyProfile.Config{
		BaseURL:      f.config.ResolvedBaseURL(),
		ClientID:     f.config.ClientID,
		ClientSecret: f.config.ClientSecret,
		MerchantID:   f.config.MerchantID,
		TerminalID:   f.config.TerminalID,
	}, f.transport, f.logger), nil
}
