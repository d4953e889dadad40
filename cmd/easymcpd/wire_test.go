package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SunilRudraKumar/Easy/internal/auth"
	"github.com/SunilRudraKumar/Easy/internal/config"
	"github.com/SunilRudraKumar/Easy/internal/conversation"
	"github.com/SunilRudraKumar/Easy/internal/events"
	"github.com/SunilRudraKumar/Easy/internal/wallet"
)

type noCredentials struct{}

func (noCredentials) CredentialsByID(context.Context, string) (*auth.Credentials, error) {
	return nil, nil
}

func (noCredentials) CredentialsByEmail(context.Context, string) (*auth.Credentials, error) {
	return nil, nil
}

func TestEventPublisherSelection(t *testing.T) {
	cfg := &config.Config{Events: config.EventsConfig{Drivers: []string{"none"}}}
	p, err := eventPublisher(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, events.None{}, p)

	cfg.Events.Drivers = []string{"memory"}
	p, err = eventPublisher(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &events.Fanout{}, p)
	require.NoError(t, p.Close())
}

func TestNewAuthorizerModes(t *testing.T) {
	a, err := newAuthorizer(config.AuthConfig{Mode: config.AuthModeInsecureAllowAll}, nil)
	require.NoError(t, err)
	require.IsType(t, &auth.AllowAll{}, a)

	a, err = newAuthorizer(config.AuthConfig{Mode: config.AuthModeCredentials}, noCredentials{})
	require.NoError(t, err)
	require.IsType(t, &auth.CredentialAuthorizer{}, a)
}

func TestMemoryConversationStores(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Conversation.Driver = "memory"
	var cleanup closers
	history, pending, err := conversationStores(context.Background(), cfg, &cleanup)
	require.NoError(t, err)
	require.IsType(t, &conversation.MemoryHistoryStore{}, history)
	require.IsType(t, &conversation.MemoryPendingStore{}, pending)
	cleanup.closeAll()
}

func TestMemoryAccountRepository(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Accounts.Driver = "memory"
	var cleanup closers
	repo, err := accountRepository(context.Background(), cfg, &cleanup)
	require.NoError(t, err)
	require.IsType(t, &wallet.MemoryAccountRepository{}, repo)
}
