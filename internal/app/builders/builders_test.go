package builders

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/leadbot/internal/config"
	"github.com/aatumaykin/leadbot/internal/llm"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/notify"
	"github.com/aatumaykin/leadbot/internal/oracle"
	"github.com/aatumaykin/leadbot/internal/runlock"
	"github.com/aatumaykin/leadbot/internal/store"
	"github.com/aatumaykin/leadbot/internal/transport"
)

func TestOracleBuilder_Static(t *testing.T) {
	cfg := config.Default()
	cfg.Oracle.Backend = "static"

	o, err := NewOracleBuilder(cfg, logger.Discard()).Build()
	require.NoError(t, err)
	assert.IsType(t, &oracle.StaticOracle{}, o)
}

func TestOracleBuilder_StaticInvalidTemplate(t *testing.T) {
	cfg := config.Default()
	cfg.Oracle.Backend = "static"
	cfg.Oracle.Body = "Hello {{.FirstName"

	_, err := NewOracleBuilder(cfg, logger.Discard()).Build()
	require.Error(t, err)
}

func TestOracleBuilder_LLMUsesProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Oracle.Backend = "llm"
	provider := llm.NewFixedProvider(`{"subject":"Hi","body":"Hello there","strategy":"intro"}`)

	o, err := NewOracleBuilder(cfg, logger.Discard()).WithProvider(provider).Build()
	require.NoError(t, err)
	require.IsType(t, &oracle.LLMOracle{}, o)

	lead := model.NewLead("ann@acme.io")
	lead.FirstName = "Ann"
	rec, err := o.Recommend(context.Background(), oracle.NewRequest(lead, model.ActionSendInitial))
	require.NoError(t, err)
	assert.Equal(t, "Hi", rec.Subject)
	assert.Equal(t, 1, provider.GetCallCount())
}

func TestOracleBuilder_Unsupported(t *testing.T) {
	cfg := config.Default()
	cfg.Oracle.Backend = "tarot"

	_, err := NewOracleBuilder(cfg, logger.Discard()).Build()
	require.Error(t, err)
}

func TestTransportBuilder(t *testing.T) {
	t.Run("log", func(t *testing.T) {
		cfg := config.Default()
		cfg.Transport.Backend = "log"
		s, err := NewTransportBuilder(cfg, logger.Discard()).Build()
		require.NoError(t, err)
		assert.IsType(t, &transport.LogSender{}, s)
	})

	t.Run("smtp", func(t *testing.T) {
		cfg := config.Default()
		cfg.Transport.Backend = "smtp"
		cfg.SMTP.Host = "smtp.example.org"
		cfg.SMTP.From = "sales@example.org"
		s, err := NewTransportBuilder(cfg, logger.Discard()).Build()
		require.NoError(t, err)
		assert.IsType(t, &transport.SMTPSender{}, s)
	})

	t.Run("smtp without host", func(t *testing.T) {
		cfg := config.Default()
		cfg.Transport.Backend = "smtp"
		_, err := NewTransportBuilder(cfg, logger.Discard()).Build()
		require.Error(t, err)
	})

	t.Run("unsupported", func(t *testing.T) {
		cfg := config.Default()
		cfg.Transport.Backend = "fax"
		_, err := NewTransportBuilder(cfg, logger.Discard()).Build()
		require.Error(t, err)
	})
}

func TestLockBuilder(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		st, err := store.Open(ctx, store.Config{Path: filepath.Join(t.TempDir(), "leadbot.db")}, logger.Discard())
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })

		cfg := config.Default()
		cfg.Lock.Backend = "sqlite"
		l, closeFn, err := NewLockBuilder(cfg, logger.Discard(), st).Build(ctx)
		require.NoError(t, err)
		assert.Nil(t, closeFn)
		assert.IsType(t, &store.LeaseLock{}, l)
	})

	t.Run("sqlite without store", func(t *testing.T) {
		cfg := config.Default()
		cfg.Lock.Backend = "sqlite"
		_, _, err := NewLockBuilder(cfg, logger.Discard(), nil).Build(ctx)
		require.Error(t, err)
	})

	t.Run("memory", func(t *testing.T) {
		cfg := config.Default()
		cfg.Lock.Backend = "memory"
		l, _, err := NewLockBuilder(cfg, logger.Discard(), nil).Build(ctx)
		require.NoError(t, err)
		assert.IsType(t, &runlock.Memory{}, l)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := config.Default()
		cfg.Lock.Backend = "redis"
		cfg.Redis.URL = "redis://127.0.0.1:1/0"
		_, _, err := NewLockBuilder(cfg, logger.Discard(), nil).Build(ctx)
		require.Error(t, err)
	})
}

func TestNotifyBuilder(t *testing.T) {
	cfg := config.Default()
	n, err := NewNotifyBuilder(cfg, logger.Discard()).Build()
	require.NoError(t, err)
	require.IsType(t, notify.Multi{}, n)
	assert.Len(t, n.(notify.Multi), 1)

	cfg.Notify.TelegramEnabled = true
	cfg.Notify.TelegramToken = "not-a-token"
	cfg.Notify.TelegramChatIDs = []int64{42}
	_, err = NewNotifyBuilder(cfg, logger.Discard()).Build()
	require.Error(t, err)
}
