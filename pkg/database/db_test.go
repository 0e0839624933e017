package database

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_MAX_CONNS", "12")
	t.Setenv("DATABASE_TIMEOUT", "2s")
	cfg := ConfigFromEnv()
	require.Contains(t, cfg.DSN, "localhost:5432")
	require.Equal(t, 12, cfg.MaxConns)
	require.Equal(t, 2*time.Second, cfg.Timeout)
}

func TestSessionDSN(t *testing.T) {
	dsn, err := sessionDSN(Config{DSN: "postgres://u:p@db:5432/app?sslmode=disable"})
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@db:5432/app?sslmode=disable", dsn)

	dsn, err = sessionDSN(Config{DSN: "postgres://u:p@db:5432/app?sslmode=disable", TimeZone: "Africa/Lagos", ClientEncoding: "UTF8"})
	require.NoError(t, err)
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	require.Equal(t, "Africa/Lagos", u.Query().Get("timezone"))
	require.Equal(t, "UTF8", u.Query().Get("client_encoding"))
	require.Equal(t, "disable", u.Query().Get("sslmode"))

	dsn, err = sessionDSN(Config{DSN: "host=db dbname=app", TimeZone: "UTC"})
	require.NoError(t, err)
	require.Equal(t, "host=db dbname=app timezone='UTC'", dsn)
}

func TestQuoteLiteral(t *testing.T) {
	require.Equal(t, `'it\'s'`, quoteLiteral("it's"))
	require.Equal(t, `'a\\b'`, quoteLiteral(`a\b`))
}
