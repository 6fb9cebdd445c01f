package cmd

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/billdesk/billing"
	"github.com/yourusername/billdesk/config"
	"github.com/yourusername/billdesk/models"
	"github.com/yourusername/billdesk/money"
)

func TestParseNow(t *testing.T) {
	fallback := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	got, err := parseNow("", fallback)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(fallback))

	got, err = parseNow("2024-06-30", fallback)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), got)

	got, err = parseNow("2024-06-30T10:00:00+02:00", fallback)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 30, 8, 0, 0, 0, time.UTC), got)

	_, err = parseNow("30/06/2024", fallback)
	assert.Error(t, err)
}

func TestLogConfigDefaults(t *testing.T) {
	got := logConfig(config.LogConfig{Level: "debug"})
	assert.Equal(t, "debug", got.Level)
	assert.Equal(t, "console", got.Format)
	assert.Equal(t, "stdout", got.Output)
	assert.Equal(t, time.RFC3339, got.TimeFormat)

	got = logConfig(config.LogConfig{Format: "json", Output: "stderr"})
	assert.Equal(t, "info", got.Level)
	assert.Equal(t, "json", got.Format)
	assert.Equal(t, "stderr", got.Output)
}

func TestRenderTickReport(t *testing.T) {
	report := &billing.TickReport{
		Generated: []models.Invoice{{
			InvoiceNumber: "INV-000007",
			IssueDate:     time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
			Currency:      "USD",
			Total:         150000,
			Status:        models.StatusSent,
		}},
		Failures: []billing.TickFailure{{
			TemplateID: uuid.MustParse("6f1c3f8e-8d1a-4a52-9f0e-0c3f1d2e4b5a"),
			Period:     time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
			Err:        errors.New("unknown client"),
		}},
	}

	out := renderTickReport(report, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), money.DefaultTable())
	assert.Contains(t, out, "INV-000007")
	assert.Contains(t, out, "2024-02-29")
	assert.Contains(t, out, "$1,500.00")
	assert.Contains(t, out, "6f1c3f8e-8d1a-4a52-9f0e-0c3f1d2e4b5a")
	assert.Contains(t, out, "unknown client")
	assert.Contains(t, out, "1 generated, 1 failed")

	empty := renderTickReport(&billing.TickReport{}, time.Now(), money.DefaultTable())
	assert.Contains(t, empty, "No invoices were due.")
}

func TestRenderBalance(t *testing.T) {
	inv := &models.Invoice{
		InvoiceNumber: "INV-000001",
		Status:        models.StatusPartial,
		DueDate:       time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	bal := &billing.Balance{Total: 100000, Paid: 40000, Remaining: 60000, Currency: "USD"}

	out := renderBalance(inv, bal, money.DefaultTable())
	assert.Contains(t, out, "INV-000001")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "$600.00")
	assert.Contains(t, out, "2024-03-31")
}

func TestMigrateAndTickCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BILLDESK_DATABASE_DRIVER", "sqlite")
	t.Setenv("BILLDESK_DATABASE_DSN", filepath.Join(dir, "billdesk.db"))
	t.Setenv("BILLDESK_LOG_OUTPUT", filepath.Join(dir, "billdesk.log"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"migrate", "--config-dir", dir})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "migrations applied")

	out.Reset()
	rootCmd.SetArgs([]string{"tick", "--config-dir", dir, "--now", "2024-06-30"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "0 generated, 0 failed")

	rootCmd.SetArgs([]string{"balance", "--config-dir", dir, "not-a-uuid"})
	assert.ErrorContains(t, rootCmd.Execute(), "invalid invoice id")
}
