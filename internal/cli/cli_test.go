package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/cli"
	"stockflow/internal/config"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/auth"
)

var testNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func newSession(t *testing.T) *cli.Session {
	t.Helper()
	sess, err := cli.NewMemorySession(context.Background(), config.Default(), clock)
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess
}

func run(t *testing.T, sess *cli.Session, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmdForTest(sess, clock)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestAnalyzeCommand_PicksEarliestExpiry(t *testing.T) {
	sess := newSession(t)

	out, err := run(t, sess, "analyze", "MILK-1L", "10", "--json")
	require.NoError(t, err)

	sel := decode(t, out)
	assert.Equal(t, "fifo-expiry", sel["strategy"])
	chosen := sel["batch"].(map[string]any)
	assert.EqualValues(t, 120, chosen["receivedQuantity"])
	assert.Contains(t, sel["rationale"], "expires")
}

func TestAnalyzeCommand_TableOutput(t *testing.T) {
	sess := newSession(t)

	out, err := run(t, sess, "analyze", "MILK-1L", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "MILK-1L × 10")
	assert.Contains(t, out, "fifo-expiry")
}

func TestIssueThenUndo(t *testing.T) {
	sess := newSession(t)

	out, err := run(t, sess, "issue", "MILK-1L", "30", "online")
	require.NoError(t, err)
	assert.Contains(t, out, "Issued 30 units of MILK-1L")
	require.True(t, sess.Allocation.CanUndo())

	out, err = run(t, sess, "undo")
	require.NoError(t, err)
	assert.Contains(t, out, "Returned 30 units from online")
	assert.False(t, sess.Allocation.CanUndo())

	out, err = run(t, sess, "undo")
	assert.ErrorIs(t, err, cli.ErrReported)
	assert.Contains(t, out, "nothing to undo")
}

func TestIssueCommand_Partial(t *testing.T) {
	sess := newSession(t)

	out, err := run(t, sess, "issue", "COFFEE-250", "12", "physical", "--json")
	require.NoError(t, err)

	res := decode(t, out)
	assert.Equal(t, true, res["success"])
	payload := res["payload"].(map[string]any)
	assert.EqualValues(t, 8, payload["issued"])
	assert.EqualValues(t, 12, payload["requested"])
}

func TestIssueCommand_Rejections(t *testing.T) {
	sess := newSession(t)

	_, err := run(t, sess, "issue", "MILK-1L", "5", "warehouse")
	assert.ErrorIs(t, err, cli.ErrReported)

	out, err := run(t, sess, "issue", "UNKNOWN", "5", "physical", "--json")
	assert.ErrorIs(t, err, cli.ErrReported)
	res := decode(t, out)
	assert.Equal(t, false, res["success"])
	assert.Equal(t, "NO_STOCK_AVAILABLE", res["code"])

	_, err = run(t, sess, "issue", "MILK-1L", "five", "physical")
	assert.ErrorIs(t, err, cli.ErrReported)
	assert.False(t, sess.Allocation.CanUndo())
}

func TestUndoCommand_StaleHandle(t *testing.T) {
	sess := newSession(t)

	_, err := run(t, sess, "issue", "MILK-1L", "1", "physical")
	require.NoError(t, err)
	first := sess.Allocation.LastHandle()
	require.NotNil(t, first)

	_, err = run(t, sess, "issue", "MILK-1L", "1", "physical")
	require.NoError(t, err)

	out, err := run(t, sess, "undo", "--handle", first.ID.String())
	assert.ErrorIs(t, err, cli.ErrReported)
	assert.Contains(t, out, "no longer undoable")

	latest := sess.Allocation.LastHandle()
	_, err = run(t, sess, "undo", "--handle", id.Short(latest.ID))
	require.NoError(t, err)
}

func TestAddCommand(t *testing.T) {
	sess := newSession(t)

	out, err := run(t, sess, "add", "TEA-100", "40", "2.35", "--purchased", "-2", "--expiry", "+90", "--supplier", "Leaf & Co", "--json")
	require.NoError(t, err)
	res := decode(t, out)
	require.Equal(t, true, res["success"])
	payload := res["payload"].(map[string]any)
	assert.Equal(t, "TEA-100", payload["productCode"])
	assert.Equal(t, "Leaf & Co", payload["supplier"])

	bs, err := sess.Allocation.ListAvailable(context.Background(), "TEA-100")
	require.NoError(t, err)
	require.Len(t, bs, 1)
	assert.Equal(t, "2025-01-08", bs[0].PurchaseDate.Format(time.DateOnly))
	assert.Equal(t, "2025-04-10", bs[0].ExpiryDate.Format(time.DateOnly))
}

func TestAddCommand_Validation(t *testing.T) {
	sess := newSession(t)

	cases := map[string][]string{
		"zero quantity":   {"add", "TEA-100", "0", "2.35"},
		"bad price":       {"add", "TEA-100", "5", "cheap"},
		"future purchase": {"add", "TEA-100", "5", "2.35", "--purchased", "+1"},
		"bad expiry":      {"add", "TEA-100", "5", "2.35", "--expiry", "soon"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, sess, args...)
			assert.ErrorIs(t, err, cli.ErrReported)
		})
	}
	assert.False(t, sess.Allocation.CanUndo())
}

func TestRemoveCommand_ByPrefix(t *testing.T) {
	sess := newSession(t)

	out, err := run(t, sess, "add", "TEA-100", "40", "2.35", "--json")
	require.NoError(t, err)
	created := id.MustParse(decode(t, out)["payload"].(map[string]any)["id"].(string))
	short := id.Short(created)

	// A second batch minted in the same millisecond range shares the id's
	// leading characters, but not the short form.
	_, err = run(t, sess, "add", "TEA-100", "10", "2.40")
	require.NoError(t, err)

	out, err = run(t, sess, "remove", short)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed batch "+short)

	out, err = run(t, sess, "undo")
	require.NoError(t, err)
	assert.Contains(t, out, "Restored batch "+short)

	_, err = run(t, sess, "remove", created.String()[:8])
	assert.ErrorIs(t, err, cli.ErrReported)
}

func TestRemoveCommand_BlockedBySales(t *testing.T) {
	sess := newSession(t)

	rice, err := sess.Allocation.ListAvailable(context.Background(), "RICE-5KG")
	require.NoError(t, err)
	require.NotEmpty(t, rice)

	out, err := run(t, sess, "remove", rice[0].ID.String(), "--json")
	assert.ErrorIs(t, err, cli.ErrReported)
	res := decode(t, out)
	assert.Equal(t, false, res["success"])
	assert.NotEmpty(t, res["code"])
}

func TestRemoveCommand_UnknownPrefix(t *testing.T) {
	sess := newSession(t)

	out, err := run(t, sess, "remove", "ffffffff")
	assert.ErrorIs(t, err, cli.ErrReported)
	assert.Contains(t, out, "not found")
}

func TestListCommand(t *testing.T) {
	sess := newSession(t)

	out, err := run(t, sess, "list", "MILK-1L", "--json")
	require.NoError(t, err)
	var bs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &bs))
	assert.Len(t, bs, 3)

	out, err = run(t, sess, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "BREAD-WHT")
	assert.Contains(t, out, "expired")
}

func TestShowCommand(t *testing.T) {
	sess := newSession(t)

	_, err := run(t, sess, "issue", "MILK-1L", "7", "online")
	require.NoError(t, err)
	target := sess.Allocation.LastHandle().Target()

	out, err := run(t, sess, "show", target.String(), "--json")
	require.NoError(t, err)
	channels := decode(t, out)["channels"].(map[string]any)
	assert.EqualValues(t, 7, channels["onlineQuantity"])
	assert.EqualValues(t, 0, channels["physicalQuantity"])
}

func TestStrategyCommand(t *testing.T) {
	sess := newSession(t)

	out, err := run(t, sess, "strategy")
	require.NoError(t, err)
	assert.Contains(t, out, "fifo-expiry")

	_, err = run(t, sess, "strategy", "lowest-cost")
	require.NoError(t, err)
	assert.Equal(t, "lowest-cost", sess.Allocation.Selector().Strategy().Name())

	out, err = run(t, sess, "analyze", "MILK-1L", "10", "--json")
	require.NoError(t, err)
	chosen := decode(t, out)["batch"].(map[string]any)
	assert.Equal(t, "0.85", chosen["purchasePrice"])

	_, err = run(t, sess, "strategy", "random")
	assert.ErrorIs(t, err, cli.ErrReported)
}

func TestReportCommands(t *testing.T) {
	sess := newSession(t)

	out, err := run(t, sess, "low-stock", "--threshold", "10", "--json")
	require.NoError(t, err)
	items := decode(t, out)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "COFFEE-250", items[0].(map[string]any)["productCode"])

	out, err = run(t, sess, "expiring", "--days", "5", "--include-expired", "--json")
	require.NoError(t, err)
	report := decode(t, out)
	var products []string
	for _, it := range report["items"].([]any) {
		products = append(products, it.(map[string]any)["productCode"].(string))
	}
	assert.Contains(t, products, "BREAD-WHT")
	assert.Contains(t, products, "MILK-1L")
	assert.NotContains(t, products, "RICE-5KG")

	_, err = run(t, sess, "low-stock", "--threshold", "-1")
	assert.ErrorIs(t, err, cli.ErrReported)
}

func TestTokenCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "s3cret"
	sess, err := cli.NewMemorySession(context.Background(), cfg, clock)
	require.NoError(t, err)

	out, err := run(t, sess, "token", "--subject", "clerk-7", "--json")
	require.NoError(t, err)
	token := decode(t, out)["token"].(string)

	validator, err := auth.NewJWTService(auth.DefaultJWTConfig("s3cret"))
	require.NoError(t, err)
	op, err := validator.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "clerk-7", op.Subject)
	assert.Equal(t, []string{auth.RoleWrite}, op.Roles)

	_, err = run(t, newSession(t), "token", "--subject", "clerk-7")
	assert.ErrorIs(t, err, cli.ErrReported)
}

func TestConsole_MenuAndCommandLines(t *testing.T) {
	sess := newSession(t)

	cmd := cli.NewRootCmdForTest(sess, clock)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader(strings.Join([]string{
		"2", "MILK-1L", "5", "online", // menu entry with prompts
		`add TEA-100 12 1.10 --supplier "Leaf & Co"`,
		"undo",
		"undo",
		"q",
	}, "\n")))
	cmd.SetArgs([]string{"console"})
	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "stockctl console")
	assert.Contains(t, out, "Issued 5 units of MILK-1L")
	assert.Contains(t, out, "Added batch")
	assert.Contains(t, out, "undo: issue 5 of 5 x MILK-1L")

	// The add is undone; the issue before it is not, since only the latest
	// command holds the undo slot.
	assert.Contains(t, out, "again")
	assert.Contains(t, out, "nothing to undo")
	assert.False(t, sess.Allocation.CanUndo())
	tea, err := sess.Allocation.ListAvailable(context.Background(), "TEA-100")
	require.NoError(t, err)
	assert.Empty(t, tea)
}
