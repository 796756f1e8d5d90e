package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"klubstake/core"
	"klubstake/core/types"
	"klubstake/crypto"
	"klubstake/storage"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	j, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open("  ")
	require.ErrorIs(t, err, ErrEmptyDSN)
}

func TestIsPostgres(t *testing.T) {
	require.True(t, isPostgres("postgres://user@localhost/klub"))
	require.True(t, isPostgres("host=localhost user=klub dbname=klub"))
	require.False(t, isPostgres("file:journal.db"))
}

func TestRecordAndQuery(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for height := uint64(1); height <= 3; height++ {
		err := j.Record(ctx, core.JournalEntry{
			Height: height,
			Root:   common.BytesToHash([]byte{byte(height)}),
			Action: "deposit",
			Sender: "klub1sender",
			Events: []*types.Event{{Type: "deposit.received", Attributes: map[string]string{"quantity_minted": "100"}}},
			Time:   now.Add(time.Duration(height) * time.Second),
		})
		require.NoError(t, err)
	}

	recent, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, uint64(3), recent[0].Height)
	require.Equal(t, uint64(2), recent[1].Height)

	entry, err := j.ByHeight(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, common.BytesToHash([]byte{1}).Hex(), entry.Root)
	evts, err := entry.DecodeEvents()
	require.NoError(t, err)
	require.Len(t, evts, 1)
	require.Equal(t, "100", evts[0].Attributes["quantity_minted"])

	_, err = j.ByHeight(ctx, 99)
	require.ErrorIs(t, err, ErrNotFound)

	err = j.Record(ctx, core.JournalEntry{Height: 2, Action: "burn"})
	require.Error(t, err)
}

func TestAppRecordsCommittedTransitions(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	app, err := core.NewApp(storage.NewMemDB(), core.Options{Journal: j})
	require.NoError(t, err)

	creator := crypto.DeriveAddress(crypto.KlubPrefix, "creator")
	_, err = app.Instantiate(ctx, core.MessageInfo{Sender: creator}, core.InstantiateMsg{
		Name: "KJuno", Symbol: "Klubj", Decimals: 8, MinWithdrawal: "5",
	})
	require.NoError(t, err)

	depositor := crypto.DeriveAddress(crypto.KlubPrefix, "depositor")
	_, err = app.Execute(ctx, core.MessageInfo{Sender: depositor, Funds: types.Coins{types.NewCoin("utokenfail", 5)}},
		core.ExecuteMsg{Deposit: &core.DepositMsg{}})
	require.Error(t, err)
	_, err = app.Execute(ctx, core.MessageInfo{Sender: depositor, Funds: types.Coins{types.NewCoin(core.DefaultAcceptedDenom, 40)}},
		core.ExecuteMsg{Deposit: &core.DepositMsg{}})
	require.NoError(t, err)

	recent, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "deposit", recent[0].Action)
	require.Equal(t, depositor.String(), recent[0].Sender)
	require.Equal(t, app.Root().Hex(), recent[0].Root)
	require.Equal(t, "instantiate", recent[1].Action)
}

func TestExportClients(t *testing.T) {
	ctx := context.Background()
	app, err := core.NewApp(storage.NewMemDB(), core.Options{})
	require.NoError(t, err)
	creator := crypto.DeriveAddress(crypto.KlubPrefix, "creator")
	_, err = app.Instantiate(ctx, core.MessageInfo{Sender: creator}, core.InstantiateMsg{
		Name: "KJuno", Symbol: "Klubj", Decimals: 8, MinWithdrawal: "5",
	})
	require.NoError(t, err)

	stakes := map[string]int64{"alice": 10, "bob": 25}
	order := []string{"alice", "bob", "alice"}
	for _, label := range order {
		sender := crypto.DeriveAddress(crypto.KlubPrefix, label)
		_, err := app.Execute(ctx, core.MessageInfo{Sender: sender, Funds: types.Coins{types.NewCoin(core.DefaultAcceptedDenom, stakes[label])}},
			core.ExecuteMsg{Deposit: &core.DepositMsg{}})
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "clients.parquet")
	n, err := ExportClients(ctx, app, path)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(clientRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(2), pr.GetNumRows())

	rows := make([]clientRow, 2)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, crypto.DeriveAddress(crypto.KlubPrefix, "alice").String(), rows[0].Address)
	require.Equal(t, "20", rows[0].StakedAmount)
	require.Equal(t, "0", rows[0].YieldGenerated)
	require.Equal(t, crypto.DeriveAddress(crypto.KlubPrefix, "bob").String(), rows[1].Address)
	require.Equal(t, "25", rows[1].StakedAmount)
	require.Equal(t, int64(1), rows[1].Position)
}

func TestExportClientsBeforeInstantiate(t *testing.T) {
	app, err := core.NewApp(storage.NewMemDB(), core.Options{})
	require.NoError(t, err)
	_, err = ExportClients(context.Background(), app, filepath.Join(t.TempDir(), "out.parquet"))
	require.ErrorIs(t, err, core.ErrNotInstantiated)
}
